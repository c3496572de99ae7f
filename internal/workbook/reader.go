// Package workbook decodes uploaded spreadsheets into raw sheet rows.
package workbook

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/freshbasket/forecast/internal/forecast"
)

// Format identifies a supported spreadsheet encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

var (
	// ErrUnsupportedFormat is returned for file extensions we cannot decode.
	ErrUnsupportedFormat = errors.New("workbook: unsupported file format")
	// ErrEmptyWorkbook is returned when the upload has no bytes or no sheets.
	ErrEmptyWorkbook = errors.New("workbook: empty workbook")
)

// DetectFormat picks the decoder from the file name, defaulting to xlsx for
// names without an extension.
func DetectFormat(filename string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm", "":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// Read decodes every sheet of the workbook in order.
func Read(r io.Reader, filename string) ([]forecast.Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("workbook: read upload: %w", err)
	}
	return Decode(data, filename)
}

// Decode is Read over an in-memory upload.
func Decode(data []byte, filename string) ([]forecast.Sheet, error) {
	if len(data) == 0 {
		return nil, ErrEmptyWorkbook
	}
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	var sheets []forecast.Sheet
	switch format {
	case FormatXLS:
		sheets, err = decodeXLS(data)
	case FormatCSV:
		sheets, err = decodeCSV(data, filename)
	default:
		sheets, err = decodeXLSX(data)
	}
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	return sheets, nil
}

func decodeXLSX(data []byte) ([]forecast.Sheet, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("workbook: open xlsx: %w", err)
	}
	defer func() { _ = file.Close() }()

	names := file.GetSheetList()
	sheets := make([]forecast.Sheet, 0, len(names))
	for _, name := range names {
		// Raw values keep number formats such as thousands separators out of
		// the numeric cells.
		rows, err := file.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("workbook: read sheet %q: %w", name, err)
		}
		sheets = append(sheets, forecast.Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}

func decodeXLS(data []byte) ([]forecast.Sheet, error) {
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("workbook: open xls: %w", err)
	}
	sheets := make([]forecast.Sheet, 0, book.NumSheets())
	for i := 0; i < book.NumSheets(); i++ {
		ws := book.GetSheet(i)
		if ws == nil {
			continue
		}
		rows := make([][]string, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		sheets = append(sheets, forecast.Sheet{Name: ws.Name, Rows: rows})
	}
	return sheets, nil
}

func decodeCSV(data []byte, filename string) ([]forecast.Sheet, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("workbook: read csv: %w", err)
	}
	return []forecast.Sheet{{Name: CSVSheetName(filename), Rows: rows}}, nil
}

// CSVSheetName is the vendor name a CSV upload is read under: the file name
// without its extension.
func CSVSheetName(filename string) string {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if name == "" || name == "." {
		return "Sheet1"
	}
	return name
}
