package forecast

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
)

// CSVHeader is the header row of projection exports.
var CSVHeader = []string{"Product", "Projected Qty"}

// WriteCSV writes the included rows with CRLF line endings. Product names are
// quoted whenever they contain commas, quotes or line breaks.
func WriteCSV(w io.Writer, rows []ProjectionRow, opts InvoiceOptions) error {
	writer := csv.NewWriter(w)
	writer.UseCRLF = true
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, row := range IncludedRows(rows, opts.IncludeZeros) {
		if err := writer.Write([]string{row.Product, strconv.Itoa(row.Qty)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// BuildCSV returns the CSV payload as a string.
func BuildCSV(rows []ProjectionRow, opts InvoiceOptions) string {
	var buf bytes.Buffer
	// bytes.Buffer writes never fail.
	_ = WriteCSV(&buf, rows, opts)
	return buf.String()
}
