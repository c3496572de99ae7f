package forecast

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Sheet is one decoded worksheet: its name and the raw cell text of each row.
type Sheet struct {
	Name string
	Rows [][]string
}

// Product is one named row of a vendor sheet.
type Product struct {
	Name   string          `json:"name"`
	Base   []int           `json:"base"`
	PerDay decimal.Decimal `json:"per_day"`
}

// Vendor groups the products of one sheet.
type Vendor struct {
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

// Catalog is the ordered list of vendors ingested from a workbook.
type Catalog struct {
	Vendors []Vendor `json:"vendors"`
}

// Empty reports whether the catalog has no vendors.
func (c Catalog) Empty() bool {
	return len(c.Vendors) == 0
}

// Names lists vendor names in sheet order.
func (c Catalog) Names() []string {
	names := make([]string, len(c.Vendors))
	for i, v := range c.Vendors {
		names[i] = v.Name
	}
	return names
}

// Vendor looks up a vendor by name.
func (c Catalog) Vendor(name string) (Vendor, bool) {
	for _, v := range c.Vendors {
		if v.Name == name {
			return v, true
		}
	}
	return Vendor{}, false
}

// ProductCount totals products across vendors.
func (c Catalog) ProductCount() int {
	total := 0
	for _, v := range c.Vendors {
		total += len(v.Products)
	}
	return total
}

// Normalize turns decoded sheets into a catalog. Sheets without a single named
// row are left out; an empty result is returned as-is and callers report
// ErrNoValidRows.
func Normalize(sheets []Sheet, layout Layout) Catalog {
	catalog := Catalog{Vendors: make([]Vendor, 0, len(sheets))}
	for _, sheet := range sheets {
		products := NormalizeSheet(sheet.Rows, layout)
		if len(products) == 0 {
			continue
		}
		catalog.Vendors = append(catalog.Vendors, Vendor{Name: sheet.Name, Products: products})
	}
	return catalog
}

// NormalizeSheet parses the rows of one sheet. Column 0 is the product name and
// columns 1-3 are numeric figures; anything further right is ignored. Rows with
// a blank name are skipped and numeric cells use the coerce-or-zero rule.
func NormalizeSheet(rows [][]string, layout Layout) []Product {
	products := make([]Product, 0, len(rows))
	for _, row := range rows {
		name := productName(cell(row, 0))
		if name == "" {
			continue
		}
		base := make([]int, DemandColumns)
		for i := range base {
			base[i] = CoerceQuantity(cell(row, i+1))
		}
		p := Product{Name: name, Base: base, PerDay: decimal.Zero}
		switch layout.Mode {
		case ModeAverage:
			p.PerDay = ParseDecimalOrZero(cell(row, 1))
		case ModeMonthly:
			sum := decimal.Zero
			for i := 1; i <= DemandColumns; i++ {
				sum = sum.Add(ParseDecimalOrZero(cell(row, i)))
			}
			days := layout.DaysPerMonth
			if days <= 0 {
				days = 30
			}
			p.PerDay = sum.Div(decimal.NewFromInt(int64(DemandColumns * days)))
		}
		products = append(products, p)
	}
	return products
}

func productName(raw string) string {
	return strings.TrimSpace(norm.NFC.String(raw))
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
