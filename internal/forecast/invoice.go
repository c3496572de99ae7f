package forecast

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvoiceTimeLayout formats the invoice Date line.
const InvoiceTimeLayout = "2006-01-02 15:04:05"

// InvoiceOptions controls which projection rows are printed.
type InvoiceOptions struct {
	IncludeZeros bool
}

// Invoice is a replenishment request for one vendor and branch.
type Invoice struct {
	ID         string          `json:"id"`
	Vendor     string          `json:"vendor"`
	Branch     string          `json:"branch"`
	CreatedAt  time.Time       `json:"created_at"`
	Items      []ProjectionRow `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalQty   int             `json:"total_qty"`
}

// NewInvoice filters rows and computes totals over the included set only. The
// input slice is not modified.
func NewInvoice(vendor, branch string, rows []ProjectionRow, at time.Time, opts InvoiceOptions) Invoice {
	items := IncludedRows(rows, opts.IncludeZeros)
	total := 0
	for _, item := range items {
		total += item.Qty
	}
	return Invoice{
		ID:         uuid.NewString(),
		Vendor:     vendor,
		Branch:     branch,
		CreatedAt:  at,
		Items:      items,
		TotalItems: len(items),
		TotalQty:   total,
	}
}

// Text renders the invoice in the messaging-app format.
func (inv Invoice) Text() string {
	var b strings.Builder
	b.WriteString("*Vendor Demand Invoice*\n")
	b.WriteString("*Vendor:* " + inv.Vendor + "\n")
	b.WriteString("*Branch:* " + inv.Branch + "\n")
	b.WriteString("*Date:* " + inv.CreatedAt.Format(InvoiceTimeLayout) + "\n")
	b.WriteString("\n*ITEMS:*\n")
	for _, item := range inv.Items {
		b.WriteString("- " + item.Product + ": " + strconv.Itoa(item.Qty) + "\n")
	}
	b.WriteString("\n*TOTAL ITEMS:* " + strconv.Itoa(inv.TotalItems) + "\n")
	b.WriteString("*TOTAL QTY:* " + strconv.Itoa(inv.TotalQty))
	return b.String()
}

// BuildInvoice renders the invoice text for the rows in one call.
func BuildInvoice(vendor, branch string, rows []ProjectionRow, at time.Time, opts InvoiceOptions) string {
	return NewInvoice(vendor, branch, rows, at, opts).Text()
}

// ShareURL builds a messaging deep link carrying the percent-encoded text.
func ShareURL(base, text string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "text=" + escaped
}
