package forecast

import "fmt"

// OnHand maps a product index within a vendor to its counted stock. Missing
// entries count as zero.
type OnHand map[int]int

// Get returns the on-hand count for the product index.
func (o OnHand) Get(idx int) int {
	if o == nil {
		return 0
	}
	return clampZero(o[idx])
}

// ProjectionRow is the replenishment quantity computed for one product.
type ProjectionRow struct {
	Product string `json:"product"`
	Qty     int    `json:"qty"`
}

// Project returns max(0, demand - onHand). Negative inputs are treated as zero
// so the result is never negative.
func Project(demand, onHand int) int {
	if d := clampZero(demand) - clampZero(onHand); d > 0 {
		return d
	}
	return 0
}

// ProjectVendor computes one row per product, in sheet order.
func ProjectVendor(v Vendor, onHand OnHand, layout Layout, horizon int) ([]ProjectionRow, error) {
	if !layout.Supports(horizon) {
		return nil, fmt.Errorf("forecast: %d days: %w", horizon, ErrUnknownHorizon)
	}
	rows := make([]ProjectionRow, len(v.Products))
	for i, p := range v.Products {
		qty, err := layout.Project(p, horizon, onHand.Get(i))
		if err != nil {
			return nil, err
		}
		rows[i] = ProjectionRow{Product: p.Name, Qty: qty}
	}
	return rows, nil
}

// IncludedRows applies the invoice filtering policy and returns a new slice.
func IncludedRows(rows []ProjectionRow, includeZeros bool) []ProjectionRow {
	out := make([]ProjectionRow, 0, len(rows))
	for _, row := range rows {
		if row.Qty <= 0 && !includeZeros {
			continue
		}
		out = append(out, row)
	}
	return out
}
