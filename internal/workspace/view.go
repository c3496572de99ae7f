package workspace

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/freshbasket/forecast/internal/forecast"
)

// ProductLine is one editable row of the product table.
type ProductLine struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Base   []int  `json:"base"`
	OnHand int    `json:"on_hand"`
	Qty    int    `json:"qty"`
}

// View is the rendered state of a workspace: selection, product table and
// the live projection.
type View struct {
	Loaded       bool                     `json:"loaded"`
	Source       string                   `json:"source,omitempty"`
	LoadedAt     time.Time                `json:"loaded_at,omitempty"`
	VendorCount  int                      `json:"vendor_count"`
	Vendors      []string                 `json:"vendors"`
	Vendor       string                   `json:"vendor"`
	Branches     []string                 `json:"branches"`
	Branch       string                   `json:"branch"`
	Horizons     []int                    `json:"horizons"`
	Horizon      int                      `json:"horizon"`
	Header       string                   `json:"header"`
	Columns      []string                 `json:"columns"`
	Products     []ProductLine            `json:"products"`
	Rows         []forecast.ProjectionRow `json:"rows"`
	TotalQty     int                      `json:"total_qty"`
	Advisory     string                   `json:"advisory,omitempty"`
	IncludeZeros bool                     `json:"include_zeros"`
	Invoice      string                   `json:"invoice,omitempty"`
	ShareURL     string                   `json:"share_url,omitempty"`
}

// ProjectionHeader renders the table heading for a horizon.
func ProjectionHeader(horizon int) string {
	return forecast.DaysLabel(horizon) + " Projection"
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExportFilename names the CSV download for a vendor and horizon.
func ExportFilename(vendor string, horizon int) string {
	name := strings.Trim(unsafeFilename.ReplaceAllString(vendor, "-"), "-")
	if name == "" {
		name = "vendor"
	}
	return fmt.Sprintf("projection-%s-%dd.csv", name, horizon)
}

func (s *Service) view(ws *forecast.Workspace) (View, error) {
	layout := s.opts.Layout
	horizon := ws.EffectiveHorizon(layout)
	v := View{
		Loaded:       ws.Loaded(),
		Source:       ws.Source,
		LoadedAt:     ws.LoadedAt,
		VendorCount:  len(ws.Catalog.Vendors),
		Vendors:      ws.Catalog.Names(),
		Vendor:       ws.Vendor,
		Branches:     s.Branches(),
		Branch:       ws.Branch,
		Horizons:     append([]int(nil), layout.Horizons...),
		Horizon:      horizon,
		Header:       ProjectionHeader(horizon),
		Columns:      layout.ColumnLabels(),
		IncludeZeros: s.opts.IncludeZeros,
	}
	if !v.Loaded {
		return v, nil
	}

	vendor, ok := ws.Catalog.Vendor(ws.Vendor)
	if !ok {
		return View{}, fmt.Errorf("workspace: %q: %w", ws.Vendor, forecast.ErrUnknownVendor)
	}
	rows, err := ws.Projection(layout)
	if err != nil {
		return View{}, err
	}
	onHand := ws.OnHandFor(ws.Vendor)
	v.Rows = rows
	v.Products = make([]ProductLine, len(vendor.Products))
	for i, p := range vendor.Products {
		v.Products[i] = ProductLine{
			Index:  i,
			Name:   p.Name,
			Base:   append([]int(nil), p.Base...),
			OnHand: onHand.Get(i),
			Qty:    rows[i].Qty,
		}
		v.TotalQty += rows[i].Qty
	}
	if !ws.HasOnHand(ws.Vendor) {
		v.Advisory = AdvisoryNoOnHand
	}
	if ws.InvoiceTxt != "" {
		v.Invoice = ws.InvoiceTxt
		v.ShareURL = forecast.ShareURL(s.opts.ShareURL, ws.InvoiceTxt)
	}
	return v, nil
}
