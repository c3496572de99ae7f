package forecast

import (
	"fmt"
	"time"
)

// Workspace is the state of one user session: the loaded catalog, the current
// selection, entered on-hand counts and the last generated invoice. Projections
// are never stored; they are derived from this state on every read.
type Workspace struct {
	Catalog    Catalog           `json:"catalog"`
	Source     string            `json:"source,omitempty"`
	LoadedAt   time.Time         `json:"loaded_at,omitempty"`
	Vendor     string            `json:"vendor,omitempty"`
	Branch     string            `json:"branch,omitempty"`
	Horizon    int               `json:"horizon,omitempty"`
	OnHand     map[string]OnHand `json:"on_hand,omitempty"`
	Invoice    *Invoice          `json:"invoice,omitempty"`
	InvoiceTxt string            `json:"invoice_text,omitempty"`
}

// Loaded reports whether a catalog is present.
func (w *Workspace) Loaded() bool {
	return w != nil && !w.Catalog.Empty()
}

// Load replaces the catalog. On-hand counts and any invoice are discarded and
// the first vendor becomes the selection. The branch survives a re-upload.
func (w *Workspace) Load(catalog Catalog, source string, at time.Time) {
	w.Catalog = catalog
	w.Source = source
	w.LoadedAt = at
	w.OnHand = nil
	w.clearInvoice()
	w.Vendor = ""
	if !catalog.Empty() {
		w.Vendor = catalog.Vendors[0].Name
	}
}

// Reset drops the catalog and everything derived from it.
func (w *Workspace) Reset() {
	branch := w.Branch
	*w = Workspace{Branch: branch}
}

// Select changes the vendor and branch. An empty branch keeps the current one.
func (w *Workspace) Select(vendor, branch string) error {
	if !w.Loaded() {
		return ErrNoCatalog
	}
	if _, ok := w.Catalog.Vendor(vendor); !ok {
		return fmt.Errorf("forecast: %q: %w", vendor, ErrUnknownVendor)
	}
	if vendor != w.Vendor {
		w.clearInvoice()
	}
	w.Vendor = vendor
	if branch != "" {
		w.Branch = branch
	}
	return nil
}

// SetHorizon changes the projection horizon.
func (w *Workspace) SetHorizon(layout Layout, horizon int) error {
	if !layout.Supports(horizon) {
		return fmt.Errorf("forecast: %d days: %w", horizon, ErrUnknownHorizon)
	}
	w.Horizon = horizon
	return nil
}

// SetOnHand records a raw on-hand entry for a product of the vendor, coercing
// it with the coerce-or-zero rule.
func (w *Workspace) SetOnHand(vendor string, idx int, raw string) error {
	v, ok := w.Catalog.Vendor(vendor)
	if !ok {
		return fmt.Errorf("forecast: %q: %w", vendor, ErrUnknownVendor)
	}
	if idx < 0 || idx >= len(v.Products) {
		return fmt.Errorf("forecast: %s[%d]: %w", vendor, idx, ErrUnknownProduct)
	}
	if w.OnHand == nil {
		w.OnHand = make(map[string]OnHand)
	}
	entries := w.OnHand[vendor]
	if entries == nil {
		entries = make(OnHand)
		w.OnHand[vendor] = entries
	}
	entries[idx] = CoerceQuantity(raw)
	return nil
}

// OnHandFor returns the entries of a vendor, possibly nil.
func (w *Workspace) OnHandFor(vendor string) OnHand {
	if w.OnHand == nil {
		return nil
	}
	return w.OnHand[vendor]
}

// HasOnHand reports whether any on-hand count was entered for the vendor.
func (w *Workspace) HasOnHand(vendor string) bool {
	return len(w.OnHandFor(vendor)) > 0
}

// EffectiveHorizon returns the selected horizon or the first offered one.
func (w *Workspace) EffectiveHorizon(layout Layout) int {
	if w.Horizon > 0 && layout.Supports(w.Horizon) {
		return w.Horizon
	}
	if len(layout.Horizons) == 0 {
		return 0
	}
	return layout.Horizons[0]
}

// Projection recomputes the selected vendor's rows for the effective horizon.
func (w *Workspace) Projection(layout Layout) ([]ProjectionRow, error) {
	if !w.Loaded() {
		return nil, ErrNoCatalog
	}
	v, ok := w.Catalog.Vendor(w.Vendor)
	if !ok {
		return nil, fmt.Errorf("forecast: %q: %w", w.Vendor, ErrUnknownVendor)
	}
	return ProjectVendor(v, w.OnHandFor(w.Vendor), layout, w.EffectiveHorizon(layout))
}

// SetInvoice stores the generated invoice and its rendered text.
func (w *Workspace) SetInvoice(inv Invoice) {
	w.Invoice = &inv
	w.InvoiceTxt = inv.Text()
}

func (w *Workspace) clearInvoice() {
	w.Invoice = nil
	w.InvoiceTxt = ""
}
