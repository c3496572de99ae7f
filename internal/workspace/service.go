// Package workspace keeps the per-session forecasting state in Redis and
// exposes the operations the web handlers drive.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/freshbasket/forecast/internal/forecast"
	"github.com/freshbasket/forecast/internal/workbook"
)

// AdvisoryNoOnHand is shown with a projection when no stock was counted yet.
const AdvisoryNoOnHand = "Enter on-hand counts before generating an invoice."

// Metrics receives domain counters.
type Metrics interface {
	WorkbookIngested(result string)
	CatalogCache(hit bool)
	InvoiceGenerated(vendor string)
	Exported(format string)
}

type nopMetrics struct{}

func (nopMetrics) WorkbookIngested(string) {}
func (nopMetrics) CatalogCache(bool)       {}
func (nopMetrics) InvoiceGenerated(string) {}
func (nopMetrics) Exported(string)         {}

// Options configures the service.
type Options struct {
	Layout       forecast.Layout
	Branches     []string
	IncludeZeros bool
	Location     *time.Location
	ShareURL     string
}

// Service applies workspace transitions and persists the result.
type Service struct {
	store   *Store
	cache   *CatalogCache
	opts    Options
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the service.
func NewService(store *Store, cache *CatalogCache, opts Options, metrics Metrics, logger *slog.Logger) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{
		store:   store,
		cache:   cache,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Layout returns the configured workbook layout.
func (s *Service) Layout() forecast.Layout {
	return s.opts.Layout
}

// Branches returns the configured branch list.
func (s *Service) Branches() []string {
	return slices.Clone(s.opts.Branches)
}

// IncludeZeros returns the default invoice filtering policy.
func (s *Service) IncludeZeros() bool {
	return s.opts.IncludeZeros
}

// Workspace loads the session workspace.
func (s *Service) Workspace(ctx context.Context, sessionID string) (*forecast.Workspace, error) {
	ws, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.defaults(ws)
	return ws, nil
}

func (s *Service) defaults(ws *forecast.Workspace) {
	if ws.Branch == "" && len(s.opts.Branches) > 0 {
		ws.Branch = s.opts.Branches[0]
	}
}

// update runs one transition under Store.Update so concurrent requests of the
// same session never overwrite each other.
func (s *Service) update(ctx context.Context, sessionID string, fn func(*forecast.Workspace) error) (*forecast.Workspace, error) {
	return s.store.Update(ctx, sessionID, func(ws *forecast.Workspace) error {
		s.defaults(ws)
		return fn(ws)
	})
}

// Upload ingests a workbook into the session. A workbook without usable rows
// empties the workspace and reports forecast.ErrNoValidRows.
func (s *Service) Upload(ctx context.Context, sessionID, filename string, r io.Reader) (*forecast.Workspace, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		s.metrics.WorkbookIngested("failed")
		return nil, fmt.Errorf("workspace: read upload: %w", err)
	}
	catalog, hit, err := s.cache.Catalog(ctx, data, filename, s.opts.Layout)
	switch {
	case errors.Is(err, workbook.ErrEmptyWorkbook):
		catalog, err = forecast.Catalog{}, nil
	case err != nil:
		s.metrics.WorkbookIngested("failed")
		return nil, err
	}

	at := s.now()
	ws, err := s.update(ctx, sessionID, func(ws *forecast.Workspace) error {
		ws.Load(catalog, filename, at)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if catalog.Empty() {
		s.metrics.WorkbookIngested("rejected")
		s.logger.Info("workbook rejected", slog.String("file", filename))
		return ws, forecast.ErrNoValidRows
	}
	s.metrics.WorkbookIngested("accepted")
	s.logger.Info("workbook loaded",
		slog.String("file", filename),
		slog.Int("vendors", len(catalog.Vendors)),
		slog.Int("products", catalog.ProductCount()),
		slog.Bool("cached", hit),
	)
	return ws, nil
}

// Reset discards the catalog and everything derived from it.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	_, err := s.update(ctx, sessionID, func(ws *forecast.Workspace) error {
		ws.Reset()
		return nil
	})
	return err
}

// Select changes the vendor and branch. An empty vendor keeps the current one.
func (s *Service) Select(ctx context.Context, sessionID, vendor, branch string) (*forecast.Workspace, error) {
	if branch != "" && !slices.Contains(s.opts.Branches, branch) {
		return nil, fmt.Errorf("workspace: %q: %w", branch, forecast.ErrUnknownBranch)
	}
	return s.update(ctx, sessionID, func(ws *forecast.Workspace) error {
		v := vendor
		if v == "" {
			v = ws.Vendor
		}
		return ws.Select(v, branch)
	})
}

// SetHorizon changes the projection horizon.
func (s *Service) SetHorizon(ctx context.Context, sessionID string, horizon int) (*forecast.Workspace, error) {
	return s.update(ctx, sessionID, func(ws *forecast.Workspace) error {
		return ws.SetHorizon(s.opts.Layout, horizon)
	})
}

// UpdateOnHand records one on-hand entry and returns the recomputed view.
// An empty vendor means the selected one.
func (s *Service) UpdateOnHand(ctx context.Context, sessionID, vendor string, index int, raw string) (View, error) {
	return s.UpdateOnHandBatch(ctx, sessionID, vendor, map[int]string{index: raw})
}

// UpdateOnHandBatch records several on-hand entries in one transition. Either
// every entry is applied or, when one index is out of range, none is.
func (s *Service) UpdateOnHandBatch(ctx context.Context, sessionID, vendor string, entries map[int]string) (View, error) {
	ws, err := s.update(ctx, sessionID, func(ws *forecast.Workspace) error {
		if !ws.Loaded() {
			return forecast.ErrNoCatalog
		}
		v := vendor
		if v == "" {
			v = ws.Vendor
		}
		indices := make([]int, 0, len(entries))
		for idx := range entries {
			indices = append(indices, idx)
		}
		slices.Sort(indices)
		for _, idx := range indices {
			if err := ws.SetOnHand(v, idx, entries[idx]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return s.view(ws)
}

// View recomputes the projection of the session's current selection.
func (s *Service) View(ctx context.Context, sessionID string) (View, error) {
	ws, err := s.Workspace(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return s.view(ws)
}

// GenerateInvoice builds the invoice for the current selection and stores
// its text in the workspace. includeZeros overrides the configured policy.
func (s *Service) GenerateInvoice(ctx context.Context, sessionID string, includeZeros *bool) (forecast.Invoice, error) {
	opts := forecast.InvoiceOptions{IncludeZeros: s.opts.IncludeZeros}
	if includeZeros != nil {
		opts.IncludeZeros = *includeZeros
	}
	at := s.now().In(s.opts.Location)

	var inv forecast.Invoice
	_, err := s.update(ctx, sessionID, func(ws *forecast.Workspace) error {
		rows, err := ws.Projection(s.opts.Layout)
		if err != nil {
			return err
		}
		inv = forecast.NewInvoice(ws.Vendor, ws.Branch, rows, at, opts)
		if len(inv.Items) == 0 {
			return forecast.ErrNothingToOrder
		}
		ws.SetInvoice(inv)
		return nil
	})
	if err != nil {
		return forecast.Invoice{}, err
	}
	s.metrics.InvoiceGenerated(inv.Vendor)
	s.logger.Info("invoice generated",
		slog.String("invoice_id", inv.ID),
		slog.String("vendor", inv.Vendor),
		slog.String("branch", inv.Branch),
		slog.Int("items", inv.TotalItems),
		slog.Int("qty", inv.TotalQty),
	)
	return inv, nil
}

// InvoiceText returns the last generated invoice text of the session.
func (s *Service) InvoiceText(ctx context.Context, sessionID string) (string, error) {
	ws, err := s.Workspace(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if ws.InvoiceTxt == "" {
		return "", ErrNoInvoice
	}
	s.metrics.Exported("txt")
	return ws.InvoiceTxt, nil
}

// Export describes a written CSV download.
type Export struct {
	Vendor   string
	Horizon  int
	Filename string
	Rows     int
}

// ExportCSV writes the current projection as CSV.
func (s *Service) ExportCSV(ctx context.Context, sessionID string, w io.Writer, includeZeros bool) (Export, error) {
	ws, err := s.Workspace(ctx, sessionID)
	if err != nil {
		return Export{}, err
	}
	rows, err := ws.Projection(s.opts.Layout)
	if err != nil {
		return Export{}, err
	}
	opts := forecast.InvoiceOptions{IncludeZeros: includeZeros}
	if err := forecast.WriteCSV(w, rows, opts); err != nil {
		return Export{}, fmt.Errorf("workspace: write csv: %w", err)
	}
	horizon := ws.EffectiveHorizon(s.opts.Layout)
	s.metrics.Exported("csv")
	return Export{
		Vendor:   ws.Vendor,
		Horizon:  horizon,
		Filename: ExportFilename(ws.Vendor, horizon),
		Rows:     len(forecast.IncludedRows(rows, includeZeros)),
	}, nil
}

// ErrNoInvoice indicates a download before any invoice was generated.
var ErrNoInvoice = errors.New("no invoice generated")
