package workspacehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/freshbasket/forecast/internal/forecast"
	"github.com/freshbasket/forecast/internal/platform/httpx"
	"github.com/freshbasket/forecast/internal/shared"
	"github.com/freshbasket/forecast/internal/view"
	"github.com/freshbasket/forecast/internal/workbook"
	"github.com/freshbasket/forecast/internal/workspace"
)

const (
	pageTitle       = "Vendors Demand Forecasting"
	uploadFormField = "workbook"
)

type forecastService interface {
	Layout() forecast.Layout
	Branches() []string
	IncludeZeros() bool
	View(ctx context.Context, sessionID string) (workspace.View, error)
	Upload(ctx context.Context, sessionID, filename string, r io.Reader) (*forecast.Workspace, error)
	Reset(ctx context.Context, sessionID string) error
	Select(ctx context.Context, sessionID, vendor, branch string) (*forecast.Workspace, error)
	SetHorizon(ctx context.Context, sessionID string, horizon int) (*forecast.Workspace, error)
	UpdateOnHand(ctx context.Context, sessionID, vendor string, index int, raw string) (workspace.View, error)
	UpdateOnHandBatch(ctx context.Context, sessionID, vendor string, entries map[int]string) (workspace.View, error)
	GenerateInvoice(ctx context.Context, sessionID string, includeZeros *bool) (forecast.Invoice, error)
	InvoiceText(ctx context.Context, sessionID string) (string, error)
	ExportCSV(ctx context.Context, sessionID string, w io.Writer, includeZeros bool) (workspace.Export, error)
}

// Handler wires the forecasting pages and the JSON API.
type Handler struct {
	logger         *slog.Logger
	service        forecastService
	templates      *view.Engine
	csrf           *shared.CSRFManager
	validator      *validator.Validate
	maxUploadBytes int64
	uploadLimiter  func(http.Handler) http.Handler
}

// Options tunes the handler.
type Options struct {
	MaxUploadBytes int64
	// UploadLimiter wraps POST /upload, typically a stricter rate limit.
	UploadLimiter func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service forecastService, templates *view.Engine, csrf *shared.CSRFManager, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	h := &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		csrf:           csrf,
		validator:      validator.New(),
		maxUploadBytes: opts.MaxUploadBytes,
		uploadLimiter:  opts.UploadLimiter,
	}
	_ = h.validator.RegisterValidation("branch", func(fl validator.FieldLevel) bool {
		return slices.Contains(h.service.Branches(), fl.Field().String())
	})
	_ = h.validator.RegisterValidation("horizon", func(fl validator.FieldLevel) bool {
		return h.service.Layout().Supports(int(fl.Field().Int()))
	})
	return h
}

// MountRoutes registers the forecasting routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showForecast)
	if h.uploadLimiter != nil {
		r.With(h.uploadLimiter).Post("/upload", h.handleUpload)
	} else {
		r.Post("/upload", h.handleUpload)
	}
	r.Post("/reset", h.handleReset)
	r.Post("/select", h.handleSelect)
	r.Post("/horizon", h.handleHorizon)
	r.Post("/onhand", h.handleOnHandForm)
	r.Post("/invoice", h.handleInvoice)
	r.Get("/invoice.txt", h.downloadInvoice)
	r.Get("/export.csv", h.exportCSV)

	r.Route("/api", func(r chi.Router) {
		r.Get("/projection", h.apiProjection)
		r.Post("/onhand", h.apiOnHand)
	})
}

type forecastPageData struct {
	View        workspace.View
	Errors      map[string]string
	MaxUploadMB int64
}

type selectForm struct {
	Vendor string `validate:"omitempty,max=255"`
	Branch string `validate:"omitempty,branch"`
}

type horizonForm struct {
	Horizon int `validate:"required,horizon"`
}

type onHandRequest struct {
	Vendor string          `json:"vendor" validate:"omitempty,max=255"`
	Index  *int            `json:"index" validate:"required,gte=0"`
	Qty    json.RawMessage `json:"qty"`
}

func (h *Handler) showForecast(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.View(r.Context(), shared.WorkspaceID(r.Context()))
	if err != nil {
		h.serverError(w, "load workspace", err)
		return
	}
	h.render(w, r, http.StatusOK, v, nil)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		msg := "Choose an Excel file to upload."
		if errors.As(err, &maxErr) {
			msg = fmt.Sprintf("The file is larger than %d MB.", h.maxUploadBytes>>20)
		}
		h.rerender(w, r, map[string]string{"Workbook": msg})
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > h.maxUploadBytes {
		h.rerender(w, r, map[string]string{"Workbook": fmt.Sprintf("The file is larger than %d MB.", h.maxUploadBytes>>20)})
		return
	}
	filename := filepath.Base(header.Filename)
	if _, err := workbook.DetectFormat(filename); err != nil {
		h.rerender(w, r, map[string]string{"Workbook": shared.UserSafeMessage(err)})
		return
	}

	ws, err := h.service.Upload(r.Context(), shared.WorkspaceID(r.Context()), filename, file)
	switch {
	case err == nil:
		n := len(ws.Catalog.Vendors)
		addFlash(sess, shared.FlashSuccess, fmt.Sprintf("Loaded %d %s", n, plural(n, "vendor", "vendors")))
	case errors.Is(err, forecast.ErrNoValidRows):
		addFlash(sess, shared.FlashError, shared.UserSafeMessage(err))
	case errors.Is(err, workbook.ErrUnsupportedFormat):
		addFlash(sess, shared.FlashError, shared.UserSafeMessage(err))
	default:
		h.logger.Warn("workbook upload failed", slog.String("file", filename), slog.Any("error", err))
		addFlash(sess, shared.FlashError, "The file could not be read. Save it as .xlsx and try again.")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context(), shared.WorkspaceID(r.Context())); err != nil {
		h.serverError(w, "reset workspace", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := selectForm{
		Vendor: strings.TrimSpace(r.PostFormValue("vendor")),
		Branch: strings.TrimSpace(r.PostFormValue("branch")),
	}
	if errs := h.validate(form); len(errs) > 0 {
		h.rerender(w, r, errs)
		return
	}
	if _, err := h.service.Select(r.Context(), shared.WorkspaceID(r.Context()), form.Vendor, form.Branch); err != nil {
		h.flashOrFail(w, r, "select vendor", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleHorizon(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	horizon, _ := strconv.Atoi(strings.TrimSpace(r.PostFormValue("horizon")))
	form := horizonForm{Horizon: horizon}
	if errs := h.validate(form); len(errs) > 0 {
		h.rerender(w, r, errs)
		return
	}
	if _, err := h.service.SetHorizon(r.Context(), shared.WorkspaceID(r.Context()), form.Horizon); err != nil {
		h.flashOrFail(w, r, "set horizon", err)
		return
	}
	addFlash(shared.SessionFromContext(r.Context()), shared.FlashSuccess, "Showing "+workspace.ProjectionHeader(form.Horizon))
	http.Redirect(w, r, "/#projection", http.StatusSeeOther)
}

// handleOnHandForm accepts the whole product table for browsers without
// scripts. Fields are named qty_<index> and are applied all or nothing.
func (h *Handler) handleOnHandForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	vendor := strings.TrimSpace(r.PostFormValue("vendor"))
	entries := make(map[int]string)
	for key, values := range r.PostForm {
		raw, ok := strings.CutPrefix(key, "qty_")
		if !ok || len(values) == 0 {
			continue
		}
		idx, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		entries[idx] = values[0]
	}
	if len(entries) > 0 {
		if _, err := h.service.UpdateOnHandBatch(r.Context(), shared.WorkspaceID(r.Context()), vendor, entries); err != nil {
			h.flashOrFail(w, r, "update on-hand", err)
			return
		}
	}
	http.Redirect(w, r, "/#projection", http.StatusSeeOther)
}

func (h *Handler) handleInvoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var includeZeros *bool
	if _, ok := r.PostForm["include_zeros"]; ok {
		include := checkbox(r.PostFormValue("include_zeros"))
		includeZeros = &include
	}
	inv, err := h.service.GenerateInvoice(r.Context(), shared.WorkspaceID(r.Context()), includeZeros)
	if err != nil {
		h.flashOrFail(w, r, "generate invoice", err)
		return
	}
	addFlash(shared.SessionFromContext(r.Context()), shared.FlashSuccess,
		fmt.Sprintf("Invoice saved: %d %s, %d units", inv.TotalItems, plural(inv.TotalItems, "item", "items"), inv.TotalQty))
	http.Redirect(w, r, "/#invoice", http.StatusSeeOther)
}

func (h *Handler) downloadInvoice(w http.ResponseWriter, r *http.Request) {
	text, err := h.service.InvoiceText(r.Context(), shared.WorkspaceID(r.Context()))
	if errors.Is(err, workspace.ErrNoInvoice) {
		http.Error(w, "no invoice generated", http.StatusNotFound)
		return
	}
	if err != nil {
		h.serverError(w, "download invoice", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="invoice.txt"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	include := h.service.IncludeZeros()
	if raw := r.URL.Query().Get("include_zeros"); raw != "" {
		include = checkbox(raw)
	}
	var buf bytes.Buffer
	export, err := h.service.ExportCSV(r.Context(), shared.WorkspaceID(r.Context()), &buf, include)
	if err != nil {
		if errors.Is(err, forecast.ErrNoCatalog) || errors.Is(err, forecast.ErrUnknownVendor) {
			addFlash(shared.SessionFromContext(r.Context()), shared.FlashWarning, shared.UserSafeMessage(err))
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		h.serverError(w, "export csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) apiProjection(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.View(r.Context(), shared.WorkspaceID(r.Context()))
	if err != nil {
		h.apiError(w, "projection", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) apiOnHand(w http.ResponseWriter, r *http.Request) {
	var req onHandRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if errs := h.validate(req); len(errs) > 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", formatErrors(errs))
		return
	}
	v, err := h.service.UpdateOnHand(r.Context(), shared.WorkspaceID(r.Context()), req.Vendor, *req.Index, rawQuantity(req.Qty))
	if err != nil {
		h.apiError(w, "update on-hand", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

// rawQuantity turns a JSON string or number into the raw text the
// coerce-or-zero rule expects.
func rawQuantity(msg json.RawMessage) string {
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(msg))
}

func (h *Handler) validate(form any) map[string]string {
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs["general"] = err.Error()
			return errs
		}
		for _, fieldErr := range verrs {
			errs[fieldErr.Field()] = fieldMessage(fieldErr)
		}
	}
	return errs
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "branch":
		return "Unknown branch."
	case "horizon":
		return "That projection is not available."
	case "required":
		return fe.Field() + " is required."
	default:
		return fe.Field() + " is invalid."
	}
}

func formatErrors(errs map[string]string) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, errs[k])
	}
	return strings.Join(parts, " ")
}

// flashOrFail turns recoverable domain errors into a flash and a redirect;
// anything else is a 500.
func (h *Handler) flashOrFail(w http.ResponseWriter, r *http.Request, action string, err error) {
	if !isDomainError(err) {
		h.serverError(w, action, err)
		return
	}
	kind := shared.FlashError
	if errors.Is(err, forecast.ErrNothingToOrder) {
		kind = shared.FlashWarning
	}
	addFlash(shared.SessionFromContext(r.Context()), kind, shared.UserSafeMessage(err))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) apiError(w http.ResponseWriter, action string, err error) {
	if !isDomainError(err) {
		h.logger.Error("handler error", slog.String("action", action), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		forecast.ErrNoCatalog,
		forecast.ErrUnknownVendor,
		forecast.ErrUnknownBranch,
		forecast.ErrUnknownHorizon,
		forecast.ErrUnknownProduct,
		forecast.ErrNothingToOrder,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *Handler) serverError(w http.ResponseWriter, action string, err error) {
	h.logger.Error("handler error", slog.String("action", action), slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// rerender shows the page again with field errors and a 400 status.
func (h *Handler) rerender(w http.ResponseWriter, r *http.Request, errs map[string]string) {
	v, err := h.service.View(r.Context(), shared.WorkspaceID(r.Context()))
	if err != nil {
		h.serverError(w, "load workspace", err)
		return
	}
	h.render(w, r, http.StatusBadRequest, v, errs)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, v workspace.View, errs map[string]string) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       pageTitle,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data: forecastPageData{
			View:        v,
			Errors:      errs,
			MaxUploadMB: h.maxUploadBytes >> 20,
		},
	}
	if err := h.templates.RenderStatus(w, status, "pages/forecast.html", data); err != nil {
		h.serverError(w, "render forecast", err)
	}
}

func addFlash(sess *shared.Session, kind, msg string) {
	if sess == nil {
		return
	}
	sess.AddFlash(shared.FlashMessage{Kind: kind, Message: msg})
}

func checkbox(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
