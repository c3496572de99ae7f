package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	workbooksTotal  *prometheus.CounterVec
	catalogCache    *prometheus.CounterVec
	invoicesTotal   *prometheus.CounterVec
	exportsTotal    *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forecast_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	workbooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_workbooks_ingested_total",
		Help: "Jumlah workbook yang diunggah berdasarkan hasil.",
	}, []string{"result"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_catalog_cache_total",
		Help: "Hit dan miss cache katalog hasil normalisasi.",
	}, []string{"outcome"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_invoices_generated_total",
		Help: "Jumlah invoice yang dibuat per vendor.",
	}, []string{"vendor"})
	exports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_exports_total",
		Help: "Jumlah ekspor proyeksi berdasarkan format.",
	}, []string{"format"})
	registry.MustRegister(requests, duration, workbooks, cache, invoices, exports)

	// Seri dengan label tetap diinisialisasi supaya muncul sejak awal.
	for _, result := range []string{"accepted", "rejected", "failed"} {
		workbooks.WithLabelValues(result)
	}
	for _, outcome := range []string{"hit", "miss"} {
		cache.WithLabelValues(outcome)
	}
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		workbooksTotal:  workbooks,
		catalogCache:    cache,
		invoicesTotal:   invoices,
		exportsTotal:    exports,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// WorkbookIngested mencatat hasil unggah workbook: accepted, rejected, atau failed.
func (m *Metrics) WorkbookIngested(result string) {
	if m == nil {
		return
	}
	m.workbooksTotal.WithLabelValues(result).Inc()
}

// CatalogCache mencatat hit atau miss cache katalog.
func (m *Metrics) CatalogCache(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.catalogCache.WithLabelValues(outcome).Inc()
}

// InvoiceGenerated mencatat invoice baru per vendor.
func (m *Metrics) InvoiceGenerated(vendor string) {
	if m == nil {
		return
	}
	m.invoicesTotal.WithLabelValues(vendor).Inc()
}

// Exported mencatat ekspor proyeksi (csv, txt).
func (m *Metrics) Exported(format string) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(format).Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
