package app

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/freshbasket/forecast/internal/forecast"
	"github.com/freshbasket/forecast/internal/observability"
	"github.com/freshbasket/forecast/internal/shared"
	"github.com/freshbasket/forecast/internal/view"
	"github.com/freshbasket/forecast/internal/workspace"
	workspacehttp "github.com/freshbasket/forecast/internal/workspace/http"
)

func newTestRouter(t *testing.T, health func(*http.Request) error) (http.Handler, *observability.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, UploadMaxBytes: 1 << 20, RateLimitPerMinute: 1000, UploadsPerMinute: 100}
	metrics := observability.NewMetrics()
	sessions := shared.NewSessionManager(client, "forecast_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	svc := workspace.NewService(
		workspace.NewStore(client, time.Hour),
		workspace.NewCatalogCache(client, time.Hour, metrics),
		workspace.Options{Layout: forecast.DefaultLayout(), Branches: []string{"Shahbaz"}, Location: time.UTC},
		metrics,
		logger,
	)
	handler := workspacehttp.NewHandler(logger, svc, templates, csrf, workspacehttp.Options{
		MaxUploadBytes: cfg.UploadMaxBytes,
		UploadLimiter:  UploadLimiter(cfg),
	})

	return NewRouter(RouterParams{
		Logger:          logger,
		Config:          cfg,
		Templates:       templates,
		SessionManager:  sessions,
		CSRFManager:     csrf,
		ForecastHandler: handler,
		Metrics:         metrics,
		HealthCheck:     health,
	}), metrics
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	failing, _ := newTestRouter(t, func(*http.Request) error { return errors.New("redis down") })
	rr = httptest.NewRecorder()
	failing.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestStaticAssetsAreCached(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/js/forecast.js", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
	require.Empty(t, rr.Result().Cookies())
}

func TestPageSetsSessionAndSecurityHeaders(t *testing.T) {
	router, metrics := newTestRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "forecast_session", cookies[0].Name)

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, scrape.Body.String(), `forecast_http_requests_total{code="200",route="/"} 1`)
}

func TestPostWithoutCSRFTokenIsForbidden(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/reset", strings.NewReader(url.Values{}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestPostWithCSRFTokenSucceeds(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	page := httptest.NewRecorder()
	router.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, page.Code)
	cookie := page.Result().Cookies()[0]

	body := page.Body.String()
	const marker = `name="csrf-token" content="`
	start := strings.Index(body, marker)
	require.GreaterOrEqual(t, start, 0)
	rest := body[start+len(marker):]
	token := rest[:strings.Index(rest, `"`)]
	require.NotEmpty(t, token)

	req := httptest.NewRequest(http.MethodPost, "/api/onhand", strings.NewReader(`{"index":0,"qty":"1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(shared.CSRFHeader, token)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	// Past CSRF; the empty workspace has no catalog yet.
	require.Equal(t, http.StatusConflict, rr.Code)
}
