package workspacehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/freshbasket/forecast/internal/forecast"
	"github.com/freshbasket/forecast/internal/shared"
	"github.com/freshbasket/forecast/internal/view"
	"github.com/freshbasket/forecast/internal/workspace"
	_ "github.com/freshbasket/forecast/testing"
)

type testServer struct {
	t        *testing.T
	router   chi.Router
	sessions *shared.SessionManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	svc := workspace.NewService(
		workspace.NewStore(client, time.Hour),
		workspace.NewCatalogCache(client, time.Hour, nil),
		workspace.Options{
			Layout:   forecast.DefaultLayout(),
			Branches: []string{"Shahbaz", "Clifton", "Head Office"},
			Location: time.UTC,
			ShareURL: "https://api.whatsapp.com/send",
		},
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	templates, err := view.NewEngine()
	require.NoError(t, err)

	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, templates, shared.NewCSRFManager("csrfsecret"), Options{MaxUploadBytes: 1 << 20})

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
			require.NoError(t, sessions.Commit(context.Background(), httptest.NewRecorder(), r, sess))
		})
	})
	handler.MountRoutes(router)
	return &testServer{t: t, router: router, sessions: sessions}
}

func (s *testServer) do(sessionID string, req *http.Request) *httptest.ResponseRecorder {
	req.AddCookie(&http.Cookie{Name: s.sessions.CookieName(), Value: sessionID})
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) get(sessionID, path string) *httptest.ResponseRecorder {
	return s.do(sessionID, httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *testServer) postForm(sessionID, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(sessionID, req)
}

func (s *testServer) postJSON(sessionID, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return s.do(sessionID, req)
}

func (s *testServer) upload(sessionID, filename string, data []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(uploadFormField, filename)
	require.NoError(s.t, err)
	_, err = part.Write(data)
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(sessionID, req)
}

func demandWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	require.NoError(t, f.SetSheetName("Sheet1", "Dairy"))
	_, err := f.NewSheet("Bakery")
	require.NoError(t, err)
	rows := map[string][][]any{
		"Dairy":  {{"Milk", 20, 60, 100}, {"Curd", 4, 12, 20}},
		"Bakery": {{"Bread, Brown", 10, 30, 50}},
	}
	for sheet, values := range rows {
		for i, row := range values {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := row
			require.NoError(t, f.SetSheetRow(sheet, cell, &r))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestForecastPageWithoutWorkbookShowsUpload(t *testing.T) {
	srv := newTestServer(t)
	rr := srv.get("s1", "/")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Upload Excel File")
	require.Contains(t, rr.Body.String(), `name="csrf-token"`)
}

func TestUploadFlowRendersCatalog(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.upload("s1", "demand.xlsx", demandWorkbook(t))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/", rr.Header().Get("Location"))

	page := srv.get("s1", "/")
	require.Equal(t, http.StatusOK, page.Code)
	body := page.Body.String()
	require.Contains(t, body, "Loaded 2 vendors")
	require.Contains(t, body, "Product Data (enter On Hand only)")
	require.Contains(t, body, `<option value="Dairy" selected>Dairy</option>`)
	require.Contains(t, body, "1 Day Projection")
	require.Contains(t, body, workspace.AdvisoryNoOnHand)

	// The flash is shown once.
	require.NotContains(t, srv.get("s1", "/").Body.String(), "Loaded 2 vendors")
}

func TestUploadWithoutValidRowsShowsError(t *testing.T) {
	srv := newTestServer(t)
	rr := srv.upload("s1", "blank.csv", []byte(",1,2,3\n"))
	require.Equal(t, http.StatusSeeOther, rr.Code)

	body := srv.get("s1", "/").Body.String()
	require.Contains(t, body, "No valid rows found. Please check your Excel file.")
	require.Contains(t, body, "Upload Excel File")
}

func TestUploadRejectsUnsupportedFile(t *testing.T) {
	srv := newTestServer(t)
	rr := srv.upload("s1", "demand.pdf", []byte("%PDF"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Unsupported file type")
}

func TestUploadRequiresFile(t *testing.T) {
	srv := newTestServer(t)
	rr := srv.postForm("s1", "/upload", url.Values{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Choose an Excel file to upload.")
}

func TestOnHandAPIRecomputesProjection(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusSeeOther, srv.upload("s1", "demand.xlsx", demandWorkbook(t)).Code)
	require.Equal(t, http.StatusSeeOther, srv.postForm("s1", "/horizon", url.Values{"horizon": {"3"}}).Code)

	rr := srv.postJSON("s1", "/api/onhand", `{"vendor":"Dairy","index":0,"qty":"5"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var v workspace.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	require.Equal(t, 55, v.Rows[0].Qty)
	require.Equal(t, 12, v.Rows[1].Qty)
	require.Equal(t, 67, v.TotalQty)
	require.Empty(t, v.Advisory)

	rr = srv.postJSON("s1", "/api/onhand", `{"index":1,"qty":100}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	require.Equal(t, 0, v.Rows[1].Qty)

	rr = srv.postJSON("s1", "/api/onhand", `{"index":1,"qty":"abc"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	require.Equal(t, 12, v.Rows[1].Qty)

	proj := srv.get("s1", "/api/projection")
	require.Equal(t, http.StatusOK, proj.Code)
	require.NoError(t, json.Unmarshal(proj.Body.Bytes(), &v))
	require.Equal(t, "3 Days Projection", v.Header)
}

func TestOnHandAPIErrors(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.postJSON("s1", "/api/onhand", `{"index":0,"qty":"1"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	require.Equal(t, http.StatusSeeOther, srv.upload("s1", "demand.xlsx", demandWorkbook(t)).Code)

	rr = srv.postJSON("s1", "/api/onhand", `{"index":7,"qty":"1"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = srv.postJSON("s1", "/api/onhand", `{"qty":"1"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.postJSON("s1", "/api/onhand", `{"index":0,"qty":"1","bogus":true}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHorizonAndBranchValidation(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusSeeOther, srv.upload("s1", "demand.xlsx", demandWorkbook(t)).Code)

	rr := srv.postForm("s1", "/horizon", url.Values{"horizon": {"2"}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "That projection is not available.")

	rr = srv.postForm("s1", "/select", url.Values{"vendor": {"Dairy"}, "branch": {"Mars"}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Unknown branch.")

	rr = srv.postForm("s1", "/select", url.Values{"vendor": {"Bakery"}, "branch": {"Head Office"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	body := srv.get("s1", "/").Body.String()
	require.Contains(t, body, `<option value="Bakery" selected>Bakery</option>`)
	require.Contains(t, body, `<option value="Head Office" selected>Head Office</option>`)

	rr = srv.postForm("s1", "/select", url.Values{"vendor": {"Produce"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Contains(t, srv.get("s1", "/").Body.String(), "That vendor is not in the loaded workbook.")
}

func TestInvoiceFlow(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusSeeOther, srv.upload("s1", "demand.xlsx", demandWorkbook(t)).Code)
	require.Equal(t, http.StatusSeeOther, srv.postForm("s1", "/onhand", url.Values{"vendor": {"Dairy"}, "qty_1": {"10"}}).Code)

	require.Equal(t, http.StatusNotFound, srv.get("s1", "/invoice.txt").Code)

	rr := srv.postForm("s1", "/invoice", url.Values{"include_zeros": {"0"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/#invoice", rr.Header().Get("Location"))

	page := srv.get("s1", "/").Body.String()
	require.Contains(t, page, "Invoice saved: 1 item, 20 units")
	require.Contains(t, page, "Invoice Preview")
	require.Contains(t, page, "https://api.whatsapp.com/send?text=")

	txt := srv.get("s1", "/invoice.txt")
	require.Equal(t, http.StatusOK, txt.Code)
	require.Equal(t, `attachment; filename="invoice.txt"`, txt.Header().Get("Content-Disposition"))
	require.Contains(t, txt.Body.String(), "- Milk: 20\n")
	require.NotContains(t, txt.Body.String(), "Curd")
	require.True(t, strings.HasSuffix(txt.Body.String(), "*TOTAL ITEMS:* 1\n*TOTAL QTY:* 20"))

	rr = srv.postForm("s1", "/invoice", url.Values{"include_zeros": {"1", "0"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Contains(t, srv.get("s1", "/invoice.txt").Body.String(), "- Curd: 0\n")
}

func TestInvoiceNothingToOrder(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusSeeOther, srv.upload("s1", "demand.xlsx", demandWorkbook(t)).Code)
	require.Equal(t, http.StatusSeeOther, srv.postForm("s1", "/onhand", url.Values{"qty_0": {"500"}, "qty_1": {"500"}}).Code)

	rr := srv.postForm("s1", "/invoice", url.Values{})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Contains(t, srv.get("s1", "/").Body.String(), "Nothing to order")
	require.Equal(t, http.StatusNotFound, srv.get("s1", "/invoice.txt").Code)
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.get("s1", "/export.csv")
	require.Equal(t, http.StatusSeeOther, rr.Code)

	require.Equal(t, http.StatusSeeOther, srv.upload("s1", "demand.xlsx", demandWorkbook(t)).Code)
	require.Equal(t, http.StatusSeeOther, srv.postForm("s1", "/select", url.Values{"vendor": {"Bakery"}}).Code)
	require.Equal(t, http.StatusSeeOther, srv.postForm("s1", "/horizon", url.Values{"horizon": {"5"}}).Code)

	rr = srv.get("s1", "/export.csv")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename="projection-Bakery-5d.csv"`, rr.Header().Get("Content-Disposition"))
	require.Equal(t, "Product,Projected Qty\r\n\"Bread, Brown\",50\r\n", rr.Body.String())
}

func TestSessionsDoNotShareWorkspaces(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusSeeOther, srv.upload("alice", "demand.xlsx", demandWorkbook(t)).Code)

	require.Contains(t, srv.get("alice", "/").Body.String(), "Product Data")
	bob := srv.get("bob", "/").Body.String()
	require.Contains(t, bob, "Upload Excel File")
	require.NotContains(t, bob, "Milk")

	rr := srv.get("bob", "/api/projection")
	require.Equal(t, http.StatusOK, rr.Code)
	var v workspace.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	require.False(t, v.Loaded)
	require.Empty(t, v.Rows)
}

func TestOnHandFormAppliesAllOrNothing(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusSeeOther, srv.upload("s1", "demand.xlsx", demandWorkbook(t)).Code)

	rr := srv.postForm("s1", "/onhand", url.Values{"vendor": {"Dairy"}, "qty_0": {"5"}, "qty_9": {"1"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Contains(t, srv.get("s1", "/").Body.String(), "That product is not in the selected vendor.")

	var v workspace.View
	proj := srv.get("s1", "/api/projection")
	require.NoError(t, json.Unmarshal(proj.Body.Bytes(), &v))
	require.Equal(t, 20, v.Rows[0].Qty)
	require.Equal(t, 4, v.Rows[1].Qty)

	rr = srv.postForm("s1", "/onhand", url.Values{"vendor": {"Dairy"}, "qty_0": {"5"}, "qty_1": {"1"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	proj = srv.get("s1", "/api/projection")
	require.NoError(t, json.Unmarshal(proj.Body.Bytes(), &v))
	require.Equal(t, 15, v.Rows[0].Qty)
	require.Equal(t, 3, v.Rows[1].Qty)
}
