package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sabriotcore-code/rei-api/internal/config"
	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.DevMode = true
	cfg.Data.DataDir = t.TempDir()
	cfg.Sheets.Backend = config.BackendMemory
	cfg.Sheets.PMESpreadsheetID = "pme"
	cfg.Sheets.WorkflowSpreadsheetID = "wf"
	cfg.Cache.Background = false
	cfg.Sync.ControlTab = "CONTROL"
	cfg.Sync.ControlCell = "A1"
	cfg.Sync.Pairs = []config.PairConfig{{
		Name:            "forms",
		SourceTab:       "FORMS",
		TimestampColumn: "A",
		ReferenceColumn: "B",
		TargetTab:       "PROD",
	}}
	return cfg
}

func testSheets() *sheetstore.MemoryStore {
	mem := sheetstore.NewMemoryStore()
	mem.SetTab("pme", "MAIN", sheetstore.Matrix{
		{"REID", "GROSS_RCPTS", "STATUS", "CITY"},
		{"R-1", "1,000", "Active", "Austin"},
	})
	mem.SetTab("pme", "CONTROL", sheetstore.Matrix{{"2024-03-01"}})
	mem.SetTab("pme", "FORMS", sheetstore.Matrix{
		{"2024-03-01 09:00", "https://docs.google.com/spreadsheets/d/ext1/edit"},
	})
	mem.SetTab("pme", "PROD", sheetstore.Matrix{})
	mem.SetTab("ext1", "Sheet1", sheetstore.Matrix{{"a", "1"}, {"b", "2"}})
	mem.SetTab("wf", "QUEUE", sheetstore.Matrix{})
	return mem
}

func newTestServer(t *testing.T, cfg *config.AppConfig, mem *sheetstore.MemoryStore) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := NewApp(context.Background(), cfg, mem, logger)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return NewServer(app)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testConfig(t), testSheets())

	w := do(t, srv.Handler(), http.MethodOptions, "/api/status", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status=%d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin=%q", got)
	}

	w = do(t, srv.Handler(), http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status=%d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("CORS header missing on GET /: %q", got)
	}
}

func TestRoutesWired(t *testing.T) {
	t.Parallel()

	mem := testSheets()
	srv := newTestServer(t, testConfig(t), mem)
	h := srv.Handler()

	w := do(t, h, http.MethodPost, "/", `{"action":"ping"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ping status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/aggregates", "")
	if w.Code != http.StatusOK {
		t.Fatalf("aggregates status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/sync", "")
	if w.Code != http.StatusOK {
		t.Fatalf("sync status=%d body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Success bool `json:"success"`
		Pairs   []struct {
			RowsCopied int `json:"rowsCopied"`
		} `json:"pairs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if !out.Success || len(out.Pairs) != 1 || out.Pairs[0].RowsCopied != 2 {
		t.Fatalf("unexpected sync outcome: %s", w.Body.String())
	}
	prod, _ := mem.Tab("pme", "PROD")
	if len(prod) != 2 || prod[1][1] != "2" {
		t.Fatalf("PROD=%v", prod)
	}

	w = do(t, h, http.MethodGet, "/api/sync/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status=%d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown route status=%d", w.Code)
	}
}

func TestSyncDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Sync.Enabled = false
	srv := newTestServer(t, cfg, testSheets())

	w := do(t, srv.Handler(), http.MethodGet, "/api/sync", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("sync status=%d, want 503", w.Code)
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Sheets.PMESpreadsheetID = ""
	if _, err := NewApp(context.Background(), cfg, testSheets(), nil); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestNewSheetStoreBackends(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	if _, err := NewSheetStore(context.Background(), cfg); err != nil {
		t.Fatalf("memory backend: %v", err)
	}

	cfg.Sheets.Backend = config.BackendWorkbook
	if _, err := NewSheetStore(context.Background(), cfg); err != nil {
		t.Fatalf("workbook backend: %v", err)
	}

	cfg.Sheets.Backend = "ftp"
	if _, err := NewSheetStore(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testConfig(t), testSheets())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
