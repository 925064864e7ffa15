package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"horizonx-meter/internal/auth"
	"horizonx-meter/internal/config"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/storage/snapshot"
	"horizonx-meter/internal/storage/sqlite"
	"horizonx-meter/internal/transport/websocket"
)

type registry map[meter.Kind]meter.Meter

func (r registry) Meter(kind meter.Kind) (meter.Meter, bool) {
	m, ok := r[kind]
	return m, ok
}

func (r registry) Meters() []meter.Meter {
	out := []meter.Meter{}
	for _, k := range meter.Kinds() {
		if m, ok := r[k]; ok {
			out = append(out, m)
		}
	}
	return out
}

func newRegistry(kinds ...meter.Kind) registry {
	r := registry{}
	for _, k := range kinds {
		r[k] = meter.New(k, meter.Base{}, meter.Options{})
	}
	return r
}

type env struct {
	handler http.Handler
	store   *snapshot.Updates
	history *sqlite.HistoryRepository
}

func setup(t *testing.T, cfg *config.Config, withHistory bool) env {
	t.Helper()

	store := snapshot.NewUpdates()
	var e env
	e.store = store

	var history HistoryReader
	if withHistory {
		db, err := sqlite.NewSqliteDB(filepath.Join(t.TempDir(), "h.db"), logger.Discard())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { db.Close() })
		e.history = sqlite.NewHistoryRepository(db)
		history = e.history
	}

	hub := websocket.NewHub(logger.Discard())
	e.handler = NewRouter(cfg, &RouterDeps{
		Ws:    websocket.NewHandler(hub, logger.Discard(), cfg),
		Meter: NewMeterHandler(newRegistry(meter.CPU, meter.Memory), store, history),
		Log:   logger.Discard(),
	})
	return e
}

func get(t *testing.T, h http.Handler, path string, header http.Header) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	e := setup(t, config.Default(), false)
	rec, _ := get(t, e.handler, "/health", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestIndexListsEnabledMeters(t *testing.T) {
	e := setup(t, config.Default(), false)
	e.store.Update(meter.Update{Kind: meter.CPU, Percent: 12})

	rec, _ := get(t, e.handler, "/meters", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Data []MeterStatus `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 2 || body.Data[0].Kind != meter.CPU || body.Data[1].Kind != meter.Memory {
		t.Fatalf("data = %+v", body.Data)
	}
	if body.Data[0].Latest == nil || body.Data[0].Latest.Percent != 12 {
		t.Errorf("cpu latest = %+v", body.Data[0].Latest)
	}
	if body.Data[1].Latest != nil {
		t.Errorf("memory latest = %+v, want null", body.Data[1].Latest)
	}
}

func TestShow(t *testing.T) {
	e := setup(t, config.Default(), false)

	tests := []struct {
		path   string
		status int
	}{
		{"/meters/cpu", http.StatusNotFound},
		{"/meters/gpu", http.StatusNotFound},
		{"/meters/bogus", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec, _ := get(t, e.handler, tt.path, nil); rec.Code != tt.status {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.status)
		}
	}

	e.store.Update(meter.Update{Kind: meter.CPU, Percent: 33})
	rec, _ := get(t, e.handler, "/meters/cpu", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /meters/cpu = %d", rec.Code)
	}
	var body struct {
		Data meter.Update `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data.Percent != 33 || body.Data.Kind != meter.CPU {
		t.Errorf("data = %+v", body.Data)
	}
}

func TestHistory(t *testing.T) {
	e := setup(t, config.Default(), true)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e.history.Insert(ctx, meter.Update{Kind: meter.CPU, Percent: float64(i), RecordedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	rec, resp := get(t, e.handler, "/meters/cpu/history?since=2026-04-01T10:01:00Z&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	data, _ := resp.Data.([]any)
	if len(data) != 2 {
		t.Errorf("history entries = %d, want 2", len(data))
	}

	for _, path := range []string{
		"/meters/cpu/history?since=yesterday",
		"/meters/cpu/history?limit=5000",
		"/meters/cpu/history?limit=ten",
	} {
		rec, resp := get(t, e.handler, path, nil)
		if rec.Code != http.StatusUnprocessableEntity || len(resp.Errors) == 0 {
			t.Errorf("GET %s = %d %+v, want 422 with errors", path, rec.Code, resp)
		}
	}
}

func TestHistoryDisabled(t *testing.T) {
	e := setup(t, config.Default(), false)
	if rec, _ := get(t, e.handler, "/meters/cpu/history", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	cfg := config.Default()
	cfg.JWTSecret = "secret"
	e := setup(t, cfg, false)

	if rec, _ := get(t, e.handler, "/meters", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}
	if rec, _ := get(t, e.handler, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health behind auth: status = %d", rec.Code)
	}

	token, _ := auth.IssueToken("secret", "test", time.Minute)
	rec, _ := get(t, e.handler, "/meters", http.Header{"Authorization": {"Bearer " + token}})
	if rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	cfg := config.Default()
	cfg.AllowedOrigins = []string{"https://dash.example"}
	e := setup(t, cfg, false)

	rec, _ := get(t, e.handler, "/meters", http.Header{"Origin": {"https://dash.example"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Errorf("allow origin = %q", got)
	}

	rec, _ = get(t, e.handler, "/meters", http.Header{"Origin": {"https://evil.example"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign allow origin = %q, want empty", got)
	}
}
