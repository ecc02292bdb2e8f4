package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dinushay/ClipLink/clipwatch"
	"github.com/dinushay/ClipLink/store"
)

func newTestMux(t *testing.T) (http.Handler, *store.Store, *clipwatch.Watcher) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "database.json"))
	if err != nil {
		t.Fatal(err)
	}
	w := clipwatch.New(st, nil, nil, time.Minute, nil)
	return NewMux(st, w), st, w
}

func TestHealthz(t *testing.T) {
	mux, _, _ := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("healthz body = %q, want ok", rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	mux, st, w := newTestMux(t)
	if err := st.Add(store.Subscription{StreamerID: "42", ServerID: "g1", ChannelID: "c1"}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Ready         bool `json:"ready"`
		Subscriptions int  `json:"subscriptions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("status body not JSON: %v", err)
	}
	if body.Ready {
		t.Error("ready = true before the gate opened")
	}
	if body.Subscriptions != 1 {
		t.Errorf("subscriptions = %d, want 1", body.Subscriptions)
	}

	w.MarkReady()
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Ready {
		t.Error("ready = false after MarkReady")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux, _, _ := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rec.Code)
	}
}
