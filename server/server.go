// Package server exposes the HTTP operational surface: health, status, and
// Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dinushay/ClipLink/clipwatch"
	"github.com/dinushay/ClipLink/store"
)

type statusResponse struct {
	Ready         bool      `json:"ready"`
	Subscriptions int       `json:"subscriptions"`
	LastTick      time.Time `json:"last_tick,omitzero"`
	Uptime        string    `json:"uptime"`
}

// NewMux returns the HTTP handler with all routes.
func NewMux(st *store.Store, w *clipwatch.Watcher) http.Handler {
	started := time.Now()
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		if _, err := rw.Write([]byte("ok")); err != nil {
			slog.Warn("failed to write healthz response", slog.Any("err", err))
		}
	})

	mux.HandleFunc("/status", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		resp := statusResponse{
			Ready:         w.Ready(),
			Subscriptions: st.Count(),
			LastTick:      w.LastTick(),
			Uptime:        time.Since(started).Round(time.Second).String(),
		}
		if err := json.NewEncoder(rw).Encode(resp); err != nil {
			slog.Warn("failed to write status response", slog.Any("err", err))
		}
	})

	return mux
}

// Start runs the HTTP server until ctx is cancelled.
func Start(ctx context.Context, st *store.Store, w *clipwatch.Watcher, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(st, w),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown failed", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
