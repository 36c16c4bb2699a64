package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/services"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(loaded bool) *Server {
	a := services.NewAnalytics(services.Options{Logger: quietLogger()})
	if loaded {
		r := decimal.RequireFromString("10.00")
		a.SetData([]models.Transaction{{
			InvoiceID: "1", CustomerID: "C1", Description: "Mug", Country: "France", Category: "Home",
			InvoiceDate: time.Date(2011, 3, 1, 9, 0, 0, 0, time.UTC), Quantity: 1, UnitPrice: r, Revenue: r,
		}})
	}
	dashboard := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html></html>")
	}
	return NewServer(a, quietLogger(), &TemplateHandlers{Dashboard: dashboard}, time.Second)
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(true)

	tests := []struct {
		method      string
		path        string
		status      int
		contentType string
	}{
		{"GET", "/", http.StatusOK, "text/html"},
		{"GET", "/health", http.StatusOK, "application/json"},
		{"GET", "/admin/stats", http.StatusOK, "application/json"},
		{"GET", "/api/aggregates", http.StatusOK, "application/json"},
		{"GET", "/api/rfm", http.StatusOK, "application/json"},
		{"GET", "/api/segments", http.StatusOK, "application/json"},
		{"GET", "/api/filters", http.StatusOK, "application/json"},
		{"GET", "/api/quality", http.StatusOK, "application/json"},
		{"GET", "/sse/dashboard", http.StatusOK, "text/event-stream"},
		{"GET", "/sse/rfm", http.StatusOK, "text/event-stream"},
		{"GET", "/nope", http.StatusNotFound, ""},
		{"POST", "/api/aggregates", http.StatusMethodNotAllowed, ""},
		{"GET", "/admin/reload", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); tt.contentType != "" && !strings.Contains(ct, tt.contentType) {
				t.Errorf("content-type = %q, want %q", ct, tt.contentType)
			}
		})
	}
}

func TestServer_NotLoaded(t *testing.T) {
	srv := newTestServer(false)

	for _, path := range []string{"/health", "/api/aggregates", "/api/rfm"} {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want %d", path, w.Code, http.StatusServiceUnavailable)
		}
	}
}

func TestGracefulServer_RunStopsOnCancel(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{ShutdownTimeout: time.Second}}
	httpServer := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	gs := NewGracefulServer(httpServer, quietLogger(), cfg)

	var ran atomic.Int32
	gs.RegisterShutdownHook("first", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	gs.RegisterShutdownHook("second", func(ctx context.Context) error {
		ran.Add(1)
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "second") {
			t.Errorf("Run() error = %v, want the failing hook reported", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if ran.Load() != 2 {
		t.Errorf("hooks run = %d, want 2", ran.Load())
	}
}

func TestGracefulServer_ListenError(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{ShutdownTimeout: time.Second}}
	gs := NewGracefulServer(&http.Server{Addr: "bad-address"}, quietLogger(), cfg)

	if err := gs.Run(context.Background()); err == nil {
		t.Error("Run() with an invalid address should fail")
	}
}
