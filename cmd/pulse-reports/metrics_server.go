package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/rs/zerolog/log"
)

var metricsShutdownTimeout = 5 * time.Second

// lastRender is what /healthz reports about the most recent render.
type lastRender struct {
	RenderID  string    `json:"renderId"`
	Template  string    `json:"template"`
	OK        bool      `json:"ok"`
	ErrorType string    `json:"errorType,omitempty"`
	At        time.Time `json:"at"`
}

// metricsServer serves the render metrics and the outcome of the last render
// to scrapers while render or watch runs.
type metricsServer struct {
	ln  net.Listener
	srv *http.Server

	mu      sync.Mutex
	renders int
	failed  int
	last    *lastRender
}

// listenMetrics binds addr so a busy port fails before any render starts.
func listenMetrics(addr string) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener on %s: %w", addr, err)
	}

	m := &metricsServer{ln: ln}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", m.handleHealth)
	m.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	return m, nil
}

// Addr is the bound address, with the port resolved when addr asked for :0.
func (m *metricsServer) Addr() string {
	return m.ln.Addr().String()
}

// serve runs until ctx is done.
func (m *metricsServer) serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := m.srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics endpoint did not drain before shutdown")
		}
	}()

	go func() {
		log.Info().Str("addr", m.Addr()).Msg("Serving render metrics")
		if err := m.srv.Serve(m.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("Metrics endpoint stopped")
		}
	}()
}

// observe keeps the outcome of a finished render for /healthz.
func (m *metricsServer) observe(renderID, tplPath string, renderErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.renders++
	last := &lastRender{RenderID: renderID, Template: tplPath, OK: renderErr == nil, At: time.Now().UTC()}
	if renderErr != nil {
		m.failed++
		last.ErrorType = string(reperrors.TypeOf(renderErr))
	}
	m.last = last
}

func (m *metricsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	body := struct {
		Status  string      `json:"status"`
		Renders int         `json:"renders"`
		Failed  int         `json:"failed"`
		Last    *lastRender `json:"last,omitempty"`
	}{"ok", m.renders, m.failed, m.last}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Failed to write health response")
	}
}
