// Package http provides the inbound HTTP adapters: probes and the snapshot API.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/archon-research/stl/pool-state/internal/ports/inbound"
)

// HealthServerConfig holds configuration for the health server.
type HealthServerConfig struct {
	// Addr is the address to listen on (e.g., ":8080")
	Addr string

	Logger *slog.Logger

	ReadTimeout time.Duration

	// WriteTimeout also bounds on-demand refresh requests, which are served
	// by the same server.
	WriteTimeout time.Duration

	// Handler, when set, has its snapshot routes served next to the probes.
	Handler *Handler
}

func HealthServerConfigDefaults() HealthServerConfig {
	return HealthServerConfig{
		Addr:         ":8080",
		Logger:       slog.Default(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// HealthServer serves the orchestration probes and, optionally, the snapshot
// API.
//
//   - GET /health/ready  200 once the first refresh cycle has completed
//   - GET /health/live   200 while refresh cycles complete on schedule
//   - GET /health        both flags, 200 only when both hold
//
// Once shuttingDown is set every probe answers 503 so the load balancer
// drains the task before it exits.
type HealthServer struct {
	server       *http.Server
	checker      inbound.HealthChecker
	shuttingDown *atomic.Bool
	logger       *slog.Logger
}

type probeResponse struct {
	Status       string `json:"status"`
	Ready        *bool  `json:"ready,omitempty"`
	Healthy      *bool  `json:"healthy,omitempty"`
	ShuttingDown bool   `json:"shuttingDown,omitempty"`
}

func NewHealthServer(config HealthServerConfig, checker inbound.HealthChecker, shuttingDown *atomic.Bool) *HealthServer {
	defaults := HealthServerConfigDefaults()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if shuttingDown == nil {
		shuttingDown = new(atomic.Bool)
	}

	hs := &HealthServer{
		checker:      checker,
		shuttingDown: shuttingDown,
		logger:       config.Logger.With("component", "health-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/ready", hs.probe(checker.IsReady, "ready", "not_ready"))
	mux.HandleFunc("GET /health/live", hs.probe(checker.IsHealthy, "healthy", "unhealthy"))
	mux.HandleFunc("GET /health", hs.handleHealth)
	if config.Handler != nil {
		config.Handler.RegisterRoutes(mux)
	}

	hs.server = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return hs
}

// Start listens in a goroutine and returns immediately.
func (hs *HealthServer) Start() {
	go func() {
		hs.logger.Info("starting health server", "addr", hs.server.Addr)
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.Error("health server failed", "error", err)
		}
	}()
}

// Shutdown waits up to timeout for in-flight requests.
func (hs *HealthServer) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return hs.server.Shutdown(ctx)
}

func (hs *HealthServer) probe(check func() bool, pass, fail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hs.shuttingDown.Load() {
			hs.respondJSON(w, http.StatusServiceUnavailable, probeResponse{Status: "shutting_down", ShuttingDown: true})
			return
		}
		if check() {
			hs.respondJSON(w, http.StatusOK, probeResponse{Status: pass})
			return
		}
		hs.respondJSON(w, http.StatusServiceUnavailable, probeResponse{Status: fail})
	}
}

func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if hs.shuttingDown.Load() {
		no := false
		hs.respondJSON(w, http.StatusServiceUnavailable, probeResponse{
			Status:       "shutting_down",
			Ready:        &no,
			Healthy:      &no,
			ShuttingDown: true,
		})
		return
	}

	ready, healthy := hs.checker.IsReady(), hs.checker.IsHealthy()
	resp := probeResponse{Status: "ok", Ready: &ready, Healthy: &healthy}
	code := http.StatusOK
	if !ready || !healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	hs.respondJSON(w, code, resp)
}

func (hs *HealthServer) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode JSON response", "error", err)
	}
}
