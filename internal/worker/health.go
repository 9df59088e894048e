package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// portFallbackAttempts is how many consecutive ports are tried when the
// configured health port is taken.
const portFallbackAttempts = 5

// healthResponse is the GET /health payload.
type healthResponse struct {
	Status               string    `json:"status"`
	LastHeartbeat        time.Time `json:"last_heartbeat"`
	CurrentJobs          []string  `json:"current_jobs"`
	ActiveJobs           int       `json:"active_jobs"`
	ConcurrencyLimit     int       `json:"concurrency_limit"`
	ConcurrencyAvailable int       `json:"concurrency_available"`
	MemoryUsedBytes      uint64    `json:"memory_used_bytes"`
	UptimeSeconds        float64   `json:"uptime_seconds"`
}

// healthState is what the health server reads from the worker.
type healthState interface {
	ActiveJobs() int
	CurrentJobs() []string
	ConcurrencyLimit() int
	LastHeartbeat() time.Time
	Uptime() time.Duration
	Draining() bool
}

// HealthServer exposes liveness and metrics over HTTP.
type HealthServer struct {
	state            healthState
	metrics          *Metrics
	heartbeatTimeout time.Duration
	log              *slog.Logger

	server *http.Server
	port   int
}

// NewHealthServer builds the health endpoint over the worker's state. A
// heartbeat older than heartbeatTimeout makes /health report unhealthy.
func NewHealthServer(state healthState, metrics *Metrics, heartbeatTimeout time.Duration, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthServer{state: state, metrics: metrics, heartbeatTimeout: heartbeatTimeout, log: logger}
}

// Start listens on the first free port at or after basePort and serves in
// the background. Returns the bound port.
func (h *HealthServer) Start(basePort int) (int, error) {
	var listener net.Listener
	var err error
	for i := 0; i < portFallbackAttempts; i++ {
		port := basePort + i
		listener, err = net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			h.port = port
			break
		}
		h.log.Warn("health port unavailable, trying next",
			slog.Int("port", port),
			slog.String("error", err.Error()),
		)
	}
	if listener == nil {
		return 0, fmt.Errorf("no free health port in [%d, %d]: %w", basePort, basePort+portFallbackAttempts-1, err)
	}

	h.server = &http.Server{
		Handler:           h.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			h.log.Error("health server stopped", slog.String("error", err.Error()))
		}
	}()

	h.log.Info("health server listening", slog.Int("port", h.port))
	return h.port, nil
}

// Shutdown stops the server gracefully.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// Port returns the bound port after Start.
func (h *HealthServer) Port() int {
	return h.port
}

func (h *HealthServer) router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{}))

	return h.recoveryMiddleware(mux)
}

// handleHealth reports ok while the loop heartbeat is fresh, 503 when the
// worker is draining or the heartbeat has gone stale.
func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	active := h.state.ActiveJobs()
	limit := h.state.ConcurrencyLimit()
	available := limit - active
	if available < 0 {
		available = 0
	}
	lastBeat := h.state.LastHeartbeat()

	resp := healthResponse{
		Status:               "ok",
		LastHeartbeat:        lastBeat.UTC(),
		CurrentJobs:          h.state.CurrentJobs(),
		ActiveJobs:           active,
		ConcurrencyLimit:     limit,
		ConcurrencyAvailable: available,
		MemoryUsedBytes:      mem.Alloc,
		UptimeSeconds:        h.state.Uptime().Seconds(),
	}

	code := http.StatusOK
	switch {
	case h.state.Draining():
		resp.Status = "draining"
		code = http.StatusServiceUnavailable
	case h.heartbeatTimeout > 0 && time.Since(lastBeat) >= h.heartbeatTimeout:
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *HealthServer) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.log.Error("panic recovered in health server",
					slog.Any("error", err),
					slog.String("stack", string(debug.Stack())),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
