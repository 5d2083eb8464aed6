// Package health serves the /healthz endpoint of a running burrow process.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/dyluth/burrow/internal/pool"
)

// Pinger checks a dependency's connectivity. *ledger.Client implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides HTTP health check endpoints for a run.
type Server struct {
	addr     string
	status   func() pool.Status
	ledger   Pinger
	server   *http.Server
	listener net.Listener
}

// NewServer creates a health server. status reports the pool; ledger may be
// nil when the run has no ledger.
func NewServer(addr string, status func() pool.Status, ledger Pinger) *Server {
	return &Server{
		addr:   addr,
		status: status,
		ledger: ledger,
	}
}

// Start binds the listen address and serves in the background.
func (h *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = ln

	h.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[Health] Server error: %v", err)
		}
	}()

	log.Printf("[Health] Listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (h *Server) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// Shutdown gracefully shuts down the health check server.
func (h *Server) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK when the ledger (if any) is reachable, 503 otherwise.
func (h *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{Status: "healthy"}
	if h.status != nil {
		s := h.status()
		response.Pool = &s
	}

	code := http.StatusOK
	if h.ledger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.ledger.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			response.Redis = "connected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string       `json:"status"`
	Redis  string       `json:"redis,omitempty"`
	Error  string       `json:"error,omitempty"`
	Pool   *pool.Status `json:"pool,omitempty"`
}
