// Package health serves the liveness and readiness endpoints. The notifier
// has no request-serving API; this listener exists for the process
// supervisor and load-balancer probes only.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pulsefeed/internal/types"
)

const probeTimeout = 3 * time.Second

// Probe checks one dependency. Implementations must respect the context
// deadline.
type Probe func(ctx context.Context) error

// Server is the health HTTP listener.
type Server struct {
	httpServer *http.Server
	probes     map[string]Probe
	logger     types.Logger
}

// NewServer builds the listener. probes maps dependency names (shown in the
// readiness body) to their checks.
func NewServer(port string, probes map[string]Probe, logger types.Logger) *Server {
	s := &Server{probes: probes, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start runs the listener until Shutdown. http.ErrServerClosed is the normal
// shutdown signal and is not returned as an error.
func (s *Server) Start() error {
	s.logger.Info("health server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleHealth is the liveness probe: the process is up and serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady checks every dependency and reports 503 when any is down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	deps := make(map[string]string, len(s.probes))
	ready := true
	for name, probe := range s.probes {
		if err := probe(ctx); err != nil {
			deps[name] = err.Error()
			ready = false
			continue
		}
		deps[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "dependencies": deps})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
