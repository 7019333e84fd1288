// Package httpapi exposes the agent's read-only introspection surface:
// current tasks, discovered pods, and a single pod lookup by container name.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/laik/harvest/pkg/container"
	"github.com/laik/harvest/pkg/log"
	"github.com/laik/harvest/pkg/metrics"
	"github.com/laik/harvest/pkg/task"
)

type notFoundBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Server is the read-only HTTP surface backed by the registry and task
// controller.
type Server struct {
	registry *container.Registry
	tasks    *task.Controller
	mux      *http.ServeMux

	mu  sync.Mutex
	srv *http.Server
}

// New wires the handlers onto a fresh ServeMux.
func New(registry *container.Registry, tasks *task.Controller) *Server {
	s := &Server{registry: registry, tasks: tasks, mux: http.NewServeMux()}

	s.mux.HandleFunc("/tasks", s.instrumented("/tasks", s.handleTasks))
	s.mux.HandleFunc("/pods", s.instrumented("/pods", s.handlePods))
	s.mux.HandleFunc("/pod/", s.instrumented("/pod/", s.handlePod))
	s.mux.HandleFunc("/healthz", s.instrumented("/healthz", metrics.HealthHandler()))
	s.mux.HandleFunc("/ready", s.instrumented("/ready", metrics.ReadyHandler()))
	s.mux.HandleFunc("/live", s.instrumented("/live", metrics.LivenessHandler()))
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/", s.instrumented("/", s.handleNotFound))

	return s
}

// Handler returns the server's http.Handler for embedding or ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP surface on addr (e.g. "0.0.0.0:8080"). It
// blocks until the server stops, either on error or after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops a running server started by ListenAndServe. It
// is a no-op if the server was never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) instrumented(path string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		w.Header().Set("X-Request-Id", requestID)

		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		timer.ObserveDurationVec(metrics.HTTPRequestDuration, path)
		metrics.HTTPRequestsTotal.WithLabelValues(path, http.StatusText(rec.status)).Inc()

		log.WithComponent("httpapi").Debug().
			Str("request_id", requestID).
			Str("path", path).
			Int("status", rec.status).
			Msg("request handled")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tasks.All())
}

func (s *Server) handlePods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.All())
}

func (s *Server) handlePod(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/pod/")
	if name == "" {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}

	entry, ok := s.registry.FindByContainer(name)
	if !ok {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	log.WithComponent("httpapi").Debug().Str("path", r.URL.Path).Msg("unknown path")
	writeJSON(w, http.StatusNotFound, notFoundBody{Status: "error", Reason: "Resource was not found."})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
