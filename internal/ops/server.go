package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/example/wb-supply-bot/internal/db"
	"github.com/example/wb-supply-bot/internal/metrics"
	"github.com/example/wb-supply-bot/internal/monitor"
	"github.com/example/wb-supply-bot/internal/search"
)

// Server is the operational HTTP surface: liveness, readiness, status, and
// Prometheus metrics. It carries no user-facing functionality.
type Server struct {
	http    *http.Server
	log     *logrus.Entry
	started time.Time
}

func New(addr string, d *db.DB, mon *monitor.Monitor, mgr *search.Manager, m *metrics.Collector) *Server {
	s := &Server{
		log:     logrus.WithField("component", "ops"),
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{
			"status":         "ok",
			"uptime_seconds": time.Since(s.started).Seconds(),
		})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if err := d.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			writeJSON(w, map[string]any{"ready": false, "error": err.Error()})
			return
		}
		writeJSON(w, map[string]any{"ready": true})
	})
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{
			"monitor_running": mon.Running(),
			"active_searches": mgr.ActiveCount(),
		})
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Start() {
	go func() {
		s.log.Infof("ops server listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("ops server")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
