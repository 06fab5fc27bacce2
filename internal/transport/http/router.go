// Package httptransport is the local presentation API: JSON endpoints over the
// session manager and the study facade, plus a server-sent event stream that
// carries state changes, toasts and navigation requests.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultRequestTimeout = 30 * time.Second

// RouterConfig collects what NewRouter mounts.
type RouterConfig struct {
	Logger   *slog.Logger
	Sessions *SessionHandler
	Study    *StudyHandler
	Activity *ActivityHandler
	Events   *EventHub
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
}

// NewRouter wires all public endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(Recovery(logger))
	r.Use(chimw.RequestID)
	r.Use(RequestTime)
	r.Use(Logger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.Events != nil {
			// Streams stay open; no timeout.
			api.Get("/events", cfg.Events.ServeHTTP)
		}
		api.Group(func(g chi.Router) {
			g.Use(chimw.Timeout(timeout))
			g.Use(ContentTypeJSON)
			if cfg.Sessions != nil {
				cfg.Sessions.Register(g)
			}
			if cfg.Study != nil {
				cfg.Study.Register(g)
			}
			if cfg.Activity != nil {
				cfg.Activity.Register(g)
			}
		})
	})
	return r
}
