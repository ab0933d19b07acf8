package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/utils/errutil"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/secmon-lab/punchcard/pkg/utils/metrics"
	"github.com/secmon-lab/punchcard/pkg/utils/safe"
)

// DefaultHealthTimeout bounds all health checks of one request
const DefaultHealthTimeout = 3 * time.Second

// HealthCheck checks one backend
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	router             *chi.Mux
	commandHandler     *SlackCommandHandler
	slackSigningSecret string
	metrics            *metrics.Metrics
	healthChecks       []HealthCheck
}

type Options func(*Server)

func WithSlackCommand(handler *SlackCommandHandler, signingSecret string) Options {
	return func(s *Server) {
		s.commandHandler = handler
		s.slackSigningSecret = signingSecret
	}
}

func WithMetrics(m *metrics.Metrics) Options {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithHealthCheck(name string, check func(ctx context.Context) error) Options {
	return func(s *Server) {
		s.healthChecks = append(s.healthChecks, HealthCheck{Name: name, Check: check})
	}
}

func New(opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{router: r}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler(s.healthChecks))

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// Slack endpoints use signature verification instead of user auth
	if s.commandHandler != nil {
		r.Route("/hooks/slack", func(r chi.Router) {
			r.Use(SlackSignatureMiddleware(s.slackSigningSecret))
			r.Post("/command", s.commandHandler.ServeHTTP)
		})
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler runs every check and answers 503 when any of them fails
func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), DefaultHealthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for _, hc := range checks {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(checks))
			}
			if err := hc.Check(ctx); err != nil {
				logging.From(ctx).Warn("health check failed", "check", hc.Name, "error", err.Error())
				resp.Checks[hc.Name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[hc.Name] = "ok"
		}

		data, err := json.Marshal(resp)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal health response"), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		safe.Write(ctx, w, data)
	}
}
