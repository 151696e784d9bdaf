package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/hipnotes/internal/notes"
)

// Options configures the HTTP transport.
type Options struct {
	Port           int
	RequestTimeout time.Duration
	UserHeader     string
	DefaultUserID  string
	RateLimiter    *RateLimiter
	Metrics        *Metrics
}

type Server struct {
	Router  *chi.Mux
	Port    int
	logger  *slog.Logger
	opts    Options
	metrics *Metrics
	http    *http.Server
}

func New(opts Options, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(opts.RequestTimeout))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "hipnotes")
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path), nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed", r.Method), nil)
	})

	opts.RateLimiter.StartCleanup(rateLimitSweep)

	r.Get("/health", health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	return &Server{
		Router:  r,
		Port:    opts.Port,
		logger:  logger,
		opts:    opts,
		metrics: opts.Metrics,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// MountNotes registers the notes routes behind identity resolution and
// rate limiting.
func (s *Server) MountNotes(h *notes.Handlers) {
	s.Router.Route("/notes", func(r chi.Router) {
		r.Use(IdentityMiddleware(s.opts.UserHeader, s.opts.DefaultUserID))
		r.Use(s.opts.RateLimiter.Middleware)

		r.Post("/", s.pipelineHandler(h.Create))
		r.Get("/", s.pipelineHandler(h.List))
		r.Get("/{id}", s.pipelineHandler(h.Get))
		r.Patch("/{id}", s.pipelineHandler(h.Update))
		r.Delete("/{id}", s.pipelineHandler(h.Delete))
	})
}

// Routes lists the registered endpoints as "METHOD /path".
func (s *Server) Routes() []string {
	var routes []string
	_ = chi.Walk(s.Router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if len(route) > 1 {
			route = strings.TrimSuffix(route, "/")
		}
		routes = append(routes, method+" "+route)
		return nil
	})
	return routes
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.opts.RateLimiter.Stop()
	return s.http.Shutdown(ctx)
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
