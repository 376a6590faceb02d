// Package server provides the HTTP REST API for résumé generation.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/generation"
	"github.com/mohammadumar-dev/resumeagent/internal/notify"
	"github.com/mohammadumar-dev/resumeagent/internal/observability"
	"github.com/mohammadumar-dev/resumeagent/internal/server/middleware"
	"github.com/mohammadumar-dev/resumeagent/internal/server/ratelimit"
)

const shutdownTimeout = 30 * time.Second

// Generations is the generation service surface the handlers use.
type Generations interface {
	Submit(ctx context.Context, userID uuid.UUID, jobDescription string) (*generation.Result, error)
	Get(ctx context.Context, userID, generationID uuid.UUID) (*db.Generation, error)
	AgentUsage(ctx context.Context, userID uuid.UUID) ([]db.AgentUsage, error)
	GetResume(ctx context.Context, userID, resumeID uuid.UUID) (*db.Resume, error)
	ListResumes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]db.Resume, int, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Generations Generations
	// Subscriber streams status events. Nil disables GET /generations/events.
	Subscriber notify.Subscriber
	JWT        *JWTService
	// Health is pinged by GET /health. Nil reports ok unconditionally.
	Health   Pinger
	Gatherer prometheus.Gatherer
	// RateLimiter throttles authenticated routes per user. Nil disables limiting.
	RateLimiter *ratelimit.Limiter
	Metrics     *observability.Metrics
	Log         *observability.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	generations Generations
	subscriber  notify.Subscriber
	health      Pinger
	log         *observability.Logger
}

// New builds a server listening on addr.
func New(addr string, deps Deps) *Server {
	s := &Server{
		generations: deps.Generations,
		subscriber:  deps.Subscriber,
		health:      deps.Health,
		log:         deps.Log,
	}
	if s.log == nil {
		s.log = observability.NewNopLogger()
	}
	s.log = s.log.With("service", "HTTPServer")

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	authenticate := middleware.AuthMiddleware(deps.JWT.AsTokenValidator())
	auth := authenticate
	if deps.RateLimiter != nil {
		limit := ratelimit.Middleware(deps.RateLimiter, rateLimitKey, func(r *http.Request, route string) {
			deps.Metrics.RateLimited(route)
			s.log.Info("request rate limited", "route", route, "client", rateLimitKey(r))
		})
		auth = func(next http.Handler) http.Handler { return authenticate(limit(next)) }
	}

	mux := http.NewServeMux()
	mux.Handle("POST /generations", auth(http.HandlerFunc(s.handleSubmitGeneration)))
	mux.Handle("GET /generations/events", authenticate(http.HandlerFunc(s.handleGenerationEvents)))
	mux.Handle("GET /generations/{id}", auth(http.HandlerFunc(s.handleGetGeneration)))
	mux.Handle("GET /resumes", auth(http.HandlerFunc(s.handleListResumes)))
	mux.Handle("GET /resumes/{id}", auth(http.HandlerFunc(s.handleGetResume)))
	mux.Handle("GET /usage/agents", auth(http.HandlerFunc(s.handleAgentUsage)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.withLogging(s.withCORS(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // generation requests and event streams outlive any fixed bound
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// NewRateLimiter builds the per-user limiter for the API. Generation submits
// get their own hourly budget; every other limited route shares perMinute.
// A zero value leaves the corresponding routes unlimited.
func NewRateLimiter(submitPerHour, perMinute int) *ratelimit.Limiter {
	return ratelimit.NewLimiter(ratelimit.Config{
		Rules: []ratelimit.Rule{
			{Method: http.MethodPost, Path: "/generations", Limit: submitPerHour, Window: time.Hour, Burst: min(submitPerHour, 3)},
		},
		Default: ratelimit.Rule{Limit: perMinute, Window: time.Minute},
	})
}

// rateLimitKey counts authenticated requests per user and anything else per address.
func rateLimitKey(r *http.Request) string {
	if id, err := middleware.GetUserID(r); err == nil {
		return "user:" + id.String()
	}
	return "ip:" + ratelimit.ClientIP(r)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.log.Info("server stopped")
		return nil
	})

	return g.Wait()
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps event streams working through the logging wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.log.Warn("health check failed", "error", err)
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
