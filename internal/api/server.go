package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/edumetrics/kestrel/internal/decision"
	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/ratelimit"
	"github.com/edumetrics/kestrel/internal/rules"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

// Server is the Kestrel HTTP API.
type Server struct {
	router  *chi.Mux
	handler *Handler
	limiter *ratelimit.Limiter
	admin   func(http.Handler) http.Handler
	config  domain.ServerConfig
}

// NewServer wires the routes. repo, cache, bus and advisories may be nil;
// routes that need a missing dependency answer 503.
func NewServer(cfg *domain.Config, repo domain.Repository, cache domain.Cache, bus domain.EventBus, advisories *rules.Engine, processor *decision.Processor, version string) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		handler: NewHandler(repo, cache, bus, advisories, processor, version, cfg.AssessmentTTL),
		limiter: ratelimit.New(cache, cfg.RateLimit),
		admin:   AuthMiddleware(cfg.Auth, RoleAdmin),
		config:  cfg.Server,
	}

	s.router.Use(corsHandler().Handler)
	s.router.Use(RecoverMiddleware)
	s.router.Use(TracingMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Compress(5))

	s.router.Get("/health", s.handler.Health)
	s.router.Get("/ready", s.handler.Ready)

	s.router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Get("/rulebase", s.handler.RuleBase)
		s.classificationRoutes(r)
		s.studentRoutes(r)
		s.advisoryRoutes(r)
	})
	return s
}

// corsHandler allows browser dashboards on any origin. Auth is a bearer
// header, so credentials are not needed.
func corsHandler() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", TenantIDHeader, RequestIDHeader, TraceIDHeader},
		ExposedHeaders: []string{RequestIDHeader, TraceIDHeader, "X-Cache", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:         int((24 * time.Hour).Seconds()),
	})
}

// classificationRoutes are rate limited per tenant.
func (s *Server) classificationRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.limiter))
		r.Post("/evaluate", s.handler.Evaluate)
		r.Get("/students/{id}/assessment", s.handler.StudentAssessment)
	})
}

// studentRoutes: reads are open to any tenant caller, writes need an
// admin token.
func (s *Server) studentRoutes(r chi.Router) {
	r.Get("/students", s.handler.ListStudents)
	r.Get("/students/{id}", s.handler.GetStudent)
	r.Group(func(r chi.Router) {
		r.Use(s.admin)
		r.Post("/students", s.handler.CreateStudent)
		r.Post("/students/import", s.handler.ImportStudents)
		r.Put("/students/{id}", s.handler.UpdateStudent)
		r.Delete("/students/{id}", s.handler.DeleteStudent)
	})
}

func (s *Server) advisoryRoutes(r chi.Router) {
	r.Get("/advisories", s.handler.ListAdvisories)
	r.Get("/advisories/{id}", s.handler.GetAdvisory)
	r.Group(func(r chi.Router) {
		r.Use(s.admin)
		r.Post("/advisories", s.handler.CreateAdvisory)
		r.Post("/advisories/reload", s.handler.ReloadAdvisories)
	})
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Run serves until ctx is cancelled, then gives in-flight requests up to
// grace to finish. It returns the listener error if serving fails.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	srv := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server forced to shut down", "error", err)
			return err
		}
		return nil
	})
	return g.Wait()
}

// Router exposes the routes for httptest.
func (s *Server) Router() *chi.Mux {
	return s.router
}
