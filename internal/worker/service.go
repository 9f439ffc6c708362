// Package worker provides the HTTP surface of the goal matching service.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/thebtf/goalmatch/internal/config"
	"github.com/thebtf/goalmatch/internal/matcher"
	"github.com/thebtf/goalmatch/internal/similarity"
	"github.com/thebtf/goalmatch/pkg/models"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests. Matching
	// large recipients embeds hundreds of texts, so this is generous.
	DefaultHTTPTimeout = 120 * time.Second

	// MaxRequestBody caps incoming request bodies.
	MaxRequestBody = 1 << 20 // 1 MiB
)

// Matcher is the matching API the HTTP layer exposes.
type Matcher interface {
	MatchGoals(ctx context.Context, recipientID int64, opts matcher.MatchOptions) (*similarity.Result, error)
	FindSimilar(ctx context.Context, recipientID int64, text string, opts matcher.SimilarOptions) ([]models.SimilarGoal, error)
	CompareStrings(ctx context.Context, string1, string2 string) (float64, error)
}

// Sweeper triggers and reports on the background cache sweep.
type Sweeper interface {
	RunNow(ctx context.Context)
	Stats() map[string]any
}

// Service is the HTTP server for the matching API.
type Service struct {
	version   string
	config    *config.Config
	matcher   Matcher
	sweeper   Sweeper
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	startTime time.Time
}

// NewService creates the HTTP service around the matcher and sweeper.
func NewService(version string, m Matcher, sw Sweeper, log zerolog.Logger) *Service {
	svc := &Service{
		version:   version,
		config:    config.Get(),
		matcher:   m,
		sweeper:   sw,
		router:    chi.NewRouter(),
		log:       log.With().Str("component", "worker").Logger(),
		startTime: time.Now(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	return svc
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(middleware.RealIP)
	s.router.Use(SecurityHeaders)
	s.router.Use(MaxBodySize(MaxRequestBody))
	s.router.Use(RequireJSONContentType)
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	// Health check (both root and API-prefixed for compatibility)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)

	// Matching API
	s.router.Post("/api/goals/similarity", s.handleGoalSimilarity)
	s.router.Post("/api/goals/similar", s.handleSimilarGoals)
	s.router.Post("/api/strings/similarity", s.handleStringSimilarity)

	// Cache sweep control
	s.router.Post("/api/sweep", s.handleSweepTrigger)
	s.router.Get("/api/sweep/stats", s.handleSweepStats)
}

// Router exposes the configured handler, primarily for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server in a background goroutine.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.WorkerPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.log.Info().
		Int("port", s.config.WorkerPort).
		Str("version", s.version).
		Msg("Worker HTTP server started")

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}
	s.log.Info().Msg("Worker service shutdown complete")
	return nil
}
