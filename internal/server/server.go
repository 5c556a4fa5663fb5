// Package server provides the HTTP server and routing for Stratify.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/raksha-rane/stratify/internal/database"
	"github.com/raksha-rane/stratify/internal/events"
	"github.com/raksha-rane/stratify/internal/metrics"
	backtesthandlers "github.com/raksha-rane/stratify/internal/modules/backtest/handlers"
	marketdatahandlers "github.com/raksha-rane/stratify/internal/modules/marketdata/handlers"
	"github.com/raksha-rane/stratify/internal/modules/risk"
	riskhandlers "github.com/raksha-rane/stratify/internal/modules/risk/handlers"
	"github.com/raksha-rane/stratify/internal/ratelimit"
	"github.com/rs/zerolog"
)

// CorrelationHeader carries the request correlation id in and out
const CorrelationHeader = "X-Correlation-ID"

// Config holds server configuration and the services it routes to
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool
	DataDir string
	LogFile string // rotating log file served by /api/system/logs; empty when file logging is off
	Version string

	Databases  map[string]*database.DB
	EventBus   *events.Bus
	Metrics    *metrics.Metrics
	Limiter    *ratelimit.Limiter
	MarketData marketdatahandlers.DataService
	Backtests  backtesthandlers.BacktestService
	Risk       *risk.Manager
	Jobs       JobStatusProvider // optional
	DataSource DataSource        // optional
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            Config
	metrics        *metrics.Metrics
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		cfg:     cfg,
		metrics: cfg.Metrics,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.DataDir,
			cfg.Databases,
			cfg.Limiter,
			cfg.Jobs,
			cfg.DataSource,
			cfg.Version,
		),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root router
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(correlationMiddleware)

	// Logging sits outside Recoverer so recovered panics are logged as 500s
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", CorrelationHeader},
		ExposedHeaders:   []string{CorrelationHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleInfo)
	s.router.Get("/health", s.systemHandlers.HandleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	fetchLimit, runLimit := s.limiterFor(ratelimit.ResourceFetch), s.limiterFor(ratelimit.ResourceRun)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived, so outside the request timeout group
		if s.cfg.EventBus != nil {
			r.Get("/events/ws", NewEventsStreamHandler(s.cfg.EventBus, s.log).ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			if s.cfg.Limiter != nil {
				r.Get("/queue/status", s.systemHandlers.HandleQueueStatus)
			}

			if s.cfg.MarketData != nil {
				marketdatahandlers.NewHandler(s.cfg.MarketData, s.log).RegisterRoutes(r, fetchLimit)

				if s.cfg.Risk != nil {
					riskhandlers.NewHandler(s.cfg.MarketData, s.cfg.Risk, s.log).RegisterRoutes(r)
				}
			}

			if s.cfg.Backtests != nil {
				backtesthandlers.NewHandler(s.cfg.Backtests, s.log).RegisterRoutes(r, runLimit)
			}

			logHandlers := NewLogHandlers(s.cfg.LogFile, s.log)
			r.Route("/system", func(r chi.Router) {
				r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
				r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
				r.Get("/disk", s.systemHandlers.HandleDiskUsage)
				r.Get("/logs", logHandlers.HandleGetLogs)
				r.Get("/logs/errors", logHandlers.HandleGetErrors)
			})
		})
	})
}

func (s *Server) limiterFor(resource string) func(http.Handler) http.Handler {
	if s.cfg.Limiter == nil {
		return nil
	}
	return s.cfg.Limiter.Middleware(resource)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// correlationMiddleware accepts or generates a correlation id and echoes it on the response
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(CorrelationHeader, id)
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests and records request metrics by route pattern
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.RecordHTTPRequest(r.Method, route, status, duration)

		event := s.log.Info()
		if status >= http.StatusInternalServerError {
			event = s.log.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", duration).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("correlation_id", r.Header.Get(CorrelationHeader)).
			Msg("HTTP request")
	})
}
