// Package server provides the HTTP server and routing for the pricing engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/database"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/metrics"
)

// RouteRegistrar is implemented by every module handler.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Config holds server configuration
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool
	// AllowedOrigins may call the API cross-origin. DevMode allows any origin.
	AllowedOrigins []string
	Databases      map[string]*database.DB
	Events         *events.Bus
	Metrics        *metrics.Metrics
	Work           WorkStatusProvider
	// Modules are mounted under /api.
	Modules []RouteRegistrar
	// RequestTimeout bounds every non-streaming request. Defaults to 60s.
	RequestTimeout time.Duration
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	systemHandlers *SystemHandlers
	eventsStream   *EventsStreamHandler
	statusMonitor  *StatusMonitor
	metrics        *metrics.Metrics
	modules        []RouteRegistrar
	requestTimeout time.Duration
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	systemHandlers := NewSystemHandlers(cfg.Log, cfg.Databases, cfg.Work)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		port:           cfg.Port,
		systemHandlers: systemHandlers,
		metrics:        cfg.Metrics,
		modules:        cfg.Modules,
		requestTimeout: timeout,
	}
	if cfg.Events != nil {
		s.eventsStream = NewEventsStreamHandler(cfg.Events, cfg.Log)
		s.statusMonitor = NewStatusMonitor(cfg.Events, systemHandlers, cfg.Log)
	}

	s.setupMiddleware(cfg.DevMode, cfg.AllowedOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Streams hold the connection open, so writes are bounded per route instead.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Router returns the root handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool, allowedOrigins []string) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS. Without dev mode or configured origins the API is same-origin only.
	if corsOpts, ok := corsOptions(devMode, allowedOrigins); ok {
		s.router.Use(cors.Handler(corsOpts))
	}

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func corsOptions(devMode bool, allowedOrigins []string) (cors.Options, bool) {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	switch {
	case devMode:
		// Echoes the request origin; a literal "*" is rejected by browsers with credentials
		opts.AllowOriginFunc = func(r *http.Request, origin string) bool { return true }
	case len(allowedOrigins) > 0:
		opts.AllowedOrigins = allowedOrigins
	default:
		return opts, false
	}
	return opts, true
}

func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		// Event streams stay open, so they sit outside the request timeout.
		if s.eventsStream != nil {
			r.Get("/events/stream", s.eventsStream.ServeHTTP)
			r.Get("/events/ws", s.eventsStream.ServeWebSocket)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			r.Route("/system", func(r chi.Router) {
				r.Get("/health", s.systemHandlers.HandleHealth)
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Get("/databases", s.systemHandlers.HandleDatabaseStats)
			})

			for _, m := range s.modules {
				m.RegisterRoutes(r)
			}
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	// Start status monitor (check every 60 seconds)
	if s.statusMonitor != nil {
		s.statusMonitor.Start(60 * time.Second)
		s.log.Info().Msg("Status monitor started")
	}

	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	if s.statusMonitor != nil {
		s.statusMonitor.Stop()
	}
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
