package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"checkhub/internal/ghclient"
	"checkhub/internal/handler"
	"checkhub/internal/store"
	"checkhub/internal/stream"
	"checkhub/internal/webhook"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 30 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 60 * time.Second

	serviceName = "checkhub"
)

// EventStream fans delivery outcomes out to subscribers.
type EventStream interface {
	http.Handler
	Publish(ev stream.Event) bool
	Clients() int
}

// Options wires the server to its collaborators.
type Options struct {
	Store         *store.Store
	Dispatcher    *webhook.Dispatcher
	Repositories  *handler.RepositoryHandler
	Checks        *handler.CheckHandler
	CheckTypes    []string
	Stream        EventStream
	Clients       ghclient.Factory
	Secret        []byte
	AllowUnsigned bool
	Environment   string
	RateLimit     int // requests per minute per IP, all routes
	HookRateLimit int // requests per minute per IP, /api/hook
	Logger        *slog.Logger
	TestMode      bool
}

// Server represents the HTTP server
type Server struct {
	Store         *store.Store
	Dispatcher    *webhook.Dispatcher
	Repositories  *handler.RepositoryHandler
	Checks        *handler.CheckHandler
	Stream        EventStream
	Logger        *slog.Logger
	TestMode      bool
	checkTypes    []string
	clients       ghclient.Factory
	secret        []byte
	allowUnsigned bool
	environment   string
	rateLimit     int
	hookRateLimit int

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(opts Options) *Server {
	return &Server{
		Store:         opts.Store,
		Dispatcher:    opts.Dispatcher,
		Repositories:  opts.Repositories,
		Checks:        opts.Checks,
		Stream:        opts.Stream,
		Logger:        opts.Logger,
		TestMode:      opts.TestMode,
		checkTypes:    opts.CheckTypes,
		clients:       opts.Clients,
		secret:        opts.Secret,
		allowUnsigned: opts.AllowUnsigned,
		environment:   opts.Environment,
		rateLimit:     opts.RateLimit,
		hookRateLimit: opts.HookRateLimit,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	})
	r.Use(s.logRequests)

	// Rate limiting middleware (only if not in test mode)
	if !s.TestMode && s.rateLimit > 0 {
		r.Use(NewRateLimitMiddleware(s.rateLimit, s.Logger))
	}

	// The event stream is long-lived and stays outside the request timeout.
	if s.Stream != nil {
		r.With(s.RequireAuth).Get("/api/events", s.Stream.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(RequestTimeout))

		r.Get("/health", s.HandleHealth)

		if !s.TestMode && s.hookRateLimit > 0 {
			r.With(NewWebhookRateLimitMiddleware(s.hookRateLimit, s.Logger)).Post("/api/hook", s.HandleHook)
		} else {
			r.Post("/api/hook", s.HandleHook)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)

			r.Get("/api/env", s.HandleEnv)
			r.Get("/api/deliveries", s.HandleDeliveries)
			r.Get("/api/repos", s.HandleListRepositories)
			r.Get("/api/repos/{id}", s.HandleGetRepository)
			r.Put("/api/repos/{id}/{type}", s.HandleEnableCheck)
			r.Delete("/api/repos/{id}/{type}", s.HandleDisableCheck)
		})
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.Logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", middleware.GetReqID(r.Context()),
				"duration_ms", time.Since(start).Milliseconds())
		}()

		next.ServeHTTP(ww, r)
	})
}

// Start starts the HTTP server and blocks until it stops. It returns nil
// after a graceful Shutdown.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	s.mu.Lock()
	s.httpServer = server
	s.mu.Unlock()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
