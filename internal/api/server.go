package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/daehyeonmun2021/react-native-godot/internal/engine"
	"github.com/daehyeonmun2021/react-native-godot/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithCrashEndpoint exposes POST /v1/instance/crash.
func WithCrashEndpoint() Option {
	return func(s *Server) { s.enableCrash = true }
}

// Server wraps the chi router and the engine host it controls.
type Server struct {
	router      *chi.Mux
	host        *engine.Host
	store       store.Store
	logger      *slog.Logger
	addr        string
	enableCrash bool
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, h *engine.Host, s store.Store, logger *slog.Logger, opts ...Option) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		host:   h,
		store:  s,
		logger: logger.With("component", "api"),
		addr:   addr,
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/v1/runtimes", s.handleListRuntimes)
	s.router.Get("/v1/stats", s.handleGetStats)
	s.router.Get("/v1/logs", s.handleStreamLogs)

	s.router.Route("/v1/instance", func(r chi.Router) {
		r.Get("/", s.handleGetInstance)
		r.Post("/", s.handleCreateInstance)
		r.Delete("/", s.handleDestroyInstance)
		r.Post("/pause", s.handlePause)
		r.Post("/resume", s.handleResume)
		r.Post("/focus-in", s.handleLifecycle("focus_in", s.host.FocusIn))
		r.Post("/focus-out", s.handleLifecycle("focus_out", s.host.FocusOut))
		r.Post("/app-pause", s.handleLifecycle("app_pause", s.host.AppPause))
		r.Post("/app-resume", s.handleLifecycle("app_resume", s.host.AppResume))
		r.Post("/crash", s.handleCrash)
	})
	s.router.Get("/v1/instances", s.handleListInstances)

	s.router.Route("/v1/windows", func(r chi.Router) {
		r.Get("/", s.handleListWindows)
		r.Post("/update", s.handleUpdateWindows)
		r.Put("/{name}", s.handleRegisterWindow)
		r.Delete("/{name}", s.handleUnregisterWindow)
		r.Post("/{name}/open", s.handleOpenWindow)
		r.Post("/{name}/close", s.handleCloseWindow)
		r.Post("/{name}/update", s.handleUpdateWindow)
	})

	s.router.Route("/v1/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Get("/{id}", s.handleGetTask)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", context.Cause(ctx))
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
