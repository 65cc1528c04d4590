package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"promoter/internal/config"
	"promoter/internal/history"
	"promoter/internal/notify"
	"promoter/internal/promotion"
	"promoter/internal/registry"
	"promoter/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts. Promotions run synchronously, so the write
	// timeout covers a whole promotion.
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 5 * time.Minute
	HTTPIdleTimeout  = 60 * time.Second

	// RequestTimeout bounds a single request
	RequestTimeout = 4 * time.Minute

	// ShutdownTimeout bounds the graceful shutdown
	ShutdownTimeout = 30 * time.Second

	// Rate limits per IP, in requests per minute
	GlobalRateLimit  = 60
	PromoteRateLimit = 6
)

// Server represents the HTTP server
type Server struct {
	Promoter     *promotion.Promoter
	Builds       *registry.Registry
	Store        *store.FileStore
	Repositories *config.Repositories
	History      *history.History
	Notifier     *notify.Dispatcher
	LockManager  *LockManager
	Logger       *slog.Logger

	// Secret enables request signatures when set
	Secret string

	// ExposeErrors returns failure details to clients
	ExposeErrors bool

	// TestMode disables rate limiting
	TestMode bool

	notifyWg sync.WaitGroup // in-flight notifications
}

// NewServer creates a server whose promoter acts for the user named in each
// request and only promotes into configured release repositories
func NewServer(builds *registry.Registry, st *store.FileStore, repos *config.Repositories, hist *history.History, logger *slog.Logger, testMode bool) *Server {
	promoter := promotion.NewPromoter(builds, st, promotion.IdentityFunc(UserFromContext), logger)
	promoter.Targets = repos.IsTarget

	return &Server{
		Promoter:     promoter,
		Builds:       builds,
		Store:        st,
		Repositories: repos,
		History:      hist,
		LockManager:  NewLockManager(),
		Logger:       logger,
		TestMode:     testMode,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(UserMiddleware)

	r.Use(func(next http.Handler) http.Handler {
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
	})

	if !s.TestMode {
		r.Use(NewRateLimitMiddleware("global", GlobalRateLimit, s.Logger))
	}

	r.Get("/health", s.HandleHealth)
	r.Get("/status", s.HandleStatusAll)
	r.Get("/status/{buildName}", s.HandleStatus)

	r.Route("/api", func(r chi.Router) {
		r.Get("/builds/{buildName}", s.HandleListBuilds)
		r.Post("/builds", s.HandleImport)

		if !s.TestMode {
			r.With(NewRateLimitMiddleware("promote", PromoteRateLimit, s.Logger)).
				Post("/promote/{buildName}/{buildNumber}", s.HandlePromote)
		} else {
			r.Post("/promote/{buildName}/{buildNumber}", s.HandlePromote)
		}
	})

	return r
}

// Start serves addr until ctx is cancelled, then stops accepting requests and
// waits for the active ones. Call Shutdown afterwards to release resources.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// WaitForNotifications waits for in-flight notifications to complete
func (s *Server) WaitForNotifications() {
	s.notifyWg.Wait()
}

// Shutdown waits for in-flight notifications and closes the history database
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.notifyWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.Logger.Warn("Notifications still running at shutdown")
	}

	if s.History != nil {
		return s.History.Close()
	}
	return nil
}
