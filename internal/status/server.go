package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/pointzerver/internal/events"
	"github.com/mattjoyce/pointzerver/internal/receiver"
	"github.com/mattjoyce/pointzerver/internal/storage"
)

// StatsProvider exposes the command loop's counters. Reads are lock-free
// and never touch the loop itself.
type StatsProvider interface {
	Stats() receiver.Snapshot
}

// ReportLister returns persisted batch reports, newest first.
type ReportLister interface {
	Recent(ctx context.Context, limit int) ([]storage.Report, error)
}

// Identity is the static part of the /status document.
type Identity struct {
	Hostname       string
	IP             string
	InstanceID     string
	Version        string
	CommandPort    int
	DiscoveryPort  int
	AppDownloadURL string
	InputBackend   string
}

// Config holds status server configuration
type Config struct {
	Listen string
}

// Server is the loopback HTTP status endpoint.
type Server struct {
	config    Config
	identity  Identity
	stats     StatsProvider
	reports   ReportLister
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a status server. reports and hub may be nil.
func New(config Config, identity Identity, stats StatsProvider, reports ReportLister, hub *events.Hub, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(0)
	}
	return &Server{
		config:    config,
		identity:  identity,
		stats:     stats,
		reports:   reports,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start binds the listener and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("status listener %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener (blocking).
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("status server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("status server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler; exported for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/status", s.handleStatus)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/reports", s.handleReports)
	r.Get("/events", s.handleEvents)

	return r
}

// corsMiddleware lets the bundled browser UI poll from any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
