// Package backend is the echo service used as the process under test. It
// answers slowly so that probes are in flight while it is being relaunched,
// and it drains in-flight requests when asked to stop.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
)

const (
	// DefaultDelay is how long /wait-and-echo waits before answering
	DefaultDelay = 2 * time.Second
	// DefaultDrainTimeout bounds the graceful shutdown
	DefaultDrainTimeout = 10 * time.Second

	prefixOriginal = "ECHO"
	prefixUpdated  = "ECHO (updated)"
)

// Config describes one backend instance
type Config struct {
	Host         string
	Port         int
	Delay        time.Duration
	Updated      bool // Responses use the updated prefix
	DrainTimeout time.Duration
}

// ConfigFromEnv fills Updated from the UPDATED environment variable
func ConfigFromEnv(cfg Config) Config {
	cfg.Updated = os.Getenv("UPDATED") == "Y"
	return cfg
}

// Prefix returns the response prefix for the given generation
func Prefix(updated bool) string {
	if updated {
		return prefixUpdated
	}
	return prefixOriginal
}

// Server is the echo HTTP server
type Server struct {
	config     Config
	logger     *log.Logger
	httpServer *http.Server
	listener   net.Listener
	done       chan error
}

// NewServer creates a backend server
func NewServer(cfg Config, logger *log.Logger) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	return &Server{
		config: cfg,
		logger: logger,
		done:   make(chan error, 1),
	}
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/wait-and-echo", s.handleWaitAndEcho).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	return r
}

// Start binds the port and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	s.logger.Info("backend listening", "addr", ln.Addr().String(), "updated", s.config.Updated, "delay", s.config.Delay)
	return nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Stop closes the listener and waits for in-flight requests to finish
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("backend draining")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to drain backend: %w", err)
	}
	return <-s.done
}

// Run serves until ctx is cancelled, then drains
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case err := <-s.done:
		return err
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), s.config.DrainTimeout)
	defer cancel()
	if err := s.Stop(drainCtx); err != nil {
		return err
	}
	s.logger.Info("backend stopped")
	return nil
}

func (s *Server) handleWaitAndEcho(w http.ResponseWriter, r *http.Request) {
	content := r.URL.Query().Get("content")
	start := time.Now()

	time.Sleep(s.config.Delay)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s from %d: %s", Prefix(s.config.Updated), s.config.Port, content)

	s.logger.Debug("echo", "content", content, "duration", time.Since(start))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
