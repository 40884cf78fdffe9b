// Package server is the HTTP boundary of the broker: buffered and
// streaming chat endpoints, pool introspection, metrics and the admin
// surface, in front of the dispatcher and pool.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nanohit/nocturne/internal/metrics"
	"github.com/nanohit/nocturne/pkg/dispatch"
	"github.com/nanohit/nocturne/pkg/pool"
	"github.com/rs/zerolog"
)

// Options holds server configuration
type Options struct {
	Host               string
	Port               int
	RateLimitPerMinute int

	// AdminSecret guards /admin endpoints; empty disables them
	AdminSecret string

	// AdminDefaultPassword fills in omitted passwords on added accounts
	AdminDefaultPassword string
}

// Server is the broker HTTP server
type Server struct {
	options        Options
	server         *http.Server
	pool           *pool.Pool
	dispatcher     *dispatch.Dispatcher
	rateLimiter    *RateLimiter
	metrics        *metrics.Metrics
	upgrader       websocket.Upgrader
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new broker server
func NewServer(options Options, p *pool.Pool, d *dispatch.Dispatcher, m *metrics.Metrics, logger zerolog.Logger) (*Server, error) {
	// Set defaults
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.RateLimitPerMinute == 0 {
		options.RateLimitPerMinute = 100
	}

	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if d == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	s := &Server{
		options:     options,
		pool:        p,
		dispatcher:  d,
		rateLimiter: NewRateLimiter(options.RateLimitPerMinute),
		metrics:     m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser client is served from this same origin, but the
			// broker is also called cross-origin by API consumers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:    logger,
		startTime: time.Now(),
	}

	return s, nil
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/chat", s.limited(s.handleChat))
	mux.HandleFunc("/stream", s.limited(s.handleStream))
	mux.HandleFunc("/ws", s.limited(s.handleWS))
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/admin/add-account", s.handleAddAccount)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: mux,
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Int("accounts", s.pool.Size()).
		Msg("Starting broker server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start broker server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server, waiting for in-flight requests
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Stopping broker server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Timed out waiting for in-flight requests")
	}

	s.rateLimiter.Stop()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	return nil
}

// limited wraps a chat-serving handler with the shutdown gate, the
// per-IP rate limiter and in-flight request tracking
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		shuttingDown := s.isShuttingDown
		s.shutdownMu.RUnlock()
		if shuttingDown {
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}

		ip := clientIP(r)
		if !s.rateLimiter.CheckLimit(ip) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", s.rateLimiter.GetRetryAfter(ip)))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		next(w, r)
	}
}

// clientIP extracts the client address, honoring X-Forwarded-For from
// the PaaS edge
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
