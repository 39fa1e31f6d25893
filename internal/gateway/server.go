package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"webdbg/internal/domain"
)

// ErrInvalidPort is returned when the console port is not in 0..65535.
var ErrInvalidPort = errors.New("gateway port must be 0-65535")

// Backend is the console state the HTTP handlers serve. Implementations must be
// safe for concurrent use; no method may block on the debugger goroutine.
type Backend interface {
	// History returns the full console transcript.
	History() string
	// FrameData returns the latest frame snapshot.
	FrameData() domain.FrameSnapshot
	// Poll returns the combined update. When full is false and nothing changed
	// since the previous poll it reports false.
	Poll(full bool) (domain.Update, bool)
	// Submit enqueues a raw command. It reports false once the console is closed.
	Submit(cmd string) bool
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger sets a structured logger for the Server. If l is nil it is
// ignored and the default slog logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGzipMinSize sets the response size below which gzip is skipped.
func WithGzipMinSize(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.gzipMinSize = n
		}
	}
}

// Server is the HTTP side of the web console: polling endpoints, command
// submission, static assets and the websocket push hub.
type Server struct {
	cfg         domain.ServerConfig
	backend     Backend
	hub         *Hub
	logger      *slog.Logger
	gzipMinSize int
	server      *http.Server

	addr        string
	addrMu      sync.RWMutex
	listenErr   error
	listenErrMu sync.Mutex
}

// NewServer builds a console server. The port must already be resolved (see
// config.ResolvePort): 0 lets the OS choose. Returns ErrInvalidPort if port is
// not in 0..65535.
func NewServer(cfg domain.ServerConfig, backend Backend, opts ...Option) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, ErrInvalidPort
	}
	if backend == nil {
		return nil, errors.New("gateway: backend must not be nil")
	}
	s := &Server{
		cfg:         cfg,
		backend:     backend,
		gzipMinSize: 1024,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(backend, s.log())
	handler, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// log returns the Server's logger, falling back to the default slog logger.
func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Hub returns the websocket push hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Addr returns the bound address (e.g. "127.0.0.1:5555") after Run has started. Empty before Run.
func (s *Server) Addr() string {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// ListenErr returns the error from the initial Listen in Run(), if any. Used when Addr() is still empty after Run() has been started.
func (s *Server) ListenErr() error {
	s.listenErrMu.Lock()
	defer s.listenErrMu.Unlock()
	return s.listenErr
}

// Handler returns the HTTP handler used by the server. For testing without binding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// netListen is the function used to listen; tests may replace it to force Listen errors.
var netListen = func(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}

// Run listens on the configured host and port and serves until shutdown is
// closed. Returns nil when shutdown. Websocket clients are disconnected before
// Run returns.
func (s *Server) Run(shutdown <-chan struct{}) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := netListen("tcp", addr)
	if err != nil {
		err = fmt.Errorf("gateway listen %s: %w", addr, err)
		s.listenErrMu.Lock()
		s.listenErr = err
		s.listenErrMu.Unlock()
		return err
	}
	s.addrMu.Lock()
	s.addr = ln.Addr().String()
	s.addrMu.Unlock()
	s.log().Debug("web console listening", "addr", s.Addr())

	done := make(chan error, 1)
	go func() {
		done <- s.server.Serve(ln)
	}()

	<-shutdown
	s.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = serverShutdown(s.server, ctx)
	if err != nil {
		return err
	}
	<-done
	return nil
}

// serverShutdown is the function used to shut down the server; tests may replace it.
var serverShutdown = func(srv *http.Server, ctx context.Context) error {
	return srv.Shutdown(ctx)
}
