package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Server runs an http.Server that also hosts long-lived upgraded connections.
//
// Handlers receive a request context derived from a server-wide base context
// that is cancelled once Stop has drained regular requests, so stream sessions
// blocked on r.Context() end with the server. Connection state is tracked per
// transition and exposed through Stats.
type Server struct {
	mu         sync.RWMutex
	addr       string
	httpServer *http.Server
	listener   net.Listener
	cancelBase context.CancelFunc
	running    bool

	logger         *slog.Logger
	shutdown       time.Duration
	readHeader     time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
	maxHeaderBytes int
	tlsConfig      *tls.Config
	onShutdown     []func()

	open     atomic.Int64
	accepted atomic.Int64
	hijacked atomic.Int64
}

// Stats is a snapshot of connection counters.
type Stats struct {
	Open     int64 // connections currently served by net/http
	Accepted int64
	Hijacked int64 // connections handed over to upgraded protocols
	Running  bool
}

// New creates a Server listening on addr once started.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		shutdown:       DefaultShutdownTimeout,
		readHeader:     DefaultReadHeaderTimeout,
		readTimeout:    DefaultReadTimeout,
		writeTimeout:   DefaultWriteTimeout,
		idleTimeout:    DefaultIdleTimeout,
		maxHeaderBytes: DefaultMaxHeaderBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens and serves handler until ctx is cancelled or serving fails.
// It returns ctx.Err() on cancel; shutdown itself is Stop's job.
func (s *Server) Start(ctx context.Context, handler http.Handler) error {
	srv, ln, err := s.listen(ctx, handler)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "relay server listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.cancelBase()
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) listen(ctx context.Context, handler http.Handler) (*http.Server, net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, nil, ErrServerAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, nil, errors.Join(ErrListen, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	baseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.readHeader,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
		MaxHeaderBytes:    s.maxHeaderBytes,
		TLSConfig:         s.tlsConfig,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ConnState:         s.trackConn,
	}
	for _, fn := range s.onShutdown {
		s.httpServer.RegisterOnShutdown(fn)
	}
	s.listener = ln
	s.cancelBase = cancel
	s.running = true
	return s.httpServer, ln, nil
}

// StateHijacked and StateClosed are both terminal for a connection.
func (s *Server) trackConn(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.accepted.Add(1)
		s.open.Add(1)
	case http.StateHijacked:
		s.hijacked.Add(1)
		s.open.Add(-1)
	case http.StateClosed:
		s.open.Add(-1)
	}
}

// Addr returns the bound address once listening, the configured one before.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stats returns a snapshot of connection counters.
func (s *Server) Stats() Stats {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	return Stats{
		Open:     s.open.Load(),
		Accepted: s.accepted.Load(),
		Hijacked: s.hijacked.Load(),
		Running:  running,
	}
}

// Stop drains regular requests within the shutdown timeout, runs shutdown
// hooks and cancels the base context seen by remaining handlers.
// It is a no-op when the server is not running.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.httpServer == nil {
		return nil
	}

	s.logger.Info("relay server shutting down",
		slog.Duration("timeout", s.shutdown),
		slog.Int64("hijacked", s.hijacked.Load()))

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.cancelBase()
	s.running = false
	s.listener = nil

	if err != nil {
		s.logger.Error("relay server shutdown failed", slog.Any("error", err))
		return errors.Join(ErrShutdown, err)
	}
	s.logger.Info("relay server stopped")
	return nil
}

// Run adapts the server to errgroup: it serves until ctx is cancelled and then
// stops gracefully.
func (s *Server) Run(ctx context.Context, handler http.Handler) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- s.Start(ctx, handler) }()

		select {
		case <-ctx.Done():
			if err := s.Stop(); err != nil {
				s.logger.Error("stop on context cancellation", slog.Any("error", err))
			}
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}
