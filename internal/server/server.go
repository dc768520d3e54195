package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-cansock/internal/can"
	"github.com/kstaniek/go-cansock/internal/hub"
	"github.com/kstaniek/go-cansock/internal/logging"
	"github.com/kstaniek/go-cansock/internal/metrics"
	"github.com/kstaniek/go-cansock/internal/transport"
	"github.com/kstaniek/go-cansock/internal/wire"
)

// SendFunc transmits a CAN frame to the bus.
type SendFunc func(can.Frame) error

// Server accepts TCP clients, streams hub frames to them and forwards their
// frames to the bus.
type Server struct {
	mu               sync.RWMutex
	addr             string
	hub              *hub.Hub
	codec            transport.FrameCodec
	send             SendFunc
	flushInterval    time.Duration
	batchSize        int
	readDeadline     time.Duration
	handshakeTimeout time.Duration
	maxClients       int
	logger           *slog.Logger

	readyOnce sync.Once
	readyCh   chan struct{}
	listener  net.Listener
	connsMu   sync.Mutex
	conns     map[*hub.Client]net.Conn
	wg        sync.WaitGroup

	nextConnID      atomic.Uint64
	totalAccepted   atomic.Uint64
	totalRejected   atomic.Uint64
	totalOverflow   atomic.Uint64
	totalBackendErr atomic.Uint64
}

const (
	defaultFlushInterval    = 5 * time.Millisecond
	defaultBatchSize        = 64
	defaultReadDeadline     = 60 * time.Second
	defaultHandshakeTimeout = 3 * time.Second
	readBatch               = 16
)

var _ transport.FrameCodec = (*wire.Codec)(nil)

type Option func(*Server)

func New(opts ...Option) *Server {
	s := &Server{
		addr:             ":0",
		codec:            &wire.Codec{},
		flushInterval:    defaultFlushInterval,
		batchSize:        defaultBatchSize,
		readDeadline:     defaultReadDeadline,
		handshakeTimeout: defaultHandshakeTimeout,
		logger:           logging.L(),
		readyCh:          make(chan struct{}),
		conns:            make(map[*hub.Client]net.Conn),
	}
	for _, o := range opts {
		o(s)
	}
	if s.hub == nil {
		s.hub = hub.New()
	}
	if s.send == nil {
		s.send = func(can.Frame) error { return nil }
	}
	return s
}

func WithListenAddr(a string) Option          { return func(s *Server) { s.addr = a } }
func WithHub(h *hub.Hub) Option               { return func(s *Server) { s.hub = h } }
func WithCodec(c transport.FrameCodec) Option { return func(s *Server) { s.codec = c } }
func WithSend(fn SendFunc) Option             { return func(s *Server) { s.send = fn } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMaxClients(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}

func WithReadDeadline(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.readDeadline = d
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// Addr returns the configured address, or the bound one once Ready is closed.
func (s *Server) Addr() string          { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Serve listens and accepts clients until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		return wrap
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("tcp_listen", "addr", s.Addr())
	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(200 * time.Millisecond)
				continue
			}
			wrap := fmt.Errorf("%w: %v", ErrAccept, err)
			metrics.IncError(mapErrToMetric(wrap))
			return wrap
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.accept(ctx, conn)
		}()
	}
}

func (s *Server) accept(ctx context.Context, conn net.Conn) {
	s.totalAccepted.Add(1)
	l := s.logger.With("conn_id", s.nextConnID.Add(1), "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
	if s.maxClients > 0 && s.hub.Count() >= s.maxClients {
		s.totalRejected.Add(1)
		metrics.IncHubReject()
		l.Warn("client_reject_max", "max_clients", s.maxClients)
		_ = conn.Close()
		return
	}
	if err := wire.Handshake(ctx, conn, s.handshakeTimeout); err != nil {
		wrap := fmt.Errorf("%w: %v", ErrHandshake, err)
		metrics.IncError(mapErrToMetric(wrap))
		l.Warn("handshake_failed", "error", wrap)
		_ = conn.Close()
		return
	}
	cl := hub.NewClient(s.hub.OutBufSize)
	s.hub.Add(cl)
	s.connsMu.Lock()
	s.conns[cl] = conn
	s.connsMu.Unlock()
	l.Info("client_connected")
	s.startWriter(ctx.Done(), conn, cl, l)
	s.startReader(ctx.Done(), conn, cl, l)
}

func (s *Server) dropConn(cl *hub.Client) {
	s.connsMu.Lock()
	delete(s.conns, cl)
	s.connsMu.Unlock()
	s.hub.Remove(cl)
}

// Shutdown closes the listener and every client, then waits for the
// connection goroutines or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.connsMu.Lock()
	for cl, conn := range s.conns {
		_ = conn.Close()
		cl.Close()
	}
	s.connsMu.Unlock()
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
		s.logger.Info("shutdown_summary",
			"accepted", s.totalAccepted.Load(),
			"rejected", s.totalRejected.Load(),
			"backend_overflow", s.totalOverflow.Load(),
			"backend_errors", s.totalBackendErr.Load())
		return nil
	}
}
