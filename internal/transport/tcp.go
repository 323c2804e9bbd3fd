package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/globalbehavior/internal/behavior"
	"github.com/danmuck/globalbehavior/internal/protocol/frame"
	"github.com/danmuck/globalbehavior/internal/protocol/wire"
	"github.com/rs/zerolog"
)

var (
	ErrParentAddressRequired = errors.New("transport: parent address required")
	ErrSendQueueFull         = errors.New("transport: send queue full")
)

type tcpLink struct {
	id     behavior.ContextID
	origin string
	conn   net.Conn
	reader *bufio.Reader
	cfg    Config
	out    chan wire.Message
	done   chan struct{}

	nextID    atomic.Uint64
	closeOnce sync.Once
}

func newTCPLink(conn net.Conn, reader *bufio.Reader, peer Hello, cfg Config) (*tcpLink, error) {
	id, err := peer.Validate()
	if err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	l := &tcpLink{
		id:     id,
		origin: peer.Origin,
		conn:   conn,
		reader: reader,
		cfg:    cfg,
		out:    make(chan wire.Message, cfg.SendQueue),
		done:   make(chan struct{}),
	}
	l.nextID.Store(uint64(time.Now().UnixNano()))
	return l, nil
}

func (l *tcpLink) ID() behavior.ContextID { return l.id }

func (l *tcpLink) Origin() string { return l.origin }

// Send queues m for the link's writer and never blocks. A full queue means the
// peer has stalled.
func (l *tcpLink) Send(m wire.Message) error {
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
	}
	select {
	case l.out <- m:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (l *tcpLink) Close() error {
	err := ErrLinkClosed
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.conn.Close()
	})
	return err
}

// writeLoop drains the send queue until the link closes. A failed write
// closes the link, which ends its readLoop.
func (l *tcpLink) writeLoop() {
	for {
		select {
		case <-l.done:
			return
		case m := <-l.out:
			err := l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
			if err == nil {
				err = wire.WriteMessage(l.conn, l.nextID.Add(1), m, l.cfg.Limits)
			}
			if err != nil {
				_ = l.Close()
				return
			}
		}
	}
}

// readLoop delivers frames from l to a until the connection fails.
func (l *tcpLink) readLoop(a *Adapter) error {
	for {
		f, err := frame.ReadFrame(l.reader, l.cfg.Limits)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		a.Deliver(Inbound{From: l.id, Origin: l.origin, Payload: wire.FramePayload(f)})
	}
}

// handshake exchanges hellos. The accepting side reads first.
func handshake(conn net.Conn, a *Adapter, cfg Config, accept bool) (*tcpLink, error) {
	_ = conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout))
	reader := bufio.NewReaderSize(conn, maxHelloBytes)
	own := Hello{ContextID: a.Self().String(), Origin: a.Origin()}

	var peer Hello
	var err error
	if accept {
		if peer, err = ReadHello(reader); err != nil {
			return nil, err
		}
		if err = WriteHello(conn, own); err != nil {
			return nil, err
		}
	} else {
		if err = WriteHello(conn, own); err != nil {
			return nil, err
		}
		if peer, err = ReadHello(reader); err != nil {
			return nil, err
		}
	}
	link, err := newTCPLink(conn, reader, peer, cfg)
	if err != nil {
		return nil, err
	}
	if link.id == a.Self() {
		return nil, ErrSelfLink
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}
	go link.writeLoop()
	return link, nil
}

// Server accepts child contexts over TCP.
type Server struct {
	adapter *Adapter
	cfg     Config
	log     zerolog.Logger

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	active  atomic.Int64
}

func NewServer(a *Adapter, cfg Config) *Server {
	return &Server{
		adapter: a,
		cfg:     cfg.WithDefaults(),
		log:     a.log.With().Str("role", "listener").Logger(),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Serve runs the accept loop on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("transport.Server listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(conn)
	}
}

// ActiveChildren returns the number of connected TCP children.
func (s *Server) ActiveChildren() int {
	return int(s.active.Load())
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)
	remote := conn.RemoteAddr().String()

	link, err := handshake(conn, s.adapter, s.cfg, true)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", remote).Msg("transport.Server handshake failed")
		return
	}
	defer link.Close()
	s.adapter.AddChild(link)
	active := s.active.Add(1)
	s.log.Info().Str("child", link.id.Short()).Str("remote", remote).Int64("active_children", active).Msg("transport.Server child connected")
	defer func() {
		s.adapter.mu.Lock()
		s.adapter.removeChildLocked(link.id, link)
		s.adapter.mu.Unlock()
		remaining := s.active.Add(-1)
		s.log.Info().Str("child", link.id.Short()).Int64("active_children", remaining).Msg("transport.Server child disconnected")
	}()

	if err := link.readLoop(s.adapter); err != nil {
		s.log.Warn().Err(err).Str("child", link.id.Short()).Msg("transport.Server read failed")
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}

// ParentClient keeps this context attached to its parent over TCP.
type ParentClient struct {
	adapter *Adapter
	addr    string
	cfg     Config
	rng     *rand.Rand
	log     zerolog.Logger
}

func NewParentClient(a *Adapter, addr string, cfg Config) (*ParentClient, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, ErrParentAddressRequired
	}
	return &ParentClient{
		adapter: a,
		addr:    addr,
		cfg:     cfg.WithDefaults(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     a.log.With().Str("role", "parent-client").Str("parent_addr", addr).Logger(),
	}, nil
}

// Connect dials the parent and exchanges hellos, retrying with backoff up to
// MaxConnectAttempts (unbounded when <= 0).
func (c *ParentClient) Connect(ctx context.Context) (Link, error) {
	return c.connect(ctx)
}

func (c *ParentClient) connect(ctx context.Context) (*tcpLink, error) {
	var attempt int
	for {
		attempt++
		link, err := c.dialOnce(ctx)
		if err == nil {
			return link, nil
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("transport.ParentClient dial failed")
		if errors.Is(err, ErrSelfLink) || !c.shouldRetry(attempt) {
			return nil, err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (c *ParentClient) dialOnce(ctx context.Context) (*tcpLink, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, err
	}
	link, err := handshake(conn, c.adapter, c.cfg, false)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return link, nil
}

// Run attaches the parent link and re-dials whenever it drops, until ctx is done.
func (c *ParentClient) Run(ctx context.Context) error {
	for {
		link, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.adapter.SetParent(link)
		stop := context.AfterFunc(ctx, func() { _ = link.Close() })
		err = link.readLoop(c.adapter)
		stop()
		c.adapter.ClearParent(link)
		_ = link.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn().Err(err).Str("parent", link.id.Short()).Msg("transport.ParentClient link lost, reconnecting")
		if err := c.sleepBackoff(ctx, 1); err != nil {
			return nil
		}
	}
}

func (c *ParentClient) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}

func (c *ParentClient) sleepBackoff(ctx context.Context, attempt int) error {
	delay := NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
