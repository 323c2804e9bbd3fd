package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/globalbehavior/internal/config"
	"github.com/danmuck/globalbehavior/internal/host"
	"github.com/danmuck/globalbehavior/internal/server"
	"github.com/danmuck/globalbehavior/internal/transport"
	"github.com/danmuck/globalbehavior/internal/window"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNotBootstrapped = errors.New("node: service not bootstrapped")

// Service owns the runtime, context and listeners of one node.
type Service struct {
	cfg config.NodeConfig
	log zerolog.Logger

	runtime *host.Runtime
	win     *window.Context
	admin   *server.Admin
	peers   *transport.Server

	mu        sync.Mutex
	peerAddr  net.Addr
	adminAddr net.Addr
	ready     chan struct{}
	readyOnce sync.Once
}

func NewService(cfg config.NodeConfig) *Service {
	return &Service{
		cfg:   cfg,
		log:   log.With().Str("component", "node").Logger(),
		ready: make(chan struct{}),
	}
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.bootstrap(); err != nil {
		return err
	}
	return s.serve(ctx)
}

func (s *Service) Runtime() *host.Runtime { return s.runtime }

func (s *Service) Window() *window.Context { return s.win }

func (s *Service) Admin() *server.Admin { return s.admin }

// Ready is closed once every configured listener is bound.
func (s *Service) Ready() <-chan struct{} { return s.ready }

// PeerAddr is the bound relay listener address, or nil.
func (s *Service) PeerAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerAddr
}

// AdminAddr is the bound admin listener address, or nil.
func (s *Service) AdminAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminAddr
}

func (s *Service) bootstrap() error {
	if err := config.ValidateNodeConfig(s.cfg); err != nil {
		return err
	}
	id, err := s.cfg.ContextID()
	if err != nil {
		return err
	}

	s.runtime = host.NewRuntime()
	for _, dc := range s.cfg.Documents {
		doc := s.runtime.Load(strings.TrimSpace(dc.ID))
		for _, name := range dc.Behaviors {
			doc.On(name, s.logFire)
		}
	}

	s.win = window.New(window.Config{
		ID:             id,
		Origin:         s.cfg.Origin,
		AllowedOrigins: s.cfg.AllowedOrigins,
		Host:           s.runtime,
	})
	s.log = s.log.With().Str("context", id.Short()).Logger()
	s.admin = server.New(id.String(), s.win, server.Options{
		CorsOrigins: s.cfg.CorsOrigins,
		Token:       s.cfg.AdminToken,
	})

	for _, tc := range s.cfg.Tickers {
		s.win.StartCustomBehaviorTicker(tc.Name, tc.Interval(), tc.Options())
	}

	snap := s.win.Snapshot()
	s.log.Info().
		Str("origin", snap.Origin).
		Int("documents", len(snap.Documents)).
		Int("tickers", len(snap.Tickers)).
		Strs("allowed_origins", snap.AllowedOrigins).
		Msg("node.Service.bootstrap ready")
	return nil
}

func (s *Service) logFire(doc *host.Document, name string) {
	s.log.Info().Str("document", doc.ID()).Str("behavior", name).Msg("behavior fired")
}

// serve drives the event loop and every configured listener until ctx is done.
func (s *Service) serve(ctx context.Context) error {
	if s.win == nil {
		return ErrNotBootstrapped
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() { _ = s.win.Close() }()

	heartbeat, err := s.cfg.HeartbeatInterval()
	if err != nil {
		return err
	}

	errs := make(chan error, 4)
	var wg sync.WaitGroup
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && ctx.Err() == nil {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	defer wg.Wait()
	defer cancel()

	spawn("loop", func() error { return s.win.Loop().Run(ctx) })

	if s.cfg.Listen != "" {
		ln, err := net.Listen("tcp", s.cfg.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
		}
		s.mu.Lock()
		s.peerAddr = ln.Addr()
		s.mu.Unlock()
		s.peers = transport.NewServer(s.win.Adapter(), s.cfg.TransportConfig())
		spawn("relay", func() error { return s.peers.Serve(ctx, ln) })
	}

	if s.cfg.AdminListen != "" {
		ln, err := net.Listen("tcp", s.cfg.AdminListen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.cfg.AdminListen, err)
		}
		s.mu.Lock()
		s.adminAddr = ln.Addr()
		s.mu.Unlock()
		spawn("admin", func() error { return s.admin.Serve(ctx, ln) })
	}

	if s.cfg.Parent != "" {
		client, err := transport.NewParentClient(s.win.Adapter(), s.cfg.Parent, s.cfg.TransportConfig())
		if err != nil {
			return err
		}
		spawn("parent", func() error { return client.Run(ctx) })
	}
	s.readyOnce.Do(func() { close(s.ready) })

	var beat <-chan time.Time
	if heartbeat > 0 {
		t := time.NewTicker(heartbeat)
		defer t.Stop()
		beat = t.C
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("node.Service.serve shutdown")
			return nil
		case err := <-errs:
			s.log.Error().Err(err).Msg("node.Service.serve failed")
			return err
		case <-beat:
			snap := s.win.Snapshot()
			tcpChildren := 0
			if s.peers != nil {
				tcpChildren = s.peers.ActiveChildren()
			}
			s.log.Info().
				Bool("has_parent", snap.HasParent).
				Int("children", len(snap.Children)).
				Int("tcp_children", tcpChildren).
				Int("tickers", len(snap.Tickers)).
				Uint64("tasks", s.win.Loop().Processed()).
				Msg("node.Service.heartbeat")
		}
	}
}
