// Package server runs the daemon's accept loop, periodic reaper, and
// signal-triggered shutdown.
package server

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jlowzow/amux/internal/connhandler"
	"github.com/jlowzow/amux/internal/registry"
)

// Config holds the supervisor's tunable intervals.
type Config struct {
	SocketPath   string
	PidPath      string
	ReapInterval time.Duration
}

// Supervisor owns the control-socket listener, the session registry, and
// the background reaper.
type Supervisor struct {
	cfg Config
	log *logrus.Logger

	reg      *registry.Registry
	listener net.Listener

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New builds a Supervisor bound to cfg.SocketPath. The listener is not yet
// accepting connections until Run is called.
func New(cfg Config, log *logrus.Logger) (*Supervisor, error) {
	_ = os.Remove(cfg.SocketPath)

	l, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		cfg:        cfg,
		log:        log,
		reg:        registry.New(log),
		listener:   l,
		shutdownCh: make(chan struct{}),
	}, nil
}

// Run blocks, accepting connections and reaping dead sessions, until a
// shutdown is requested by a client (KillServer) or by SIGTERM/SIGHUP, at
// which point it kills every session, closes the listener, and returns.
func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	handler := &connhandler.Handler{
		Registry: s.reg,
		Log:      s.log,
		Shutdown: s.requestShutdown,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.acceptLoop(handler)
	}()

	reapTicker := time.NewTicker(s.cfg.ReapInterval)
	defer reapTicker.Stop()

	for {
		select {
		case <-reapTicker.C:
			s.reg.ReapDead()

		case sig := <-sigCh:
			if s.log != nil {
				s.log.WithField("signal", sig.String()).Info("received signal, shutting down")
			}
			s.shutdown()
			wg.Wait()
			return

		case <-s.shutdownCh:
			s.shutdown()
			wg.Wait()
			return

		case <-ctx.Done():
			s.shutdown()
			wg.Wait()
			return
		}
	}
}

func (s *Supervisor) acceptLoop(handler *connhandler.Handler) {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		go handler.Handle(nc)
	}
}

func (s *Supervisor) requestShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

func (s *Supervisor) shutdown() {
	killed := s.reg.KillAll()
	if s.log != nil && killed > 0 {
		s.log.WithField("count", killed).Info("killed remaining sessions on shutdown")
	}
	s.listener.Close()
	_ = os.Remove(s.cfg.SocketPath)
	if s.cfg.PidPath != "" {
		_ = os.Remove(s.cfg.PidPath)
	}
}
