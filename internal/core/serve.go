package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"sync"

	"sharerelay/config"
	"sharerelay/internal/admin"
	"sharerelay/internal/announce"
	"sharerelay/internal/control"
	"sharerelay/internal/directory"
	"sharerelay/internal/metrics"
	"sharerelay/internal/registry"
	"sharerelay/internal/stream"
	"sharerelay/util"
)

// ServeMode runs the relay: the control port, the stream port and,
// unless disabled, the admin HTTP server.
type ServeMode struct {
	Config  *config.Config
	Logger  *util.Logger
	Metrics *metrics.Collector

	// Ready, when set, receives the bound addresses once every port is
	// listening.
	Ready func(control, stream, admin net.Addr)
}

// Run binds every port first; a bind failure is returned before
// anything is served.  Run returns once ctx is cancelled and all
// servers have drained.
func (m *ServeMode) Run(ctx context.Context) error {
	cfg := m.Config
	if m.Metrics == nil {
		m.Metrics = metrics.New()
	}

	reg := registry.New(m.Logger, m.Metrics)
	queues := announce.New()

	ctrl := control.NewServer(reg, queues, m.Logger, m.Metrics)
	ctrl.IdleTimeout = cfg.Server.IdleTimeout
	ctrl.WriteTimeout = cfg.Server.WriteTimeout

	relay := stream.NewRelay(queues, m.Logger, m.Metrics)
	relay.ViewerWriteTimeout = cfg.Server.ViewerWriteTimeout
	defer relay.Close()

	ctrlL := &Listener{Name: "control", Address: cfg.Server.ControlAddr, Handler: ctrl, Logger: m.Logger}
	streamL := &Listener{Name: "stream", Address: cfg.Server.StreamAddr, Admitter: relay, Logger: m.Logger}

	ctrlLn, err := ctrlL.Listen()
	if err != nil {
		return err
	}
	streamLn, err := streamL.Listen()
	if err != nil {
		ctrlLn.Close()
		return err
	}

	var (
		adminSrv *admin.Server
		adminLn  net.Listener
		dir      *directory.Service
	)
	if cfg.Admin.Addr != "" {
		store, err := directory.Open(ctx, cfg.Directory, m.Logger)
		if err != nil {
			ctrlLn.Close()
			streamLn.Close()
			return fmt.Errorf("open directory: %w", err)
		}
		dir = directory.NewService(store, cfg.Directory.InviteSeed, m.Logger)
		defer dir.Close()

		adminLn, err = net.Listen("tcp", cfg.Admin.Addr)
		if err != nil {
			ctrlLn.Close()
			streamLn.Close()
			return fmt.Errorf("admin: listen on %s: %w", cfg.Admin.Addr, err)
		}
		adminSrv = admin.New(reg, relay, dir, m.Metrics, cfg.Admin.RateLimit, m.Logger)
	}

	if m.Ready != nil {
		var a net.Addr
		if adminLn != nil {
			a = adminLn.Addr()
		}
		m.Ready(ctrlLn.Addr(), streamLn.Addr(), a)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				m.Logger.Errorw("server stopped", "server", name, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				cancel()
			}
		}()
	}

	run("control", func() error { return ctrlL.Serve(ctx, ctrlLn) })
	run("stream", func() error { return streamL.Serve(ctx, streamLn) })
	if adminSrv != nil {
		run("admin", func() error { return adminSrv.Serve(ctx, adminLn) })
	}
	if cfg.Watch && cfg.ConfigFile != "" {
		run("config-watch", func() error {
			return config.Watch(ctx, cfg.ConfigFile, m.Logger, func(next *config.Config) {
				m.Logger.SetVerbosity(next.Log.Verbose)
				m.Logger.Infow("log level updated", "level", m.Logger.Level().String())
			})
		})
	}

	m.Logger.Infow("relay started",
		"control", ctrlLn.Addr().String(),
		"stream", streamLn.Addr().String(),
		"admin", cfg.Admin.Addr,
	)

	<-ctx.Done()
	m.Logger.Infow("shutting down")
	relay.Close()
	wg.Wait()
	m.Logger.Infow("relay stopped", "sessions_total", m.Metrics.TotalSessions())
	return stderrors.Join(errs...)
}
