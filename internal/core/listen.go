package core

import (
	"context"
	"fmt"
	"net"
	"sync"

	"sharerelay/util"
)

// Handler serves one accepted connection until it is done.
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// Admitter is implemented by handlers whose connections must be
// classified in strict accept order.  Admit runs on the accept
// goroutine; the function it returns, if any, runs on its own.
type Admitter interface {
	Admit(ctx context.Context, conn net.Conn) func() error
}

// Listener accepts TCP connections on Address and hands each one to
// Handler, or to Admitter when set.
type Listener struct {
	Name     string
	Address  string
	Handler  Handler
	Admitter Admitter
	Logger   *util.Logger

	wg sync.WaitGroup
}

// Listen binds the address.  Binding is the only fatal server error,
// so callers bind every port before serving any of them.
func (l *Listener) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", l.Address)
	if err != nil {
		return nil, fmt.Errorf("%s: listen on %s: %w", l.Name, l.Address, err)
	}
	return ln, nil
}

// Run binds and serves.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := l.Listen()
	if err != nil {
		return err
	}
	return l.Serve(ctx, ln)
}

// Serve accepts until ctx is cancelled, then waits for in-flight
// connections to finish.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	defer l.wg.Wait()
	defer ln.Close()

	l.Logger.Infow("listening", "listener", l.Name, "addr", ln.Addr().String())

	// Shut the listener down when the context expires.
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("%s: accept: %w", l.Name, err)
			}
		}

		l.Logger.Debugw("connection accepted", "listener", l.Name, "remote", conn.RemoteAddr().String())

		if l.Admitter != nil {
			if run := l.Admitter.Admit(ctx, conn); run != nil {
				l.spawn(run)
			}
			continue
		}
		l.spawn(func() error { return l.Handler.ServeConn(ctx, conn) })
	}
}

func (l *Listener) spawn(fn func() error) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := fn(); err != nil {
			l.Logger.Debugw("connection ended with error", "listener", l.Name, "error", err)
		}
	}()
}
