package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"sharerelay/client"
	"sharerelay/config"
	"sharerelay/internal/directory"
	"sharerelay/internal/protocol"
	"sharerelay/util"
)

// stdio lets tests replace the process streams.
type stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
}

func (s stdio) stdin() io.Reader {
	if s.Stdin != nil {
		return s.Stdin
	}
	return os.Stdin
}

func (s stdio) stdout() io.Writer {
	if s.Stdout != nil {
		return s.Stdout
	}
	return os.Stdout
}

// ── shares ───────────────────────────────────────────────────────────

// SharesMode prints the active shares, one per line.
type SharesMode struct {
	stdio
	Options  client.Options
	Username string // optional; GET_SHARES works without logging in
	Logger   *util.Logger
}

func (m *SharesMode) Run(ctx context.Context) error {
	c, err := client.Dial(ctx, m.Options)
	if err != nil {
		return err
	}
	defer c.Close()

	if m.Username != "" {
		if err := c.Login(ctx, m.Username); err != nil {
			return err
		}
	}
	names, err := c.Shares(ctx)
	if err != nil {
		return err
	}
	m.Logger.Debugw("share list received", "count", len(names))
	for _, n := range names {
		fmt.Fprintln(m.stdout(), n)
	}
	return nil
}

// ── share ────────────────────────────────────────────────────────────

// ShareMode publishes stdin as the user's screen stream.  It stops the
// share when stdin ends or ctx is cancelled.
type ShareMode struct {
	stdio
	Options  client.Options
	Username string
	Secret   string
	Logger   *util.Logger
}

func (m *ShareMode) Run(ctx context.Context) error {
	c, err := client.Dial(ctx, m.Options)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Login(ctx, m.Username); err != nil {
		return err
	}
	if err := c.StartShare(ctx, m.Secret); err != nil {
		return err
	}
	m.Logger.Infow("share started", "user", m.Username)

	conn, err := c.OpenStream(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Losing the control connection ends the share server-side.
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.Done():
			cancel()
		case <-pumpCtx.Done():
		}
	}()

	n, err := util.Pump(pumpCtx, conn, conn, m.stdin())
	m.Logger.Infow("stream finished", "bytes", n)
	// Closing the stream first lets the relay flush what it has read
	// to viewers before they hear SHARE_STOPPED.
	conn.Close()
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	select {
	case <-c.Done():
		return fmt.Errorf("control connection lost: %w", c.Err())
	default:
	}
	if ctx.Err() != nil {
		return nil
	}
	return c.StopShare(context.WithoutCancel(ctx))
}

// ── view ─────────────────────────────────────────────────────────────

// ViewMode writes target's stream to stdout until the share stops.
type ViewMode struct {
	stdio
	Options  client.Options
	Username string
	Target   string
	Secret   string
	Logger   *util.Logger

	// DrainGrace is how long the stream may keep flowing after
	// SHARE_STOPPED arrives.  The relay normally closes it sooner.
	DrainGrace time.Duration
}

func (m *ViewMode) Run(ctx context.Context) error {
	c, err := client.Dial(ctx, m.Options)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Login(ctx, m.Username); err != nil {
		return err
	}
	if err := c.View(ctx, m.Target, m.Secret); err != nil {
		return err
	}

	conn, err := c.OpenStream(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.AttachStream()
	m.Logger.Infow("viewing", "target", m.Target)

	grace := m.DrainGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		for l := range c.Events() {
			if l.Verb == protocol.ReplyShareStopped && l.Rest == m.Target {
				close(stopped)
				time.AfterFunc(grace, cancel)
				return
			}
		}
		cancel()
	}()

	n, err := util.Pump(pumpCtx, conn, m.stdout(), conn)
	m.Logger.Infow("stream finished", "bytes", n)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	select {
	case <-stopped:
		m.Logger.Infow("share stopped", "target", m.Target)
	default:
		c.LeaveView(m.Target) //nolint:errcheck
	}
	return nil
}

// ── invite ───────────────────────────────────────────────────────────

// InviteMode issues an invitation code straight into the configured
// directory store.
type InviteMode struct {
	stdio
	Directory config.DirectoryConfig
	Username  string
	Logger    *util.Logger
}

func (m *InviteMode) Run(ctx context.Context) error {
	store, err := directory.Open(ctx, m.Directory, m.Logger)
	if err != nil {
		return err
	}
	svc := directory.NewService(store, m.Directory.InviteSeed, m.Logger)
	defer svc.Close()

	inv, err := svc.Invite(ctx, m.Username, "")
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "user:  %s\n", inv.Username)
	fmt.Fprintf(&b, "code:  %s\n", inv.Code)
	if inv.Seeded {
		fmt.Fprintf(&b, "plain: %s\n", inv.Plain)
	}
	_, err = io.WriteString(m.stdout(), b.String())
	return err
}
