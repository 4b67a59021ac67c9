// Package client speaks the relay's control protocol from the user's
// side and opens the matching stream connection.
//
// A Client owns one control connection.  A single reader goroutine
// dispatches every inbound line: replies to the request in flight go
// to its caller, SHARES lists are remembered, and everything else is
// delivered on Events.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"sharerelay/config"
	"sharerelay/internal/errors"
	"sharerelay/internal/protocol"
	"sharerelay/internal/retry"
	"sharerelay/internal/transport"
	"sharerelay/util"
)

// Options configures Dial.
type Options struct {
	ControlAddr string
	StreamAddr  string

	// ReplyTimeout bounds each request that waits for an answer.
	ReplyTimeout   time.Duration
	ConnectTimeout time.Duration

	// Dialer defaults to a transport.TCPDialer.
	Dialer        transport.Dialer
	StreamBackoff *retry.Backoff
	Logger        *util.Logger
}

// OptionsFrom builds Options from the client section of cfg.
func OptionsFrom(cfg *config.Config, logger *util.Logger) Options {
	return Options{
		ControlAddr:    cfg.ControlAddress(),
		StreamAddr:     cfg.StreamAddress(),
		ReplyTimeout:   cfg.Client.ReplyTimeout,
		ConnectTimeout: cfg.Client.ConnectTimeout,
		Logger:         logger,
	}
}

// waiter is the request in flight.
type waiter struct {
	match func(protocol.Line) bool
	ch    chan protocol.Line
}

// Client is a logged-in (or about to be) control connection.
type Client struct {
	opts Options
	conn net.Conn
	log  *util.Logger

	writeMu sync.Mutex
	reqMu   sync.Mutex // one request awaiting a reply at a time

	mu      sync.Mutex
	pending *waiter

	username atomic.Value // string
	shares   atomic.Pointer[[]string]
	attached atomic.Bool

	events chan protocol.Line
	done   chan struct{}
	err    error
}

// Dial connects to the control port and starts the reader.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = util.NopLogger()
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = config.DefaultReplyTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = &transport.TCPDialer{Timeout: opts.ConnectTimeout, NoDelay: true}
	}

	conn, err := opts.Dialer.Dial(ctx, "tcp", opts.ControlAddr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.ControlAddr, err)
	}

	c := &Client{
		opts:   opts,
		conn:   conn,
		log:    opts.Logger.Named("client").With("server", opts.ControlAddr),
		events: make(chan protocol.Line, 64),
		done:   make(chan struct{}),
	}
	c.username.Store("")
	go c.readLoop()
	return c, nil
}

// ── requests ─────────────────────────────────────────────────────────

// Login identifies this connection.  The server follows LOGIN_OK with
// the current share list, which LastShares picks up.
func (c *Client) Login(ctx context.Context, username string) error {
	reply, err := c.request(ctx, protocol.Format(protocol.CmdLogin, username), verbIn(protocol.ReplyLoginOK, protocol.ReplyLoginFailed))
	if err != nil {
		return err
	}
	if reply.Verb == protocol.ReplyLoginFailed {
		return rejected(protocol.CmdLogin, reply)
	}
	c.username.Store(username)
	c.log.Debugw("logged in", "user", username)
	return nil
}

// Username returns the name accepted by Login, or "".
func (c *Client) Username() string { return c.username.Load().(string) }

// Shares asks for the share list.
func (c *Client) Shares(ctx context.Context) ([]string, error) {
	reply, err := c.request(ctx, protocol.CmdGetShares, verbIn(protocol.ReplyShares))
	if err != nil {
		return nil, err
	}
	return protocol.ParseShares(reply.Rest), nil
}

// StartShare publishes this user's screen under secret.
func (c *Client) StartShare(ctx context.Context, secret string) error {
	reply, err := c.request(ctx, protocol.Format(protocol.CmdStartShare, secret), verbIn(protocol.ReplyShareStarted, protocol.ReplyShareFailed))
	if err != nil {
		return err
	}
	if reply.Verb == protocol.ReplyShareFailed {
		return rejected(protocol.CmdStartShare, reply)
	}
	return nil
}

// StopShare ends this user's share.
func (c *Client) StopShare(ctx context.Context) error {
	// A bare SHARE_STOPPED is the reply; SHARE_STOPPED <user> is a
	// notification about a share being watched.
	_, err := c.request(ctx, protocol.CmdStopShare, func(l protocol.Line) bool {
		return l.Verb == protocol.ReplyShareStopped && l.Rest == ""
	})
	return err
}

// View asks to watch target's share.
func (c *Client) View(ctx context.Context, target, secret string) error {
	reply, err := c.request(ctx, protocol.Format(protocol.CmdViewShare, target, secret), verbIn(protocol.ReplyViewAccepted, protocol.ReplyViewDenied))
	if err != nil {
		return err
	}
	if reply.Verb == protocol.ReplyViewDenied {
		return rejected(protocol.CmdViewShare, reply)
	}
	return nil
}

// LeaveView stops watching target.  The server does not reply.
func (c *Client) LeaveView(target string) error {
	return c.send(protocol.Format(protocol.CmdLeaveView, target))
}

// SendScreenData relays payload to this user's viewers over the
// control connection.  The server does not reply.
func (c *Client) SendScreenData(payload string) error {
	return c.send(protocol.Format(protocol.CmdScreenData, payload))
}

// ── state ────────────────────────────────────────────────────────────

// LastShares returns the most recent share list the server sent.
func (c *Client) LastShares() []string {
	if p := c.shares.Load(); p != nil {
		return append([]string(nil), (*p)...)
	}
	return nil
}

// Events delivers lines no request claimed: share list broadcasts,
// SHARE_STOPPED notices and SCREEN_DATA frames.  Lines are dropped if
// the channel is full.  It is closed when the connection ends.
func (c *Client) Events() <-chan protocol.Line { return c.events }

// Done is closed when the control connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended, once Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Close drops the control connection.  The server treats this as a
// disconnect: any share is stopped and viewers are notified.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

// ── stream ───────────────────────────────────────────────────────────

// OpenStream dials the stream port, retrying refused connections.
// Call it after StartShare or View succeeds so the server has already
// queued the matching announcement.
func (c *Client) OpenStream(ctx context.Context) (net.Conn, error) {
	d := &transport.RetryDialer{
		Dialer:  &transport.TCPDialer{Timeout: c.opts.ConnectTimeout},
		Backoff: c.opts.StreamBackoff,
		Logger:  c.log,
	}
	conn, err := d.Dial(ctx, "tcp", c.opts.StreamAddr)
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", c.opts.StreamAddr, err)
	}
	return conn, nil
}

// AttachStream marks the binary stream link as live.  While attached,
// SCREEN_DATA frames on the control connection are discarded.
func (c *Client) AttachStream() { c.attached.Store(true) }

// DetachStream reverts to delivering SCREEN_DATA frames on Events.
func (c *Client) DetachStream() { c.attached.Store(false) }

// ── internal ─────────────────────────────────────────────────────────

func verbIn(verbs ...string) func(protocol.Line) bool {
	return func(l protocol.Line) bool {
		for _, v := range verbs {
			if l.Verb == v {
				return true
			}
		}
		return false
	}
}

func rejected(cmd string, reply protocol.Line) error {
	return &errors.ProtocolError{Command: cmd, Reason: reply.Rest, Err: errors.SentinelFor(reply.Rest)}
}

func (c *Client) send(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		return errors.Wrap("write", c.opts.ControlAddr, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, line string, match func(protocol.Line) bool) (protocol.Line, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	w := &waiter{match: match, ch: make(chan protocol.Line, 1)}
	c.mu.Lock()
	c.pending = w
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.pending == w {
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	if err := c.send(line); err != nil {
		return protocol.Line{}, err
	}

	timer := time.NewTimer(c.opts.ReplyTimeout)
	defer timer.Stop()

	select {
	case reply := <-w.ch:
		return reply, nil
	case <-timer.C:
		return protocol.Line{}, fmt.Errorf("%s: %w after %v", protocol.Parse(line).Verb, errors.ErrTimeout, c.opts.ReplyTimeout)
	case <-ctx.Done():
		return protocol.Line{}, ctx.Err()
	case <-c.done:
		if c.err != nil {
			return protocol.Line{}, c.err
		}
		return protocol.Line{}, errors.ErrNotConnected
	}
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer close(c.done)

	r := bufio.NewReaderSize(c.conn, util.DefaultBufSize)
	for {
		raw, err := r.ReadString('\n')
		if len(raw) > 0 {
			c.dispatch(protocol.Parse(raw))
		}
		if err != nil {
			if !util.IsHarmless(err) {
				c.err = errors.Wrap("read", c.opts.ControlAddr, err)
			}
			c.log.Debugw("control connection closed", "error", err)
			return
		}
	}
}

func (c *Client) dispatch(l protocol.Line) {
	if l.Verb == "" {
		return
	}
	if l.Verb == protocol.ReplyShares {
		names := protocol.ParseShares(l.Rest)
		c.shares.Store(&names)
	}

	c.mu.Lock()
	w := c.pending
	if w != nil && w.match(l) {
		c.pending = nil
	} else {
		w = nil
	}
	c.mu.Unlock()
	if w != nil {
		w.ch <- l
		return
	}

	if l.Verb == protocol.ReplyScreenData && c.attached.Load() {
		return
	}
	select {
	case c.events <- l:
	default:
		c.log.Debugw("event dropped", "verb", l.Verb)
	}
}
