package transport

import (
	"context"
	"net"
	"time"

	"sharerelay/internal/errors"
	"sharerelay/internal/retry"
	"sharerelay/util"
)

// TCPDialer establishes plain TCP connections.
type TCPDialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration // 0 uses the net package default

	// NoDelay controls Nagle's algorithm on the dialled socket.  Stream
	// connections carry large chunks, control connections short lines.
	NoDelay bool
}

// Dial connects to address.  Failures come back as
// *errors.NetworkError so callers can tell refused dials apart.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, errors.Wrap("dial", address, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(d.NoDelay) //nolint:errcheck
	}
	return conn, nil
}

// RetryDialer re-dials through Backoff while the failure is retryable.
type RetryDialer struct {
	Dialer  Dialer
	Backoff *retry.Backoff
	Logger  *util.Logger
}

// Dial tries d.Dialer until it connects or the backoff gives up.
func (d *RetryDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	bo := d.Backoff
	if bo == nil {
		bo = retry.StreamBackoff()
	}
	var conn net.Conn
	err := bo.Do(ctx, func(ctx context.Context, attempt int) error {
		c, err := d.Dialer.Dial(ctx, network, address)
		if err != nil {
			if d.Logger != nil {
				d.Logger.Debugw("dial failed", "addr", address, "attempt", attempt, "error", err)
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
