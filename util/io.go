package util

import (
	"context"
	"errors"
	"io"
	"net"
)

// DefaultBufSize is the standard buffer size for network I/O (32 KiB).
const DefaultBufSize = 32 * 1024

// Pump copies src to dst until src reaches EOF, an error occurs, or ctx
// is cancelled.  conn is closed on cancellation so a blocked read or
// write returns.  Errors that only signal shutdown are swallowed.
func Pump(ctx context.Context, conn net.Conn, dst io.Writer, src io.Reader) (int64, error) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	buf := GetBuf()
	defer PutBuf(buf)

	n, err := io.CopyBuffer(dst, src, *buf)
	if ctx.Err() != nil || IsHarmless(err) {
		return n, nil
	}
	return n, err
}

// IsHarmless returns true for errors that are expected during shutdown.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
