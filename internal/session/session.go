// Package session represents one control connection: the socket, the
// username it has claimed, and a writer that serializes every line sent
// to it.
//
// Lines may be written from several goroutines at once (the session's
// own command loop, share-list broadcasts, SHARE_STOPPED notices from
// other sessions), so Send is the only way to write to the socket.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"sharerelay/internal/errors"
	"sharerelay/util"
)

// Session encapsulates the runtime state of one control connection.
type Session struct {
	ID     string
	Conn   net.Conn
	Logger *util.Logger

	// WriteTimeout bounds each Send; zero disables it.
	WriteTimeout time.Duration

	writeMu sync.Mutex

	mu       sync.RWMutex
	username string
	closed   bool
}

// New creates a Session bound to conn.  The logger is scoped with the
// session id and remote address.
func New(conn net.Conn, logger *util.Logger) *Session {
	if logger == nil {
		logger = util.NopLogger()
	}
	id := uuid.NewString()
	return &Session{
		ID:     id,
		Conn:   conn,
		Logger: logger.With("session", id[:8], "remote", conn.RemoteAddr().String()),
	}
}

// Username returns the bound username, or "" before LOGIN.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Authenticated reports whether a username has been bound.
func (s *Session) Authenticated() bool { return s.Username() != "" }

// Bind claims username for the lifetime of the connection.  Binding the
// same name again is allowed; a different name is refused.
func (s *Session) Bind(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.username != "" && s.username != username {
		return errors.ErrAlreadyLoggedIn
	}
	s.username = username
	return nil
}

// Send writes one protocol line, appending the newline.
func (s *Session) Send(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return errors.ErrNotConnected
	}
	if s.WriteTimeout > 0 {
		s.Conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout)) //nolint:errcheck
	}
	if _, err := s.Conn.Write([]byte(line + "\n")); err != nil {
		return errors.Wrap("write", s.Conn.RemoteAddr().String(), err)
	}
	return nil
}

// Close closes the underlying connection.  It is safe to call more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Conn.Close()
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
