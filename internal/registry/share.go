package registry

import (
	"sort"
	"sync"
	"time"

	"sharerelay/internal/errors"
)

// Share is one active screen share: its owning session, the secret a
// viewer must present, and the viewers admitted so far.
type Share struct {
	owner   Peer
	secret  string
	started time.Time

	mu      sync.RWMutex
	viewers map[string]Peer
	closed  bool
}

func newShare(owner Peer, secret string) *Share {
	return &Share{
		owner:   owner,
		secret:  secret,
		started: time.Now(),
		viewers: make(map[string]Peer),
	}
}

// Owner returns the sharing username.
func (s *Share) Owner() string { return s.owner.Username() }

// OwnedBy reports whether p is the session that started the share.
func (s *Share) OwnedBy(p Peer) bool { return s.owner == p }

// Started returns when the share began.
func (s *Share) Started() time.Time { return s.started }

// Admits reports whether secret matches exactly.
func (s *Share) Admits(secret string) bool { return s.secret == secret }

// AddViewer admits p, replacing any earlier session with the same
// username.
func (s *Share) AddViewer(p Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrShareClosed
	}
	s.viewers[p.Username()] = p
	return nil
}

// RemoveViewer drops p if it is still the viewer registered under its
// username.
func (s *Share) RemoveViewer(p Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := p.Username()
	if cur, ok := s.viewers[name]; ok && cur == p {
		delete(s.viewers, name)
		return true
	}
	return false
}

// HasViewer reports whether p is currently admitted.
func (s *Share) HasViewer(p Peer) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.viewers[p.Username()]
	return ok && cur == p
}

// Viewers returns a snapshot of the admitted sessions.
func (s *Share) Viewers() []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Peer, 0, len(s.viewers))
	for _, v := range s.viewers {
		out = append(out, v)
	}
	return out
}

// ViewerNames returns the admitted usernames, sorted.
func (s *Share) ViewerNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.viewers))
	for name := range s.viewers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// close marks the share closed and returns the viewers it had.
func (s *Share) close() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	out := make([]Peer, 0, len(s.viewers))
	for _, v := range s.viewers {
		out = append(out, v)
	}
	s.viewers = make(map[string]Peer)
	return out
}
