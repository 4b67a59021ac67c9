// Package registry holds the relay's shared session state: which
// username maps to which control session, which users are sharing,
// and who is watching each share.
//
// One Registry is built per server and passed to every handler.  All
// methods are safe for concurrent use; there is no registry-wide lock.
package registry

import (
	"sort"
	"sync"

	"sharerelay/internal/errors"
	"sharerelay/internal/metrics"
	"sharerelay/util"
)

// Peer is a control session as seen by the registry.  Peers are
// compared by identity, so implementations must be pointer types.
type Peer interface {
	Username() string
	Send(line string) error
}

// Registry is the server-wide session and share state.
type Registry struct {
	sessions *shardMap[Peer]
	shares   *shardMap[*Share]

	subsMu sync.Mutex
	subs   map[chan []string]struct{}

	logger  *util.Logger
	metrics *metrics.Collector
}

// New creates an empty registry.  m may be nil.
func New(logger *util.Logger, m *metrics.Collector) *Registry {
	if logger == nil {
		logger = util.NopLogger()
	}
	return &Registry{
		sessions: newShardMap[Peer](),
		shares:   newShardMap[*Share](),
		subs:     make(map[chan []string]struct{}),
		logger:   logger,
		metrics:  m,
	}
}

// ── Sessions ─────────────────────────────────────────────────────────

// Register maps p's username to p.  A session already holding the name
// is displaced and returned.
func (r *Registry) Register(p Peer) Peer {
	prev, ok := r.sessions.Swap(p.Username(), p)
	if !ok || prev == p {
		return nil
	}
	r.logger.Infow("username taken over by new session", "user", p.Username())
	return prev
}

// Unregister removes p's username mapping if it still points at p.
func (r *Registry) Unregister(p Peer) bool {
	_, ok := r.sessions.DeleteIf(p.Username(), func(cur Peer) bool { return cur == p })
	return ok
}

// Session looks up the live session for username.
func (r *Registry) Session(username string) (Peer, bool) {
	return r.sessions.Get(username)
}

// SessionCount returns the number of logged-in usernames.
func (r *Registry) SessionCount() int { return r.sessions.Len() }

// ── Shares ───────────────────────────────────────────────────────────

// StartShare creates a share owned by p with an empty viewer set.  A
// share already registered under the same username is closed and
// returned together with the viewers it had.
func (r *Registry) StartShare(p Peer, secret string) (*Share, []Peer) {
	prev, ok := r.shares.Swap(p.Username(), newShare(p, secret))
	if !ok {
		return nil, nil
	}
	return prev, prev.close()
}

// StopShare removes the share owned by p.  It reports the viewers that
// were watching; ok is false when p was not sharing.
func (r *Registry) StopShare(p Peer) (viewers []Peer, ok bool) {
	s, ok := r.shares.DeleteIf(p.Username(), func(s *Share) bool { return s.OwnedBy(p) })
	if !ok {
		return nil, false
	}
	return s.close(), true
}

// Share looks up the active share of username.
func (r *Registry) Share(username string) (*Share, bool) {
	return r.shares.Get(username)
}

// SharingBy returns p's share, or nil if p is not the current owner.
func (r *Registry) SharingBy(p Peer) *Share {
	s, ok := r.shares.Get(p.Username())
	if !ok || !s.OwnedBy(p) {
		return nil
	}
	return s
}

// Shares returns a snapshot of every active share ordered by owner.
func (r *Registry) Shares() []*Share {
	out := r.shares.Values()
	sort.Slice(out, func(i, j int) bool { return out[i].Owner() < out[j].Owner() })
	return out
}

// ShareNames returns the sharing usernames, sorted.
func (r *Registry) ShareNames() []string {
	names := r.shares.Keys()
	sort.Strings(names)
	return names
}

// ── Viewers ──────────────────────────────────────────────────────────

// AddViewer admits p to target's share if secret matches exactly.
// Nothing changes on failure.
func (r *Registry) AddViewer(target, secret string, p Peer) error {
	s, ok := r.shares.Get(target)
	if !ok {
		return errors.ErrNoShare
	}
	if !s.Admits(secret) {
		return errors.ErrSecretMismatch
	}
	if err := s.AddViewer(p); err != nil {
		// Lost a race with STOP_SHARE.
		return errors.ErrNoShare
	}
	return nil
}

// RemoveViewer drops p from target's share.
func (r *Registry) RemoveViewer(target string, p Peer) bool {
	s, ok := r.shares.Get(target)
	if !ok {
		return false
	}
	return s.RemoveViewer(p)
}

// RemoveViewerEverywhere drops p from every share it watches and
// returns the owners it was removed from.
func (r *Registry) RemoveViewerEverywhere(p Peer) []string {
	var owners []string
	for _, s := range r.shares.Values() {
		if s.RemoveViewer(p) {
			owners = append(owners, s.Owner())
		}
	}
	sort.Strings(owners)
	return owners
}

// ── Broadcast ────────────────────────────────────────────────────────

// BroadcastShareList computes the share list once, renders it with
// render, and writes the line to every registered session.  Individual
// write failures are logged and counted but never stop the broadcast.
// Subscribers receive the same list.
func (r *Registry) BroadcastShareList(render func(names []string) string) (sent, failed int) {
	names := r.ShareNames()
	line := render(names)

	for _, p := range r.sessions.Values() {
		if err := p.Send(line); err != nil {
			failed++
			r.logger.Warnw("share list broadcast failed", "user", p.Username(), "error", err)
			continue
		}
		sent++
	}
	r.metrics.ShareListBroadcast()
	r.publish(names)
	return sent, failed
}

// Subscribe returns a channel that receives the share list after every
// broadcast.  Slow subscribers miss updates rather than block.  Call
// cancel to stop receiving.
func (r *Registry) Subscribe() (<-chan []string, func()) {
	ch := make(chan []string, 8)
	r.subsMu.Lock()
	r.subs[ch] = struct{}{}
	r.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.subsMu.Lock()
			delete(r.subs, ch)
			r.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (r *Registry) publish(names []string) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for ch := range r.subs {
		cp := append([]string(nil), names...)
		select {
		case ch <- cp:
		default:
		}
	}
}
