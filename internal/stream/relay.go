// Package stream implements the binary stream port.  Each accepted
// connection is bound to a role by popping the announcement queues,
// then publisher bytes are copied to every viewer of that publisher.
package stream

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"sharerelay/internal/metrics"
	"sharerelay/util"
)

// ChunkSize is the largest read taken from a publisher before it is
// fanned out.
const ChunkSize = 8 * 1024

var chunkPool = util.NewBufferPool(ChunkSize) //nolint:gochecknoglobals

// Queues supplies pending announcements, oldest first.
type Queues interface {
	NextPublisher() (string, bool)
	NextViewerTarget() (string, bool)
}

// Role is what a stream connection was bound to.
type Role int

const (
	RoleNone Role = iota
	RolePublisher
	RoleViewer
)

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleViewer:
		return "viewer"
	default:
		return "none"
	}
}

// Relay matches stream connections to announcements and forwards.
type Relay struct {
	Queues  Queues
	Logger  *util.Logger
	Metrics *metrics.Collector

	// ViewerWriteTimeout bounds each chunk written to a viewer; a
	// viewer that cannot keep up is dropped.  Zero disables it.
	ViewerWriteTimeout time.Duration
	// StatsInterval is how often a forwarding loop logs its rate at
	// debug level.  Zero means one second.
	StatsInterval time.Duration

	mu    sync.Mutex
	links map[string]*link
}

// NewRelay creates a relay fed by q.
func NewRelay(q Queues, logger *util.Logger, m *metrics.Collector) *Relay {
	if logger == nil {
		logger = util.NopLogger()
	}
	return &Relay{
		Queues:  q,
		Logger:  logger.Named("stream"),
		Metrics: m,
		links:   make(map[string]*link),
	}
}

// Admit binds conn to a role.  It must be called in accept order, since
// that order is the only thing pairing sockets with announcements.  For
// a publisher it returns the forwarding loop to run; otherwise nil.
// Unmatched connections are closed.
func (r *Relay) Admit(ctx context.Context, conn net.Conn) func() error {
	log := r.Logger.With("remote", conn.RemoteAddr().String())

	if user, ok := r.Queues.NextPublisher(); ok {
		l, replaced := r.attachPublisher(user, conn)
		if replaced != nil {
			log.Infow("publisher replaced, closing previous stream", "user", user)
			r.teardown(replaced)
		}
		r.Metrics.PublisherMatched()
		r.Metrics.LinkOpened()
		log.Infow("publisher stream bound", "user", user)
		return func() error { return r.forward(ctx, l) }
	}

	if target, ok := r.Queues.NextViewerTarget(); ok {
		r.attachViewer(target, conn)
		r.Metrics.ViewerMatched()
		log.Infow("viewer stream bound", "target", target)
		return nil
	}

	r.Metrics.StreamUnmatched()
	log.Warnw("stream connection without announcement, closing")
	conn.Close()
	return nil
}

// ServeConn admits conn and, for a publisher, forwards until the
// publisher disconnects.
func (r *Relay) ServeConn(ctx context.Context, conn net.Conn) error {
	if serve := r.Admit(ctx, conn); serve != nil {
		return serve()
	}
	return nil
}

// Close tears down every link.
func (r *Relay) Close() error {
	r.mu.Lock()
	links := make([]*link, 0, len(r.links))
	for _, l := range r.links {
		links = append(links, l)
	}
	r.mu.Unlock()

	for _, l := range links {
		r.teardown(l)
	}
	return nil
}

// LinkInfo describes one publisher's relay state.
type LinkInfo struct {
	User       string    `json:"user"`
	Publishing bool      `json:"publishing"`
	Viewers    int       `json:"viewers"`
	BytesIn    int64     `json:"bytes_in"`
	Since      time.Time `json:"since"`
}

// Links returns the current relay state ordered by user.
func (r *Relay) Links() []LinkInfo {
	r.mu.Lock()
	links := make([]*link, 0, len(r.links))
	for _, l := range r.links {
		links = append(links, l)
	}
	r.mu.Unlock()

	out := make([]LinkInfo, 0, len(links))
	for _, l := range links {
		out = append(out, l.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

// ── binding ──────────────────────────────────────────────────────────

// attachPublisher binds conn as user's publisher.  Viewers already
// waiting for user are kept.  If another publisher is still attached
// its link is replaced and returned for the caller to tear down.
func (r *Relay) attachPublisher(user string, conn net.Conn) (l, replaced *link) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.links[user]; ok {
		if cur.adoptPublisher(conn) {
			return cur, nil
		}
		replaced = cur
	}
	l = newLink(user)
	l.adoptPublisher(conn)
	r.links[user] = l
	return l, replaced
}

func (r *Relay) attachViewer(target string, conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.links[target]; ok && l.addViewer(conn) {
		return
	}
	l := newLink(target)
	l.addViewer(conn)
	r.links[target] = l
}

// teardown closes l and forgets it, unless a newer link has already
// taken its place.
func (r *Relay) teardown(l *link) {
	wasPublishing := l.close()

	r.mu.Lock()
	if r.links[l.user] == l {
		delete(r.links, l.user)
	}
	r.mu.Unlock()

	if wasPublishing {
		r.Metrics.LinkClosed()
	}
}

// ── forwarding ───────────────────────────────────────────────────────

func (r *Relay) forward(ctx context.Context, l *link) error {
	defer r.teardown(l)

	stop := context.AfterFunc(ctx, func() { l.publisher.Close() }) //nolint:errcheck
	defer stop()

	log := r.Logger.With("user", l.user)
	interval := r.StatsInterval
	if interval <= 0 {
		interval = time.Second
	}

	buf := chunkPool.Get()
	defer chunkPool.Put(buf)

	var (
		nchunks   int
		fanout    time.Duration
		lastStats = time.Now()
	)
	for {
		n, err := l.publisher.Read(*buf)
		if n > 0 {
			r.Metrics.BytesReceived(int64(n))
			l.bytesIn.Add(int64(n))

			start := time.Now()
			r.broadcast(l, (*buf)[:n], log)
			fanout += time.Since(start)
			nchunks++

			if since := time.Since(lastStats); since >= interval {
				log.Debugw("forwarding",
					"chunks_per_sec", float64(nchunks)/since.Seconds(),
					"viewers", l.viewerCount(),
					"fanout_time", fanout,
				)
				nchunks, fanout, lastStats = 0, 0, time.Now()
			}
		}
		if err != nil {
			if util.IsHarmless(err) || ctx.Err() != nil {
				log.Infow("publisher stream ended")
				return nil
			}
			log.Warnw("publisher stream failed", "error", err)
			r.Metrics.RecordError(err.Error())
			return err
		}
	}
}

// broadcast writes chunk to each viewer in turn.  A viewer whose write
// fails is closed and removed; the others are unaffected.  With no
// viewers the chunk is dropped.
func (r *Relay) broadcast(l *link, chunk []byte, log *util.Logger) {
	for _, v := range l.viewerSnapshot() {
		if r.ViewerWriteTimeout > 0 {
			v.SetWriteDeadline(time.Now().Add(r.ViewerWriteTimeout)) //nolint:errcheck
		}
		n, err := v.Write(chunk)
		r.Metrics.BytesSent(int64(n))
		if err != nil {
			l.removeViewer(v)
			v.Close()
			r.Metrics.ViewerDropped()
			log.Infow("viewer stream dropped", "remote", v.RemoteAddr().String(), "error", err)
		}
	}
}
