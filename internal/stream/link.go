package stream

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// link is one publisher socket and the viewer sockets currently fed by
// it.  A link may exist with viewers but no publisher yet.
type link struct {
	user    string
	since   time.Time
	bytesIn atomic.Int64

	mu        sync.Mutex
	publisher net.Conn
	viewers   []net.Conn
	closed    bool
}

func newLink(user string) *link {
	return &link{user: user, since: time.Now()}
}

// adoptPublisher sets the publisher if the link has none and is open.
func (l *link) adoptPublisher(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.publisher != nil {
		return false
	}
	l.publisher = conn
	return true
}

func (l *link) addViewer(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.viewers = append(l.viewers, conn)
	return true
}

func (l *link) removeViewer(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, v := range l.viewers {
		if v == conn {
			l.viewers = append(l.viewers[:i], l.viewers[i+1:]...)
			return
		}
	}
}

func (l *link) viewerSnapshot() []net.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]net.Conn(nil), l.viewers...)
}

func (l *link) viewerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.viewers)
}

// close shuts every socket on the link.  It reports whether a
// publisher was attached the first time it is called.
func (l *link) close() bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.closed = true
	pub, viewers := l.publisher, l.viewers
	l.viewers = nil
	l.mu.Unlock()

	if pub != nil {
		pub.Close()
	}
	for _, v := range viewers {
		v.Close()
	}
	return pub != nil
}

func (l *link) info() LinkInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LinkInfo{
		User:       l.user,
		Publishing: l.publisher != nil,
		Viewers:    len(l.viewers),
		BytesIn:    l.bytesIn.Load(),
		Since:      l.since,
	}
}
