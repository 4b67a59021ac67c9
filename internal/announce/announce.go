// Package announce records which users are about to open a stream
// connection, and in what role.
//
// There is no correlation token on the stream port: the Nth stream
// connection accepted is bound to the oldest outstanding announcement.
// Two clients announcing at nearly the same time can therefore swap
// sockets.  Callers that need strict pairing must serialize their own
// announce-then-connect sequences.
package announce

import "sync"

// Queues holds the two FIFO announcement queues.  The zero value is
// ready to use.
type Queues struct {
	publishers fifo
	viewers    fifo
}

// New returns empty queues.
func New() *Queues { return &Queues{} }

// AnnouncePublisher records that user will connect a publisher stream.
func (q *Queues) AnnouncePublisher(user string) { q.publishers.push(user) }

// AnnounceViewer records that a viewer of target will connect a stream.
func (q *Queues) AnnounceViewer(target string) { q.viewers.push(target) }

// NextPublisher removes and returns the oldest publisher announcement.
func (q *Queues) NextPublisher() (string, bool) { return q.publishers.pop() }

// NextViewerTarget removes and returns the oldest viewer announcement.
func (q *Queues) NextViewerTarget() (string, bool) { return q.viewers.pop() }

// Pending returns copies of both queues, oldest first.
func (q *Queues) Pending() (publishers, viewers []string) {
	return q.publishers.snapshot(), q.viewers.snapshot()
}

type fifo struct {
	mu    sync.Mutex
	items []string
}

func (f *fifo) push(s string) {
	f.mu.Lock()
	f.items = append(f.items, s)
	f.mu.Unlock()
}

func (f *fifo) pop() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return "", false
	}
	s := f.items[0]
	f.items[0] = ""
	f.items = f.items[1:]
	if len(f.items) == 0 {
		f.items = nil
	}
	return s, true
}

func (f *fifo) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.items...)
}
