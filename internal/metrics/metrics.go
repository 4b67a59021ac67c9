// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a relay server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for the control and stream ports.
// A nil Collector is safe to use — all methods become no-ops.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	commandsTotal  atomic.Int64
	rejectedTotal  atomic.Int64
	broadcasts     atomic.Int64

	publishersMatched atomic.Int64
	viewersMatched    atomic.Int64
	unmatched         atomic.Int64
	linksActive       atomic.Int64
	viewerDrops       atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	errorsTotal       atomic.Int64

	mu              sync.RWMutex
	startTime       time.Time
	lastHealthCheck time.Time
	lastError       time.Time
	lastErrorMsg    string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Control metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total control-session
// counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active control-session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of open control sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime control-session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// CommandHandled records one control command; rejected is true when
// the reply was a *_FAILED or *_DENIED line.
func (c *Collector) CommandHandled(rejected bool) {
	if c == nil {
		return
	}
	c.commandsTotal.Add(1)
	if rejected {
		c.rejectedTotal.Add(1)
	}
}

// Commands returns the total number of commands handled.
func (c *Collector) Commands() int64 {
	if c == nil {
		return 0
	}
	return c.commandsTotal.Load()
}

// Rejected returns the number of commands answered with a failure.
func (c *Collector) Rejected() int64 {
	if c == nil {
		return 0
	}
	return c.rejectedTotal.Load()
}

// ShareListBroadcast records one share-list broadcast.
func (c *Collector) ShareListBroadcast() {
	if c == nil {
		return
	}
	c.broadcasts.Add(1)
}

// Broadcasts returns the number of share-list broadcasts.
func (c *Collector) Broadcasts() int64 {
	if c == nil {
		return 0
	}
	return c.broadcasts.Load()
}

// ── Stream metrics ───────────────────────────────────────────────────

// PublisherMatched records a stream connection bound as a publisher.
func (c *Collector) PublisherMatched() {
	if c == nil {
		return
	}
	c.publishersMatched.Add(1)
}

// ViewerMatched records a stream connection bound as a viewer.
func (c *Collector) ViewerMatched() {
	if c == nil {
		return
	}
	c.viewersMatched.Add(1)
}

// StreamUnmatched records a stream connection closed for lack of a
// pending announcement.
func (c *Collector) StreamUnmatched() {
	if c == nil {
		return
	}
	c.unmatched.Add(1)
}

// Unmatched returns the number of unmatched stream connections.
func (c *Collector) Unmatched() int64 {
	if c == nil {
		return 0
	}
	return c.unmatched.Load()
}

// LinkOpened increments the active stream-link gauge.
func (c *Collector) LinkOpened() {
	if c == nil {
		return
	}
	c.linksActive.Add(1)
}

// LinkClosed decrements the active stream-link gauge.
func (c *Collector) LinkClosed() {
	if c == nil {
		return
	}
	c.linksActive.Add(-1)
}

// ActiveLinks returns the number of publishers currently forwarding.
func (c *Collector) ActiveLinks() int64 {
	if c == nil {
		return 0
	}
	return c.linksActive.Load()
}

// ViewerDropped records a viewer removed after a failed write.
func (c *Collector) ViewerDropped() {
	if c == nil {
		return
	}
	c.viewerDrops.Add(1)
}

// ViewerDrops returns the number of viewers dropped on write failure.
func (c *Collector) ViewerDrops() int64 {
	if c == nil {
		return 0
	}
	return c.viewerDrops.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from a publisher.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to a viewer.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Health ───────────────────────────────────────────────────────────

// RecordHealthCheck updates the last health check timestamp.
func (c *Collector) RecordHealthCheck() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastHealthCheck = time.Now()
	c.mu.Unlock()
}

// Uptime returns the time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	if c == nil {
		return 0
	}
	return time.Since(c.startTime)
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	SessionsActive    int64  `json:"sessions_active"`
	SessionsTotal     int64  `json:"sessions_total"`
	CommandsTotal     int64  `json:"commands_total"`
	CommandsRejected  int64  `json:"commands_rejected"`
	Broadcasts        int64  `json:"broadcasts"`
	PublishersMatched int64  `json:"publishers_matched"`
	ViewersMatched    int64  `json:"viewers_matched"`
	StreamsUnmatched  int64  `json:"streams_unmatched"`
	LinksActive       int64  `json:"links_active"`
	ViewerDrops       int64  `json:"viewer_drops"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastHealthCheck   string `json:"last_health_check,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:    c.sessionsActive.Load(),
		SessionsTotal:     c.sessionsTotal.Load(),
		CommandsTotal:     c.commandsTotal.Load(),
		CommandsRejected:  c.rejectedTotal.Load(),
		Broadcasts:        c.broadcasts.Load(),
		PublishersMatched: c.publishersMatched.Load(),
		ViewersMatched:    c.viewersMatched.Load(),
		StreamsUnmatched:  c.unmatched.Load(),
		LinksActive:       c.linksActive.Load(),
		ViewerDrops:       c.viewerDrops.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastHealthCheck.IsZero() {
		s.LastHealthCheck = c.lastHealthCheck.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
