package metrics

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionOpened()
	c.SessionOpened()
	if c.ActiveSessions() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total = %d, want 2", c.TotalSessions())
	}

	c.SessionClosed()
	if c.ActiveSessions() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalSessions())
	}
}

func TestCollector_Commands(t *testing.T) {
	c := New()

	c.CommandHandled(false)
	c.CommandHandled(true)
	c.CommandHandled(false)
	c.ShareListBroadcast()

	if c.Commands() != 3 {
		t.Errorf("commands = %d, want 3", c.Commands())
	}
	if c.Rejected() != 1 {
		t.Errorf("rejected = %d, want 1", c.Rejected())
	}
	if c.Broadcasts() != 1 {
		t.Errorf("broadcasts = %d, want 1", c.Broadcasts())
	}
}

func TestCollector_Stream(t *testing.T) {
	c := New()

	c.PublisherMatched()
	c.ViewerMatched()
	c.ViewerMatched()
	c.StreamUnmatched()
	c.LinkOpened()
	c.ViewerDropped()

	snap := c.Snapshot()
	if snap.PublishersMatched != 1 || snap.ViewersMatched != 2 {
		t.Errorf("matched = %d/%d, want 1/2", snap.PublishersMatched, snap.ViewersMatched)
	}
	if c.Unmatched() != 1 {
		t.Errorf("unmatched = %d, want 1", c.Unmatched())
	}
	if c.ActiveLinks() != 1 {
		t.Errorf("links = %d, want 1", c.ActiveLinks())
	}
	c.LinkClosed()
	if c.ActiveLinks() != 0 {
		t.Errorf("links = %d, want 0", c.ActiveLinks())
	}
	if c.ViewerDrops() != 1 {
		t.Errorf("drops = %d, want 1", c.ViewerDrops())
	}
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesReceived(1024)
	c.BytesSent(512)
	c.BytesReceived(100)

	if c.TotalBytesIn() != 1124 {
		t.Errorf("bytes in = %d, want 1124", c.TotalBytesIn())
	}
	if c.TotalBytesOut() != 512 {
		t.Errorf("bytes out = %d, want 512", c.TotalBytesOut())
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
	if got := c.Snapshot().LastErrorMessage; got != "second error" {
		t.Errorf("last error = %q, want %q", got, "second error")
	}
}

func TestCollector_HealthCheck(t *testing.T) {
	c := New()
	c.RecordHealthCheck()

	snap := c.Snapshot()
	if snap.LastHealthCheck == "" {
		t.Error("expected non-empty health check timestamp")
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesSent(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.SessionsActive != 1 {
		t.Errorf("JSON active = %d", snap.SessionsActive)
	}
	if snap.BytesOut != 42 {
		t.Errorf("JSON bytes out = %d", snap.BytesOut)
	}
}

func TestCollector_Prometheus(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesReceived(2048)

	bytesIn := `
# HELP sharerelay_stream_bytes_in_total Bytes read from publishers.
# TYPE sharerelay_stream_bytes_in_total counter
sharerelay_stream_bytes_in_total 2048
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(bytesIn), "sharerelay_stream_bytes_in_total"); err != nil {
		t.Error(err)
	}

	expected := `
# HELP sharerelay_control_sessions_active Open control connections.
# TYPE sharerelay_control_sessions_active gauge
sharerelay_control_sessions_active 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "sharerelay_control_sessions_active"); err != nil {
		t.Error(err)
	}

	reg := Registry(c)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) < len(promDescs) {
		t.Errorf("gathered %d families, want at least %d", len(families), len(promDescs))
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.SessionOpened()
	c.SessionClosed()
	c.CommandHandled(true)
	c.ShareListBroadcast()
	c.PublisherMatched()
	c.ViewerMatched()
	c.StreamUnmatched()
	c.LinkOpened()
	c.LinkClosed()
	c.ViewerDropped()
	c.BytesReceived(100)
	c.BytesSent(100)
	c.RecordError("test")
	c.RecordHealthCheck()

	if c.ActiveSessions() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.TotalBytesIn() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}

	snap := c.Snapshot()
	if snap.SessionsActive != 0 {
		t.Error("nil snapshot should be zero")
	}

	j := c.JSON()
	if j == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
