package stream

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharerelay/internal/announce"
	"sharerelay/internal/metrics"
)

func newTestRelay() (*Relay, *announce.Queues, *metrics.Collector) {
	q := announce.New()
	m := metrics.New()
	return NewRelay(q, nil, m), q, m
}

// run starts a forwarding loop and returns a channel with its result.
func run(serve func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- serve() }()
	return done
}

func readN(t *testing.T, c net.Conn, n int) string {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	buf := make([]byte, n)
	_, err := io.ReadFull(c, buf)
	require.NoError(t, err)
	return string(buf)
}

func expectEOF(t *testing.T, c net.Conn) {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, err := c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestRole_String(t *testing.T) {
	assert.Equal(t, "publisher", RolePublisher.String())
	assert.Equal(t, "viewer", RoleViewer.String())
	assert.Equal(t, "none", RoleNone.String())
}

func TestAdmit_Unmatched(t *testing.T) {
	r, _, m := newTestRelay()
	client, server := net.Pipe()
	defer client.Close()

	assert.Nil(t, r.Admit(context.Background(), server))
	expectEOF(t, client)
	assert.EqualValues(t, 1, m.Unmatched())
	assert.Empty(t, r.Links())
}

func TestForward_PublisherToViewer(t *testing.T) {
	r, q, m := newTestRelay()
	ctx := context.Background()

	pubClient, pubServer := net.Pipe()
	viewClient, viewServer := net.Pipe()
	defer pubClient.Close()
	defer viewClient.Close()

	q.AnnouncePublisher("alice")
	q.AnnounceViewer("alice")

	serve := r.Admit(ctx, pubServer)
	require.NotNil(t, serve)
	assert.Nil(t, r.Admit(ctx, viewServer))
	done := run(serve)

	go pubClient.Write([]byte("h264-frame")) //nolint:errcheck
	assert.Equal(t, "h264-frame", readN(t, viewClient, len("h264-frame")))

	links := r.Links()
	require.Len(t, links, 1)
	assert.Equal(t, "alice", links[0].User)
	assert.True(t, links[0].Publishing)
	assert.Equal(t, 1, links[0].Viewers)

	// Publisher EOF closes every viewer and clears the link.
	pubClient.Close()
	expectEOF(t, viewClient)
	require.NoError(t, <-done)
	assert.Empty(t, r.Links())

	assert.EqualValues(t, len("h264-frame"), m.TotalBytesIn())
	assert.EqualValues(t, len("h264-frame"), m.TotalBytesOut())
	assert.Zero(t, m.ActiveLinks())
}

func TestAdmit_FIFO(t *testing.T) {
	r, q, _ := newTestRelay()
	ctx := context.Background()

	q.AnnouncePublisher("alice")
	q.AnnouncePublisher("carol")
	q.AnnounceViewer("carol")

	var clients []net.Conn
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()
	admit := func() func() error {
		c, s := net.Pipe()
		clients = append(clients, c)
		return r.Admit(ctx, s)
	}

	// Publishers drain before any viewer announcement is considered.
	require.NotNil(t, admit())
	require.NotNil(t, admit())
	assert.Nil(t, admit())

	links := r.Links()
	require.Len(t, links, 2)
	assert.Equal(t, "alice", links[0].User)
	assert.Equal(t, 0, links[0].Viewers)
	assert.Equal(t, "carol", links[1].User)
	assert.Equal(t, 1, links[1].Viewers)

	r.Close() //nolint:errcheck
}

func TestForward_ViewerBeforePublisher(t *testing.T) {
	r, q, _ := newTestRelay()
	ctx := context.Background()

	viewClient, viewServer := net.Pipe()
	defer viewClient.Close()
	q.AnnounceViewer("alice")
	assert.Nil(t, r.Admit(ctx, viewServer))

	links := r.Links()
	require.Len(t, links, 1)
	assert.False(t, links[0].Publishing)

	pubClient, pubServer := net.Pipe()
	defer pubClient.Close()
	q.AnnouncePublisher("alice")
	done := run(r.Admit(ctx, pubServer))

	go pubClient.Write([]byte("late")) //nolint:errcheck
	assert.Equal(t, "late", readN(t, viewClient, 4))

	pubClient.Close()
	<-done
}

func TestForward_DropsFailedViewerOnly(t *testing.T) {
	r, q, m := newTestRelay()
	ctx := context.Background()

	pubClient, pubServer := net.Pipe()
	v1Client, v1Server := net.Pipe()
	v2Client, v2Server := net.Pipe()
	defer pubClient.Close()
	defer v2Client.Close()

	q.AnnouncePublisher("alice")
	q.AnnounceViewer("alice")
	q.AnnounceViewer("alice")
	done := run(r.Admit(ctx, pubServer))
	r.Admit(ctx, v1Server)
	r.Admit(ctx, v2Server)

	v1Client.Close()

	go pubClient.Write([]byte("chunk")) //nolint:errcheck
	assert.Equal(t, "chunk", readN(t, v2Client, 5))

	links := r.Links()
	require.Len(t, links, 1)
	assert.Equal(t, 1, links[0].Viewers)
	assert.EqualValues(t, 1, m.ViewerDrops())

	pubClient.Close()
	<-done
}

func TestForward_NoViewersDiscards(t *testing.T) {
	r, q, _ := newTestRelay()
	pubClient, pubServer := net.Pipe()
	defer pubClient.Close()

	q.AnnouncePublisher("alice")
	done := run(r.Admit(context.Background(), pubServer))

	_, err := pubClient.Write([]byte("nobody watching"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		links := r.Links()
		return len(links) == 1 && links[0].BytesIn == int64(len("nobody watching"))
	}, time.Second, 10*time.Millisecond)

	pubClient.Close()
	<-done
}

func TestForward_RepublishStartsFreshViewerSet(t *testing.T) {
	r, q, _ := newTestRelay()
	ctx := context.Background()

	pub1Client, pub1Server := net.Pipe()
	viewClient, viewServer := net.Pipe()
	defer viewClient.Close()

	q.AnnouncePublisher("alice")
	q.AnnounceViewer("alice")
	done := run(r.Admit(ctx, pub1Server))
	r.Admit(ctx, viewServer)

	pub1Client.Close()
	<-done
	expectEOF(t, viewClient)

	pub2Client, pub2Server := net.Pipe()
	defer pub2Client.Close()
	q.AnnouncePublisher("alice")
	done = run(r.Admit(ctx, pub2Server))

	links := r.Links()
	require.Len(t, links, 1)
	assert.True(t, links[0].Publishing)
	assert.Equal(t, 0, links[0].Viewers)

	pub2Client.Close()
	<-done
}

func TestAdmit_ReplacesLivePublisher(t *testing.T) {
	r, q, m := newTestRelay()
	ctx := context.Background()

	oldClient, oldServer := net.Pipe()
	defer oldClient.Close()
	q.AnnouncePublisher("alice")
	oldDone := run(r.Admit(ctx, oldServer))

	newClient, newServer := net.Pipe()
	defer newClient.Close()
	q.AnnouncePublisher("alice")
	newDone := run(r.Admit(ctx, newServer))

	// The old loop ends because its socket was closed.
	select {
	case <-oldDone:
	case <-time.After(2 * time.Second):
		t.Fatal("old publisher loop still running")
	}

	links := r.Links()
	require.Len(t, links, 1)
	assert.True(t, links[0].Publishing)
	assert.EqualValues(t, 1, m.ActiveLinks())

	newClient.Close()
	<-newDone
	assert.Empty(t, r.Links())
	assert.Zero(t, m.ActiveLinks())
}

func TestForward_ContextCancel(t *testing.T) {
	r, q, _ := newTestRelay()
	pubClient, pubServer := net.Pipe()
	defer pubClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	q.AnnouncePublisher("alice")
	done := run(r.Admit(ctx, pubServer))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("forwarding loop ignored cancellation")
	}
}

func TestRelay_Close(t *testing.T) {
	r, q, _ := newTestRelay()
	ctx := context.Background()

	viewClient, viewServer := net.Pipe()
	defer viewClient.Close()
	q.AnnounceViewer("alice")
	r.Admit(ctx, viewServer)

	require.NoError(t, r.Close())
	expectEOF(t, viewClient)
	assert.Empty(t, r.Links())
}

// TestRelay_TCPEndToEnd drives the relay over real sockets in accept
// order.
func TestRelay_TCPEndToEnd(t *testing.T) {
	r, q, _ := newTestRelay()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if serve := r.Admit(ctx, conn); serve != nil {
				go serve() //nolint:errcheck
			}
		}
	}()

	q.AnnouncePublisher("alice")
	pub, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer pub.Close()
	require.Eventually(t, func() bool { return len(r.Links()) == 1 }, time.Second, 10*time.Millisecond)

	q.AnnounceViewer("alice")
	view, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer view.Close()
	require.Eventually(t, func() bool {
		links := r.Links()
		return len(links) == 1 && links[0].Viewers == 1
	}, time.Second, 10*time.Millisecond)

	payload := []byte("\x00\x00\x00\x01\x67binary-nal")
	_, err = pub.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, string(payload), readN(t, view, len(payload)))

	pub.Close()
	expectEOF(t, view)
}
