package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharerelay/config"
	"sharerelay/internal/directory"
	"sharerelay/internal/metrics"
	"sharerelay/internal/protocol"
	"sharerelay/internal/registry"
	"sharerelay/internal/stream"
	"sharerelay/util"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type peer struct {
	name string
	mu   sync.Mutex
	got  []string
}

func (p *peer) Username() string { return p.name }
func (p *peer) Send(line string) error {
	p.mu.Lock()
	p.got = append(p.got, line)
	p.mu.Unlock()
	return nil
}

type staticLinks []stream.LinkInfo

func (l staticLinks) Links() []stream.LinkInfo { return l }

type env struct {
	srv *Server
	reg *registry.Registry
	m   *metrics.Collector
	dir *directory.Service
}

func newEnv(t *testing.T, opts ...func(*config.RateLimitConfig)) *env {
	t.Helper()
	logger := util.NopLogger()
	m := metrics.New()
	reg := registry.New(logger, m)
	dir := directory.NewService(directory.NewMemoryStore(), "", logger)
	rl := config.RateLimitConfig{}
	for _, o := range opts {
		o(&rl)
	}
	links := staticLinks{{User: "alice", Publishing: true, Viewers: 1, BytesIn: 42}}
	return &env{srv: New(reg, links, dir, m, rl, logger), reg: reg, m: m, dir: dir}
}

func (e *env) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	w, body := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, e.m.Snapshot().LastHealthCheck)
}

type sickStore struct{ *directory.MemoryStore }

func (sickStore) HealthCheck(context.Context) error { return fmt.Errorf("redis: connection refused") }

func TestReady(t *testing.T) {
	e := newEnv(t)
	w, body := e.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])

	e.srv.Directory = directory.NewService(sickStore{directory.NewMemoryStore()}, "", util.NopLogger())
	w, body = e.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	e.m.SessionOpened()
	w, _ := e.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sharerelay_control_sessions_active 1")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestStats(t *testing.T) {
	e := newEnv(t)
	e.m.SessionOpened()
	e.m.CommandHandled(true)
	w, body := e.do(t, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["sessions_active"])
	assert.EqualValues(t, 1, body["commands_rejected"])
}

func TestShares(t *testing.T) {
	e := newEnv(t)
	w, body := e.do(t, http.MethodGet, "/api/v1/shares", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])

	alice, bob, carol := &peer{name: "alice"}, &peer{name: "bob"}, &peer{name: "carol"}
	for _, p := range []*peer{alice, bob, carol} {
		e.reg.Register(p)
	}
	e.reg.StartShare(alice, "pw")
	e.reg.StartShare(carol, "pw2")
	require.NoError(t, e.reg.AddViewer("alice", "pw", bob))

	w, body = e.do(t, http.MethodGet, "/api/v1/shares", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["count"])

	shares := body["shares"].([]any)
	first := shares[0].(map[string]any)
	assert.Equal(t, "alice", first["user"])
	assert.Equal(t, []any{"bob"}, first["viewers"])
	link := first["stream"].(map[string]any)
	assert.Equal(t, true, link["publishing"])
	assert.EqualValues(t, 42, link["bytes_in"])

	second := shares[1].(map[string]any)
	assert.Equal(t, "carol", second["user"])
	assert.Nil(t, second["stream"])
}

func TestUserAndInvitationFlow(t *testing.T) {
	e := newEnv(t)

	w, inv := e.do(t, http.MethodPost, "/api/v1/invitations", map[string]string{"username": "dana"})
	require.Equal(t, http.StatusCreated, w.Code)
	code := inv["code"].(string)
	assert.Regexp(t, `^INV-`, code)

	w, body := e.do(t, http.MethodPost, "/api/v1/invitations/validate",
		map[string]string{"code": code, "username": "dana"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["valid"])

	w, body = e.do(t, http.MethodGet, "/api/v1/invitations/"+code, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["used"])

	reg := map[string]string{
		"username": "dana", "password": "pw", "confirm_password": "pw", "invitation_code": code,
	}
	w, body = e.do(t, http.MethodPost, "/api/v1/users/register", reg)
	require.Equal(t, http.StatusCreated, w.Code, body)
	assert.Equal(t, "dana", body["user"].(map[string]any)["username"])

	w, body = e.do(t, http.MethodGet, "/api/v1/invitations/"+code, nil)
	assert.Equal(t, true, body["used"])

	w, body = e.do(t, http.MethodPost, "/api/v1/users/register", reg)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invitation code already used", body["error"])

	w, body = e.do(t, http.MethodGet, "/api/v1/users/dana/exists", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["exists"])

	w, _ = e.do(t, http.MethodPost, "/api/v1/users/authenticate", map[string]string{"username": "dana", "password": "pw"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = e.do(t, http.MethodPost, "/api/v1/users/authenticate", map[string]string{"username": "dana", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid username or password", body["error"])
}

func TestRegisterErrors(t *testing.T) {
	e := newEnv(t)

	w, body := e.do(t, http.MethodPost, "/api/v1/users/register", map[string]string{
		"username": "eve", "password": "a", "confirm_password": "b", "invitation_code": "INV-X",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "passwords do not match", body["error"])

	w, body = e.do(t, http.MethodPost, "/api/v1/users/register", map[string]string{"username": "eve"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "all fields are required", body["error"])

	w, body = e.do(t, http.MethodPost, "/api/v1/users/register", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request format", body["error"])

	w, _ = e.do(t, http.MethodPost, "/api/v1/invitations", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, func(rl *config.RateLimitConfig) {
		rl.Enabled = true
		rl.RequestsPerSecond = 0.001
		rl.Burst = 2
	})

	for i := 0; i < 2; i++ {
		w, _ := e.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w, body := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate limit exceeded", body["error"])
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:4567"
	assert.Equal(t, "10.0.0.5", clientIP(r))

	r.Header.Set("X-Forwarded-For", "192.0.2.1")
	assert.Equal(t, "192.0.2.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "garbage")
	assert.Equal(t, "10.0.0.5", clientIP(r))
}

func TestShareFeed(t *testing.T) {
	e := newEnv(t)
	ts := httptest.NewServer(e.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/shares"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg shareMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "shares", msg.Type)
	assert.Empty(t, msg.Shares)

	alice := &peer{name: "alice"}
	e.reg.Register(alice)

	// The subscription is taken before the first push, so a broadcast
	// after reading it is never missed.
	e.reg.StartShare(alice, "pw")
	e.reg.BroadcastShareList(protocol.FormatShares)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, []string{"alice"}, msg.Shares)
}

func TestServe_StopsOnCancel(t *testing.T) {
	e := newEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
}
