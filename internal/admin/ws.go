package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{ //nolint:gochecknoglobals
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// shareMessage is pushed to /ws/shares subscribers.
type shareMessage struct {
	Type   string    `json:"type"`
	Shares []string  `json:"shares"`
	At     time.Time `json:"at"`
}

// shareFeed pushes the current share list, then every list the
// registry broadcasts, until the client goes away.
func (s *Server) shareFeed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.Registry.Subscribe()
	defer cancel()

	log := s.Logger.With("client", c.ClientIP())
	log.Debugw("share feed subscriber connected")

	// The read side only exists to notice the close and answer pings.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(feedPongWait)) //nolint:errcheck
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(names []string) error {
		if names == nil {
			names = []string{}
		}
		conn.SetWriteDeadline(time.Now().Add(feedWriteWait)) //nolint:errcheck
		return conn.WriteJSON(shareMessage{Type: "shares", Shares: names, At: time.Now().UTC()})
	}

	if err := send(s.Registry.ShareNames()); err != nil {
		return
	}

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			log.Debugw("share feed subscriber left")
			return
		case <-c.Request.Context().Done():
			return
		case names, ok := <-updates:
			if !ok {
				return
			}
			if err := send(names); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
