package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// controlMessage is what connected clients may send upstream: channel
// subscription management only, never domain mutations.
type controlMessage struct {
	Action    string `json:"action"`
	ContestID string `json:"contestId"`
}

const (
	actionJoinContest  = "join_contest"
	actionLeaveContest = "leave_contest"
)

type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string

	mu       sync.Mutex
	isClosed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isClosed {
		close(c.Send)
		c.isClosed = true
	}
}

// trySend queues a message without blocking the hub.
func (c *Client) trySend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return true
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// ReadPump consumes control messages until the connection drops, then
// unregisters the client so its channel memberships are cleaned up.
func (c *Client) ReadPump(logger *slog.Logger) {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					slog.String("user_id", c.UserID), slog.Any("error", err))
			}
			return
		}

		var ctrl controlMessage
		if err := json.Unmarshal(message, &ctrl); err != nil || ctrl.ContestID == "" {
			logger.Warn("ignoring malformed control message", slog.String("user_id", c.UserID))
			continue
		}

		switch ctrl.Action {
		case actionJoinContest:
			c.Hub.Join <- subscription{client: c, channel: ContestChannel(ctrl.ContestID)}
		case actionLeaveContest:
			c.Hub.Leave <- subscription{client: c, channel: ContestChannel(ctrl.ContestID)}
		default:
			logger.Warn("ignoring unknown control action",
				slog.String("user_id", c.UserID), slog.String("action", ctrl.Action))
		}
	}
}

// WritePump drains the send queue to the connection and keeps the
// connection alive with pings.
func (c *Client) WritePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush anything else already queued.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn("failed to ping client",
					slog.String("user_id", c.UserID), slog.Any("error", err))
				return
			}
		}
	}
}
