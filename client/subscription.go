package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/petanque-connect/server/models"
	"github.com/petanque-connect/server/services"
)

const closeGracePeriod = time.Second

type eventEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type controlMessage struct {
	Action    string `json:"action"`
	ContestID string `json:"contestId"`
}

// Options configures one contest subscription.
type Options struct {
	// ServerURL is the http(s) base URL of the server.
	ServerURL string
	// Token authenticates the connection; the server derives the user
	// channel from it.
	Token     string
	ContestID string
	// OnDirect receives individually addressed events (join requests,
	// join responses, kicks). Optional.
	OnDirect func(event string, payload json.RawMessage)
	Logger   *slog.Logger
}

// Subscription is a live feed of one contest's team events into a
// TeamStore. Close leaves the contest channel and stops the reader, so
// navigating between contests never leaks handlers.
type Subscription struct {
	conn      *websocket.Conn
	store     *TeamStore
	opts      Options
	done      chan struct{}
	closeOnce sync.Once
}

// Subscribe dials the server's websocket endpoint, joins the contest
// channel, and starts reconciling events into the store.
func Subscribe(ctx context.Context, store *TeamStore, opts Options) (*Subscription, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	wsURL, err := websocketURL(opts.ServerURL, opts.Token)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}

	join := controlMessage{Action: "join_contest", ContestID: opts.ContestID}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to join contest channel: %w", err)
	}

	s := &Subscription{
		conn:  conn,
		store: store,
		opts:  opts,
		done:  make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func websocketURL(serverURL, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Subscription) readLoop() {
	defer close(s.done)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.opts.Logger.Warn("subscription read error", slog.Any("error", err))
			}
			return
		}

		var envelope eventEnvelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			s.opts.Logger.Warn("ignoring malformed event", slog.Any("error", err))
			continue
		}
		s.dispatch(envelope)
	}
}

func (s *Subscription) dispatch(envelope eventEnvelope) {
	switch envelope.Event {
	case services.EventTeamCreated:
		var team models.Team
		if err := json.Unmarshal(envelope.Payload, &team); err != nil {
			s.opts.Logger.Warn("ignoring malformed team payload", slog.Any("error", err))
			return
		}
		s.store.ApplyCreated(&team)

	case services.EventTeamUpdated:
		var team models.Team
		if err := json.Unmarshal(envelope.Payload, &team); err != nil {
			s.opts.Logger.Warn("ignoring malformed team payload", slog.Any("error", err))
			return
		}
		s.store.ApplyUpdated(&team)

	case services.EventTeamDeleted:
		var payload services.TeamDeletedPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			s.opts.Logger.Warn("ignoring malformed delete payload", slog.Any("error", err))
			return
		}
		s.store.ApplyDeleted(payload.TeamID)

	default:
		if s.opts.OnDirect != nil {
			s.opts.OnDirect(envelope.Event, envelope.Payload)
		}
	}
}

// Close leaves the contest channel and shuts the connection down.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		leave := controlMessage{Action: "leave_contest", ContestID: s.opts.ContestID}
		if writeErr := s.conn.WriteJSON(leave); writeErr != nil {
			s.opts.Logger.Warn("failed to leave contest channel", slog.Any("error", writeErr))
		}
		deadline := time.Now().Add(closeGracePeriod)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

		err = s.conn.Close()
		select {
		case <-s.done:
		case <-time.After(closeGracePeriod):
		}
	})
	return err
}
