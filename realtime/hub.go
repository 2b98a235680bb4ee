package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Channel naming: one channel per contest for broadcasts, one channel
// per user for direct events. Clients join their user channel at
// connect time and join/leave contest channels on demand.
func ContestChannel(contestID string) string { return "contest:" + contestID }
func UserChannel(userID string) string       { return "user:" + userID }

// EventMessage is the wire envelope for every server-pushed event.
type EventMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

type subscription struct {
	client  *Client
	channel string
}

// Hub tracks connected clients and their channel memberships. All
// membership mutation goes through the Run loop's channels; emitting
// takes the read lock only.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	Join       chan subscription
	Leave      chan subscription

	mu       sync.RWMutex
	channels map[string]map[*Client]bool
	members  map[*Client]map[string]bool

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Join:       make(chan subscription),
		Leave:      make(chan subscription),
		channels:   make(map[string]map[*Client]bool),
		members:    make(map[*Client]map[string]bool),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.members[client] = make(map[string]bool)
			h.mu.Unlock()
			// Direct events reach the user through their own channel.
			h.joinChannel(client, UserChannel(client.UserID))

		case client := <-h.Unregister:
			h.mu.Lock()
			if joined, ok := h.members[client]; ok {
				for channel := range joined {
					h.dropFromChannel(client, channel)
				}
				delete(h.members, client)
				client.closeSend()
				h.logger.Info("client unregistered", slog.String("user_id", client.UserID))
			}
			h.mu.Unlock()

		case sub := <-h.Join:
			h.joinChannel(sub.client, sub.channel)

		case sub := <-h.Leave:
			h.mu.Lock()
			h.dropFromChannel(sub.client, sub.channel)
			if joined, ok := h.members[sub.client]; ok {
				delete(joined, sub.channel)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) joinChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[client]; !ok {
		// Client already unregistered; ignore the stale join.
		return
	}
	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true
	h.members[client][channel] = true
	h.logger.Info("client joined channel",
		slog.String("channel", channel),
		slog.Int("clients", len(h.channels[channel])))
}

// dropFromChannel assumes h.mu is held.
func (h *Hub) dropFromChannel(client *Client, channel string) {
	clients, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.channels, channel)
	}
}

// EmitToChannel delivers an event to every client in the channel.
// Delivery is fire-and-forget: a missing channel or a saturated client
// is logged and skipped, never surfaced to the caller.
func (h *Hub) EmitToChannel(channel, event string, payload interface{}) {
	message, err := json.Marshal(EventMessage{Event: event, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal event",
			slog.String("event", event), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.channels[channel]
	if !ok {
		return
	}
	for client := range clients {
		if !client.trySend(message) {
			h.logger.Warn("client send buffer full, dropping event",
				slog.String("channel", channel), slog.String("event", event))
		}
	}
}

// EmitToContest broadcasts an event to everyone subscribed to the
// contest's channel.
func (h *Hub) EmitToContest(contestID, event string, payload interface{}) {
	h.EmitToChannel(ContestChannel(contestID), event, payload)
}

// EmitToUser delivers a direct event through the user's own channel.
func (h *Hub) EmitToUser(userID, event string, payload interface{}) {
	h.EmitToChannel(UserChannel(userID), event, payload)
}
