package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/petanque-connect/server/middleware"
	"github.com/petanque-connect/server/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS policy is enforced on the REST surface; the websocket
		// endpoint authenticates by token instead of origin.
		return true
	},
}

type WebSocketHandler struct {
	hub    *realtime.Hub
	auth   *middleware.Authenticator
	logger *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, auth *middleware.Authenticator, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, auth: auth, logger: logger}
}

// ServeWs upgrades the connection and registers the client, which joins
// the client to its own user channel for direct events. Contest
// channels are joined via control messages afterwards.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.auth.UserIDFromToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Warn("websocket upgrade failed",
			slog.String("user_id", userID), slog.Any("error", err))
		return
	}

	client := realtime.NewClient(h.hub, conn, userID)
	h.hub.Register <- client

	go client.WritePump(h.logger)
	go client.ReadPump(h.logger)

	h.logger.Info("websocket client connected", slog.String("user_id", userID))
}
