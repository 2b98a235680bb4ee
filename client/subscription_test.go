package client_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petanque-connect/server/client"
	"github.com/petanque-connect/server/handlers"
	"github.com/petanque-connect/server/middleware"
	"github.com/petanque-connect/server/models"
	"github.com/petanque-connect/server/realtime"
	"github.com/petanque-connect/server/services"
)

const testSecret = "test-secret"

func startServer(t *testing.T) (*httptest.Server, *realtime.Hub) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := realtime.NewHub(logger)
	go hub.Run()

	auth := middleware.NewAuthenticator(testSecret)
	wsHandler := handlers.NewWebSocketHandler(hub, auth, logger)

	router := chi.NewRouter()
	router.Get("/ws", wsHandler.ServeWs)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestSubscriptionAppliesBroadcasts(t *testing.T) {
	srv, hub := startServer(t)
	store := client.NewTeamStore("u1")

	sub, err := client.Subscribe(context.Background(), store, client.Options{
		ServerURL: srv.URL,
		Token:     signToken(t, "u1"),
		ContestID: "c1",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	defer sub.Close()

	team := &models.Team{ID: "t1", ContestID: "c1", Members: []string{"u1"}, MaxMembers: 3}

	// The join control message is processed asynchronously; re-emitting
	// is safe because applies are idempotent by team id.
	require.Eventually(t, func() bool {
		hub.EmitToContest("c1", services.EventTeamCreated, team)
		return len(store.Teams()) == 1
	}, 2*time.Second, 20*time.Millisecond)

	require.NotNil(t, store.MyTeam())
	assert.Equal(t, "t1", store.MyTeam().ID)

	updated := &models.Team{ID: "t1", ContestID: "c1", Members: []string{"u1", "u2"}, MaxMembers: 3}
	require.Eventually(t, func() bool {
		hub.EmitToContest("c1", services.EventTeamUpdated, updated)
		mine := store.MyTeam()
		return mine != nil && len(mine.Members) == 2
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		hub.EmitToContest("c1", services.EventTeamDeleted,
			services.TeamDeletedPayload{TeamID: "t1", ContestID: "c1"})
		return len(store.Teams()) == 0
	}, 2*time.Second, 20*time.Millisecond)
	assert.Nil(t, store.MyTeam())
}

func TestSubscriptionDeliversDirectEvents(t *testing.T) {
	srv, hub := startServer(t)
	store := client.NewTeamStore("u1")

	var mu sync.Mutex
	received := map[string]json.RawMessage{}

	sub, err := client.Subscribe(context.Background(), store, client.Options{
		ServerURL: srv.URL,
		Token:     signToken(t, "u1"),
		ContestID: "c1",
		OnDirect: func(event string, payload json.RawMessage) {
			mu.Lock()
			defer mu.Unlock()
			received[event] = payload
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool {
		hub.EmitToUser("u1", services.EventTeamKicked,
			services.KickedPayload{TeamID: "t1", TeamName: "Les Tireurs"})
		mu.Lock()
		defer mu.Unlock()
		_, ok := received[services.EventTeamKicked]
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var payload services.KickedPayload
	require.NoError(t, json.Unmarshal(received[services.EventTeamKicked], &payload))
	assert.Equal(t, "Les Tireurs", payload.TeamName)
}

func TestSubscribeRejectsBadToken(t *testing.T) {
	srv, _ := startServer(t)
	store := client.NewTeamStore("u1")

	_, err := client.Subscribe(context.Background(), store, client.Options{
		ServerURL: srv.URL,
		Token:     "not-a-token",
		ContestID: "c1",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, _ := startServer(t)
	store := client.NewTeamStore("u1")

	sub, err := client.Subscribe(context.Background(), store, client.Options{
		ServerURL: srv.URL,
		Token:     signToken(t, "u1"),
		ContestID: "c1",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
}
