package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	return hub
}

func registered(hub *Hub, client *Client) func() bool {
	return func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		_, ok := hub.members[client]
		return ok
	}
}

func inChannel(hub *Hub, client *Client, channel string) func() bool {
	return func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.channels[channel][client]
	}
}

func receive(t *testing.T, client *Client) EventMessage {
	t.Helper()
	select {
	case raw := <-client.Send:
		var msg EventMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return EventMessage{}
	}
}

func TestRegisterJoinsUserChannel(t *testing.T) {
	hub := newTestHub()
	client := NewClient(hub, nil, "u1")

	hub.Register <- client
	require.Eventually(t, inChannel(hub, client, UserChannel("u1")), time.Second, 5*time.Millisecond)

	hub.EmitToUser("u1", "team:kicked", map[string]string{"teamId": "t1"})
	msg := receive(t, client)
	assert.Equal(t, "team:kicked", msg.Event)
}

func TestContestBroadcastReachesOnlySubscribers(t *testing.T) {
	hub := newTestHub()
	subscriber := NewClient(hub, nil, "u1")
	bystander := NewClient(hub, nil, "u2")

	hub.Register <- subscriber
	hub.Register <- bystander
	require.Eventually(t, registered(hub, bystander), time.Second, 5*time.Millisecond)

	hub.Join <- subscription{client: subscriber, channel: ContestChannel("c1")}
	require.Eventually(t, inChannel(hub, subscriber, ContestChannel("c1")), time.Second, 5*time.Millisecond)

	hub.EmitToContest("c1", "team:created", map[string]string{"id": "t1"})

	msg := receive(t, subscriber)
	assert.Equal(t, "team:created", msg.Event)
	select {
	case <-bystander.Send:
		t.Fatal("bystander received a contest broadcast it never joined")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub := newTestHub()
	client := NewClient(hub, nil, "u1")

	hub.Register <- client
	require.Eventually(t, registered(hub, client), time.Second, 5*time.Millisecond)

	hub.Join <- subscription{client: client, channel: ContestChannel("c1")}
	require.Eventually(t, inChannel(hub, client, ContestChannel("c1")), time.Second, 5*time.Millisecond)

	hub.Leave <- subscription{client: client, channel: ContestChannel("c1")}
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return !hub.channels[ContestChannel("c1")][client]
	}, time.Second, 5*time.Millisecond)

	hub.EmitToContest("c1", "team:updated", nil)
	select {
	case <-client.Send:
		t.Fatal("received a broadcast after leaving the channel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterCleansUpMemberships(t *testing.T) {
	hub := newTestHub()
	client := NewClient(hub, nil, "u1")

	hub.Register <- client
	require.Eventually(t, registered(hub, client), time.Second, 5*time.Millisecond)
	hub.Join <- subscription{client: client, channel: ContestChannel("c1")}
	require.Eventually(t, inChannel(hub, client, ContestChannel("c1")), time.Second, 5*time.Millisecond)

	hub.Unregister <- client
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		_, ok := hub.members[client]
		return !ok
	}, time.Second, 5*time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.channels[ContestChannel("c1")])

	// The send channel is closed so WritePump can exit.
	_, open := <-client.Send
	assert.False(t, open)
}

func TestEmitSkipsSaturatedClient(t *testing.T) {
	hub := newTestHub()
	client := NewClient(hub, nil, "u1")
	client.Send = make(chan []byte, 1)

	hub.Register <- client
	require.Eventually(t, inChannel(hub, client, UserChannel("u1")), time.Second, 5*time.Millisecond)

	// Second emit overflows the buffer; neither may block the hub.
	hub.EmitToUser("u1", "team:updated", nil)
	hub.EmitToUser("u1", "team:updated", nil)

	msg := receive(t, client)
	assert.Equal(t, "team:updated", msg.Event)
}
