package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *Hub, userID uuid.UUID) *Client {
	return &Client{hub: hub, userID: userID, send: make(chan []byte, 4)}
}

func TestHub_BroadcastToUser_DeliversOnlyToThatUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	alice := newTestClient(hub, uuid.New())
	bob := newTestClient(hub, uuid.New())
	require.True(t, hub.Register(alice))
	require.True(t, hub.Register(bob))

	require.NoError(t, hub.BroadcastToUser(alice.userID, "order.updated", map[string]string{"id": "42"}))

	select {
	case raw := <-alice.send:
		var msg map[string]any
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "order.updated", msg["type"])
		assert.Equal(t, map[string]any{"id": "42"}, msg["data"])
	case <-time.After(time.Second):
		t.Fatal("сообщение не доставлено")
	}

	select {
	case <-bob.send:
		t.Fatal("сообщение ушло другому пользователю")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_StopClosesClientsAndUnblocksRegister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := newTestClient(hub, uuid.New())
	require.True(t, hub.Register(client))
	assert.Eventually(t, func() bool { return hub.ConnectedUsers() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-stopped

	_, open := <-client.send
	assert.False(t, open)
	assert.False(t, hub.Register(newTestClient(hub, uuid.New())))
	hub.Unregister(client)
}
