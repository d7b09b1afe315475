package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/mcp-training/drivesim/game/engine"
)

func newTestClient(hub *Hub, sessionID string) *Client {
	return &Client{
		hub:       hub,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
	}
}

func testSnapshot() *engine.Snapshot {
	return &engine.Snapshot{
		State: engine.VehicleState{
			Position: mgl64.Vec3{5, 0.5, -3},
			Velocity: mgl64.Vec2{0, -2},
		},
		Ticks:       42,
		Speed:       2,
		GroundFound: true,
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func dial(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("session"))
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?session=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount(sessionID) == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestHubRegisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient(hub, "abcd")

	hub.registerClient(client)

	assert.Equal(t, 1, hub.ClientCount("abcd"))
	assert.True(t, hub.sessions["abcd"][client])
}

func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient(hub, "abcd")

	hub.registerClient(client)
	hub.unregisterClient(client)

	_, exists := hub.sessions["abcd"]
	assert.False(t, exists, "session should be cleaned up after its last client leaves")

	_, open := <-client.send
	assert.False(t, open, "send channel should be closed")

	// A second unregister is a no-op.
	hub.unregisterClient(client)
}

func TestHubMultipleClientsInSession(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client1 := newTestClient(hub, "abcd")
	client2 := newTestClient(hub, "abcd")
	other := newTestClient(hub, "wxyz")

	hub.registerClient(client1)
	hub.registerClient(client2)
	hub.registerClient(other)
	assert.Equal(t, 2, hub.ClientCount("abcd"))

	hub.unregisterClient(client1)
	assert.Equal(t, 1, hub.ClientCount("abcd"))
	assert.True(t, hub.sessions["abcd"][client2])
	assert.Equal(t, 1, hub.ClientCount("wxyz"))
}

func TestHubBroadcastMessage(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	watcher := newTestClient(hub, "abcd")
	bystander := newTestClient(hub, "wxyz")
	hub.registerClient(watcher)
	hub.registerClient(bystander)

	hub.broadcastMessage(&Message{SessionID: "abcd", State: testSnapshot(), Event: EventStateUpdate})

	select {
	case data := <-watcher.send:
		var message Message
		require.NoError(t, json.Unmarshal(data, &message))
		assert.Equal(t, "abcd", message.SessionID)
		assert.Equal(t, EventStateUpdate, message.Event)
		require.NotNil(t, message.State)
		assert.Equal(t, mgl64.Vec3{5, 0.5, -3}, message.State.State.Position)
		assert.Equal(t, int64(42), message.State.Ticks)
	default:
		t.Fatal("watcher received nothing")
	}

	assert.Empty(t, bystander.send, "other sessions must not receive the update")
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := &Client{hub: hub, sessionID: "abcd", send: make(chan []byte, 1)}
	hub.registerClient(slow)

	hub.broadcastMessage(&Message{SessionID: "abcd", Event: "one"})
	hub.broadcastMessage(&Message{SessionID: "abcd", Event: "two"})

	assert.Equal(t, 0, hub.ClientCount("abcd"))
}

func TestHubBroadcastQueue(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	// Nothing drains the queue; once full, further broadcasts are dropped
	// instead of blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer+10; i++ {
			hub.BroadcastEvent("abcd", "tick", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastEvent blocked on a full queue")
	}
	assert.Len(t, hub.broadcast, broadcastBuffer)

	first := <-hub.broadcast
	assert.Equal(t, "abcd", first.SessionID)
	assert.Equal(t, "tick", first.Event)
	assert.Equal(t, 0, first.Data)
}

func TestWebSocketStateUpdate(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, hub, "abcd")

	hub.BroadcastToSession("abcd", testSnapshot())
	hub.BroadcastEvent("abcd", EventDeleted, map[string]string{"reason": "test"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var message Message
	require.NoError(t, json.Unmarshal(data, &message))
	assert.Equal(t, EventStateUpdate, message.Event)
	require.NotNil(t, message.State)
	assert.InDelta(t, 2.0, message.State.Speed, 1e-12)
	assert.True(t, message.State.GroundFound)

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &message))
	assert.Equal(t, EventDeleted, message.Event)
}

func TestWebSocketDisconnect(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, hub, "abcd")

	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount("abcd") == 0 }, time.Second, 5*time.Millisecond,
		"session should be cleaned up after WebSocket close")
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	conn := dial(t, hub, "abcd")
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, hub.ClientCount("abcd"))

	// The server side closes the connection.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
