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

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func testClient(hub *Hub, sessionID uuid.UUID, role Role) *Client {
	return NewClient(hub, nil, sessionID, role)
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var event Event
		require.NoError(t, json.Unmarshal(msg, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return Event{}
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)

	assert.NotNil(t, hub.sessions)
	assert.NotNil(t, hub.producers)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.logger)
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := startHub(t)
	sessionID := uuid.New()
	client := testClient(hub, sessionID, RoleObserver)

	require.True(t, hub.Register(client))
	assert.Equal(t, 1, hub.ConnectedClients(sessionID))

	hub.Unregister(client)
	assert.Eventually(t, func() bool { return hub.ConnectedClients(sessionID) == 0 }, time.Second, 10*time.Millisecond)

	_, ok := <-client.send
	assert.False(t, ok, "send channel should be closed")

	// second unregister is a no-op
	hub.Unregister(client)
}

func TestHub_SingleProducer(t *testing.T) {
	hub := startHub(t)
	sessionID := uuid.New()

	first := testClient(hub, sessionID, RoleProducer)
	second := testClient(hub, sessionID, RoleProducer)
	observer := testClient(hub, sessionID, RoleObserver)

	assert.True(t, hub.Register(first))
	assert.False(t, hub.Register(second))
	assert.True(t, hub.Register(observer))

	hub.Unregister(first)
	assert.Eventually(t, func() bool { return hub.Register(second) }, time.Second, 10*time.Millisecond)
}

func TestHub_PublishToSession(t *testing.T) {
	hub := startHub(t)
	sessionID := uuid.New()
	client := testClient(hub, sessionID, RoleObserver)
	require.True(t, hub.Register(client))

	hub.Publish(sessionID, EventStepPassed, map[string]string{"step": "smile"})

	event := receive(t, client)
	assert.Equal(t, EventStepPassed, event.Type)
	assert.Equal(t, sessionID, event.SessionID)
}

func TestHub_SessionIsolation(t *testing.T) {
	hub := startHub(t)

	client1 := testClient(hub, uuid.New(), RoleObserver)
	client2 := testClient(hub, uuid.New(), RoleObserver)
	require.True(t, hub.Register(client1))
	require.True(t, hub.Register(client2))

	hub.Publish(client1.sessionID, EventFrameRejected, map[string]string{"reason": "NO_FACE_DETECTED"})

	receive(t, client1)

	select {
	case <-client2.send:
		t.Fatal("client2 should not receive events of another session")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_TerminalEventClosesSession(t *testing.T) {
	hub := startHub(t)
	sessionID := uuid.New()
	producer := testClient(hub, sessionID, RoleProducer)
	observer := testClient(hub, sessionID, RoleObserver)
	require.True(t, hub.Register(producer))
	require.True(t, hub.Register(observer))

	hub.Publish(sessionID, EventCompleted, map[string]bool{"success": true})

	for _, c := range []*Client{producer, observer} {
		event := receive(t, c)
		assert.Equal(t, EventCompleted, event.Type)

		_, ok := <-c.send
		assert.False(t, ok, "connection should be released after a terminal event")
	}
	assert.Equal(t, 0, hub.ConnectedClients(sessionID))
}

func TestHub_CompletingFrameGetsItsReply(t *testing.T) {
	for i := 0; i < 5; i++ {
		hub := startHub(t)
		sessionID := uuid.New()
		producer := testClient(hub, sessionID, RoleProducer)
		observer := testClient(hub, sessionID, RoleObserver)
		require.True(t, hub.Register(producer))
		require.True(t, hub.Register(observer))

		// the service publishes the terminal event while the frame is still being handled
		producer.inFlight.Store(true)
		hub.Publish(sessionID, EventCompleted, map[string]bool{"success": true})
		hub.Send(producer, ErrorMessage(sessionID, "X", "stand-in for frame_result"))
		producer.inFlight.Store(false)
		hub.Unregister(producer)

		assert.Equal(t, EventCompleted, receive(t, producer).Type)
		assert.Equal(t, EventError, receive(t, producer).Type)
		_, ok := <-producer.send
		assert.False(t, ok, "producer should be released after its reply")

		assert.Equal(t, EventCompleted, receive(t, observer).Type)
		_, ok = <-observer.send
		assert.False(t, ok, "observer should be released by the terminal event")

		assert.Eventually(t, func() bool { return hub.ConnectedClients(sessionID) == 0 }, time.Second, 10*time.Millisecond)
	}
}

func TestHub_SendIsOrderedBeforeUnregister(t *testing.T) {
	hub := startHub(t)
	client := testClient(hub, uuid.New(), RoleProducer)
	require.True(t, hub.Register(client))

	hub.Send(client, ErrorMessage(client.sessionID, "FRAME_DROPPED", "busy"))
	hub.Unregister(client)

	event := receive(t, client)
	assert.Equal(t, EventError, event.Type)
}

func TestHub_ShutdownReleasesClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := testClient(hub, uuid.New(), RoleObserver)
	require.True(t, hub.Register(client))

	cancel()
	<-stopped

	_, ok := <-client.send
	assert.False(t, ok)

	// operations after shutdown never block
	assert.False(t, hub.Register(testClient(hub, uuid.New(), RoleObserver)))
	hub.Unregister(client)
	hub.Send(client, []byte("late"))
}

func TestEventType_IsTerminal(t *testing.T) {
	assert.True(t, EventCompleted.IsTerminal())
	assert.True(t, EventCancelled.IsTerminal())
	assert.True(t, EventExpired.IsTerminal())
	assert.False(t, EventStepPassed.IsTerminal())
	assert.False(t, EventFrameRejected.IsTerminal())
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleProducer, ParseRole("producer"))
	assert.Equal(t, RoleObserver, ParseRole("observer"))
	assert.Equal(t, RoleObserver, ParseRole(""))
	assert.Equal(t, RoleObserver, ParseRole("admin"))
}
