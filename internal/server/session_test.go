package server

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/floorcast/floorcast/internal/domain"
	"github.com/floorcast/floorcast/internal/eventbus"
	"github.com/floorcast/floorcast/internal/registry"
	"github.com/floorcast/floorcast/internal/state"
	"github.com/floorcast/floorcast/internal/storage/sqlite"
)

type serverFixture struct {
	bus     *eventbus.Bus
	store   *sqlite.Store
	states  *state.Reconstructor
	manager *SessionManager
	url     string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "floorcast.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := eventbus.New(zap.NewNop())
	t.Cleanup(bus.Close)

	states := state.New(store, store, zap.NewNop())
	registries := registry.NewCache(bus)
	manager := NewSessionManager(bus, states, registries, zap.NewNop())

	srv := httptest.NewServer(manager)
	t.Cleanup(srv.Close)

	return &serverFixture{
		bus:     bus,
		store:   store,
		states:  states,
		manager: manager,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (f *serverFixture) persist(t *testing.T, entityID, externalID, stateValue string, ts time.Time) *domain.Event {
	t.Helper()
	stored, err := f.store.CreateEvent(context.Background(), &domain.Event{
		EntityID:   entityID,
		Domain:     domain.EntityDomain(entityID),
		EventID:    uuid.New(),
		EventType:  "state_changed",
		ExternalID: externalID,
		State:      &stateValue,
		Timestamp:  ts,
	})
	require.NoError(t, err)
	return stored
}

func (f *serverFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) ServerFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame ServerFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame ClientFrame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

// waitSubscribed blocks until the session set for entity_states has the
// given size; subscribe requests are acknowledged only by behavior.
func (f *serverFixture) waitSubscribed(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.manager.mu.Lock()
		defer f.manager.mu.Unlock()
		return len(f.manager.subscriptions[SubscriptionEntityStates]) == n
	}, 5*time.Second, 5*time.Millisecond)
}

func TestSessionJoinSequence(t *testing.T) {
	f := newServerFixture(t)
	f.persist(t, "light.kitchen", "join-1", "on", time.Now().UTC().Add(-time.Minute))

	reg := domain.EmptyRegistry()
	reg.Entities["light.kitchen"] = domain.Entity{ID: "light.kitchen", Domain: "light"}
	f.bus.Publish(eventbus.RegistryUpdated{Registry: reg})
	f.bus.WaitAll()

	conn := f.dial(t)

	connected := readFrame(t, conn)
	assert.Equal(t, frameConnected, connected.Type)
	_, err := uuid.Parse(connected.SessionID)
	assert.NoError(t, err, "session_id must be a uuid")

	registryFrame := readFrame(t, conn)
	assert.Equal(t, frameRegistry, registryFrame.Type)
	require.NotNil(t, registryFrame.Registry)
	assert.Contains(t, registryFrame.Registry.Entities, "light.kitchen")

	snapshot := readFrame(t, conn)
	assert.Equal(t, frameSnapshot, snapshot.Type)
	require.Contains(t, snapshot.State, "light.kitchen")
	assert.Equal(t, "on", *snapshot.State["light.kitchen"].Value)
}

func TestSessionPingPong(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t)

	// Drain the join sequence.
	for i := 0; i < 3; i++ {
		readFrame(t, conn)
	}

	writeFrame(t, conn, ClientFrame{Type: framePing})
	assert.Equal(t, framePong, readFrame(t, conn).Type)
}

func TestSessionSubscribeReceivesStateChanges(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t)
	for i := 0; i < 3; i++ {
		readFrame(t, conn)
	}

	writeFrame(t, conn, ClientFrame{Type: frameSubscribe, Data: SubscriptionEntityStates})
	f.waitSubscribed(t, 1)

	stored := f.persist(t, "sensor.temp", "live-1", "21.5", time.Now().UTC())
	f.bus.Publish(eventbus.EntityStateChanged{
		EntityID: stored.EntityID,
		State:    stored.State,
		Event:    *stored,
	})

	frame := readFrame(t, conn)
	assert.Equal(t, frameStateChange, frame.Type)
	require.NotNil(t, frame.Data)
	assert.Equal(t, stored.Serial, frame.Data.ID)
	assert.Equal(t, "sensor.temp", frame.Data.EntityID)
	assert.Equal(t, "21.5", *frame.Data.State)
	assert.Equal(t, stored.Timestamp.UnixMilli(), frame.Data.Timestamp)
}

func TestSessionWithoutSubscriptionGetsNoStateChanges(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t)
	for i := 0; i < 3; i++ {
		readFrame(t, conn)
	}

	stored := f.persist(t, "sensor.temp", "quiet-1", "20", time.Now().UTC())
	f.bus.Publish(eventbus.EntityStateChanged{
		EntityID: stored.EntityID, State: stored.State, Event: *stored,
	})
	f.bus.WaitAll()

	// A ping answered with a pong proves nothing was queued before it.
	writeFrame(t, conn, ClientFrame{Type: framePing})
	assert.Equal(t, framePong, readFrame(t, conn).Type)
}

func TestSessionUnsubscribeStopsDelivery(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t)
	for i := 0; i < 3; i++ {
		readFrame(t, conn)
	}

	writeFrame(t, conn, ClientFrame{Type: frameSubscribe, Data: SubscriptionEntityStates})
	f.waitSubscribed(t, 1)
	writeFrame(t, conn, ClientFrame{Type: frameUnsubscribe, Data: SubscriptionEntityStates})
	f.waitSubscribed(t, 0)

	stored := f.persist(t, "sensor.temp", "unsub-1", "20", time.Now().UTC())
	f.bus.Publish(eventbus.EntityStateChanged{
		EntityID: stored.EntityID, State: stored.State, Event: *stored,
	})
	f.bus.WaitAll()

	writeFrame(t, conn, ClientFrame{Type: framePing})
	assert.Equal(t, framePong, readFrame(t, conn).Type)
}

func TestSessionProtocolErrorsKeepConnectionOpen(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t)
	for i := 0; i < 3; i++ {
		readFrame(t, conn)
	}

	writeFrame(t, conn, ClientFrame{Type: "teleport"})
	errFrame := readFrame(t, conn)
	assert.Equal(t, frameError, errFrame.Type)
	assert.Contains(t, errFrame.Message, "teleport")

	writeFrame(t, conn, ClientFrame{Type: frameSubscribe, Data: "weather"})
	errFrame = readFrame(t, conn)
	assert.Equal(t, frameError, errFrame.Type)
	assert.Contains(t, errFrame.Message, "weather")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	errFrame = readFrame(t, conn)
	assert.Equal(t, frameError, errFrame.Type)

	// Still alive.
	writeFrame(t, conn, ClientFrame{Type: framePing})
	assert.Equal(t, framePong, readFrame(t, conn).Type)
}

func TestSessionCleanCloseRemovesSession(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t)
	for i := 0; i < 3; i++ {
		readFrame(t, conn)
	}

	writeFrame(t, conn, ClientFrame{Type: frameSubscribe, Data: SubscriptionEntityStates})
	f.waitSubscribed(t, 1)

	// Full close handshake, not a dropped TCP connection.
	require.NoError(t, conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second)))

	// Drain until the server's side of the handshake ends the read stream.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	require.Eventually(t, func() bool { return f.manager.SessionCount() == 0 },
		5*time.Second, 5*time.Millisecond)
	f.waitSubscribed(t, 0)
}

func TestSessionCountTracksConnections(t *testing.T) {
	f := newServerFixture(t)
	assert.Equal(t, 0, f.manager.SessionCount())

	conn := f.dial(t)
	readFrame(t, conn) // connected: the session is fully registered
	require.Eventually(t, func() bool { return f.manager.SessionCount() == 1 },
		5*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.manager.SessionCount() == 0 },
		5*time.Second, 5*time.Millisecond)
}
