// Package server exposes floorcast to subscribers: the websocket session
// manager with its snapshot-then-follow protocol, the timeline endpoint,
// and the HTTP plumbing around them.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/floorcast/floorcast/internal/eventbus"
	"github.com/floorcast/floorcast/internal/registry"
	"github.com/floorcast/floorcast/internal/state"
)

// SessionManager owns the set of open subscriber sessions and the
// per-subscription membership sets. It subscribes once to
// EntityStateChanged and fans out to every session carrying the
// entity_states subscription.
type SessionManager struct {
	states     *state.Reconstructor
	registries *registry.Cache
	log        *zap.Logger
	upgrader   websocket.Upgrader

	mu            sync.Mutex
	sessions      map[uuid.UUID]*session
	subscriptions map[string]map[uuid.UUID]*session
}

// NewSessionManager creates the manager and registers its fan-out handler
// on the bus. The bus owns the handler closure and the manager owns the
// sessions; neither owns the other.
func NewSessionManager(bus *eventbus.Bus, states *state.Reconstructor, registries *registry.Cache, log *zap.Logger) *SessionManager {
	m := &SessionManager{
		states:     states,
		registries: registries,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		sessions: map[uuid.UUID]*session{},
		subscriptions: map[string]map[uuid.UUID]*session{
			SubscriptionEntityStates: {},
		},
	}
	bus.Subscribe(eventbus.KindEntityStateChanged, "session-fanout", m.handleEntityStateChanged)
	return m
}

// ServeHTTP upgrades the connection and runs the session until it ends.
func (m *SessionManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := newSession(conn, m)
	m.addSession(sess)
	m.log.Info("subscriber connected", zap.String("session_id", sess.id.String()))

	sess.run(r.Context())

	m.removeSession(sess)
	m.log.Info("subscriber disconnected", zap.String("session_id", sess.id.String()))
}

// SessionCount returns the number of open sessions.
func (m *SessionManager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) handleEntityStateChanged(ctx context.Context, event eventbus.Event) error {
	change, ok := event.(eventbus.EntityStateChanged)
	if !ok {
		return fmt.Errorf("unexpected event variant %s", event.Kind())
	}

	frame := ServerFrame{
		Type: frameStateChange,
		Data: &StateChange{
			ID:        change.Event.Serial,
			Timestamp: change.Event.Timestamp.UnixMilli(),
			EntityID:  change.Event.EntityID,
			State:     change.State,
			Unit:      change.Event.Unit,
		},
	}

	m.mu.Lock()
	subscribed := make([]*session, 0, len(m.subscriptions[SubscriptionEntityStates]))
	for _, sess := range m.subscriptions[SubscriptionEntityStates] {
		subscribed = append(subscribed, sess)
	}
	m.mu.Unlock()

	// Enqueue never blocks; frames for a session that disconnected in the
	// meantime are dropped silently.
	for _, sess := range subscribed {
		sess.enqueue(frame)
	}
	return nil
}

func (m *SessionManager) addSession(sess *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.id] = sess
}

func (m *SessionManager) removeSession(sess *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sess.id)
	for _, members := range m.subscriptions {
		delete(members, sess.id)
	}
}

// subscribe adds the session to a named subscription set. Idempotent.
// Unknown names are protocol errors.
func (m *SessionManager) subscribe(sess *session, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.subscriptions[name]
	if !ok {
		return fmt.Errorf("unknown subscription %q", name)
	}
	members[sess.id] = sess
	return nil
}

// unsubscribe removes the session from a named subscription set. Idempotent.
func (m *SessionManager) unsubscribe(sess *session, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.subscriptions[name]
	if !ok {
		return fmt.Errorf("unknown subscription %q", name)
	}
	delete(members, sess.id)
	return nil
}
