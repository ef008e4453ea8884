// Package snapshot maintains the rolling state cache and persists snapshots
// of it according to a pluggable policy.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/floorcast/floorcast/internal/domain"
	"github.com/floorcast/floorcast/internal/eventbus"
	"github.com/floorcast/floorcast/internal/state"
	"github.com/floorcast/floorcast/internal/storage"
)

// Manager subscribes to entity state changes, keeps an in-memory copy of
// the full state, and writes snapshots when the policy fires. If no
// snapshot exists yet, the first event triggers one regardless of policy.
type Manager struct {
	snapshots storage.SnapshotStore
	states    *state.Reconstructor
	policy    Policy
	log       *zap.Logger

	mu                  sync.Mutex
	cache               domain.StateMap
	lastSnapshotTime    *time.Time
	lastSnapshotEventID int64
}

// NewManager creates a manager and registers it on the bus.
func NewManager(bus *eventbus.Bus, snapshots storage.SnapshotStore, states *state.Reconstructor, policy Policy, log *zap.Logger) *Manager {
	m := &Manager{
		snapshots: snapshots,
		states:    states,
		policy:    policy,
		log:       log,
		cache:     domain.StateMap{},
	}
	bus.Subscribe(eventbus.KindEntityStateChanged, "snapshot-manager", m.handleEntityStateChanged)
	return m
}

// Initialize seeds the state cache and snapshot bookkeeping from the
// current reconstructed state. Call once before ingestion starts.
func (m *Manager) Initialize(ctx context.Context) error {
	current, err := m.states.GetStateAt(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("seed snapshot manager: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = current.State
	m.lastSnapshotTime = current.SnapshotTime
	if current.LastEventID != nil {
		m.lastSnapshotEventID = *current.LastEventID
	}
	return nil
}

func (m *Manager) handleEntityStateChanged(ctx context.Context, event eventbus.Event) error {
	change, ok := event.(eventbus.EntityStateChanged)
	if !ok {
		return fmt.Errorf("unexpected event variant %s", event.Kind())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The cache updates before the snapshot decision, so a persisted
	// snapshot always includes the event whose serial anchors it.
	m.cache[change.EntityID] = domain.EntityState{
		Value: change.State,
		Unit:  change.Event.Unit,
	}

	eventsSinceSnapshot := change.Event.Serial - m.lastSnapshotEventID
	if m.lastSnapshotTime != nil && !m.policy.ShouldSnapshot(eventsSinceSnapshot, *m.lastSnapshotTime) {
		return nil
	}

	snap, err := m.snapshots.CreateSnapshot(ctx, &domain.Snapshot{
		State:       m.cache.Clone(),
		LastEventID: change.Event.Serial,
	})
	if err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	m.lastSnapshotTime = &snap.CreatedAt
	m.lastSnapshotEventID = snap.LastEventID
	m.log.Info("snapshot taken",
		zap.Int64("snapshot_id", snap.ID),
		zap.Int64("last_event_id", snap.LastEventID),
		zap.Int("entities", len(snap.State)))
	return nil
}
