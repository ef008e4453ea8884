// Package storage provides the interfaces and shared errors for the event
// log and snapshot stores.
//
// The concrete implementation lives in the sqlite sub-package. Consumers
// depend on these interfaces rather than on the concrete type so that
// alternative implementations (mocks, in-memory stores) can be substituted.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/floorcast/floorcast/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// EventStore is the durable append-only event log keyed by a monotonic
// serial and deduplicated by the upstream external id.
type EventStore interface {
	// CreateEvent inserts the event and assigns its serial. Inserting a
	// second event with the same external id is an idempotent upsert: the
	// original row is returned unchanged, serial included.
	CreateEvent(ctx context.Context, event *domain.Event) (*domain.Event, error)

	// GetEventBySerial returns the event with the given serial, or
	// ErrNotFound.
	GetEventBySerial(ctx context.Context, serial int64) (*domain.Event, error)

	// GetTimelineBetween returns events strictly after afterSerial whose
	// timestamp is before beforeTime, ordered by (timestamp, serial)
	// ascending.
	GetTimelineBetween(ctx context.Context, afterSerial int64, beforeTime time.Time) ([]domain.CompactEvent, error)
}

// SnapshotStore persists whole-state snapshots anchored at a serial.
type SnapshotStore interface {
	// CreateSnapshot inserts the snapshot, assigning its id and created_at
	// (server clock, UTC). The returned snapshot is re-read from the store
	// so callers observe the authoritative created_at.
	CreateSnapshot(ctx context.Context, snapshot *domain.Snapshot) (*domain.Snapshot, error)

	// GetSnapshotByID returns the snapshot with the given id, or ErrNotFound.
	GetSnapshotByID(ctx context.Context, id int64) (*domain.Snapshot, error)

	// GetLatestSnapshot returns the newest snapshot by id, or ErrNotFound
	// when none exist.
	GetLatestSnapshot(ctx context.Context) (*domain.Snapshot, error)

	// GetSnapshotBefore returns the snapshot with the greatest created_at
	// strictly before t, or ErrNotFound.
	GetSnapshotBefore(ctx context.Context, t time.Time) (*domain.Snapshot, error)
}

// Store combines both stores; the sqlite implementation satisfies it with a
// single database handle that serializes its own writes.
type Store interface {
	EventStore
	SnapshotStore
	Close() error
}
