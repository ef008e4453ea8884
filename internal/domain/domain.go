// Package domain holds the value types shared across floorcast: the
// event-sourced Event and Snapshot records, the reconstructed state view,
// and the upstream topology registry.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is one upstream state change as recorded in the event log.
// Serial is assigned by the log on insert and is the primary ordering key.
// ExternalID is the upstream-minted identifier used for deduplication.
type Event struct {
	Serial     int64          `json:"id"`
	EntityID   string         `json:"entity_id"`
	Domain     string         `json:"domain"`
	EventID    uuid.UUID      `json:"event_id"`
	EventType  string         `json:"event_type"`
	ExternalID string         `json:"external_id"`
	State      *string        `json:"state"`
	Unit       *string        `json:"unit"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data"`
	Metadata   map[string]any `json:"metadata"`
}

// CompactEvent is the minimal projection used for timeline replay. It drops
// the Data/Metadata payloads to keep replay cheap. Timestamp is unix
// milliseconds.
type CompactEvent struct {
	Serial    int64   `json:"id"`
	EntityID  string  `json:"entity_id"`
	Timestamp int64   `json:"timestamp"`
	State     *string `json:"state"`
	Unit      *string `json:"unit"`
}

// EntityState is the current value and unit of a single entity.
type EntityState struct {
	Value *string `json:"value"`
	Unit  *string `json:"unit"`
}

// StateMap maps entity ids to their current state.
type StateMap map[string]EntityState

// Clone returns an independent copy. Callers of the state reconstructor
// mutate the returned map, so snapshot state must never be aliased.
func (m StateMap) Clone() StateMap {
	out := make(StateMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Snapshot is a point-in-time full state anchored at the serial of the
// newest event folded in.
type Snapshot struct {
	ID          int64     `json:"id"`
	LastEventID int64     `json:"last_event_id"`
	State       StateMap  `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReconstructedState is the result of replaying events on top of the
// nearest snapshot. LastEventID is nil only when neither a snapshot nor
// any events exist.
type ReconstructedState struct {
	State        StateMap   `json:"state"`
	LastEventID  *int64     `json:"last_event_id"`
	SnapshotID   *int64     `json:"snapshot_id"`
	SnapshotTime *time.Time `json:"snapshot_time"`
}

// EntityDomain returns the leading component of a dotted entity id,
// e.g. "light" for "light.kitchen".
func EntityDomain(entityID string) string {
	domain, _, _ := strings.Cut(entityID, ".")
	return domain
}
