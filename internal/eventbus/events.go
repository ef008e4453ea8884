package eventbus

import (
	"github.com/floorcast/floorcast/internal/domain"
)

// Kind identifies an event variant flowing through the bus. Subscription
// keys are variant tags, not Go types, so the taxonomy stays closed.
type Kind string

const (
	KindEntityStateChanged Kind = "entity_state_changed"
	KindRegistryUpdated    Kind = "registry_updated"
	KindStateReconstructed Kind = "state_reconstructed"
)

// Event is the closed union of bus event variants.
type Event interface {
	Kind() Kind
}

// EntityStateChanged is published by the ingestion engine for every
// persisted upstream state change.
type EntityStateChanged struct {
	EntityID string
	State    *string
	Event    domain.Event
}

func (EntityStateChanged) Kind() Kind { return KindEntityStateChanged }

// RegistryUpdated is published after every successful upstream connection
// with a freshly fetched topology registry.
type RegistryUpdated struct {
	Registry *domain.Registry
}

func (RegistryUpdated) Kind() Kind { return KindRegistryUpdated }

// StateReconstructed is published when a full state view has been rebuilt.
type StateReconstructed struct {
	State       domain.StateMap
	LastEventID int64
}

func (StateReconstructed) Kind() Kind { return KindStateReconstructed }
