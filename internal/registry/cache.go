// Package registry holds the in-memory copy of the upstream topology. It
// is the only process-wide mutable cell: one writer (the RegistryUpdated
// handler), many readers, swapped atomically.
package registry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/floorcast/floorcast/internal/domain"
	"github.com/floorcast/floorcast/internal/eventbus"
)

// Cache exposes the current registry. It starts empty and is replaced
// wholesale whenever the upstream connection republishes the topology.
type Cache struct {
	current atomic.Pointer[domain.Registry]
}

// NewCache creates a cache subscribed to RegistryUpdated on the bus.
func NewCache(bus *eventbus.Bus) *Cache {
	c := &Cache{}
	c.current.Store(domain.EmptyRegistry())
	bus.Subscribe(eventbus.KindRegistryUpdated, "registry-cache", c.handleRegistryUpdated)
	return c
}

// Get returns the current registry. Never nil.
func (c *Cache) Get() *domain.Registry {
	return c.current.Load()
}

func (c *Cache) handleRegistryUpdated(ctx context.Context, event eventbus.Event) error {
	updated, ok := event.(eventbus.RegistryUpdated)
	if !ok {
		return fmt.Errorf("unexpected event variant %s", event.Kind())
	}
	if updated.Registry == nil {
		return fmt.Errorf("registry update carried no registry")
	}
	c.current.Store(updated.Registry)
	return nil
}
