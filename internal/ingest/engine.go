// Package ingest drives the upstream event pipeline: filter, persist,
// publish.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/floorcast/floorcast/internal/domain"
	"github.com/floorcast/floorcast/internal/eventbus"
	"github.com/floorcast/floorcast/internal/filter"
	"github.com/floorcast/floorcast/internal/storage"
)

// Source yields raw upstream events. It is finite: Next returns an error
// when the upstream connection closes. Sources are not restartable; the
// reconnect supervisor creates a fresh one per attempt.
type Source interface {
	Next(ctx context.Context) (*domain.Event, error)
}

// Engine consumes a source until it ends, dropping blocked entities,
// persisting the rest, and publishing an EntityStateChanged for each.
type Engine struct {
	bus       *eventbus.Bus
	events    storage.EventStore
	blocklist *filter.Blocklist
	log       *zap.Logger
}

// NewEngine assembles the ingestion pipeline.
func NewEngine(bus *eventbus.Bus, events storage.EventStore, blocklist *filter.Blocklist, log *zap.Logger) *Engine {
	return &Engine{bus: bus, events: events, blocklist: blocklist, log: log}
}

// Run processes events from src until the source ends or a persist fails.
// Its error tears the current stream down so the reconnect supervisor can
// restart it.
//
// Duplicate events (same external_id) are persisted as no-ops and still
// published: the serial carried downstream matches the first successful
// persist, which lets subscribers dedupe by serial.
func (e *Engine) Run(ctx context.Context, src Source) error {
	e.log.Info("ingestion started")
	for {
		event, err := src.Next(ctx)
		if err != nil {
			return fmt.Errorf("event source ended: %w", err)
		}

		if e.blocklist.ShouldBlock(event.EntityID) {
			e.log.Debug("event blocked", zap.String("entity_id", event.EntityID))
			continue
		}

		stored, err := e.events.CreateEvent(ctx, event)
		if err != nil {
			e.log.Error("event persist failed",
				zap.String("entity_id", event.EntityID),
				zap.String("external_id", event.ExternalID),
				zap.Error(err))
			return fmt.Errorf("persist event: %w", err)
		}

		e.log.Info("event persisted",
			zap.String("event_id", stored.EventID.String()),
			zap.String("entity_id", stored.EntityID),
			zap.Int64("serial", stored.Serial),
			zap.String("event_type", stored.EventType))

		e.bus.Publish(eventbus.EntityStateChanged{
			EntityID: stored.EntityID,
			State:    stored.State,
			Event:    *stored,
		})
	}
}
