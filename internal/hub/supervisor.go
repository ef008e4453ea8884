package hub

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/floorcast/floorcast/internal/eventbus"
	"github.com/floorcast/floorcast/internal/ingest"
)

// Supervisor keeps one upstream session alive: connect, fetch and publish
// the registry, subscribe, then hand the stream to the ingestion engine.
// On any failure it waits out an exponential backoff and retries with a
// fresh connection; the backoff resets after each successful connection.
type Supervisor struct {
	url    string
	token  string
	bus    *eventbus.Bus
	engine *ingest.Engine
	log    *zap.Logger

	initial time.Duration
	limit   time.Duration
}

// NewSupervisor wraps the upstream endpoint with reconnect handling.
// initial and limit bound the backoff between attempts.
func NewSupervisor(url, token string, bus *eventbus.Bus, engine *ingest.Engine, initial, limit time.Duration, log *zap.Logger) *Supervisor {
	return &Supervisor{
		url:     url,
		token:   token,
		bus:     bus,
		engine:  engine,
		log:     log,
		initial: initial,
		limit:   limit,
	}
}

// Run blocks until ctx is cancelled, reconnecting forever.
func (s *Supervisor) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initial
	bo.MaxInterval = s.limit
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		err := s.runSession(ctx, bo.Reset)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := bo.NextBackOff()
		if errors.Is(err, ErrAuth) {
			s.log.Error("upstream rejected credentials; check FLOORCAST_HA_WEBSOCKET_TOKEN",
				zap.Duration("retry_in", wait))
		} else {
			s.log.Warn("upstream connection lost",
				zap.Error(err), zap.Duration("retry_in", wait))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// runSession drives a single connection. onUp is called once the session is
// fully established (auth, registry, subscribe), which resets the backoff.
func (s *Supervisor) runSession(ctx context.Context, onUp func()) error {
	client, err := Dial(ctx, s.url, s.token, s.log)
	if err != nil {
		return err
	}
	defer client.Close()

	// Cancelling ctx closes the connection, which unblocks any pending
	// read and ends the ingestion stream.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	reg, err := client.FetchRegistry(ctx)
	if err != nil {
		return err
	}
	s.bus.Publish(eventbus.RegistryUpdated{Registry: reg})

	if err := client.SubscribeEvents(ctx); err != nil {
		return err
	}

	onUp()
	s.log.Info("connected to upstream hub", zap.String("url", s.url))
	return s.engine.Run(ctx, client)
}
