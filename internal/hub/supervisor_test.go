package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/floorcast/floorcast/internal/eventbus"
	"github.com/floorcast/floorcast/internal/filter"
	"github.com/floorcast/floorcast/internal/ingest"
	"github.com/floorcast/floorcast/internal/registry"
	"github.com/floorcast/floorcast/internal/storage/sqlite"
)

func TestSupervisorReconnectsAndIngests(t *testing.T) {
	var attempts atomic.Int64
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		// First attempt dies before the handshake; the supervisor must
		// back off and try again.
		if attempts.Add(1) == 1 {
			return
		}

		if !authHandshake(t, conn, "secret") {
			return
		}
		if !answerCommands(t, conn, 5) { // registry x4 + subscribe
			return
		}
		if !sendStateChanged(t, conn, "light.kitchen", "sup-1", "on",
			time.Now().UTC().Format(time.RFC3339Nano)) {
			return
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "floorcast.db"))
	require.NoError(t, err)
	defer store.Close()

	bus := eventbus.New(zap.NewNop())
	defer bus.Close()
	registries := registry.NewCache(bus)

	ingested := make(chan int64, 1)
	bus.Subscribe(eventbus.KindEntityStateChanged, "probe",
		func(ctx context.Context, event eventbus.Event) error {
			change := event.(eventbus.EntityStateChanged)
			select {
			case ingested <- change.Event.Serial:
			default:
			}
			return nil
		})

	blocklist, err := filter.NewBlocklist(nil)
	require.NoError(t, err)
	engine := ingest.NewEngine(bus, store, blocklist, zap.NewNop())
	supervisor := NewSupervisor(url, "secret", bus, engine,
		10*time.Millisecond, 50*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()

	var serial int64
	select {
	case serial = <-ingested:
	case <-ctx.Done():
		t.Fatal("no event ingested before timeout")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop on cancel")
	}

	bus.WaitAll()
	assert.GreaterOrEqual(t, attempts.Load(), int64(2), "the failed attempt must be retried")

	stored, err := store.GetEventBySerial(context.Background(), serial)
	require.NoError(t, err)
	assert.Equal(t, "sup-1", stored.ExternalID)

	// The registry fetched during the successful session reached the cache.
	reg := registries.Get()
	assert.Contains(t, reg.Entities, "light.kitchen")
	assert.Contains(t, reg.Floors, "ground")
}

func TestSupervisorStopsImmediatelyOnCancelledContext(t *testing.T) {
	bus := eventbus.New(zap.NewNop())
	defer bus.Close()
	blocklist, err := filter.NewBlocklist(nil)
	require.NoError(t, err)
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "floorcast.db"))
	require.NoError(t, err)
	defer store.Close()

	engine := ingest.NewEngine(bus, store, blocklist, zap.NewNop())
	supervisor := NewSupervisor("ws://127.0.0.1:1/api/websocket", "tok", bus, engine,
		10*time.Millisecond, 50*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = supervisor.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
