// Command floorcast runs the event-sourced smart-home state engine: it
// ingests entity state changes from an upstream hub websocket, persists
// them to SQLite, and serves reconstructed state to subscribers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/floorcast/floorcast/internal/config"
	"github.com/floorcast/floorcast/internal/eventbus"
	"github.com/floorcast/floorcast/internal/filter"
	"github.com/floorcast/floorcast/internal/hub"
	"github.com/floorcast/floorcast/internal/ingest"
	"github.com/floorcast/floorcast/internal/logging"
	"github.com/floorcast/floorcast/internal/registry"
	"github.com/floorcast/floorcast/internal/server"
	"github.com/floorcast/floorcast/internal/snapshot"
	"github.com/floorcast/floorcast/internal/state"
	"github.com/floorcast/floorcast/internal/storage/sqlite"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const (
	reconnectInitial = 2 * time.Second
	reconnectLimit   = 60 * time.Second
)

func main() {
	root := &cobra.Command{
		Use:   "floorcast",
		Short: "Event-sourced smart-home state engine",
		Long: `Floorcast ingests entity state changes from a hub websocket into a
durable SQLite event log, maintains periodic snapshots, and serves
point-in-time state and live updates to websocket subscribers.

All configuration comes from FLOORCAST_-prefixed environment variables;
FLOORCAST_HA_WEBSOCKET_TOKEN is required.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the engine (same as the bare command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "floorcast: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogToConsole)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("floorcast starting",
		zap.String("version", Version),
		zap.String("db_uri", cfg.DBURI),
		zap.String("listen_addr", cfg.ListenAddr))

	store, err := sqlite.Open(ctx, cfg.DBURI)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer func() { _ = store.Close() }()

	blocklist, err := filter.NewBlocklist(cfg.EntityBlocklist)
	if err != nil {
		return fmt.Errorf("compile entity blocklist: %w", err)
	}

	bus := eventbus.New(log)
	defer bus.Close()

	states := state.New(store, store, log)
	registries := registry.NewCache(bus)

	policy := snapshot.NewElapsedTime(cfg.SnapshotInterval())
	manager := snapshot.NewManager(bus, store, states, policy, log)
	if err := manager.Initialize(ctx); err != nil {
		return err
	}

	engine := ingest.NewEngine(bus, store, blocklist, log)
	supervisor := hub.NewSupervisor(
		cfg.HAWebsocketURL, cfg.HAWebsocketToken,
		bus, engine, reconnectInitial, reconnectLimit, log)

	sessions := server.NewSessionManager(bus, states, registries, log)
	srv := server.NewServer(cfg.ListenAddr, sessions, states, store, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	g.Go(func() error { return supervisor.Run(ctx) })

	err = g.Wait()
	bus.WaitAll()
	if err != nil && ctx.Err() != nil {
		log.Info("floorcast stopped")
		return nil
	}
	return err
}
