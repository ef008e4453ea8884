package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLOORCAST_HA_WEBSOCKET_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.SnapshotIntervalSeconds)
	assert.Equal(t, 5*time.Minute, cfg.SnapshotInterval())
	assert.Equal(t, "ws://homeassistant.local:8123/api/websocket", cfg.HAWebsocketURL)
	assert.Equal(t, "floorcast.db", cfg.DBURI)
	assert.Equal(t, []string{"update.*"}, cfg.EntityBlocklist)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogToConsole)
	assert.Equal(t, ":8000", cfg.ListenAddr)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FLOORCAST_HA_WEBSOCKET_TOKEN", "secret")
	t.Setenv("FLOORCAST_SNAPSHOT_INTERVAL_SECONDS", "60")
	t.Setenv("FLOORCAST_HA_WEBSOCKET_URL", "ws://hub.lan:8123/api/websocket")
	t.Setenv("FLOORCAST_DB_URI", "/var/lib/floorcast/events.db")
	t.Setenv("FLOORCAST_ENTITY_BLOCKLIST", "update.*, sensor.debug_*")
	t.Setenv("FLOORCAST_LOG_LEVEL", "debug")
	t.Setenv("FLOORCAST_LOG_TO_CONSOLE", "true")
	t.Setenv("FLOORCAST_LISTEN_ADDR", ":9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.SnapshotIntervalSeconds)
	assert.Equal(t, "ws://hub.lan:8123/api/websocket", cfg.HAWebsocketURL)
	assert.Equal(t, "/var/lib/floorcast/events.db", cfg.DBURI)
	assert.Equal(t, []string{"update.*", "sensor.debug_*"}, cfg.EntityBlocklist)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogToConsole)
	assert.Equal(t, ":9000", cfg.ListenAddr)
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("FLOORCAST_HA_WEBSOCKET_TOKEN", "")
	_, err := Load()
	assert.ErrorContains(t, err, "FLOORCAST_HA_WEBSOCKET_TOKEN")
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("FLOORCAST_HA_WEBSOCKET_TOKEN", "secret")
	t.Setenv("FLOORCAST_SNAPSHOT_INTERVAL_SECONDS", "0")
	_, err := Load()
	assert.ErrorContains(t, err, "SNAPSHOT_INTERVAL_SECONDS")
}

func TestLoadEmptyBlocklist(t *testing.T) {
	t.Setenv("FLOORCAST_HA_WEBSOCKET_TOKEN", "secret")
	t.Setenv("FLOORCAST_ENTITY_BLOCKLIST", " ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.EntityBlocklist)
}
