// Package config loads floorcast settings from FLOORCAST_-prefixed
// environment variables.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries every runtime option.
type Config struct {
	SnapshotIntervalSeconds int
	HAWebsocketToken        string
	HAWebsocketURL          string
	DBURI                   string
	EntityBlocklist         []string
	LogLevel                string
	LogToConsole            bool
	ListenAddr              string
}

// Load reads the environment. Viper precedence applies: env over default.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLOORCAST")
	v.AutomaticEnv()

	v.SetDefault("snapshot_interval_seconds", 300)
	v.SetDefault("ha_websocket_url", "ws://homeassistant.local:8123/api/websocket")
	v.SetDefault("db_uri", "floorcast.db")
	v.SetDefault("entity_blocklist", "update.*")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_to_console", false)
	v.SetDefault("listen_addr", ":8000")

	cfg := &Config{
		SnapshotIntervalSeconds: v.GetInt("snapshot_interval_seconds"),
		HAWebsocketToken:        v.GetString("ha_websocket_token"),
		HAWebsocketURL:          v.GetString("ha_websocket_url"),
		DBURI:                   v.GetString("db_uri"),
		EntityBlocklist:         splitList(v.GetString("entity_blocklist")),
		LogLevel:                v.GetString("log_level"),
		LogToConsole:            v.GetBool("log_to_console"),
		ListenAddr:              v.GetString("listen_addr"),
	}

	if cfg.HAWebsocketToken == "" {
		return nil, errors.New("FLOORCAST_HA_WEBSOCKET_TOKEN is required")
	}
	if cfg.SnapshotIntervalSeconds <= 0 {
		return nil, errors.New("FLOORCAST_SNAPSHOT_INTERVAL_SECONDS must be positive")
	}
	return cfg, nil
}

// SnapshotInterval returns the snapshot policy interval as a duration.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSeconds) * time.Second
}

// splitList parses a comma-separated env value into patterns. An explicitly
// empty value means an empty blocklist.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
