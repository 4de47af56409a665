package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENGINE_FEED_URL", "wss://feed.example/ws")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "wss://feed.example/ws", cfg.Feed.URL)
	assert.Equal(t, time.Second, cfg.Feed.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.Feed.MaxReconnectDelay)
	assert.Equal(t, `{"type":"RequestSnapshot"}`, cfg.Feed.SnapshotRequest)

	assert.Equal(t, 100, cfg.Aggregate.RecentTradesCap)
	assert.Equal(t, time.Minute, cfg.Aggregate.Window)
	assert.Equal(t, uint64(74_000_000_000), cfg.Aggregate.GraduationTarget)
	assert.Equal(t, 0.85, cfg.Aggregate.GraduatingAt)
	assert.Equal(t, 20, cfg.Aggregate.ClassLimit)

	assert.Equal(t, 6, cfg.Navigator.StackSize)
	assert.Equal(t, 3, cfg.Navigator.Threshold)
	assert.Equal(t, 3, cfg.Navigator.Batch)

	assert.False(t, cfg.Fills.Enabled)
	assert.Equal(t, "confirmed_fills", cfg.Fills.Queue)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 50.0, cfg.Server.RateLimit)
	assert.Equal(t, 100, cfg.Server.RateBurst)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
feed:
  url: ws://localhost:7000/feed
  subscribe_messages:
    - '{"method":"subscribeNewToken"}'
    - '{"method":"subscribeTokenTrade"}'
  reconnect_delay: 2s
aggregate:
  window: 30s
cache:
  backend: redis
  redis_addr: redis:6379
logging:
  format: json
`)
	t.Setenv("ENGINE_SERVER_ADDR", ":9191")
	t.Setenv("ENGINE_NAVIGATOR_STACK_SIZE", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9191", cfg.Server.Addr, "environment wins over the file")
	assert.Equal(t, 8, cfg.Navigator.StackSize)
	assert.Equal(t, "ws://localhost:7000/feed", cfg.Feed.URL)
	assert.Equal(t, []string{`{"method":"subscribeNewToken"}`, `{"method":"subscribeTokenTrade"}`}, cfg.Feed.SubscribeMessages)
	assert.Equal(t, 2*time.Second, cfg.Feed.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.Aggregate.Window)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing feed url", map[string]string{}},
		{"http feed url", map[string]string{"ENGINE_FEED_URL": "http://feed"}},
		{"backoff cap below base", map[string]string{"ENGINE_FEED_URL": "ws://feed", "ENGINE_FEED_MAX_RECONNECT_DELAY": "100ms"}},
		{"graduating threshold", map[string]string{"ENGINE_FEED_URL": "ws://feed", "ENGINE_AGGREGATE_GRADUATING_AT": "1.5"}},
		{"unknown cache backend", map[string]string{"ENGINE_FEED_URL": "ws://feed", "ENGINE_CACHE_BACKEND": "memcached"}},
		{"unknown log format", map[string]string{"ENGINE_FEED_URL": "ws://feed", "ENGINE_LOGGING_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENGINE_FEED_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
