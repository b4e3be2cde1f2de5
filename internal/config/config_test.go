package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "elasticsearch", cfg.Search.Driver)
	assert.Equal(t, 5, cfg.Dispatcher.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Dispatcher.ClaimTimeout)
	assert.Equal(t, "content_hash", cfg.Crawler.DedupPolicy)
	assert.Same(t, cfg, GlobalConfig)
}

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatcher.PollInterval)
	assert.Equal(t, 168*time.Hour, cfg.Dispatcher.Retention)
	assert.NotEmpty(t, cfg.Crawler.Feeds)
	assert.Equal(t, []string{"http://127.0.0.1:9200"}, cfg.Search.Addresses)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("CRAWLSYNC_SEARCH_DRIVER", "memory")
	t.Setenv("CRAWLSYNC_DATABASE_DRIVER", "sqlite")
	t.Setenv("CRAWLSYNC_DISPATCHER_POLL_INTERVAL", "2s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Search.Driver)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Dispatcher.PollInterval)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"database driver": "database:\n  driver: oracle\n",
		"search driver":   "search:\n  driver: solr\n",
		"dedup policy":    "crawler:\n  dedup_policy: fuzzy\n",
		"max attempts":    "dispatcher:\n  max_attempts: 0\n",
		"batch size":      "dispatcher:\n  batch_size: 0\n",
		"apply timeout":   "dispatcher:\n  apply_timeout: 0s\n",
		"claim = apply":   "dispatcher:\n  claim_timeout: 10s\n  apply_timeout: 10s\n",
		"claim = 3*apply": "dispatcher:\n  claim_timeout: 30s\n  apply_timeout: 10s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_ClaimTimeoutDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "dispatcher:\n  claim_timeout: 0s\n  apply_timeout: 10s\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.Dispatcher.ClaimTimeout)
	assert.Equal(t, 10*time.Second, cfg.Dispatcher.ApplyTimeout)
}
