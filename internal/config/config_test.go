package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/botflow/internal/persistence"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "flows", cfg.Store.Dir)
	assert.Equal(t, "BOTFLOW_TOKEN_", cfg.Tokens.EnvPrefix)
	assert.Equal(t, 15*time.Second, cfg.Supervisor.StopTimeout)
	assert.Equal(t, 3, cfg.Supervisor.ConflictRetries)
	assert.Equal(t, 5*time.Second, cfg.Supervisor.ConflictBackoff)
	assert.Equal(t, 3*time.Second, cfg.Supervisor.ErrorBackoff)
	assert.Equal(t, 10, cfg.Supervisor.HistoryDepth)
	assert.Equal(t, 100, cfg.Supervisor.MaxChain)
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.BaseURL)
	assert.Equal(t, 25*time.Second, cfg.Telegram.PollTimeout)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
}

func TestLoad_FileOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("BOTFLOW_TEST_DSN", "redis://localhost:6379/1")
	path := writeFile(t, "botflow.yaml", `
log:
  level: debug
  format: json
store:
  driver: redis
  dsn: ${BOTFLOW_TEST_DSN}
tokens:
  static:
    shop: "1:abc"
supervisor:
  stop_timeout: 2s
  conflict_retries: 0
metrics:
  listen: ""
bots: [shop, cafe]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Store.DSN)
	assert.Equal(t, map[string]string{"shop": "1:abc"}, cfg.Tokens.Static)
	assert.Equal(t, 2*time.Second, cfg.Supervisor.StopTimeout)
	assert.Equal(t, 0, cfg.Supervisor.ConflictRetries)
	assert.Equal(t, 10, cfg.Supervisor.HistoryDepth)
	assert.Empty(t, cfg.Metrics.Listen)
	assert.Equal(t, []string{"shop", "cafe"}, cfg.Bots)

	opts := cfg.StoreOptions()
	assert.Equal(t, persistence.DriverRedis, opts.Driver)
	assert.Equal(t, "botflow:", opts.Prefix)
}

func TestLoad_DotenvFeedsExpansion(t *testing.T) {
	env := writeFile(t, ".env", "BOTFLOW_TEST_DIR_FROM_DOTENV=/srv/flows\n")
	path := writeFile(t, "botflow.yaml", "store:\n  dir: ${BOTFLOW_TEST_DIR_FROM_DOTENV}\n")
	t.Cleanup(func() { os.Unsetenv("BOTFLOW_TEST_DIR_FROM_DOTENV") })

	cfg, err := Load(path, env, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "/srv/flows", cfg.Store.Dir)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown field":   "stroe:\n  driver: file\n",
		"bad driver":      "store:\n  driver: cassandra\n",
		"bad level":       "log:\n  level: loud\n",
		"missing dsn":     "store:\n  driver: postgres\n",
		"zero stop":       "supervisor:\n  stop_timeout: 0s\n",
		"bad url":         "telegram:\n  base_url: not a url\n",
		"empty bot id":    "bots: [shop, \"\"]\n",
		"history too low": "supervisor:\n  history_depth: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("worker_stop_timeout", "bot_id", "shop")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"worker_stop_timeout"`)
	assert.Contains(t, out, `"bot_id":"shop"`)
}
