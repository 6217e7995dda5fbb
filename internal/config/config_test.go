package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/relay/internal/config"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	s := cfg.Settings()
	assert.Equal(t, domain.RouteKnowledge, s.TieBreak)
	assert.Equal(t, 10, s.CompactThreshold)
	assert.Equal(t, 2, s.KeepRecent)
	assert.Equal(t, 30*time.Second, s.CallTimeout)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "relay.yaml", `
log_level: debug
provider:
  name: anthropic
  api_key: sk-test
store:
  kind: file
  dir: /tmp/threads
agents:
  tie_break: quick_answer
  compact_threshold: 20
  turn_timeout: 45s
  retry:
    max_retries: 5
    backoff_base: 50ms
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, "file", cfg.Store.Kind)
	assert.Equal(t, 20, cfg.Agents.CompactThreshold)
	assert.Equal(t, 2, cfg.Agents.KeepRecent, "unset keys keep their defaults")
	assert.Equal(t, 45*time.Second, cfg.Agents.TurnTimeout)
	assert.Equal(t, 5, cfg.Agents.Retry.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Agents.Retry.BackoffBase)
	assert.Equal(t, domain.RouteQuickAnswer, cfg.Settings().TieBreak)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "relay.json", `{"agents": {"top_k": 9}}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Agents.TopK)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "relay.yaml", "store:\n  kind: file\n")
	t.Setenv("RELAY_STORE__KIND", "redis")
	t.Setenv("RELAY_STORE__REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("RELAY_AGENTS__KEEP_RECENT", "4")
	t.Setenv("RELAY_LOG_LEVEL", "warn")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Kind)
	assert.Equal(t, 4, cfg.Agents.KeepRecent)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_VendorKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("RELAY_SEARCH__PROVIDER", "tavily")
	t.Setenv("TAVILY_API_KEY", "tvly-key")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.Provider.APIKey)
	assert.Equal(t, "tvly-key", cfg.Search.APIKey)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RELAY_AGENTS__TOP_K=7\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("RELAY_AGENTS__TOP_K") })

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Agents.TopK)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, "relay.yaml", "store:\n  kind: sqlite\n")
	_, err = config.Load(path)
	assert.True(t, domain.IsConfiguration(err))

	path = writeFile(t, "relay.yaml", "store:\n  kind: redis\n")
	_, err = config.Load(path)
	assert.True(t, domain.IsConfiguration(err), "redis requires a url")

	path = writeFile(t, "relay.yaml", "agents:\n  tie_break: end\n")
	_, err = config.Load(path)
	assert.True(t, domain.IsConfiguration(err))
}
