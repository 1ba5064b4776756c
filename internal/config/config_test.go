package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
scheduler:
  pollInterval: 2m
  timezone: Europe/Berlin
vectorStore:
  collection: test-gists
feeds:
  - id: 42
    name: heise
    url: https://www.heise.de/security/rss/news.rdf
    categories: [Security]
    extractor: selector
    options:
      selector: div.article-content
`

func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.PollInterval)
	require.Len(t, cfg.Feeds, 1)
	assert.Equal(t, int64(42), cfg.Feeds[0].ID)
	assert.Equal(t, []string{"Security"}, cfg.Feeds[0].Categories)
	assert.Equal(t, "div.article-content", cfg.Feeds[0].Options["selector"])
}

func TestMergeKeepsDefaultsForUnsetFields(t *testing.T) {
	t.Parallel()

	override, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	merged := mergeConfig(defaultConfig(), override)
	assert.Equal(t, "test-gists", merged.VectorStore.Collection)
	assert.Equal(t, "default_tenant", merged.VectorStore.Tenant)
	assert.Equal(t, 4, merged.Ingestion.Workers)
	assert.Equal(t, 2*time.Minute, merged.Scheduler.PollInterval)
	require.Len(t, merged.Feeds, 1)
}

func TestLoadFromFileWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://env/db")
	t.Setenv(llmModelEnv, "gpt-env")
	t.Setenv(logFormatEnv, "json")

	cfg := Load()
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "postgres://env/db", cfg.Database.DSN)
	assert.Equal(t, "gpt-env", cfg.LLM.Model)
	assert.Equal(t, "Europe/Berlin", cfg.Scheduler.Location().String())
	assert.Equal(t, "heise", cfg.Feeds[0].Name)
}

func TestLoadFallsBackOnUnreadableFile(t *testing.T) {
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	assert.Equal(t, defaultConfig().Database.DSN, cfg.Database.DSN)
	assert.NotEmpty(t, cfg.Feeds)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
}
