package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyfong/aiparserpipeline/internal/config"
)

func validYAML() string {
	return `
llm:
  base_url: http://localhost:8000/v1
  model: test-model
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aiparser.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML()))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, "checkpoint.json", cfg.Pipeline.CheckpointPath)
	assert.Equal(t, "url_cache", cfg.Cache.Dir)
	assert.Equal(t, 3, cfg.Cache.MaxAttempts)
	assert.Equal(t, 15, cfg.Fetch.TimeoutSeconds)
	assert.False(t, cfg.Headless.Enabled)
	assert.Equal(t, 1, cfg.Prompts.Count)
	assert.Equal(t, "none", cfg.PubSub.Mode)
	assert.Equal(t, 120, cfg.LLM.TimeoutSeconds)
	assert.True(t, cfg.Logging.Development)
}

func TestLoad_OverridesFromFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML()+`
pipeline:
  concurrency: 8
  checkpoint_path: /tmp/ckpt.json
prompts:
  count: 3
`))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, "/tmp/ckpt.json", cfg.Pipeline.CheckpointPath)
	assert.Equal(t, 3, cfg.Prompts.Count)
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	t.Setenv("AIPARSER_LLM_BASE_URL", "https://llm.internal/v1")
	t.Setenv("AIPARSER_LLM_MODEL", "parse-model")
	t.Setenv("AIPARSER_LLM_API_KEY", "secret")
	t.Setenv("AIPARSER_PIPELINE_CONCURRENCY", "6")
	t.Setenv("AIPARSER_STORAGE_GCS_BUCKET", "readouts")

	// No config file at all: the environment alone must satisfy the
	// required keys.
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://llm.internal/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "parse-model", cfg.LLM.Model)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, 6, cfg.Pipeline.Concurrency)
	assert.Equal(t, "readouts", cfg.Storage.GCSBucket)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		cfg, err := config.Load(writeConfig(t, validYAML()))
		require.NoError(t, err)
		return cfg
	}

	t.Run("ZeroConcurrency", func(t *testing.T) {
		cfg := base()
		cfg.Pipeline.Concurrency = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("MissingModel", func(t *testing.T) {
		cfg := base()
		cfg.LLM.Model = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("HeadlessEnabledWithoutParallelism", func(t *testing.T) {
		cfg := base()
		cfg.Headless.Enabled = true
		cfg.Headless.MaxParallel = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("GCPModeNeedsProjectAndTopic", func(t *testing.T) {
		cfg := base()
		cfg.PubSub.Mode = "gcp"
		assert.Error(t, cfg.Validate())

		cfg.PubSub.ProjectID = "proj"
		cfg.PubSub.TopicName = "topic"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("UnknownPubSubMode", func(t *testing.T) {
		cfg := base()
		cfg.PubSub.Mode = "kafka"
		assert.Error(t, cfg.Validate())
	})
}
