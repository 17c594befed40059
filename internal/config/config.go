// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Headless HeadlessConfig `mapstructure:"headless"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Prompts  PromptsConfig  `mapstructure:"prompts"`
	Output   OutputConfig   `mapstructure:"output"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PipelineConfig governs batch admission and checkpointing.
type PipelineConfig struct {
	Concurrency          int    `mapstructure:"concurrency"`
	CheckpointPath       string `mapstructure:"checkpoint_path"`
	FlushIntervalSeconds int    `mapstructure:"flush_interval_seconds"`
	LockPath             string `mapstructure:"lock_path"`
}

// CacheConfig sets the cache directory and write retry behavior.
type CacheConfig struct {
	Dir         string `mapstructure:"dir"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	RetryBaseMs int    `mapstructure:"retry_base_ms"`
}

// FetchConfig configures the probe fetcher and per-domain politeness.
type FetchConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	DomainRPS      float64 `mapstructure:"domain_rps"`
	DomainBurst    int     `mapstructure:"domain_burst"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	BodyThreshold int  `mapstructure:"body_threshold"`
}

// LLMConfig points at an OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PromptsConfig locates the numbered prompt templates.
type PromptsConfig struct {
	Dir   string `mapstructure:"dir"`
	Base  string `mapstructure:"base"`
	Count int    `mapstructure:"count"`
}

// OutputConfig controls readout generation.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
// Mode is one of "none", "memory", or "gcp".
type PubSubConfig struct {
	Mode      string `mapstructure:"mode"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// StorageConfig names the optional GCS bucket for readout uploads.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AIPARSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.checkpoint_path", "checkpoint.json")
	v.SetDefault("pipeline.flush_interval_seconds", 30)
	v.SetDefault("pipeline.lock_path", ".aiparser.lock")
	v.SetDefault("cache.dir", "url_cache")
	v.SetDefault("cache.max_attempts", 3)
	v.SetDefault("cache.retry_base_ms", 1000)
	v.SetDefault("fetch.user_agent", "aiparser-bot/0.1")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.domain_rps", 1.0)
	v.SetDefault("fetch.domain_burst", 1)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.body_threshold", 2048)
	// Required and optional string keys default to empty so viper knows
	// them; AutomaticEnv only surfaces keys it has seen.
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("prompts.dir", "prompts")
	v.SetDefault("prompts.base", "prompt")
	v.SetDefault("prompts.count", 1)
	v.SetDefault("output.dir", ".")
	v.SetDefault("pubsub.mode", "none")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.CheckpointPath == "" {
		return fmt.Errorf("pipeline.checkpoint_path is required")
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Prompts.Count <= 0 {
		return fmt.Errorf("prompts.count must be > 0")
	}
	switch c.PubSub.Mode {
	case "", "none", "memory":
	case "gcp":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required in gcp mode")
		}
	default:
		return fmt.Errorf("pubsub.mode must be one of none, memory, gcp")
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics are enabled")
	}
	return nil
}

// FlushInterval converts the checkpoint flush setting into a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.Pipeline.FlushIntervalSeconds) * time.Second
}
