package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "5s" and "30m" parse.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// CompanionConfig represents the top-level companion.yml configuration.
type CompanionConfig struct {
	Version  string         `yaml:"version"`
	Instance string         `yaml:"instance"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
	Qdrant   QdrantConfig   `yaml:"qdrant,omitempty"`
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Memory   MemoryConfig   `yaml:"memory,omitempty"`
	Language LanguageConfig `yaml:"language,omitempty"`
	Emotion  EmotionConfig  `yaml:"emotion,omitempty"`
}

// RedisConfig specifies the shared message bus connection.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// PostgresConfig specifies long-term memory storage. An empty DSN disables
// the episodic store and personality persistence.
type PostgresConfig struct {
	DSN string `yaml:"dsn,omitempty"`
}

// QdrantConfig specifies the vector index. An empty host disables the
// semantic store.
type QdrantConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// GatewayConfig specifies the gateway service.
type GatewayConfig struct {
	Listen             string   `yaml:"listen,omitempty"`
	MemoryManagerURL   string   `yaml:"memory_manager_url,omitempty"`
	ResponseTimeout    Duration `yaml:"response_timeout,omitempty"`
	PublishTimeout     Duration `yaml:"publish_timeout,omitempty"`
	MemoryFetchTimeout Duration `yaml:"memory_fetch_timeout,omitempty"`
	StalenessThreshold Duration `yaml:"staleness_threshold,omitempty"`
}

// MemoryConfig specifies the memory manager service.
type MemoryConfig struct {
	Listen                string   `yaml:"listen,omitempty"`
	ConsolidationInterval Duration `yaml:"consolidation_interval,omitempty"`
	EmbedWorkers          int      `yaml:"embed_workers,omitempty"`
}

// LanguageConfig specifies the language worker.
type LanguageConfig struct {
	Listen            string   `yaml:"listen,omitempty"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval,omitempty"`
}

// EmotionConfig specifies the emotion worker.
type EmotionConfig struct {
	Listen            string   `yaml:"listen,omitempty"`
	TransitionSpeed   float64  `yaml:"transition_speed,omitempty"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval,omitempty"`
}

// Default returns the built-in configuration: a single "bodhi" instance on
// local backends.
func Default() *CompanionConfig {
	return &CompanionConfig{
		Version:  "1.0",
		Instance: "bodhi",
		Redis:    RedisConfig{URL: "redis://localhost:6379"},
		Qdrant:   QdrantConfig{Port: 6334, Collection: "memories"},
		Gateway: GatewayConfig{
			Listen:             ":8000",
			MemoryManagerURL:   "http://localhost:8001",
			ResponseTimeout:    Duration{5 * time.Second},
			PublishTimeout:     Duration{2 * time.Second},
			MemoryFetchTimeout: Duration{1 * time.Second},
			StalenessThreshold: Duration{60 * time.Second},
		},
		Memory: MemoryConfig{
			Listen:                ":8001",
			ConsolidationInterval: Duration{30 * time.Minute},
			EmbedWorkers:          4,
		},
		Language: LanguageConfig{
			Listen:            ":8002",
			HeartbeatInterval: Duration{30 * time.Second},
		},
		Emotion: EmotionConfig{
			Listen:            ":8003",
			TransitionSpeed:   0.1,
			HeartbeatInterval: Duration{30 * time.Second},
		},
	}
}

// Validate performs strict validation on the configuration and fills in
// defaults for omitted fields.
func (c *CompanionConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}
	if c.Instance == "" {
		return fmt.Errorf("instance is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if c.Emotion.TransitionSpeed < 0 {
		return fmt.Errorf("emotion.transition_speed must be >= 0, got %v", c.Emotion.TransitionSpeed)
	}
	if c.Qdrant.Host != "" && c.Qdrant.Collection == "" {
		return fmt.Errorf("qdrant.collection is required when qdrant.host is set")
	}

	defaults := Default()
	if c.Gateway.Listen == "" {
		c.Gateway.Listen = defaults.Gateway.Listen
	}
	if c.Gateway.MemoryManagerURL == "" {
		c.Gateway.MemoryManagerURL = defaults.Gateway.MemoryManagerURL
	}
	if c.Gateway.ResponseTimeout.Duration == 0 {
		c.Gateway.ResponseTimeout = defaults.Gateway.ResponseTimeout
	}
	if c.Gateway.PublishTimeout.Duration == 0 {
		c.Gateway.PublishTimeout = defaults.Gateway.PublishTimeout
	}
	if c.Gateway.MemoryFetchTimeout.Duration == 0 {
		c.Gateway.MemoryFetchTimeout = defaults.Gateway.MemoryFetchTimeout
	}
	if c.Gateway.StalenessThreshold.Duration == 0 {
		c.Gateway.StalenessThreshold = defaults.Gateway.StalenessThreshold
	}
	if c.Memory.Listen == "" {
		c.Memory.Listen = defaults.Memory.Listen
	}
	if c.Memory.ConsolidationInterval.Duration == 0 {
		c.Memory.ConsolidationInterval = defaults.Memory.ConsolidationInterval
	}
	if c.Memory.EmbedWorkers == 0 {
		c.Memory.EmbedWorkers = defaults.Memory.EmbedWorkers
	}
	if c.Language.Listen == "" {
		c.Language.Listen = defaults.Language.Listen
	}
	if c.Language.HeartbeatInterval.Duration == 0 {
		c.Language.HeartbeatInterval = defaults.Language.HeartbeatInterval
	}
	if c.Emotion.Listen == "" {
		c.Emotion.Listen = defaults.Emotion.Listen
	}
	if c.Emotion.TransitionSpeed == 0 {
		c.Emotion.TransitionSpeed = defaults.Emotion.TransitionSpeed
	}
	if c.Emotion.HeartbeatInterval.Duration == 0 {
		c.Emotion.HeartbeatInterval = defaults.Emotion.HeartbeatInterval
	}
	if c.Qdrant.Host != "" && c.Qdrant.Port == 0 {
		c.Qdrant.Port = defaults.Qdrant.Port
	}

	return nil
}

// applyEnv overlays environment variables onto the configuration.
// Environment wins over file contents so deployments can point one image at
// different backends.
func (c *CompanionConfig) applyEnv() error {
	if v := os.Getenv("BODHI_INSTANCE"); v != "" {
		c.Instance = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		c.Qdrant.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid QDRANT_PORT %q: %w", v, err)
		}
		c.Qdrant.Port = port
	}
	return nil
}

// Load reads and validates companion.yml from the specified path, applying
// environment overrides on top.
func Load(path string) (*CompanionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config CompanionConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads the file when path is non-empty, otherwise starts from
// the built-in defaults. Environment overrides apply either way.
func LoadOrDefault(path string) (*CompanionConfig, error) {
	if path != "" {
		return Load(path)
	}

	config := Default()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
