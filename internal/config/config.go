// Package config loads crowdwise configuration from an optional YAML
// file overlaid with environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names for embedding and LLM backends.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Embedding provider
	EmbedProvider  string `yaml:"embed_provider"`
	EmbedModel     string `yaml:"embed_model"`
	EmbedDimension int    `yaml:"embed_dimension"`

	// LLM (judge + response generation)
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OllamaHost      string `yaml:"ollama_host"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// Timeout per provider call; a timeout counts as a provider failure.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// Clustering
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	CentroidAlpha       float64 `yaml:"centroid_alpha"`
	MaxClusters         int     `yaml:"max_clusters"`
	MergeThreshold      float64 `yaml:"merge_threshold"`

	// Feedback classification
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MinFeedbackLength   int     `yaml:"min_feedback_length"`

	// Feedback attribution
	AttributionWindow time.Duration `yaml:"attribution_window"`
	MaxCandidates     int           `yaml:"max_candidates"`
	MinAttribution    float64       `yaml:"min_attribution"`

	// Watchdog
	QualityThreshold  float64 `yaml:"quality_threshold"`
	MinSampleSize     int     `yaml:"min_sample_size"`
	MaxClustersPerRun int     `yaml:"max_clusters_per_run"`
	MaxQuerySamples   int     `yaml:"max_query_samples"`

	// Audit sink
	AuditQueueSize int `yaml:"audit_queue_size"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Defaults returns the built-in configuration.
//
// SimilarityThreshold defaults to 0.75: the stricter of the two values
// observed in production keeps clusters topically tight, and the merge
// pass cleans up any resulting near-duplicates.
func Defaults() Config {
	return Config{
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "crowdwise",
		SurrealDBDatabase:  "learning",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		EmbedProvider:  ProviderOllama,
		EmbedModel:     "all-minilm:l6-v2",
		EmbedDimension: 384,

		LLMProvider: ProviderOllama,
		LLMModel:    "llama3.2",
		OllamaHost:  "http://localhost:11434",

		ProviderTimeout: 30 * time.Second,

		SimilarityThreshold: 0.75,
		CentroidAlpha:       0.1,
		MaxClusters:         500,
		MergeThreshold:      0.9,

		ConfidenceThreshold: 0.7,
		MinFeedbackLength:   5,

		AttributionWindow: 30 * time.Minute,
		MaxCandidates:     10,
		MinAttribution:    0.3,

		QualityThreshold:  0.7,
		MinSampleSize:     5,
		MaxClustersPerRun: 10,
		MaxQuerySamples:   5,

		AuditQueueSize: 1000,

		LogFile:  "/tmp/crowdwise.log",
		LogLevel: slog.LevelInfo,
	}
}

// Load reads configuration: defaults, then the YAML file at
// CROWDWISE_CONFIG (if set and readable), then environment variables.
// Env always wins over file values.
func Load() Config {
	cfg := Defaults()

	if path := os.Getenv("CROWDWISE_CONFIG"); path != "" {
		if err := loadFile(&cfg, path); err != nil {
			slog.Warn("config file ignored", "path", path, "error", err)
		}
	}

	applyEnv(&cfg)
	return cfg
}

// loadFile overlays YAML values onto cfg.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setStr(&cfg.SurrealDBURL, "SURREALDB_URL")
	setStr(&cfg.SurrealDBNamespace, "SURREALDB_NAMESPACE")
	setStr(&cfg.SurrealDBDatabase, "SURREALDB_DATABASE")
	setStr(&cfg.SurrealDBUser, "SURREALDB_USER")
	setStr(&cfg.SurrealDBPass, "SURREALDB_PASS")
	setStr(&cfg.SurrealDBAuthLevel, "SURREALDB_AUTH_LEVEL")

	setStr(&cfg.EmbedProvider, "CROWDWISE_EMBED_PROVIDER")
	setStr(&cfg.EmbedModel, "CROWDWISE_EMBED_MODEL")
	setInt(&cfg.EmbedDimension, "CROWDWISE_EMBED_DIMENSION")

	setStr(&cfg.LLMProvider, "CROWDWISE_LLM_PROVIDER")
	setStr(&cfg.LLMModel, "CROWDWISE_LLM_MODEL")
	setStr(&cfg.OllamaHost, "OLLAMA_HOST")
	setStr(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setStr(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")

	setDur(&cfg.ProviderTimeout, "CROWDWISE_PROVIDER_TIMEOUT")

	setFloat(&cfg.SimilarityThreshold, "CROWDWISE_SIMILARITY_THRESHOLD")
	setFloat(&cfg.CentroidAlpha, "CROWDWISE_CENTROID_ALPHA")
	setInt(&cfg.MaxClusters, "CROWDWISE_MAX_CLUSTERS")
	setFloat(&cfg.MergeThreshold, "CROWDWISE_MERGE_THRESHOLD")

	setFloat(&cfg.ConfidenceThreshold, "CROWDWISE_CONFIDENCE_THRESHOLD")
	setInt(&cfg.MinFeedbackLength, "CROWDWISE_MIN_FEEDBACK_LENGTH")

	setDur(&cfg.AttributionWindow, "CROWDWISE_ATTRIBUTION_WINDOW")
	setInt(&cfg.MaxCandidates, "CROWDWISE_MAX_CANDIDATES")
	setFloat(&cfg.MinAttribution, "CROWDWISE_MIN_ATTRIBUTION")

	setFloat(&cfg.QualityThreshold, "CROWDWISE_QUALITY_THRESHOLD")
	setInt(&cfg.MinSampleSize, "CROWDWISE_MIN_SAMPLE_SIZE")
	setInt(&cfg.MaxClustersPerRun, "CROWDWISE_MAX_CLUSTERS_PER_RUN")
	setInt(&cfg.MaxQuerySamples, "CROWDWISE_MAX_QUERY_SAMPLES")

	setInt(&cfg.AuditQueueSize, "CROWDWISE_AUDIT_QUEUE_SIZE")

	setStr(&cfg.LogFile, "CROWDWISE_LOG_FILE")
	if v := os.Getenv("CROWDWISE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			slog.Warn("invalid integer in environment", "key", key, "value", v)
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		} else {
			slog.Warn("invalid float in environment", "key", key, "value", v)
		}
	}
}

func setDur(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else {
			slog.Warn("invalid duration in environment", "key", key, "value", v)
		}
	}
}

// ParseLogLevel maps a level name to a slog.Level, defaulting to INFO.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
