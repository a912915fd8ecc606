// Package config provides configuration management for the litscout pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the litscout pipeline.
type Config struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Optimizer contains query expansion settings.
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	// Pipeline contains orchestration settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Sources contains literature source API configurations.
	Sources SourcesConfig `mapstructure:"sources"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
	// Port is the metrics server port.
	Port int `mapstructure:"port"`
}

// OptimizerConfig holds query expansion settings.
type OptimizerConfig struct {
	// Enabled controls whether queries are expanded before dispatch.
	// Expansion failures never abort a run; it degrades to the raw query.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the provider API key (loaded from LITSCOUT_OPTIMIZER_API_KEY).
	APIKey string `mapstructure:"-"`
	// Model is the model identifier.
	Model string `mapstructure:"model"`
	// BaseURL is the API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
	// Temperature is the sampling temperature.
	Temperature float64 `mapstructure:"temperature"`
	// Timeout is the timeout for expansion calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// MaxVariants caps how many generated variants a plan carries.
	MaxVariants int `mapstructure:"max_variants"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	// SourceBudget is the wall-clock budget per source search.
	SourceBudget time.Duration `mapstructure:"source_budget"`
	// OutputDir is where snapshots and exported workbooks are written.
	OutputDir string `mapstructure:"output_dir"`
}

// SourcesConfig holds configuration for all literature source APIs.
type SourcesConfig struct {
	// PubMed contains PubMed E-utilities settings.
	PubMed PubMedConfig `mapstructure:"pubmed"`
	// BioRxiv contains bioRxiv details API settings.
	BioRxiv BioRxivConfig `mapstructure:"biorxiv"`
	// Scholar contains scholar gateway settings.
	Scholar ScholarConfig `mapstructure:"scholar"`
}

// PubMedConfig holds PubMed E-utilities settings.
type PubMedConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the NCBI API key (loaded from LITSCOUT_SOURCES_PUBMED_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the E-utilities base URL.
	BaseURL string `mapstructure:"base_url"`
	// Email identifies the caller to NCBI, per their usage policy.
	Email string `mapstructure:"email"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the default maximum results per search.
	MaxResults int `mapstructure:"max_results"`
}

// BioRxivConfig holds bioRxiv details API settings.
type BioRxivConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL is the details API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Server selects the preprint server (biorxiv, medrxiv).
	Server string `mapstructure:"server"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the default maximum results per search.
	MaxResults int `mapstructure:"max_results"`
	// WindowDays is how far back the date-interval scan reaches.
	WindowDays int `mapstructure:"window_days"`
	// MaxPages bounds the cursor pagination.
	MaxPages int `mapstructure:"max_pages"`
}

// ScholarConfig holds scholar gateway settings.
type ScholarConfig struct {
	// Enabled controls whether this source is used. The source also needs
	// an API key to be searchable.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the gateway API key (loaded from LITSCOUT_SOURCES_SCHOLAR_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the gateway base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MinInterval is the minimum gap between consecutive gateway requests.
	MinInterval time.Duration `mapstructure:"min_interval"`
	// MaxResults is the default maximum results per search.
	MaxResults int `mapstructure:"max_results"`
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LITSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/litscout")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine, env vars and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secret fields use mapstructure:"-" so they never come from config
	// files, only from the environment.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Optimizer.APIKey = os.Getenv("LITSCOUT_OPTIMIZER_API_KEY")
	cfg.Sources.PubMed.APIKey = os.Getenv("LITSCOUT_SOURCES_PUBMED_API_KEY")
	cfg.Sources.Scholar.APIKey = os.Getenv("LITSCOUT_SOURCES_SCHOLAR_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9091)

	// Optimizer defaults
	// The API key is loaded exclusively from the environment (see loadSecrets).
	v.SetDefault("optimizer.enabled", true)
	v.SetDefault("optimizer.model", "deepseek-chat")
	v.SetDefault("optimizer.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("optimizer.temperature", 0.3)
	v.SetDefault("optimizer.timeout", "60s")
	v.SetDefault("optimizer.max_retries", 2)
	v.SetDefault("optimizer.max_variants", 5)

	// Pipeline defaults
	v.SetDefault("pipeline.source_budget", "3m")
	v.SetDefault("pipeline.output_dir", "literature_results")

	// Sources defaults - PubMed
	v.SetDefault("sources.pubmed.enabled", true)
	v.SetDefault("sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("sources.pubmed.email", "")
	v.SetDefault("sources.pubmed.timeout", "30s")
	v.SetDefault("sources.pubmed.rate_limit", 2.0) // NCBI allows 3 req/sec without an API key
	v.SetDefault("sources.pubmed.max_results", 20)

	// Sources defaults - bioRxiv
	v.SetDefault("sources.biorxiv.enabled", true)
	v.SetDefault("sources.biorxiv.base_url", "https://api.biorxiv.org")
	v.SetDefault("sources.biorxiv.server", "biorxiv")
	v.SetDefault("sources.biorxiv.timeout", "30s")
	v.SetDefault("sources.biorxiv.rate_limit", 1.0)
	v.SetDefault("sources.biorxiv.max_results", 20)
	v.SetDefault("sources.biorxiv.window_days", 365)
	v.SetDefault("sources.biorxiv.max_pages", 30)

	// Sources defaults - scholar gateway
	// Disabled without LITSCOUT_SOURCES_SCHOLAR_API_KEY.
	v.SetDefault("sources.scholar.enabled", true)
	v.SetDefault("sources.scholar.base_url", "https://serpapi.com")
	v.SetDefault("sources.scholar.timeout", "30s")
	v.SetDefault("sources.scholar.min_interval", "2s")
	v.SetDefault("sources.scholar.max_results", 20)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	if c.Optimizer.MaxVariants <= 0 {
		return fmt.Errorf("optimizer max_variants must be positive")
	}
	if c.Optimizer.Temperature < 0 || c.Optimizer.Temperature > 2 {
		return fmt.Errorf("optimizer temperature must be between 0 and 2")
	}

	if c.Pipeline.SourceBudget <= 0 {
		return fmt.Errorf("pipeline source_budget must be positive")
	}
	if c.Pipeline.OutputDir == "" {
		return fmt.Errorf("pipeline output_dir is required")
	}

	if c.Sources.PubMed.Enabled && c.Sources.PubMed.RateLimit <= 0 {
		return fmt.Errorf("pubmed rate_limit must be positive")
	}
	if c.Sources.BioRxiv.Enabled {
		if c.Sources.BioRxiv.RateLimit <= 0 {
			return fmt.Errorf("biorxiv rate_limit must be positive")
		}
		if c.Sources.BioRxiv.WindowDays <= 0 {
			return fmt.Errorf("biorxiv window_days must be positive")
		}
	}
	if c.Sources.Scholar.Enabled && c.Sources.Scholar.MinInterval <= 0 {
		return fmt.Errorf("scholar min_interval must be positive")
	}

	return nil
}
