// Package config loads s3-insight settings from defaults, an optional config
// file, S3INSIGHT_* environment variables and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultSampleThreshold  int64 = 100_000_000
	DefaultSampleSize       int64 = 100_000
	DefaultAgeThresholdDays       = 90
	DefaultTopN                   = 10
	DefaultParallelism            = 8
	DefaultMaxRetries             = 5
	DefaultPageSize         int32 = 1000
)

// Config holds all configuration for s3-insight
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	AWS         AWSConfig         `mapstructure:"aws"`
	Sampling    SamplingConfig    `mapstructure:"sampling"`
	Collection  CollectionConfig  `mapstructure:"collection"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
}

// AWSConfig selects credentials and the endpoint of the storage provider
type AWSConfig struct {
	Profile         string `mapstructure:"profile"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"` // S3-compatible endpoint (MinIO, MaxIOFS, ...)
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PathStyle       bool   `mapstructure:"path_style"`
}

// SamplingConfig controls when a bucket is sampled instead of fully listed.
// Size 0 disables sampling.
type SamplingConfig struct {
	Threshold int64  `mapstructure:"threshold"`
	Size      int64  `mapstructure:"size"`
	Seed      uint64 `mapstructure:"seed"`
}

// CollectionConfig controls the listing workers and their retry behavior
type CollectionConfig struct {
	Parallelism       int           `mapstructure:"parallelism"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffFactor     float64       `mapstructure:"backoff_factor"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	PageSize          int32         `mapstructure:"page_size"`
	PageTimeout       time.Duration `mapstructure:"page_timeout"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	ScanLimit         int64         `mapstructure:"scan_limit"`
	SpoolDir          string        `mapstructure:"spool_dir"`
}

// AggregationConfig controls summary classification and ranking
type AggregationConfig struct {
	AgeThresholdDays int `mapstructure:"age_threshold_days"`
	TopN             int `mapstructure:"top_n"`
}

// AgeThreshold returns AgeThresholdDays as a time.Duration.
func (c AggregationConfig) AgeThreshold() time.Duration {
	return time.Duration(c.AgeThresholdDays) * 24 * time.Hour
}

// flagKeys maps command-line flag names to configuration keys. Only flags
// present on the command being run are bound.
var flagKeys = map[string]string{
	"log-level":          "log_level",
	"log-format":         "log_format",
	"profile":            "aws.profile",
	"region":             "aws.region",
	"endpoint":           "aws.endpoint",
	"path-style":         "aws.path_style",
	"sample":             "sampling.size",
	"sample-threshold":   "sampling.threshold",
	"seed":               "sampling.seed",
	"parallelism":        "collection.parallelism",
	"max-retries":        "collection.max_retries",
	"timeout":            "collection.timeout",
	"rate-limit":         "collection.requests_per_second",
	"limit":              "collection.scan_limit",
	"spool-dir":          "collection.spool_dir",
	"age-threshold-days": "aggregation.age_threshold_days",
	"top":                "aggregation.top_n",
}

// Default returns a Config populated with default values only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Load loads configuration for cmd from various sources
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd.Flags(), v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("S3INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.path_style", false)

	v.SetDefault("sampling.threshold", DefaultSampleThreshold)
	v.SetDefault("sampling.size", DefaultSampleSize)
	v.SetDefault("sampling.seed", 0)

	v.SetDefault("collection.parallelism", DefaultParallelism)
	v.SetDefault("collection.max_retries", DefaultMaxRetries)
	v.SetDefault("collection.backoff_base", time.Second)
	v.SetDefault("collection.backoff_factor", 2.0)
	v.SetDefault("collection.backoff_max", 30*time.Second)
	v.SetDefault("collection.page_size", DefaultPageSize)
	v.SetDefault("collection.page_timeout", 2*time.Minute)
	v.SetDefault("collection.timeout", time.Duration(0))
	v.SetDefault("collection.requests_per_second", 0.0)
	v.SetDefault("collection.scan_limit", 0)
	v.SetDefault("collection.spool_dir", "")

	v.SetDefault("aggregation.age_threshold_days", DefaultAgeThresholdDays)
	v.SetDefault("aggregation.top_n", DefaultTopN)
}

func bindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	for flag, key := range flagKeys {
		f := flags.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects invalid values and replaces zero values with defaults.
func (c *Config) Validate() error {
	if c.Sampling.Size < 0 {
		return fmt.Errorf("sampling.size must be >= 0, got %d", c.Sampling.Size)
	}
	if c.Sampling.Threshold < 0 {
		return fmt.Errorf("sampling.threshold must be >= 0, got %d", c.Sampling.Threshold)
	}

	col := &c.Collection
	if col.Parallelism < 0 {
		return fmt.Errorf("collection.parallelism must be >= 0, got %d", col.Parallelism)
	}
	if col.Parallelism == 0 {
		col.Parallelism = DefaultParallelism
	}
	if col.MaxRetries < 0 {
		return fmt.Errorf("collection.max_retries must be >= 0, got %d", col.MaxRetries)
	}
	if col.MaxRetries == 0 {
		col.MaxRetries = DefaultMaxRetries
	}
	if col.BackoffFactor < 1 {
		return fmt.Errorf("collection.backoff_factor must be >= 1, got %g", col.BackoffFactor)
	}
	if col.BackoffBase <= 0 {
		col.BackoffBase = time.Second
	}
	if col.BackoffMax < col.BackoffBase {
		col.BackoffMax = col.BackoffBase
	}
	if col.PageSize <= 0 || col.PageSize > DefaultPageSize {
		col.PageSize = DefaultPageSize
	}
	if col.PageTimeout <= 0 {
		col.PageTimeout = 2 * time.Minute
	}
	if col.Timeout < 0 {
		return fmt.Errorf("collection.timeout must be >= 0, got %s", col.Timeout)
	}
	if col.RequestsPerSecond < 0 {
		return fmt.Errorf("collection.requests_per_second must be >= 0, got %g", col.RequestsPerSecond)
	}
	if col.ScanLimit < 0 {
		return fmt.Errorf("collection.scan_limit must be >= 0, got %d", col.ScanLimit)
	}

	if c.Aggregation.AgeThresholdDays < 0 {
		return fmt.Errorf("aggregation.age_threshold_days must be >= 0, got %d", c.Aggregation.AgeThresholdDays)
	}
	if c.Aggregation.TopN < 1 {
		return fmt.Errorf("aggregation.top_n must be >= 1, got %d", c.Aggregation.TopN)
	}

	return nil
}
