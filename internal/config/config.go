// Package config provides unified configuration for the Ratelake pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode represents the pipeline mode to run.
type Mode string

const (
	ModeRun      Mode = "run"
	ModeValidate Mode = "validate"
	ModeDryRun   Mode = "dry-run"
)

// Config holds the unified configuration for a Ratelake run.
type Config struct {
	// Mode specifies what to do: run, validate, dry-run
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Input configuration
	Input InputConfig `json:"input" yaml:"input"`

	// Run (engine) configuration
	Run RunConfig `json:"run" yaml:"run"`

	// Partition output configuration
	Partition PartitionConfig `json:"partition" yaml:"partition"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Retry policy for storage operations
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// Quality check configuration
	Quality QualityConfig `json:"quality" yaml:"quality"`
}

// InputConfig locates the fact and dimension inputs.
type InputConfig struct {
	// FactPath is the path to the raw fact_rate parquet file
	FactPath string `json:"fact_path" yaml:"fact_path"`

	// DimDir is the directory containing the dimension parquet files
	DimDir string `json:"dim_dir" yaml:"dim_dir"`
}

// RunConfig holds engine tuning for one enrichment run.
type RunConfig struct {
	// ChunkSize is the initial number of fact rows per chunk
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// MinChunkSize is the floor the adaptive shrink never goes below
	MinChunkSize int `json:"min_chunk_size" yaml:"min_chunk_size"`

	// MemoryBudgetMB is the heap budget the memory monitor enforces
	MemoryBudgetMB int `json:"memory_budget_mb" yaml:"memory_budget_mb"`

	// Workers is the number of concurrent partition merge workers
	Workers int `json:"workers" yaml:"workers"`

	// MergeBatchSize is the max partitions merged per flush batch
	MergeBatchSize int `json:"merge_batch_size" yaml:"merge_batch_size"`

	// QuarantineDir is where skipped rows are spilled
	QuarantineDir string `json:"quarantine_dir" yaml:"quarantine_dir"`

	// JoinMissWarnRatio is the per-dimension miss ratio above which the
	// run logs a warning at the end
	JoinMissWarnRatio float64 `json:"join_miss_warn_ratio" yaml:"join_miss_warn_ratio"`
}

// PartitionConfig holds partitioned output configuration.
type PartitionConfig struct {
	// OutputDir is the root of the Hive-style partition tree
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix prefixes every uploaded object key
	Prefix string `json:"prefix" yaml:"prefix"`
}

// RetryConfig holds the retry policy applied at the storage boundary.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per operation
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BaseBackoff is the backoff before the first retry; it doubles per attempt
	BaseBackoff time.Duration `json:"base_backoff" yaml:"base_backoff"`
}

// QualityConfig holds per-column null-ratio thresholds.
type QualityConfig struct {
	// DefaultNullRatio is the max tolerated null ratio for most columns
	DefaultNullRatio float64 `json:"default_null_ratio" yaml:"default_null_ratio"`

	// ColumnNullRatio overrides the default for specific columns
	ColumnNullRatio map[string]float64 `json:"column_null_ratio" yaml:"column_null_ratio"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeRun,
		DataDir: "./data/ratelake",
		Input: InputConfig{
			FactPath: "",
			DimDir:   "",
		},
		Run: RunConfig{
			ChunkSize:         10000,
			MinChunkSize:      1000,
			MemoryBudgetMB:    2048,
			Workers:           1,
			MergeBatchSize:    10,
			JoinMissWarnRatio: 0.50,
		},
		Partition: PartitionConfig{
			OutputDir: "",
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseBackoff: 100 * time.Millisecond,
		},
		Quality: QualityConfig{
			DefaultNullRatio: 0.20,
			ColumnNullRatio: map[string]float64{
				"stat_area_name":        0.50,
				"primary_taxonomy_code": 0.30,
			},
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/ratelake"
	}

	if c.Input.DimDir == "" {
		c.Input.DimDir = filepath.Join(c.DataDir, "dims")
	}
	if c.Partition.OutputDir == "" {
		c.Partition.OutputDir = filepath.Join(c.DataDir, "partitions")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Run.QuarantineDir == "" {
		c.Run.QuarantineDir = filepath.Join(c.DataDir, "quarantine")
	}
}

// CatalogPath returns the path to the partition catalog database.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeRun, ModeValidate, ModeDryRun:
		// Valid modes
	default:
		return fmt.Errorf("invalid mode: %s (must be run, validate, or dry-run)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Input.FactPath == "" {
		return fmt.Errorf("input.fact_path is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Run.ChunkSize < 1 {
		return fmt.Errorf("run.chunk_size must be positive, got %d", c.Run.ChunkSize)
	}

	if c.Run.MinChunkSize < 1 || c.Run.MinChunkSize > c.Run.ChunkSize {
		return fmt.Errorf("run.min_chunk_size must be in [1, chunk_size], got %d", c.Run.MinChunkSize)
	}

	if c.Run.Workers < 1 {
		return fmt.Errorf("run.workers must be at least 1, got %d", c.Run.Workers)
	}

	if c.Run.MergeBatchSize < 1 {
		return fmt.Errorf("run.merge_batch_size must be at least 1, got %d", c.Run.MergeBatchSize)
	}

	if c.Run.MemoryBudgetMB < 64 {
		return fmt.Errorf("run.memory_budget_mb must be at least 64, got %d", c.Run.MemoryBudgetMB)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}

	if c.Quality.DefaultNullRatio < 0 || c.Quality.DefaultNullRatio > 1 {
		return fmt.Errorf("quality.default_null_ratio must be in [0, 1], got %f", c.Quality.DefaultNullRatio)
	}

	if c.Run.JoinMissWarnRatio < 0 || c.Run.JoinMissWarnRatio > 1 {
		return fmt.Errorf("run.join_miss_warn_ratio must be in [0, 1], got %f", c.Run.JoinMissWarnRatio)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the RATELAKE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("RATELAKE_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("RATELAKE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Input configuration
	if v := os.Getenv("RATELAKE_FACT_PATH"); v != "" {
		cfg.Input.FactPath = v
	}
	if v := os.Getenv("RATELAKE_DIM_DIR"); v != "" {
		cfg.Input.DimDir = v
	}

	// Run configuration
	if v := os.Getenv("RATELAKE_CHUNK_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Run.ChunkSize)
	}
	if v := os.Getenv("RATELAKE_MIN_CHUNK_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Run.MinChunkSize)
	}
	if v := os.Getenv("RATELAKE_MEMORY_BUDGET_MB"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Run.MemoryBudgetMB)
	}
	if v := os.Getenv("RATELAKE_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Run.Workers)
	}
	if v := os.Getenv("RATELAKE_MERGE_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Run.MergeBatchSize)
	}

	// Retry configuration
	if v := os.Getenv("RATELAKE_RETRY_MAX_ATTEMPTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Retry.MaxAttempts)
	}
	if v := os.Getenv("RATELAKE_RETRY_BASE_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.BaseBackoff = d
		}
	}

	// Storage configuration
	if v := os.Getenv("RATELAKE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("RATELAKE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("RATELAKE_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("RATELAKE_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("RATELAKE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("RATELAKE_S3_PREFIX"); v != "" {
		cfg.Storage.S3.Prefix = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Storage.Path,
		c.Partition.OutputDir,
		c.Run.QuarantineDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
