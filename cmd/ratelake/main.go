// Package main implements the ratelake binary: it validates inputs,
// runs an enrichment pass, or reports what a run would write without
// touching the output tree.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ratelake/ratelake/internal/catalog"
	"github.com/ratelake/ratelake/internal/config"
	"github.com/ratelake/ratelake/internal/dimension"
	"github.com/ratelake/ratelake/internal/engine"
	"github.com/ratelake/ratelake/internal/memory"
	"github.com/ratelake/ratelake/internal/partition"
	"github.com/ratelake/ratelake/internal/storage"
	"github.com/ratelake/ratelake/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes by run outcome.
const (
	exitSuccess = 0
	exitFailed  = 1
	exitPartial = 2
)

func main() {
	var (
		configFile   string
		dataDir      string
		factPath     string
		dimDir       string
		outputDir    string
		mode         string
		chunkSize    int
		memoryBudget int
		workers      int
		showVersion  bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&factPath, "fact", "", "Path to the raw fact table")
	flag.StringVar(&dimDir, "dims", "", "Directory holding the dimension tables")
	flag.StringVar(&outputDir, "output", "", "Root of the partitioned output tree")
	flag.StringVar(&mode, "mode", "", "Mode: run, validate, dry-run")
	flag.IntVar(&chunkSize, "chunk-size", 0, "Fact rows per chunk")
	flag.IntVar(&memoryBudget, "memory-budget", 0, "Heap budget in MB")
	flag.IntVar(&workers, "workers", 0, "Concurrent partition merges per batch")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Ratelake - Negotiated-Rate Enrichment and Partitioning Engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: ratelake [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ratelake --data-dir /data/ratelake --fact /data/fact_rate.parquet\n")
		fmt.Fprintf(os.Stderr, "  ratelake --mode validate --fact /data/fact_rate.parquet --dims /data/dims\n")
		fmt.Fprintf(os.Stderr, "  ratelake --config /etc/ratelake/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  RATELAKE_MODE           Mode (run, validate, dry-run)\n")
		fmt.Fprintf(os.Stderr, "  RATELAKE_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  RATELAKE_FACT_PATH      Path to the raw fact table\n")
		fmt.Fprintf(os.Stderr, "  RATELAKE_STORAGE_TYPE   Storage type (local, s3)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("ratelake version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, dataDir, factPath, dimDir, outputDir, mode, chunkSize, memoryBudget, workers)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	log.Printf("ratelake %s starting", version)
	log.Printf("  Mode:    %s", cfg.Mode)
	log.Printf("  Fact:    %s", cfg.Input.FactPath)
	log.Printf("  Dims:    %s", cfg.Input.DimDir)
	log.Printf("  Output:  %s", cfg.Partition.OutputDir)
	log.Printf("  Storage: %s", cfg.Storage.Type)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := cfg.EnsureDirectories(); err != nil {
		log.Printf("Failed to create directories: %v", err)
		return exitFailed
	}

	store, err := dimension.Load(cfg.Input.DimDir)
	if err != nil {
		log.Printf("Failed to load dimensions: %v", err)
		return exitFailed
	}

	if cfg.Mode == config.ModeValidate {
		eng := engine.New(cfg, dimension.NewResolver(store), nil, nil, memory.NewMonitorMB(cfg.Run.MemoryBudgetMB))
		if err := eng.ValidateInputs(); err != nil {
			log.Printf("Validation failed: %v", err)
			return exitFailed
		}
		log.Printf("Validation passed")
		return exitSuccess
	}

	retry := storage.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseBackoff: cfg.Retry.BaseBackoff,
	}

	var remote storage.ObjectStorage
	var mergerOpts []partition.MergerOption
	if cfg.Storage.Type == "s3" {
		s3Remote, err := storage.NewS3Storage(ctx, cfg.Storage.S3.Bucket, storage.S3Config{
			Region:   cfg.Storage.S3.Region,
			Endpoint: cfg.Storage.S3.Endpoint,
			Prefix:   cfg.Storage.S3.Prefix,
			Retry:    retry,
		})
		if err != nil {
			log.Printf("Failed to connect to S3: %v", err)
			return exitFailed
		}
		remote = s3Remote
		mergerOpts = append(mergerOpts, partition.WithRemote(remote))
	}
	merger := partition.NewMerger(cfg.Partition.OutputDir, retry, mergerOpts...)
	defer merger.Close()

	var cat catalog.Catalog
	if cfg.Mode != config.ModeDryRun {
		sqliteCat, err := catalog.NewCatalog(cfg.CatalogPath())
		if err != nil {
			log.Printf("Failed to open catalog: %v", err)
			return exitFailed
		}
		defer sqliteCat.Close()
		cat = sqliteCat
	}

	eng := engine.New(cfg, dimension.NewResolver(store), merger, cat, memory.NewMonitorMB(cfg.Run.MemoryBudgetMB))

	summary, runErr := eng.Run(ctx)
	if runErr != nil {
		log.Printf("Run failed: %v", runErr)
	}

	// Mirror the catalog snapshot next to the partition files
	if remote != nil && cat != nil {
		if err := remote.Upload(ctx, cfg.CatalogPath(), "catalog.db"); err != nil {
			log.Printf("Failed to mirror catalog: %v", err)
		}
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Printf("Failed to marshal summary: %v", err)
		return exitFailed
	}
	fmt.Println(string(out))

	switch summary.Status {
	case types.StatusSuccess:
		return exitSuccess
	case types.StatusPartial:
		return exitPartial
	default:
		return exitFailed
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, factPath, dimDir, outputDir, mode string, chunkSize, memoryBudget, workers int) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Command line flags take highest priority
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if factPath != "" {
		cfg.Input.FactPath = factPath
	}
	if dimDir != "" {
		cfg.Input.DimDir = dimDir
	}
	if outputDir != "" {
		cfg.Partition.OutputDir = outputDir
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if chunkSize > 0 {
		cfg.Run.ChunkSize = chunkSize
	}
	if memoryBudget > 0 {
		cfg.Run.MemoryBudgetMB = memoryBudget
	}
	if workers > 0 {
		cfg.Run.Workers = workers
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
