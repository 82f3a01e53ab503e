package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/ratelake/ratelake/internal/catalog"
	"github.com/ratelake/ratelake/internal/config"
	"github.com/ratelake/ratelake/internal/dimension"
	"github.com/ratelake/ratelake/internal/engine"
	"github.com/ratelake/ratelake/internal/memory"
	"github.com/ratelake/ratelake/internal/partition"
	"github.com/ratelake/ratelake/internal/schema"
	"github.com/ratelake/ratelake/internal/storage"
	"github.com/ratelake/ratelake/pkg/types"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

// pipelineEnv is a fully wired pipeline over a temp directory tree.
type pipelineEnv struct {
	cfg     *config.Config
	catalog *catalog.SQLiteCatalog
	remote  *storage.LocalStorage
	outDir  string
}

// setupPipelineEnv writes fact and dimension fixtures and wires every
// component the way the ratelake binary does, with a local storage
// mirror standing in for S3.
func setupPipelineEnv(t *testing.T, facts []types.FactRecord) *pipelineEnv {
	t.Helper()

	root := t.TempDir()
	dimDir := filepath.Join(root, "dims")
	outDir := filepath.Join(root, "partitions")
	remoteDir := filepath.Join(root, "remote")
	for _, d := range []string{dimDir, outDir, remoteDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}

	factPath := filepath.Join(root, "fact_rate.parquet")
	if err := parquet.WriteFile(factPath, facts); err != nil {
		t.Fatalf("failed to write fact fixture: %v", err)
	}
	writeDimFixtures(t, dimDir)

	cfg := config.DefaultConfig()
	cfg.DataDir = root
	cfg.Input.FactPath = factPath
	cfg.Input.DimDir = dimDir
	cfg.Partition.OutputDir = outDir
	cfg.Run.QuarantineDir = filepath.Join(root, "quarantine")
	cfg.Run.ChunkSize = 100
	cfg.Run.Workers = 2

	cat, err := catalog.NewCatalog(cfg.CatalogPath())
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	remote, err := storage.NewLocalStorage(remoteDir)
	if err != nil {
		t.Fatalf("failed to create remote storage: %v", err)
	}

	return &pipelineEnv{cfg: cfg, catalog: cat, remote: remote, outDir: outDir}
}

func (env *pipelineEnv) newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	store, err := dimension.Load(env.cfg.Input.DimDir)
	if err != nil {
		t.Fatalf("failed to load dimensions: %v", err)
	}
	merger := partition.NewMerger(env.outDir, storage.DefaultRetryPolicy(),
		partition.WithRemote(env.remote))
	return engine.New(env.cfg, dimension.NewResolver(store), merger, env.catalog,
		memory.NewMonitorMB(env.cfg.Run.MemoryBudgetMB))
}

func writeDim[T any](t *testing.T, dimDir, file string, rows []T) {
	t.Helper()
	if err := parquet.WriteFile(filepath.Join(dimDir, file), rows); err != nil {
		t.Fatalf("failed to write %s: %v", file, err)
	}
}

func writeDimFixtures(t *testing.T, dimDir string) {
	t.Helper()

	writeDim(t, dimDir, schema.FileCode, []dimension.CodeRow{
		{CodeType: "CPT", Code: "99213", CodeName: strPtr("Office visit")},
	})
	writeDim(t, dimDir, schema.FileCodeCategory, []dimension.CodeCategoryRow{
		{CodeType: "CPT", Code: "99213",
			ProcedureSet:   strPtr("Evaluation and Management"),
			ProcedureClass: strPtr("Office Visits")},
	})
	writeDim(t, dimDir, schema.FilePayer, []dimension.PayerRow{
		{PayerSlug: "aetna", PayerName: strPtr("Aetna")},
		{PayerSlug: "cigna", PayerName: strPtr("Cigna")},
	})
	writeDim(t, dimDir, schema.FileGroupNPIXref, []dimension.GroupNPIRow{
		{ProviderGroupUID: "pg-1", NPI: "1234567893"},
		{ProviderGroupUID: "pg-1", NPI: "1999999992"},
	})
	writeDim(t, dimDir, schema.FileNPI, []dimension.NPIRow{
		{NPI: "1234567893",
			OrganizationName:    strPtr("North Clinic"),
			PrimaryTaxonomyCode: strPtr("207Q00000X")},
	})
	writeDim(t, dimDir, schema.FileNPIGeo, []dimension.NPIGeoRow{
		{NPI: "1234567893",
			CountyName:   strPtr("Travis"),
			StatAreaName: strPtr("Austin-Round Rock")},
	})
	writeDim(t, dimDir, schema.FileBenchmark, []dimension.BenchmarkRow{
		{CodeType: "CPT", Code: "99213", State: strPtr("TX"), MedicareStateRate: f64Ptr(80)},
		{CodeType: "CPT", Code: "99213", MedicareNationalRate: f64Ptr(75)},
	})
}

func makeFact(payer, state string, rate float64) types.FactRecord {
	return types.FactRecord{
		State:                  state,
		YearMonth:              "2025-07",
		PayerSlug:              payer,
		BillingClass:           "professional",
		CodeType:               "CPT",
		Code:                   "99213",
		ProviderGroupUID:       "pg-1",
		PosSetID:               "pos-1",
		NegotiatedType:         "negotiated",
		NegotiationArrangement: "ffs",
		NegotiatedRate:         rate,
		ExpirationDate:         "9999-12-31",
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	facts := []types.FactRecord{
		makeFact("aetna", "TX", 100),
		makeFact("aetna", "TX", 120),
		makeFact("cigna", "TX", 95),
		makeFact("aetna", "CA", 110),
	}
	env := setupPipelineEnv(t, facts)
	ctx := context.Background()

	summary, err := env.newEngine(t).Run(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Status != types.StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", summary.Status)
	}
	if summary.RowsWritten != 4 {
		t.Fatalf("rows written = %d, want 4", summary.RowsWritten)
	}
	if summary.PartitionsTouched != 3 {
		t.Fatalf("partitions touched = %d, want 3", summary.PartitionsTouched)
	}

	// Every row of the aetna/TX partition carries the full enrichment:
	// taxonomy through the group's representative NPI, geography, and
	// the state benchmark.
	relPath := filepath.Join(
		"payer_slug=aetna", "state=tx", "billing_class=professional",
		"procedure_set=evaluation-and-management", "procedure_class=office-visits",
		"primary_taxonomy_code=207q00000x", "stat_area_name=austin-round-rock",
		"year=2025", "month=07", types.PartitionFileName)
	rows, err := parquet.ReadFile[types.EnrichedRecord](filepath.Join(env.outDir, relPath))
	if err != nil {
		t.Fatalf("failed to read partition: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("partition rows = %d, want 2", len(rows))
	}
	for _, r := range rows {
		if r.NPI == nil || *r.NPI != "1234567893" {
			t.Errorf("representative NPI = %v, want lowest group member", r.NPI)
		}
		if r.StatAreaName == nil || *r.StatAreaName != "Austin-Round Rock" {
			t.Errorf("stat area not joined: %v", r.StatAreaName)
		}
		if r.RateToMedicareRatio == nil {
			t.Error("benchmark ratio not derived")
		}
	}

	// The remote mirror holds the same partition files.
	key := filepath.ToSlash(relPath)
	exists, err := env.remote.Exists(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Errorf("partition %s not mirrored to remote storage", key)
	}

	// The catalog serves partition discovery for downstream readers.
	found, err := env.catalog.FindPartitions(ctx, catalog.Filter{
		PayerSlug:    "aetna",
		State:        "tx",
		BillingClass: "professional",
	})
	if err != nil {
		t.Fatalf("catalog query failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("catalog partitions = %d, want 2 (TX and CA differ only in state)", len(found))
	}
	for _, p := range found {
		if p.RowCount == 0 || p.SizeBytes == 0 {
			t.Errorf("catalog stats missing for %s: %+v", p.Path, p)
		}
		if p.LastRunID != summary.RunID {
			t.Errorf("last run id = %s, want %s", p.LastRunID, summary.RunID)
		}
	}

	// The run summary is recoverable by ID.
	stored, err := env.catalog.GetRun(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("failed to load run: %v", err)
	}
	if stored.RowsWritten != summary.RowsWritten || stored.Status != summary.Status {
		t.Errorf("stored summary diverges: %+v", stored)
	}
}

func TestPipelineRerunIsIdempotent(t *testing.T) {
	facts := []types.FactRecord{
		makeFact("aetna", "TX", 100),
		makeFact("aetna", "TX", 120),
	}
	env := setupPipelineEnv(t, facts)
	ctx := context.Background()

	first, err := env.newEngine(t).Run(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.RowsWritten != 2 {
		t.Fatalf("first run wrote %d rows, want 2", first.RowsWritten)
	}
	second, err := env.newEngine(t).Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if second.RowsWritten != 0 {
		t.Errorf("replay wrote %d rows, want 0", second.RowsWritten)
	}
	if second.DuplicateRows != 2 {
		t.Errorf("replay duplicates = %d, want 2", second.DuplicateRows)
	}

	// The partition did not grow.
	found, err := env.catalog.FindPartitions(ctx, catalog.Filter{
		PayerSlug: "aetna", State: "tx", BillingClass: "professional",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 {
		t.Fatalf("partitions = %d, want 1", len(found))
	}
	if found[0].RowCount != 2 {
		t.Errorf("row count after replay = %d, want 2", found[0].RowCount)
	}
	if found[0].LastRunID != second.RunID {
		t.Errorf("catalog should reflect the replay run, got %s", found[0].LastRunID)
	}
}

func TestPipelineMixedQualityInput(t *testing.T) {
	bad := makeFact("aetna", "TX", 0) // zero rate is invalid
	facts := []types.FactRecord{
		makeFact("aetna", "TX", 100),
		bad,
	}
	env := setupPipelineEnv(t, facts)

	summary, err := env.newEngine(t).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Status != types.StatusPartial {
		t.Fatalf("status = %s, want PARTIAL", summary.Status)
	}
	if summary.RowsWritten != 1 || summary.RowsSkipped != 1 {
		t.Errorf("written=%d skipped=%d, want 1/1", summary.RowsWritten, summary.RowsSkipped)
	}

	entries, err := engine.ReadQuarantine(
		filepath.Join(env.cfg.Run.QuarantineDir, "run-"+summary.RunID+".jsonl.snappy"))
	if err != nil {
		t.Fatalf("failed to read quarantine: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("quarantined = %d, want 1", len(entries))
	}
}
