// Package engine drives an enrichment run: it streams fact rows in
// chunks, joins them against the broadcast dimensions, assigns content
// identities, and merges the results into partitioned output, adapting
// chunk size to memory pressure along the way.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ratelake/ratelake/internal/catalog"
	"github.com/ratelake/ratelake/internal/config"
	"github.com/ratelake/ratelake/internal/dimension"
	rlerrors "github.com/ratelake/ratelake/internal/errors"
	"github.com/ratelake/ratelake/internal/identity"
	"github.com/ratelake/ratelake/internal/memory"
	"github.com/ratelake/ratelake/internal/observability"
	"github.com/ratelake/ratelake/internal/partition"
	"github.com/ratelake/ratelake/internal/quality"
	"github.com/ratelake/ratelake/internal/schema"
	"github.com/ratelake/ratelake/pkg/types"
)

// State is the engine's position in the run lifecycle.
type State int32

const (
	StateReady State = iota
	StateProcessingChunk
	StateCheckpoint
	StateAborted
	StateDone
)

func (s State) String() string {
	switch s {
	case StateProcessingChunk:
		return "PROCESSING_CHUNK"
	case StateCheckpoint:
		return "CHECKPOINT"
	case StateAborted:
		return "ABORTED"
	case StateDone:
		return "DONE"
	default:
		return "READY"
	}
}

// Engine runs one enrichment pass over a fact table.
type Engine struct {
	cfg      *config.Config
	resolver *dimension.Resolver
	merger   *partition.Merger
	catalog  catalog.Catalog
	monitor  *memory.Monitor
	stats    *observability.RunStats
	quality  *quality.Checker

	runID string
	state atomic.Int32
}

// New creates an engine with explicit dependencies. catalog may be nil,
// in which case partitions are written but not registered.
func New(cfg *config.Config, resolver *dimension.Resolver, merger *partition.Merger, cat catalog.Catalog, monitor *memory.Monitor) *Engine {
	return &Engine{
		cfg:      cfg,
		resolver: resolver,
		merger:   merger,
		catalog:  cat,
		monitor:  monitor,
		stats:    observability.NewRunStats(),
		quality:  quality.NewChecker(cfg.Quality.DefaultNullRatio, cfg.Quality.ColumnNullRatio),
		runID:    uuid.New().String(),
	}
}

// RunID returns the run identifier.
func (e *Engine) RunID() string {
	return e.runID
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// ValidateInputs checks the fact table and every present dimension file
// without processing any rows.
func (e *Engine) ValidateInputs() error {
	if err := schema.ValidateFile(e.cfg.Input.FactPath, schema.FactSchema()); err != nil {
		return err
	}
	for file, tableSchema := range schema.DimensionSchemas() {
		path := filepath.Join(e.cfg.Input.DimDir, file)
		if err := schema.ValidateFile(path, tableSchema); err != nil {
			if rlerrors.GetCode(err) == rlerrors.CodeUnreadableTable {
				// Absent dimensions only degrade joins; the run loads
				// what exists.
				continue
			}
			return err
		}
	}
	return nil
}

// group collects a chunk's rows bound for one partition.
type group struct {
	key  types.PartitionKey
	rows []types.EnrichedRecord
}

// Run executes the enrichment pass and always returns a summary, even
// on failure.
func (e *Engine) Run(ctx context.Context) (*types.RunSummary, error) {
	summary := &types.RunSummary{
		RunID:     e.runID,
		StartedAt: time.Now(),
	}
	dryRun := e.cfg.Mode == config.ModeDryRun

	reader, err := OpenFactReader(e.cfg.Input.FactPath)
	if err != nil {
		return e.finish(ctx, summary, StateAborted, 0), err
	}
	defer reader.Close()

	quarantine, err := OpenQuarantine(e.cfg.Run.QuarantineDir, e.runID)
	if err != nil {
		return e.finish(ctx, summary, StateAborted, 0), rlerrors.NewInternalError("failed to open quarantine", err)
	}
	defer func() {
		if err := quarantine.Close(); err != nil {
			log.Printf("engine: quarantine close: %v", err)
		}
	}()

	log.Printf("engine: run %s starting, %d fact rows, chunk_size=%d workers=%d dry_run=%v",
		e.runID, reader.NumRows(), e.cfg.Run.ChunkSize, e.cfg.Run.Workers, dryRun)

	if !dryRun && e.merger != nil {
		if n, err := e.merger.CleanOrphans(); err != nil {
			log.Printf("engine: orphan sweep: %v", err)
		} else if n > 0 {
			log.Printf("engine: removed %d orphaned temp files", n)
		}
	}

	chunkSize := e.cfg.Run.ChunkSize
	buf := make([]types.FactRecord, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return e.finish(ctx, summary, StateAborted, chunkSize), err
		}

		e.setState(StateProcessingChunk)
		chunkStart := time.Now()

		n, readErr := reader.ReadChunk(buf[:chunkSize])
		if n > 0 {
			e.stats.RecordRowsRead(int64(n))
			groups := e.processChunk(buf[:n], quarantine)
			if err := e.flushGroups(ctx, groups, dryRun); err != nil {
				return e.finish(ctx, summary, StateAborted, chunkSize), err
			}
			e.stats.RecordChunk(time.Since(chunkStart))
			e.stats.LogProgress()
		}

		// Checkpoint: react to memory pressure between chunks, where
		// no partial state is in flight.
		e.setState(StateCheckpoint)
		switch e.monitor.Observe() {
		case memory.LevelWarn:
			buf = nil
			e.monitor.Release()
			chunkSize = memory.ShrinkChunk(chunkSize, e.cfg.Run.MinChunkSize)
			buf = make([]types.FactRecord, chunkSize)
			log.Printf("engine: memory pressure, chunk size reduced to %d", chunkSize)
		case memory.LevelCritical:
			err := rlerrors.NewMemoryError(
				fmt.Sprintf("heap exceeded critical threshold of %d byte budget", e.monitor.BudgetBytes()))
			return e.finish(ctx, summary, StateAborted, chunkSize), err
		}

		if readErr != nil {
			// io.EOF after the final short read is the normal exit
			if errors.Is(readErr, io.EOF) {
				break
			}
			return e.finish(ctx, summary, StateAborted, chunkSize),
				rlerrors.Wrap(rlerrors.ErrCategorySchema, rlerrors.CodeUnreadableTable, "fact read failed", readErr)
		}
	}

	for _, issue := range e.quality.Report() {
		log.Printf("engine: quality: %s", issue)
	}
	e.warnJoinMisses()

	return e.finish(ctx, summary, StateDone, chunkSize), nil
}

// processChunk validates, enriches, and groups one chunk of fact rows
// by partition key. Malformed rows are quarantined and never stop the
// chunk.
func (e *Engine) processChunk(facts []types.FactRecord, quarantine *Quarantine) map[string]*group {
	groups := make(map[string]*group)

	for i := range facts {
		fact := &facts[i]

		if rerr := normalizeFact(fact); rerr != nil {
			e.stats.RecordSkip(rerr.Code)
			if serr := quarantine.Spill(rerr.Code, fact); serr != nil {
				log.Printf("engine: quarantine spill: %v", serr)
			}
			continue
		}

		fact.FactUID = identity.FactUID(fact)

		enriched, misses := e.resolver.Enrich(fact)
		for _, dim := range misses {
			e.stats.RecordJoinMiss(dim)
		}
		e.quality.Observe(enriched)

		key := partition.ResolveKey(enriched)
		canonical := key.Canonical()
		g, ok := groups[canonical]
		if !ok {
			g = &group{key: key}
			groups[canonical] = g
		}
		g.rows = append(g.rows, *enriched)
	}

	return groups
}

// flushGroups merges the chunk's partition groups in bounded batches.
// Within a batch, up to Workers merges run in parallel; the next batch
// starts only when the previous one is fully flushed.
func (e *Engine) flushGroups(ctx context.Context, groups map[string]*group, dryRun bool) error {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batchSize := e.cfg.Run.MergeBatchSize
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		sem := make(chan struct{}, e.cfg.Run.Workers)
		var wg sync.WaitGroup

		for _, k := range keys[start:end] {
			g := groups[k]
			wg.Add(1)
			sem <- struct{}{}
			go func(g *group) {
				defer wg.Done()
				defer func() { <-sem }()
				e.mergeGroup(ctx, g, dryRun)
			}(g)
		}
		wg.Wait()
	}
	return nil
}

func (e *Engine) mergeGroup(ctx context.Context, g *group, dryRun bool) {
	relPath := partition.FilePath(g.key)

	if dryRun {
		e.stats.RecordMerge(relPath, int64(len(g.rows)), 0, 0)
		return
	}

	res, err := e.merger.Merge(ctx, g.key, g.rows)
	if res != nil {
		e.stats.RecordMerge(res.RelPath, res.RowsAdded, res.Duplicates, res.Anomalies)
		if e.catalog != nil {
			if cerr := e.catalog.RegisterPartition(ctx, res, e.runID); cerr != nil {
				log.Printf("engine: catalog registration failed for %s: %v", res.RelPath, cerr)
				e.stats.RecordFailedPartition(res.RelPath)
			}
		}
	}
	if err != nil {
		log.Printf("engine: merge failed for %s: %v", relPath, err)
		e.stats.RecordFailedPartition(relPath)
	}
}

// warnJoinMisses logs each dimension whose miss ratio crossed the
// configured warn threshold.
func (e *Engine) warnJoinMisses() {
	snap := e.stats.Snapshot()
	if snap.RowsRead == 0 {
		return
	}
	dims := make([]string, 0, len(snap.JoinMisses))
	for dim := range snap.JoinMisses {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	for _, dim := range dims {
		ratio := float64(snap.JoinMisses[dim]) / float64(snap.RowsRead)
		if ratio > e.cfg.Run.JoinMissWarnRatio {
			log.Printf("engine: dimension %s missed %.0f%% of rows (threshold %.0f%%)",
				dim, ratio*100, e.cfg.Run.JoinMissWarnRatio*100)
		}
	}
}

// finish assembles the run summary, records it, and settles the
// terminal state.
func (e *Engine) finish(ctx context.Context, summary *types.RunSummary, terminal State, finalChunk int) *types.RunSummary {
	e.setState(terminal)
	snap := e.stats.Snapshot()

	summary.FinishedAt = time.Now()
	summary.RowsRead = snap.RowsRead
	summary.RowsWritten = snap.RowsWritten
	summary.RowsSkipped = snap.RowsSkipped
	summary.SkipReasons = snap.SkipReasons
	summary.DuplicateRows = snap.Duplicates
	summary.MergeAnomalies = snap.Anomalies
	summary.JoinMisses = snap.JoinMisses
	summary.PartitionsTouched = snap.PartitionsTouched
	summary.FailedPartitions = snap.FailedPartitions
	summary.ChunksProcessed = snap.Chunks
	summary.FinalChunkSize = finalChunk
	summary.PeakMemoryBytes = e.monitor.PeakBytes()

	switch {
	case terminal == StateAborted:
		summary.Status = types.StatusFailed
	case snap.RowsSkipped > 0 || len(snap.FailedPartitions) > 0:
		summary.Status = types.StatusPartial
	default:
		summary.Status = types.StatusSuccess
	}

	if e.catalog != nil && e.cfg.Mode != config.ModeDryRun {
		if err := e.catalog.RecordRun(ctx, summary); err != nil {
			log.Printf("engine: failed to record run summary: %v", err)
		}
	}

	log.Printf("engine: run %s %s: read=%d written=%d skipped=%d partitions=%d duration=%s",
		summary.RunID, summary.Status, summary.RowsRead, summary.RowsWritten,
		summary.RowsSkipped, summary.PartitionsTouched, summary.Duration().Round(time.Millisecond))

	return summary
}

// normalizeFact validates one raw fact row and normalizes it in place.
// A non-nil return means the row must be skipped.
func normalizeFact(f *types.FactRecord) *rlerrors.RatelakeError {
	required := []struct {
		name, value string
	}{
		{"state", f.State},
		{"year_month", f.YearMonth},
		{"payer_slug", f.PayerSlug},
		{"billing_class", f.BillingClass},
		{"code_type", f.CodeType},
		{"code", f.Code},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return rlerrors.NewRecordError(rlerrors.CodeMissingKeyPart,
				fmt.Sprintf("missing %s", r.name))
		}
	}

	if math.IsNaN(f.NegotiatedRate) || math.IsInf(f.NegotiatedRate, 0) || f.NegotiatedRate <= 0 {
		return rlerrors.NewRecordError(rlerrors.CodeInvalidRate,
			fmt.Sprintf("negotiated rate %v is not a positive finite number", f.NegotiatedRate))
	}

	ym, err := identity.NormalizeYearMonth(f.YearMonth)
	if err != nil {
		return rlerrors.NewRecordError(rlerrors.CodeInvalidPeriod, err.Error())
	}
	f.YearMonth = ym

	f.State = strings.ToUpper(strings.TrimSpace(f.State))
	f.PayerSlug = identity.Slugify(f.PayerSlug)
	f.BillingClass = strings.ToLower(strings.TrimSpace(f.BillingClass))

	return nil
}
