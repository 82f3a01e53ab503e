package partition

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	rlerrors "github.com/ratelake/ratelake/internal/errors"
	"github.com/ratelake/ratelake/internal/storage"
	"github.com/ratelake/ratelake/pkg/types"
)

// MergeResult describes the outcome of merging one batch of rows into a
// partition.
type MergeResult struct {
	// Key is the partition key that was merged
	Key types.PartitionKey

	// RelPath is the partition file path relative to the output root
	RelPath string

	// RowsAdded is the number of new distinct rows added
	RowsAdded int64

	// Duplicates is the number of incoming rows dropped as exact
	// duplicates of already-present rows
	Duplicates int64

	// Anomalies is the number of identity collisions where content
	// differed; the later row won
	Anomalies int64

	// RowCount is the total rows in the partition after the merge
	RowCount int64

	// SizeBytes is the partition file size after the merge
	SizeBytes int64

	// RateMin and RateMax bound the negotiated rates in the partition
	RateMin float64
	RateMax float64

	// YearMonthMin and YearMonthMax bound the reporting periods
	YearMonthMin string
	YearMonthMax string
}

// Merger merges enriched rows into Hive-style partition files. Merges
// are idempotent: replaying the same rows adds nothing, and the
// partition file is always replaced atomically via a temp file and
// rename, so readers never observe a half-written partition.
type Merger struct {
	outputDir string
	locks     *KeyLocks
	retry     storage.RetryPolicy
	remote    storage.ObjectStorage
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithRemote mirrors every merged partition into object storage after
// the local rename succeeds.
func WithRemote(remote storage.ObjectStorage) MergerOption {
	return func(m *Merger) { m.remote = remote }
}

// NewMerger creates a merger rooted at outputDir.
func NewMerger(outputDir string, retry storage.RetryPolicy, opts ...MergerOption) *Merger {
	m := &Merger{
		outputDir: outputDir,
		locks:     NewKeyLocks(),
		retry:     retry,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge folds rows into the partition for key. When the merge succeeds
// locally but the remote mirror fails, the result is returned alongside
// the error so the caller can account for the rows while flagging the
// partition.
func (m *Merger) Merge(ctx context.Context, key types.PartitionKey, rows []types.EnrichedRecord) (*MergeResult, error) {
	release, err := m.locks.Acquire(key.Canonical())
	if err != nil {
		return nil, err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	relPath := FilePath(key)
	absPath := filepath.Join(m.outputDir, relPath)
	dir := filepath.Dir(absPath)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, rlerrors.NewStorageError(rlerrors.CodeUploadFailed,
			fmt.Sprintf("failed to create partition dir %s", dir), err)
	}

	var existing []types.EnrichedRecord
	if _, statErr := os.Stat(absPath); statErr == nil {
		readErr := m.retry.Do(ctx, func() error {
			var err error
			existing, err = parquet.ReadFile[types.EnrichedRecord](absPath)
			return err
		})
		if readErr != nil {
			return nil, rlerrors.NewMergeError(rlerrors.CodeMergeFailed,
				fmt.Sprintf("failed to read existing partition %s", relPath), readErr)
		}
	}

	merged, result := mergeRows(existing, rows, relPath)
	result.Key = key
	result.RelPath = relPath

	// Stable output order keeps repeated merges byte-comparable
	sort.Slice(merged, func(i, j int) bool { return merged[i].FactUID < merged[j].FactUID })

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", types.PartitionFileName, uuid.New().String()[:8]))
	writeErr := m.retry.Do(ctx, func() error {
		if err := parquet.WriteFile(tmpPath, merged, parquet.Compression(&parquet.Zstd)); err != nil {
			return err
		}
		return os.Rename(tmpPath, absPath)
	})
	if writeErr != nil {
		os.Remove(tmpPath)
		return nil, rlerrors.NewStorageError(rlerrors.CodeUploadFailed,
			fmt.Sprintf("failed to write partition %s", relPath), writeErr)
	}

	stats := NewStatsTracker()
	for i := range merged {
		stats.Update(&merged[i])
	}
	result.RowCount = stats.RowCount()
	result.RateMin, result.RateMax = stats.RateRange()
	result.YearMonthMin, result.YearMonthMax = stats.YearMonthRange()

	if fi, err := os.Stat(absPath); err == nil {
		result.SizeBytes = fi.Size()
	}

	if m.remote != nil {
		if err := m.remote.Upload(ctx, absPath, relPath); err != nil {
			return result, rlerrors.NewStorageError(rlerrors.CodeUploadFailed,
				fmt.Sprintf("failed to mirror partition %s", relPath), err)
		}
	}

	return result, nil
}

// CleanOrphans removes temp files left behind by an interrupted run.
// Safe to call before any merge; renames are atomic, so a temp file only
// survives a crash mid-write.
func (m *Merger) CleanOrphans() (int, error) {
	prefix := "." + types.PartitionFileName + ".tmp-"
	removed := 0
	err := filepath.Walk(m.outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasPrefix(filepath.Base(path), prefix) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}

// Close waits for in-flight merges and rejects new ones.
func (m *Merger) Close() error {
	return m.locks.Close()
}

// mergeRows folds incoming rows into the existing set by fact identity.
// Exact re-deliveries are dropped; colliding identities with different
// content are replaced so the later row wins, with each collision logged
// for audit.
func mergeRows(existing, incoming []types.EnrichedRecord, relPath string) ([]types.EnrichedRecord, *MergeResult) {
	result := &MergeResult{}

	merged := make([]types.EnrichedRecord, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i := range merged {
		index[merged[i].FactUID] = i
	}

	for _, row := range incoming {
		if i, ok := index[row.FactUID]; ok {
			if recordsEqual(&merged[i], &row) {
				result.Duplicates++
			} else {
				result.Anomalies++
				log.Printf("partition: identity collision %s in %s, later write wins", row.FactUID, relPath)
				merged[i] = row
			}
			continue
		}
		index[row.FactUID] = len(merged)
		merged = append(merged, row)
		result.RowsAdded++
	}

	return merged, result
}

func recordsEqual(a, b *types.EnrichedRecord) bool {
	return reflect.DeepEqual(*a, *b)
}
