package types

import "time"

// RunStatus is the terminal outcome of an enrichment run.
type RunStatus string

const (
	// StatusSuccess means every input row was either written or was an
	// exact duplicate of an already-written row.
	StatusSuccess RunStatus = "SUCCESS"

	// StatusPartial means the run completed but skipped rows, failed
	// partitions, or rate-limited storage left some data behind.
	StatusPartial RunStatus = "PARTIAL"

	// StatusFailed means the run aborted before completing.
	StatusFailed RunStatus = "FAILED"
)

// RunSummary is the machine-readable account of one enrichment run.
type RunSummary struct {
	// RunID uniquely identifies the run
	RunID string `json:"run_id"`

	// Status is the terminal outcome
	Status RunStatus `json:"status"`

	// RowsRead is the number of fact rows read from the input
	RowsRead int64 `json:"rows_read"`

	// RowsWritten is the number of distinct enriched rows added to partitions
	RowsWritten int64 `json:"rows_written"`

	// RowsSkipped is the number of malformed rows quarantined
	RowsSkipped int64 `json:"rows_skipped"`

	// SkipReasons counts skipped rows by reason code
	SkipReasons map[string]int64 `json:"skip_reasons,omitempty"`

	// DuplicateRows is the number of rows dropped as exact duplicates
	DuplicateRows int64 `json:"duplicate_rows"`

	// MergeAnomalies counts identity collisions with differing content
	MergeAnomalies int64 `json:"merge_anomalies"`

	// JoinMisses counts dimension lookup misses by dimension name
	JoinMisses map[string]int64 `json:"join_misses,omitempty"`

	// PartitionsTouched is the number of distinct partitions written
	PartitionsTouched int64 `json:"partitions_touched"`

	// FailedPartitions lists partitions whose merge ultimately failed
	FailedPartitions []string `json:"failed_partitions,omitempty"`

	// ChunksProcessed is the number of input chunks consumed
	ChunksProcessed int64 `json:"chunks_processed"`

	// FinalChunkSize is the chunk size in effect when the run ended
	FinalChunkSize int `json:"final_chunk_size"`

	// PeakMemoryBytes is the highest heap usage observed at a checkpoint
	PeakMemoryBytes uint64 `json:"peak_memory_bytes"`

	// StartedAt and FinishedAt bound the run wall-clock time
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the run wall-clock duration.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
