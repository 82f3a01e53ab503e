// Package observability tracks per-run counters for the enrichment
// engine: rows in and out, skips by reason, join misses by dimension,
// and chunk throughput.
package observability

import (
	"log"
	"sync"
	"time"
)

// RunStats accumulates counters across one enrichment run.
// All methods are O(1) and thread-safe.
type RunStats struct {
	mu sync.RWMutex

	rowsRead      int64
	rowsWritten   int64
	duplicates    int64
	anomalies     int64
	skipReasons   map[string]int64
	joinMisses    map[string]int64
	chunks        int64
	chunkDuration time.Duration
	partitions    map[string]struct{}
	failedParts   []string
}

// NewRunStats creates an empty stats collector.
func NewRunStats() *RunStats {
	return &RunStats{
		skipReasons: make(map[string]int64),
		joinMisses:  make(map[string]int64),
		partitions:  make(map[string]struct{}),
	}
}

// RecordRowsRead adds to the input row counter.
func (s *RunStats) RecordRowsRead(n int64) {
	s.mu.Lock()
	s.rowsRead += n
	s.mu.Unlock()
}

// RecordSkip counts one skipped row under the given reason code.
func (s *RunStats) RecordSkip(reason string) {
	s.mu.Lock()
	s.skipReasons[reason]++
	s.mu.Unlock()
}

// RecordJoinMiss counts one miss against the named dimension.
func (s *RunStats) RecordJoinMiss(dimension string) {
	s.mu.Lock()
	s.joinMisses[dimension]++
	s.mu.Unlock()
}

// RecordMerge folds one partition merge outcome into the run counters.
func (s *RunStats) RecordMerge(relPath string, rowsAdded, duplicates, anomalies int64) {
	s.mu.Lock()
	s.rowsWritten += rowsAdded
	s.duplicates += duplicates
	s.anomalies += anomalies
	s.partitions[relPath] = struct{}{}
	s.mu.Unlock()
}

// RecordFailedPartition marks a partition whose merge ultimately failed.
func (s *RunStats) RecordFailedPartition(relPath string) {
	s.mu.Lock()
	s.failedParts = append(s.failedParts, relPath)
	s.mu.Unlock()
}

// RecordChunk counts one completed chunk and its wall time.
func (s *RunStats) RecordChunk(d time.Duration) {
	s.mu.Lock()
	s.chunks++
	s.chunkDuration += d
	s.mu.Unlock()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	RowsRead          int64
	RowsWritten       int64
	RowsSkipped       int64
	Duplicates        int64
	Anomalies         int64
	SkipReasons       map[string]int64
	JoinMisses        map[string]int64
	Chunks            int64
	PartitionsTouched int64
	FailedPartitions  []string
}

// Snapshot returns a copy of the current counters.
func (s *RunStats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		RowsRead:          s.rowsRead,
		RowsWritten:       s.rowsWritten,
		Duplicates:        s.duplicates,
		Anomalies:         s.anomalies,
		SkipReasons:       make(map[string]int64, len(s.skipReasons)),
		JoinMisses:        make(map[string]int64, len(s.joinMisses)),
		Chunks:            s.chunks,
		PartitionsTouched: int64(len(s.partitions)),
		FailedPartitions:  append([]string(nil), s.failedParts...),
	}
	for k, v := range s.skipReasons {
		snap.SkipReasons[k] = v
		snap.RowsSkipped += v
	}
	for k, v := range s.joinMisses {
		snap.JoinMisses[k] = v
	}
	return snap
}

// LogProgress emits a one-line progress log, typically per chunk.
func (s *RunStats) LogProgress() {
	snap := s.Snapshot()
	avg := time.Duration(0)
	s.mu.RLock()
	if s.chunks > 0 {
		avg = s.chunkDuration / time.Duration(s.chunks)
	}
	s.mu.RUnlock()

	log.Printf("run: chunks=%d read=%d written=%d skipped=%d dups=%d partitions=%d avg_chunk=%s",
		snap.Chunks, snap.RowsRead, snap.RowsWritten, snap.RowsSkipped,
		snap.Duplicates, snap.PartitionsTouched, avg.Round(time.Millisecond))
}
