package observability

import (
	"sync"
	"testing"
	"time"
)

func TestRunStatsCounters(t *testing.T) {
	s := NewRunStats()

	s.RecordRowsRead(100)
	s.RecordSkip("MALFORMED_ROW")
	s.RecordSkip("MALFORMED_ROW")
	s.RecordSkip("INVALID_RATE")
	s.RecordJoinMiss("payer")
	s.RecordMerge("p1", 50, 2, 1)
	s.RecordMerge("p2", 45, 0, 0)
	s.RecordMerge("p1", 5, 0, 0)
	s.RecordFailedPartition("p3")
	s.RecordChunk(10 * time.Millisecond)

	snap := s.Snapshot()
	if snap.RowsRead != 100 {
		t.Errorf("rows read = %d", snap.RowsRead)
	}
	if snap.RowsWritten != 100 {
		t.Errorf("rows written = %d, want 100", snap.RowsWritten)
	}
	if snap.RowsSkipped != 3 || snap.SkipReasons["MALFORMED_ROW"] != 2 {
		t.Errorf("skips = %d %v", snap.RowsSkipped, snap.SkipReasons)
	}
	if snap.Duplicates != 2 || snap.Anomalies != 1 {
		t.Errorf("dups=%d anomalies=%d", snap.Duplicates, snap.Anomalies)
	}
	// p1 counted once despite two merges
	if snap.PartitionsTouched != 2 {
		t.Errorf("partitions touched = %d, want 2", snap.PartitionsTouched)
	}
	if len(snap.FailedPartitions) != 1 || snap.FailedPartitions[0] != "p3" {
		t.Errorf("failed partitions = %v", snap.FailedPartitions)
	}
	if snap.JoinMisses["payer"] != 1 {
		t.Errorf("join misses = %v", snap.JoinMisses)
	}
}

func TestRunStatsConcurrent(t *testing.T) {
	s := NewRunStats()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RecordRowsRead(1)
				s.RecordJoinMiss("npi")
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	if snap.RowsRead != 1000 || snap.JoinMisses["npi"] != 1000 {
		t.Errorf("concurrent counters lost updates: %+v", snap)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewRunStats()
	s.RecordSkip("X")
	snap := s.Snapshot()
	snap.SkipReasons["X"] = 99

	if s.Snapshot().SkipReasons["X"] != 1 {
		t.Error("mutating a snapshot should not affect the collector")
	}
}
