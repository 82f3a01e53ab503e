package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"

	"github.com/ratelake/ratelake/pkg/types"
)

// QuarantineEntry is one skipped row with the reason it was skipped.
type QuarantineEntry struct {
	Reason string           `json:"reason"`
	Row    types.FactRecord `json:"row"`
}

// Quarantine spills skipped rows to a snappy-framed JSON-lines file so
// malformed input can be inspected and replayed after a fix, without
// keeping any of it in memory.
type Quarantine struct {
	mu    sync.Mutex
	file  *os.File
	w     *snappy.Writer
	enc   *json.Encoder
	path  string
	count int64
}

// OpenQuarantine creates the spill file for a run.
func OpenQuarantine(dir, runID string) (*Quarantine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("quarantine: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("run-%s.jsonl.snappy", runID))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("quarantine: %w", err)
	}

	w := snappy.NewBufferedWriter(f)
	return &Quarantine{
		file: f,
		w:    w,
		enc:  json.NewEncoder(w),
		path: path,
	}, nil
}

// Spill records one skipped row.
func (q *Quarantine) Spill(reason string, row *types.FactRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.count++
	return q.enc.Encode(QuarantineEntry{Reason: reason, Row: *row})
}

// Count returns the number of rows spilled.
func (q *Quarantine) Count() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Path returns the spill file path.
func (q *Quarantine) Path() string {
	return q.path
}

// Close flushes and closes the spill file. An empty spill file is
// removed.
func (q *Quarantine) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.w.Close(); err != nil {
		q.file.Close()
		return err
	}
	if err := q.file.Close(); err != nil {
		return err
	}
	if q.count == 0 {
		return os.Remove(q.path)
	}
	return nil
}

// ReadQuarantine loads a spill file back, for inspection and replay.
func ReadQuarantine(path string) ([]QuarantineEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(snappy.NewReader(f))
	var entries []QuarantineEntry
	for dec.More() {
		var e QuarantineEntry
		if err := dec.Decode(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
