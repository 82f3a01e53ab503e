// Package memory watches heap usage against a fixed budget and tells
// the engine when to shed buffers, shrink chunks, or abort.
package memory

import (
	"log"
	"runtime"
	"sync"
)

// Level classifies heap pressure at a checkpoint.
type Level int

const (
	// LevelOK means usage is comfortably inside the budget
	LevelOK Level = iota

	// LevelWarn means usage crossed the warn threshold; the engine
	// should release buffers and shrink the next chunk
	LevelWarn

	// LevelCritical means usage crossed the critical threshold; the
	// engine must flush what it can and abort
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "WARN"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "OK"
	}
}

// Default thresholds as fractions of the budget.
const (
	DefaultWarnFraction     = 0.70
	DefaultCriticalFraction = 0.95
)

// Monitor samples heap usage on demand. It never polls in the
// background; the engine checks it at chunk boundaries so pressure
// readings line up with safe reaction points.
type Monitor struct {
	budgetBytes      uint64
	warnFraction     float64
	criticalFraction float64

	mu        sync.Mutex
	peakBytes uint64

	// readMemStats is swappable for tests
	readMemStats func(*runtime.MemStats)
}

// NewMonitor creates a monitor with a budget in bytes and default
// thresholds.
func NewMonitor(budgetBytes uint64) *Monitor {
	return &Monitor{
		budgetBytes:      budgetBytes,
		warnFraction:     DefaultWarnFraction,
		criticalFraction: DefaultCriticalFraction,
		readMemStats:     runtime.ReadMemStats,
	}
}

// NewMonitorMB creates a monitor with a budget in megabytes.
func NewMonitorMB(budgetMB int) *Monitor {
	return NewMonitor(uint64(budgetMB) * 1024 * 1024)
}

// Observe samples current heap usage and classifies it. The peak is
// tracked across the run for the summary.
func (m *Monitor) Observe() Level {
	var ms runtime.MemStats
	m.readMemStats(&ms)
	return m.classify(ms.HeapAlloc)
}

func (m *Monitor) classify(used uint64) Level {
	m.mu.Lock()
	if used > m.peakBytes {
		m.peakBytes = used
	}
	m.mu.Unlock()

	frac := float64(used) / float64(m.budgetBytes)
	switch {
	case frac >= m.criticalFraction:
		log.Printf("memory: CRITICAL usage %d/%d bytes (%.0f%%)", used, m.budgetBytes, frac*100)
		return LevelCritical
	case frac >= m.warnFraction:
		log.Printf("memory: WARN usage %d/%d bytes (%.0f%%)", used, m.budgetBytes, frac*100)
		return LevelWarn
	default:
		return LevelOK
	}
}

// Release asks the runtime to collect garbage now. Called after the
// engine drops its chunk buffers under pressure.
func (m *Monitor) Release() {
	runtime.GC()
}

// PeakBytes returns the highest heap usage observed.
func (m *Monitor) PeakBytes() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakBytes
}

// BudgetBytes returns the configured budget.
func (m *Monitor) BudgetBytes() uint64 {
	return m.budgetBytes
}

// ShrinkChunk halves the chunk size in response to pressure, never
// going below floor.
func ShrinkChunk(current, floor int) int {
	next := current / 2
	if next < floor {
		return floor
	}
	return next
}
