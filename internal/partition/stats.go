package partition

import "github.com/ratelake/ratelake/pkg/types"

// StatsTracker tracks per-partition statistics during a merge, used for
// catalog registration and pruning.
type StatsTracker struct {
	rowCount int64

	minRate *float64
	maxRate *float64

	minYearMonth *string
	maxYearMonth *string
}

// NewStatsTracker creates a new statistics tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{}
}

// Update updates statistics with one enriched row.
func (s *StatsTracker) Update(row *types.EnrichedRecord) {
	s.rowCount++

	if s.minRate == nil || row.NegotiatedRate < *s.minRate {
		rate := row.NegotiatedRate
		s.minRate = &rate
	}
	if s.maxRate == nil || row.NegotiatedRate > *s.maxRate {
		rate := row.NegotiatedRate
		s.maxRate = &rate
	}

	// YearMonth is YYYY-MM, so lexicographic order is temporal order
	if s.minYearMonth == nil || row.YearMonth < *s.minYearMonth {
		ym := row.YearMonth
		s.minYearMonth = &ym
	}
	if s.maxYearMonth == nil || row.YearMonth > *s.maxYearMonth {
		ym := row.YearMonth
		s.maxYearMonth = &ym
	}
}

// RowCount returns the number of rows tracked.
func (s *StatsTracker) RowCount() int64 {
	return s.rowCount
}

// RateRange returns the min and max negotiated rate seen, or zeros if
// no rows were tracked.
func (s *StatsTracker) RateRange() (min, max float64) {
	if s.minRate == nil || s.maxRate == nil {
		return 0, 0
	}
	return *s.minRate, *s.maxRate
}

// YearMonthRange returns the min and max reporting period seen.
func (s *StatsTracker) YearMonthRange() (min, max string) {
	if s.minYearMonth == nil || s.maxYearMonth == nil {
		return "", ""
	}
	return *s.minYearMonth, *s.maxYearMonth
}
