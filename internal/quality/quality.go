// Package quality tracks enrichment completeness and flags columns
// whose null ratio exceeds configured thresholds. High null ratios in
// joined columns usually mean a stale or truncated dimension table.
package quality

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ratelake/ratelake/pkg/types"
)

// Default thresholds. Some columns are expected to be sparse (rural
// rows have no stat area; many atypical NPIs carry no taxonomy), so
// they get looser bounds.
const (
	DefaultNullRatio = 0.20
)

// Checker counts nulls per monitored column across a run.
type Checker struct {
	mu         sync.Mutex
	rows       int64
	nullCounts map[string]int64
	thresholds map[string]float64
	defaultMax float64
}

// Issue flags one column over its null-ratio threshold.
type Issue struct {
	Column    string
	NullRatio float64
	Threshold float64
	Rows      int64
}

func (i Issue) String() string {
	return fmt.Sprintf("column %s null ratio %.2f exceeds threshold %.2f over %d rows",
		i.Column, i.NullRatio, i.Threshold, i.Rows)
}

// NewChecker creates a checker. overrides maps column names to custom
// thresholds; every other monitored column uses defaultMax.
func NewChecker(defaultMax float64, overrides map[string]float64) *Checker {
	if defaultMax <= 0 {
		defaultMax = DefaultNullRatio
	}
	th := make(map[string]float64, len(overrides))
	for col, v := range overrides {
		th[col] = v
	}
	return &Checker{
		nullCounts: make(map[string]int64),
		thresholds: th,
		defaultMax: defaultMax,
	}
}

// Observe counts the nulls in one enriched row.
func (c *Checker) Observe(e *types.EnrichedRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rows++
	countNull(c.nullCounts, "code_name", e.CodeName == nil)
	countNull(c.nullCounts, "procedure_set", e.ProcedureSet == nil)
	countNull(c.nullCounts, "procedure_class", e.ProcedureClass == nil)
	countNull(c.nullCounts, "payer_name", e.PayerName == nil)
	countNull(c.nullCounts, "npi", e.NPI == nil)
	countNull(c.nullCounts, "primary_taxonomy_code", e.PrimaryTaxonomyCode == nil)
	countNull(c.nullCounts, "stat_area_name", e.StatAreaName == nil)
	countNull(c.nullCounts, "rate_to_medicare_ratio", e.RateToMedicareRatio == nil)
}

func countNull(counts map[string]int64, col string, isNull bool) {
	if isNull {
		counts[col]++
	}
}

// Report returns the columns currently over threshold, sorted by
// column name. An empty report means the run looks healthy.
func (c *Checker) Report() []Issue {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rows == 0 {
		return nil
	}

	var issues []Issue
	for col, nulls := range c.nullCounts {
		ratio := float64(nulls) / float64(c.rows)
		threshold := c.defaultMax
		if t, ok := c.thresholds[col]; ok {
			threshold = t
		}
		if ratio > threshold {
			issues = append(issues, Issue{
				Column:    col,
				NullRatio: ratio,
				Threshold: threshold,
				Rows:      c.rows,
			})
		}
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Column < issues[j].Column })
	return issues
}

// Rows returns the number of rows observed.
func (c *Checker) Rows() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}
