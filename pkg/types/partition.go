package types

import "strings"

// NullToken is the sentinel stored for a missing partition column value.
// It keeps rows with null attributes addressable instead of dropping them.
const NullToken = "__NULL__"

// PartitionFileName is the name of the enriched fact file inside every
// partition directory.
const PartitionFileName = "fact_rate_enriched.parquet"

// PartitionColumns is the fixed partition hierarchy, outermost first.
var PartitionColumns = []string{
	"payer_slug",
	"state",
	"billing_class",
	"procedure_set",
	"procedure_class",
	"primary_taxonomy_code",
	"stat_area_name",
	"year",
	"month",
}

// PartitionKey is an ordered list of column values identifying one
// partition. Values are raw (unsanitized); missing attributes carry
// NullToken. Order always follows PartitionColumns.
type PartitionKey struct {
	// Values holds one entry per PartitionColumns element
	Values []string `json:"values"`
}

// Canonical returns a deterministic string form of the key, usable as a
// map key and as the per-partition lock identity.
func (k PartitionKey) Canonical() string {
	return strings.Join(k.Values, "|")
}

// Segment returns the value for the named partition column, or the
// empty string if the column is not part of the hierarchy.
func (k PartitionKey) Segment(column string) string {
	for i, c := range PartitionColumns {
		if c == column && i < len(k.Values) {
			return k.Values[i]
		}
	}
	return ""
}
