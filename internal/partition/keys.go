// Package partition resolves partition keys for enriched rows and
// merges rows into Hive-style partition files.
package partition

import (
	"path"
	"strings"

	"github.com/ratelake/ratelake/internal/identity"
	"github.com/ratelake/ratelake/pkg/types"
)

// ResolveKey derives the partition key for an enriched row. Every
// partition column gets a value; attributes the joins could not supply
// carry the null sentinel so the row still lands in an addressable
// partition.
func ResolveKey(e *types.EnrichedRecord) types.PartitionKey {
	values := make([]string, 0, len(types.PartitionColumns))
	for _, col := range types.PartitionColumns {
		values = append(values, keyValue(e, col))
	}
	return types.PartitionKey{Values: values}
}

func keyValue(e *types.EnrichedRecord, col string) string {
	switch col {
	case "payer_slug":
		return orNull(e.PayerSlug)
	case "state":
		return orNull(e.State)
	case "billing_class":
		return orNull(e.BillingClass)
	case "procedure_set":
		return ptrOrNull(e.ProcedureSet)
	case "procedure_class":
		return ptrOrNull(e.ProcedureClass)
	case "primary_taxonomy_code":
		return ptrOrNull(e.PrimaryTaxonomyCode)
	case "stat_area_name":
		return ptrOrNull(e.StatAreaName)
	case "year":
		return orNull(e.Year)
	case "month":
		return orNull(e.Month)
	}
	return types.NullToken
}

func orNull(s string) string {
	if strings.TrimSpace(s) == "" {
		return types.NullToken
	}
	return s
}

func ptrOrNull(s *string) string {
	if s == nil {
		return types.NullToken
	}
	return orNull(*s)
}

// KeyPath renders the relative directory for a partition key as
// attr=value segments in hierarchy order. Values are sanitized into
// slug-safe segments; the null sentinel passes through verbatim.
func KeyPath(k types.PartitionKey) string {
	segments := make([]string, 0, len(types.PartitionColumns))
	for i, col := range types.PartitionColumns {
		value := types.NullToken
		if i < len(k.Values) {
			value = k.Values[i]
		}
		segments = append(segments, col+"="+SanitizeValue(value))
	}
	return path.Join(segments...)
}

// FilePath renders the relative path of the partition's data file.
func FilePath(k types.PartitionKey) string {
	return path.Join(KeyPath(k), types.PartitionFileName)
}

// SanitizeValue makes a partition value safe as a path segment. The
// null sentinel is preserved; anything else is slugified, and values
// that slugify to nothing collapse to the sentinel.
func SanitizeValue(value string) string {
	if value == types.NullToken {
		return value
	}
	slug := identity.Slugify(value)
	if slug == "" {
		return types.NullToken
	}
	return slug
}
