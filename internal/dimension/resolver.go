package dimension

import (
	"github.com/ratelake/ratelake/internal/identity"
	"github.com/ratelake/ratelake/pkg/types"
)

// Dimension names as they appear in join-miss counters.
const (
	DimCode          = "code"
	DimCodeCategory  = "code_category"
	DimPayer         = "payer"
	DimProviderGroup = "provider_group"
	DimPosSet        = "pos_set"
	DimNPI           = "npi"
	DimGeography     = "geography"
	DimBenchmark     = "benchmark"
)

// Resolver joins one fact row at a time against the loaded dimensions.
// Every miss null-fills the dimension's columns and is reported back so
// the run can track miss rates per dimension.
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver over a loaded store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Enrich joins the fact against every dimension and returns the enriched
// row plus the names of dimensions that missed. The returned row is
// complete either way; misses only mean nulls in the affected columns.
func (r *Resolver) Enrich(f *types.FactRecord) (*types.EnrichedRecord, []string) {
	year, month := identity.SplitYearMonth(f.YearMonth)
	e := &types.EnrichedRecord{
		FactUID:                f.FactUID,
		State:                  f.State,
		YearMonth:              f.YearMonth,
		Year:                   year,
		Month:                  month,
		PayerSlug:              f.PayerSlug,
		BillingClass:           f.BillingClass,
		CodeType:               f.CodeType,
		Code:                   f.Code,
		ProviderGroupUID:       f.ProviderGroupUID,
		PosSetID:               f.PosSetID,
		NegotiatedType:         f.NegotiatedType,
		NegotiationArrangement: f.NegotiationArrangement,
		NegotiatedRate:         f.NegotiatedRate,
		ExpirationDate:         f.ExpirationDate,
		Modifiers:              f.Modifiers,
		ReportingEntityName:    f.ReportingEntityName,
	}

	var misses []string
	ck := codeKey{norm(f.CodeType), norm(f.Code)}

	if row, ok := r.store.codes[ck]; ok {
		e.CodeName = row.CodeName
		e.CodeDescription = row.CodeDescription
	} else {
		misses = append(misses, DimCode)
	}

	if row, ok := r.store.categories[ck]; ok {
		e.ProcedureSet = row.ProcedureSet
		e.ProcedureClass = row.ProcedureClass
		e.ProcedureGroup = row.ProcedureGroup
	} else {
		misses = append(misses, DimCodeCategory)
	}

	if row, ok := r.store.payers[norm(f.PayerSlug)]; ok {
		e.PayerName = row.PayerName
		e.PayerVersion = row.Version
	} else {
		misses = append(misses, DimPayer)
	}

	if _, ok := r.store.groups[norm(f.ProviderGroupUID)]; !ok {
		misses = append(misses, DimProviderGroup)
	}

	if _, ok := r.store.posSets[norm(f.PosSetID)]; !ok {
		misses = append(misses, DimPosSet)
	}

	// Provider attributes come through the group's representative NPI.
	npi, hasNPI := r.store.groupNPI[norm(f.ProviderGroupUID)]
	if hasNPI {
		e.NPI = &npi
		if row, ok := r.store.npis[npi]; ok {
			e.OrganizationName = row.OrganizationName
			e.PrimaryTaxonomyCode = row.PrimaryTaxonomyCode
			e.PrimaryTaxonomyDesc = row.PrimaryTaxonomyDesc
			e.ProviderType = row.ProviderType
		} else {
			misses = append(misses, DimNPI)
		}
		if row, ok := r.store.geo[npi]; ok {
			e.AddressHash = row.AddressHash
			e.CountyName = row.CountyName
			e.CountyFIPS = row.CountyFIPS
			e.StatAreaName = row.StatAreaName
			e.StatAreaCode = row.StatAreaCode
			e.Latitude = row.Latitude
			e.Longitude = row.Longitude
		} else {
			misses = append(misses, DimGeography)
		}
	} else {
		misses = append(misses, DimNPI, DimGeography)
	}

	if !r.resolveBenchmark(f, e) {
		misses = append(misses, DimBenchmark)
	}

	return e, misses
}

// resolveBenchmark attaches Medicare reference rates and the derived
// comparison columns. A state-specific row wins over the national row.
func (r *Resolver) resolveBenchmark(f *types.FactRecord, e *types.EnrichedRecord) bool {
	ct, code, state := norm(f.CodeType), norm(f.Code), norm(f.State)

	row, ok := r.store.benchmarks[benchKey{ct, code, state}]
	if !ok {
		row, ok = r.store.benchmarks[benchKey{ct, code, ""}]
	}
	if !ok {
		return false
	}

	e.MedicareNationalRate = row.MedicareNationalRate
	e.MedicareStateRate = row.MedicareStateRate

	reference := row.MedicareStateRate
	if reference == nil {
		reference = row.MedicareNationalRate
	}
	if reference != nil && *reference > 0 {
		ratio := f.NegotiatedRate / *reference
		above := ratio > 1
		e.RateToMedicareRatio = &ratio
		e.IsAboveMedicare = &above
	}
	return true
}
