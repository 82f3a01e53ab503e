package dimension

import (
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/ratelake/ratelake/internal/schema"
	"github.com/ratelake/ratelake/pkg/types"
)

func strPtr(s string) *string    { return &s }
func f64Ptr(f float64) *float64 { return &f }

// writeDims lays down a small but complete dimension directory.
func writeDims(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	write := func(file string, rows interface{}) {
		t.Helper()
		var err error
		switch r := rows.(type) {
		case []CodeRow:
			err = parquet.WriteFile(filepath.Join(dir, file), r)
		case []CodeCategoryRow:
			err = parquet.WriteFile(filepath.Join(dir, file), r)
		case []PayerRow:
			err = parquet.WriteFile(filepath.Join(dir, file), r)
		case []ProviderGroupRow:
			err = parquet.WriteFile(filepath.Join(dir, file), r)
		case []PosSetRow:
			err = parquet.WriteFile(filepath.Join(dir, file), r)
		case []GroupNPIRow:
			err = parquet.WriteFile(filepath.Join(dir, file), r)
		case []NPIRow:
			err = parquet.WriteFile(filepath.Join(dir, file), r)
		case []NPIGeoRow:
			err = parquet.WriteFile(filepath.Join(dir, file), r)
		case []BenchmarkRow:
			err = parquet.WriteFile(filepath.Join(dir, file), r)
		default:
			t.Fatalf("unsupported row type for %s", file)
		}
		if err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
	}

	write(schema.FileCode, []CodeRow{
		{CodeType: "CPT", Code: "99213", CodeName: strPtr("Office visit"), CodeDescription: strPtr("Established patient")},
	})
	write(schema.FileCodeCategory, []CodeCategoryRow{
		{CodeType: "CPT", Code: "99213", ProcedureSet: strPtr("Evaluation and Management"), ProcedureClass: strPtr("Office Visits")},
	})
	write(schema.FilePayer, []PayerRow{
		{PayerSlug: "aetna", PayerName: strPtr("Aetna"), Version: strPtr("2024-03")},
	})
	write(schema.FileProviderGroup, []ProviderGroupRow{
		{ProviderGroupUID: "pg1", GroupIDRaw: strPtr("group-42")},
	})
	write(schema.FilePosSet, []PosSetRow{
		{PosSetID: "pos1", PosCodes: strPtr("11,22")},
	})
	write(schema.FileGroupNPIXref, []GroupNPIRow{
		{ProviderGroupUID: "pg1", NPI: "2222222222"},
		{ProviderGroupUID: "pg1", NPI: "1111111111"},
	})
	write(schema.FileNPI, []NPIRow{
		{NPI: "1111111111", OrganizationName: strPtr("Mercy Clinic"), PrimaryTaxonomyCode: strPtr("207Q00000X"), ProviderType: strPtr("organization")},
	})
	write(schema.FileNPIGeo, []NPIGeoRow{
		{NPI: "1111111111", StatAreaName: strPtr("Dallas-Fort Worth"), CountyName: strPtr("Dallas"), Latitude: f64Ptr(32.78), Longitude: f64Ptr(-96.80)},
	})
	write(schema.FileBenchmark, []BenchmarkRow{
		{CodeType: "CPT", Code: "99213", State: strPtr("TX"), MedicareStateRate: f64Ptr(80)},
		{CodeType: "CPT", Code: "99213", MedicareNationalRate: f64Ptr(75)},
	})

	return dir
}

func TestLoadAndEnrichFullHit(t *testing.T) {
	store, err := Load(writeDims(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := NewResolver(store)

	fact := &types.FactRecord{
		FactUID: "f1", State: "TX", YearMonth: "2024-03", PayerSlug: "aetna",
		BillingClass: "professional", CodeType: "CPT", Code: "99213",
		ProviderGroupUID: "pg1", PosSetID: "pos1",
		NegotiatedType: "negotiated", NegotiationArrangement: "ffs",
		NegotiatedRate: 120, ExpirationDate: "9999-12-31",
	}

	e, misses := r.Enrich(fact)
	if len(misses) != 0 {
		t.Fatalf("expected no misses, got %v", misses)
	}
	if e.Year != "2024" || e.Month != "03" {
		t.Errorf("year/month = %q/%q", e.Year, e.Month)
	}
	if e.CodeName == nil || *e.CodeName != "Office visit" {
		t.Error("code dimension not applied")
	}
	if e.ProcedureSet == nil || *e.ProcedureSet != "Evaluation and Management" {
		t.Error("code category not applied")
	}
	if e.PayerName == nil || *e.PayerName != "Aetna" {
		t.Error("payer dimension not applied")
	}
	// Representative NPI is the lowest member
	if e.NPI == nil || *e.NPI != "1111111111" {
		t.Errorf("npi = %v, want 1111111111", e.NPI)
	}
	if e.StatAreaName == nil || *e.StatAreaName != "Dallas-Fort Worth" {
		t.Error("geography not applied")
	}
	// State benchmark wins; 120/80 = 1.5
	if e.RateToMedicareRatio == nil || *e.RateToMedicareRatio != 1.5 {
		t.Errorf("ratio = %v, want 1.5", e.RateToMedicareRatio)
	}
	if e.IsAboveMedicare == nil || !*e.IsAboveMedicare {
		t.Error("is_above_medicare should be true")
	}
}

func TestEnrichMissesNullFill(t *testing.T) {
	store, err := Load(writeDims(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := NewResolver(store)

	fact := &types.FactRecord{
		FactUID: "f2", State: "OK", YearMonth: "2024-03", PayerSlug: "unknown-payer",
		CodeType: "CPT", Code: "00000", ProviderGroupUID: "no-such-group",
		PosSetID: "no-such-pos", NegotiatedRate: 50,
	}

	e, misses := r.Enrich(fact)
	missSet := make(map[string]bool)
	for _, m := range misses {
		missSet[m] = true
	}
	for _, want := range []string{DimCode, DimCodeCategory, DimPayer, DimProviderGroup, DimPosSet, DimNPI, DimGeography, DimBenchmark} {
		if !missSet[want] {
			t.Errorf("expected miss on %s", want)
		}
	}
	if e.CodeName != nil || e.PayerName != nil || e.NPI != nil || e.RateToMedicareRatio != nil {
		t.Error("missed dimensions should null-fill")
	}
	// The row itself survives with its fact columns intact
	if e.FactUID != "f2" || e.NegotiatedRate != 50 {
		t.Error("fact columns must be preserved on miss")
	}
}

func TestBenchmarkNationalFallback(t *testing.T) {
	store, err := Load(writeDims(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := NewResolver(store)

	fact := &types.FactRecord{
		State: "OK", CodeType: "CPT", Code: "99213", NegotiatedRate: 150,
		YearMonth: "2024-03",
	}
	e, _ := r.Enrich(fact)
	// No TX row for OK; national 75 applies: 150/75 = 2.0
	if e.RateToMedicareRatio == nil || *e.RateToMedicareRatio != 2.0 {
		t.Errorf("ratio = %v, want 2.0 from national fallback", e.RateToMedicareRatio)
	}
}

func TestLoadMissingDimDirIsNonFatal(t *testing.T) {
	store, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("empty dim dir should load: %v", err)
	}
	r := NewResolver(store)
	_, misses := r.Enrich(&types.FactRecord{CodeType: "CPT", Code: "1", YearMonth: "2024-01"})
	if len(misses) == 0 {
		t.Error("all joins should miss with no dimension files")
	}
}
