// Package dimension loads the dimension tables into memory once per run
// and resolves per-row joins against them. Dimensions are broadcast
// lookups: small enough to hold fully in memory while facts stream
// through in chunks.
package dimension

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	rlerrors "github.com/ratelake/ratelake/internal/errors"
	"github.com/ratelake/ratelake/internal/schema"
)

// CodeRow is one row of the procedure code dimension.
type CodeRow struct {
	CodeType        string  `parquet:"code_type"`
	Code            string  `parquet:"code"`
	CodeName        *string `parquet:"code_name,optional"`
	CodeDescription *string `parquet:"code_description,optional"`
}

// CodeCategoryRow is one row of the procedure taxonomy dimension.
type CodeCategoryRow struct {
	CodeType       string  `parquet:"code_type"`
	Code           string  `parquet:"code"`
	ProcedureSet   *string `parquet:"procedure_set,optional"`
	ProcedureClass *string `parquet:"procedure_class,optional"`
	ProcedureGroup *string `parquet:"procedure_group,optional"`
}

// PayerRow is one row of the payer dimension.
type PayerRow struct {
	PayerSlug string  `parquet:"payer_slug"`
	PayerName *string `parquet:"payer_name,optional"`
	Version   *string `parquet:"version,optional"`
}

// ProviderGroupRow is one row of the provider group dimension.
type ProviderGroupRow struct {
	ProviderGroupUID string  `parquet:"provider_group_uid"`
	GroupIDRaw       *string `parquet:"group_id_raw,optional"`
}

// PosSetRow is one row of the place-of-service set dimension.
type PosSetRow struct {
	PosSetID string  `parquet:"pos_set_id"`
	PosCodes *string `parquet:"pos_codes,optional"`
}

// GroupNPIRow is one row of the group-to-NPI crosswalk.
type GroupNPIRow struct {
	ProviderGroupUID string `parquet:"provider_group_uid"`
	NPI              string `parquet:"npi"`
}

// NPIRow is one row of the provider registry dimension.
type NPIRow struct {
	NPI                 string  `parquet:"npi"`
	OrganizationName    *string `parquet:"organization_name,optional"`
	PrimaryTaxonomyCode *string `parquet:"primary_taxonomy_code,optional"`
	PrimaryTaxonomyDesc *string `parquet:"primary_taxonomy_desc,optional"`
	ProviderType        *string `parquet:"provider_type,optional"`
}

// NPIGeoRow is one row of the practice location dimension.
type NPIGeoRow struct {
	NPI          string   `parquet:"npi"`
	AddressHash  *string  `parquet:"address_hash,optional"`
	CountyName   *string  `parquet:"county_name,optional"`
	CountyFIPS   *string  `parquet:"county_fips,optional"`
	StatAreaName *string  `parquet:"stat_area_name,optional"`
	StatAreaCode *string  `parquet:"stat_area_code,optional"`
	Latitude     *float64 `parquet:"latitude,optional"`
	Longitude    *float64 `parquet:"longitude,optional"`
}

// BenchmarkRow is one row of the Medicare benchmark dimension. State is
// empty for national rows.
type BenchmarkRow struct {
	CodeType             string   `parquet:"code_type"`
	Code                 string   `parquet:"code"`
	State                *string  `parquet:"state,optional"`
	MedicareNationalRate *float64 `parquet:"medicare_national_rate,optional"`
	MedicareStateRate    *float64 `parquet:"medicare_state_rate,optional"`
}

type codeKey struct {
	codeType string
	code     string
}

type benchKey struct {
	codeType string
	code     string
	state    string
}

// Store holds every dimension table as an in-memory lookup.
type Store struct {
	codes      map[codeKey]CodeRow
	categories map[codeKey]CodeCategoryRow
	payers     map[string]PayerRow
	groups     map[string]ProviderGroupRow
	posSets    map[string]PosSetRow
	groupNPI   map[string]string
	npis       map[string]NPIRow
	geo        map[string]NPIGeoRow
	benchmarks map[benchKey]BenchmarkRow
}

// Load reads every dimension file under dimDir. A file that exists but
// lacks its key columns fails the load; a file that is absent simply
// leaves its lookups empty, so every join against it misses.
func Load(dimDir string) (*Store, error) {
	s := &Store{
		codes:      make(map[codeKey]CodeRow),
		categories: make(map[codeKey]CodeCategoryRow),
		payers:     make(map[string]PayerRow),
		groups:     make(map[string]ProviderGroupRow),
		posSets:    make(map[string]PosSetRow),
		groupNPI:   make(map[string]string),
		npis:       make(map[string]NPIRow),
		geo:        make(map[string]NPIGeoRow),
		benchmarks: make(map[benchKey]BenchmarkRow),
	}

	if err := loadInto(dimDir, schema.FileCode, func(rows []CodeRow) {
		for _, r := range rows {
			s.codes[codeKey{norm(r.CodeType), norm(r.Code)}] = r
		}
	}); err != nil {
		return nil, err
	}

	if err := loadInto(dimDir, schema.FileCodeCategory, func(rows []CodeCategoryRow) {
		for _, r := range rows {
			s.categories[codeKey{norm(r.CodeType), norm(r.Code)}] = r
		}
	}); err != nil {
		return nil, err
	}

	if err := loadInto(dimDir, schema.FilePayer, func(rows []PayerRow) {
		for _, r := range rows {
			s.payers[norm(r.PayerSlug)] = r
		}
	}); err != nil {
		return nil, err
	}

	if err := loadInto(dimDir, schema.FileProviderGroup, func(rows []ProviderGroupRow) {
		for _, r := range rows {
			s.groups[norm(r.ProviderGroupUID)] = r
		}
	}); err != nil {
		return nil, err
	}

	if err := loadInto(dimDir, schema.FilePosSet, func(rows []PosSetRow) {
		for _, r := range rows {
			s.posSets[norm(r.PosSetID)] = r
		}
	}); err != nil {
		return nil, err
	}

	if err := loadInto(dimDir, schema.FileGroupNPIXref, func(rows []GroupNPIRow) {
		// Keep the lexicographically smallest member NPI as the group's
		// representative so enrichment stays one row per fact.
		for _, r := range rows {
			uid := norm(r.ProviderGroupUID)
			npi := strings.TrimSpace(r.NPI)
			if npi == "" {
				continue
			}
			if cur, ok := s.groupNPI[uid]; !ok || npi < cur {
				s.groupNPI[uid] = npi
			}
		}
	}); err != nil {
		return nil, err
	}

	if err := loadInto(dimDir, schema.FileNPI, func(rows []NPIRow) {
		for _, r := range rows {
			s.npis[strings.TrimSpace(r.NPI)] = r
		}
	}); err != nil {
		return nil, err
	}

	if err := loadInto(dimDir, schema.FileNPIGeo, func(rows []NPIGeoRow) {
		for _, r := range rows {
			s.geo[strings.TrimSpace(r.NPI)] = r
		}
	}); err != nil {
		return nil, err
	}

	if err := loadInto(dimDir, schema.FileBenchmark, func(rows []BenchmarkRow) {
		for _, r := range rows {
			state := ""
			if r.State != nil {
				state = norm(*r.State)
			}
			s.benchmarks[benchKey{norm(r.CodeType), norm(r.Code), state}] = r
		}
	}); err != nil {
		return nil, err
	}

	log.Printf("dimension: loaded %d codes, %d categories, %d payers, %d groups, %d pos sets, %d group-npi links, %d npis, %d locations, %d benchmarks",
		len(s.codes), len(s.categories), len(s.payers), len(s.groups),
		len(s.posSets), len(s.groupNPI), len(s.npis), len(s.geo), len(s.benchmarks))

	return s, nil
}

// loadInto validates and reads one dimension file into the store via the
// supplied index function. Absent files are skipped with a warning.
func loadInto[T any](dimDir, file string, index func([]T)) error {
	path := filepath.Join(dimDir, file)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("dimension: %s not found, joins against it will miss", file)
		return nil
	}

	if tableSchema, ok := schema.DimensionSchemas()[file]; ok {
		if err := schema.ValidateFile(path, tableSchema); err != nil {
			return err
		}
	}

	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return rlerrors.Wrap(rlerrors.ErrCategorySchema, rlerrors.CodeUnreadableTable,
			fmt.Sprintf("failed to read %s", file), err)
	}
	index(rows)
	return nil
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
