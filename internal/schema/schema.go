// Package schema declares the expected shapes of the fact and dimension
// input tables and checks real parquet files against them before a run
// touches any data.
package schema

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	rlerrors "github.com/ratelake/ratelake/internal/errors"
	"github.com/ratelake/ratelake/pkg/types"
)

// Canonical file names for the dimension inputs, relative to the
// configured dimension directory.
const (
	FileFact          = "fact_rate.parquet"
	FileCode          = "dim_code.parquet"
	FileCodeCategory  = "dim_code_cat.parquet"
	FilePayer         = "dim_payer.parquet"
	FileProviderGroup = "dim_provider_group.parquet"
	FilePosSet        = "dim_pos_set.parquet"
	FileGroupNPIXref  = "xref_group_npi.parquet"
	FileNPI           = "dim_npi.parquet"
	FileNPIGeo        = "dim_npi_geo.parquet"
	FileBenchmark     = "bench_medicare.parquet"
)

// FactSchema describes the raw fact table.
func FactSchema() types.TableSchema {
	return types.TableSchema{
		Name: "fact_rate",
		Columns: []types.ColumnDef{
			{Name: "state", Type: "STRING", Required: true},
			{Name: "year_month", Type: "STRING", Required: true},
			{Name: "payer_slug", Type: "STRING", Required: true},
			{Name: "billing_class", Type: "STRING", Required: true},
			{Name: "code_type", Type: "STRING", Required: true},
			{Name: "code", Type: "STRING", Required: true},
			{Name: "provider_group_uid", Type: "STRING", Required: true},
			{Name: "pos_set_id", Type: "STRING", Required: true},
			{Name: "negotiated_type", Type: "STRING", Required: true},
			{Name: "negotiation_arrangement", Type: "STRING", Required: true},
			{Name: "negotiated_rate", Type: "FLOAT64", Required: true},
			{Name: "expiration_date", Type: "STRING", Required: true},
			{Name: "modifiers", Type: "STRING", Required: false},
			{Name: "reporting_entity_name", Type: "STRING", Required: false},
		},
	}
}

// DimensionSchemas maps each dimension file name to the key columns it
// must carry for joins to be possible.
func DimensionSchemas() map[string]types.TableSchema {
	return map[string]types.TableSchema{
		FileCode: {
			Name: "dim_code",
			Columns: []types.ColumnDef{
				{Name: "code_type", Type: "STRING", Required: true},
				{Name: "code", Type: "STRING", Required: true},
				{Name: "code_name", Type: "STRING", Required: false},
				{Name: "code_description", Type: "STRING", Required: false},
			},
		},
		FileCodeCategory: {
			Name: "dim_code_cat",
			Columns: []types.ColumnDef{
				{Name: "code_type", Type: "STRING", Required: true},
				{Name: "code", Type: "STRING", Required: true},
				{Name: "procedure_set", Type: "STRING", Required: false},
				{Name: "procedure_class", Type: "STRING", Required: false},
				{Name: "procedure_group", Type: "STRING", Required: false},
			},
		},
		FilePayer: {
			Name: "dim_payer",
			Columns: []types.ColumnDef{
				{Name: "payer_slug", Type: "STRING", Required: true},
				{Name: "payer_name", Type: "STRING", Required: false},
				{Name: "version", Type: "STRING", Required: false},
			},
		},
		FileProviderGroup: {
			Name: "dim_provider_group",
			Columns: []types.ColumnDef{
				{Name: "provider_group_uid", Type: "STRING", Required: true},
				{Name: "group_id_raw", Type: "STRING", Required: false},
			},
		},
		FilePosSet: {
			Name: "dim_pos_set",
			Columns: []types.ColumnDef{
				{Name: "pos_set_id", Type: "STRING", Required: true},
				{Name: "pos_codes", Type: "STRING", Required: false},
			},
		},
		FileGroupNPIXref: {
			Name: "xref_group_npi",
			Columns: []types.ColumnDef{
				{Name: "provider_group_uid", Type: "STRING", Required: true},
				{Name: "npi", Type: "STRING", Required: true},
			},
		},
		FileNPI: {
			Name: "dim_npi",
			Columns: []types.ColumnDef{
				{Name: "npi", Type: "STRING", Required: true},
				{Name: "organization_name", Type: "STRING", Required: false},
				{Name: "primary_taxonomy_code", Type: "STRING", Required: false},
				{Name: "primary_taxonomy_desc", Type: "STRING", Required: false},
				{Name: "provider_type", Type: "STRING", Required: false},
			},
		},
		FileNPIGeo: {
			Name: "dim_npi_geo",
			Columns: []types.ColumnDef{
				{Name: "npi", Type: "STRING", Required: true},
				{Name: "address_hash", Type: "STRING", Required: false},
				{Name: "county_name", Type: "STRING", Required: false},
				{Name: "county_fips", Type: "STRING", Required: false},
				{Name: "stat_area_name", Type: "STRING", Required: false},
				{Name: "stat_area_code", Type: "STRING", Required: false},
				{Name: "latitude", Type: "FLOAT64", Required: false},
				{Name: "longitude", Type: "FLOAT64", Required: false},
			},
		},
		FileBenchmark: {
			Name: "bench_medicare",
			Columns: []types.ColumnDef{
				{Name: "code_type", Type: "STRING", Required: true},
				{Name: "code", Type: "STRING", Required: true},
				{Name: "state", Type: "STRING", Required: false},
				{Name: "medicare_national_rate", Type: "FLOAT64", Required: false},
				{Name: "medicare_state_rate", Type: "FLOAT64", Required: false},
			},
		},
	}
}

// ValidateFile checks that the parquet file at path carries every
// required column of the schema. Missing required columns fail the run.
func ValidateFile(path string, schema types.TableSchema) error {
	f, err := os.Open(path)
	if err != nil {
		return rlerrors.Wrap(rlerrors.ErrCategorySchema, rlerrors.CodeUnreadableTable,
			fmt.Sprintf("cannot open %s table", schema.Name), err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return rlerrors.Wrap(rlerrors.ErrCategorySchema, rlerrors.CodeUnreadableTable,
			fmt.Sprintf("cannot stat %s table", schema.Name), err)
	}

	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return rlerrors.Wrap(rlerrors.ErrCategorySchema, rlerrors.CodeUnreadableTable,
			fmt.Sprintf("cannot read %s table footer", schema.Name), err)
	}

	present := make(map[string]bool)
	for _, field := range pf.Schema().Fields() {
		present[field.Name()] = true
	}

	return CheckColumns(schema, present)
}

// CheckColumns verifies that every required column of the schema is in
// the present set.
func CheckColumns(schema types.TableSchema, present map[string]bool) error {
	var missing []string
	for _, col := range schema.RequiredColumns() {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return rlerrors.NewSchemaError(rlerrors.CodeMissingColumn,
			fmt.Sprintf("%s table missing required columns: %v", schema.Name, missing)).
			WithDetails(map[string]interface{}{"table": schema.Name, "missing": missing})
	}
	return nil
}
