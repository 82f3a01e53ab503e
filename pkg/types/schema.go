package types

// TableSchema describes the expected shape of an input table.
type TableSchema struct {
	// Name is the logical table name (e.g. "fact_rate", "dim_npi")
	Name string `json:"name"`

	// Columns defines the columns the table must or may carry
	Columns []ColumnDef `json:"columns"`
}

// ColumnDef defines a single column in a table schema.
type ColumnDef struct {
	// Name is the column name as it appears in the file
	Name string `json:"name"`

	// Type is the logical type: STRING, FLOAT64, INT64, BOOL
	Type string `json:"type"`

	// Required marks columns whose absence fails the whole run
	Required bool `json:"required"`
}

// Required returns the names of the schema's required columns.
func (s TableSchema) RequiredColumns() []string {
	var out []string
	for _, c := range s.Columns {
		if c.Required {
			out = append(out, c.Name)
		}
	}
	return out
}

// Column returns the definition for the named column, if present.
func (s TableSchema) Column(name string) (ColumnDef, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}
