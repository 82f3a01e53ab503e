// Package types provides core data types for Ratelake.
package types

// FactRecord is a single negotiated-rate row as it arrives in the raw
// fact table, before enrichment.
type FactRecord struct {
	// FactUID is the 128-bit content hash identifying this fact.
	// Empty on input; the engine computes it during enrichment.
	FactUID string `parquet:"fact_uid,optional" json:"fact_uid"`

	// State is the two-letter state the rate applies in
	State string `parquet:"state" json:"state"`

	// YearMonth is the reporting period in YYYY-MM form
	YearMonth string `parquet:"year_month" json:"year_month"`

	// PayerSlug is the normalized payer identifier
	PayerSlug string `parquet:"payer_slug" json:"payer_slug"`

	// BillingClass is "professional" or "institutional"
	BillingClass string `parquet:"billing_class" json:"billing_class"`

	// CodeType is the code system (e.g. "CPT", "HCPCS", "MS-DRG")
	CodeType string `parquet:"code_type" json:"code_type"`

	// Code is the procedure code within CodeType
	Code string `parquet:"code" json:"code"`

	// ProviderGroupUID is the content hash of the provider group
	ProviderGroupUID string `parquet:"provider_group_uid" json:"provider_group_uid"`

	// PosSetID is the content hash of the place-of-service code set
	PosSetID string `parquet:"pos_set_id" json:"pos_set_id"`

	// NegotiatedType is the rate type (e.g. "negotiated", "fee schedule")
	NegotiatedType string `parquet:"negotiated_type" json:"negotiated_type"`

	// NegotiationArrangement is the contract arrangement (e.g. "ffs")
	NegotiationArrangement string `parquet:"negotiation_arrangement" json:"negotiation_arrangement"`

	// NegotiatedRate is the dollar amount of the rate
	NegotiatedRate float64 `parquet:"negotiated_rate" json:"negotiated_rate"`

	// ExpirationDate is the rate expiration in YYYY-MM-DD form
	ExpirationDate string `parquet:"expiration_date" json:"expiration_date"`

	// Modifiers is the comma-joined, sorted billing code modifiers
	Modifiers string `parquet:"modifiers,optional" json:"modifiers,omitempty"`

	// ReportingEntityName is the entity that published this rate
	ReportingEntityName string `parquet:"reporting_entity_name,optional" json:"reporting_entity_name,omitempty"`
}

// EnrichedRecord is a fact row after dimension joins, benchmark
// derivation, and identity assignment. Pointer fields are nullable:
// a nil value means the corresponding dimension lookup missed.
type EnrichedRecord struct {
	FactUID                string  `parquet:"fact_uid" json:"fact_uid"`
	State                  string  `parquet:"state" json:"state"`
	YearMonth              string  `parquet:"year_month" json:"year_month"`
	Year                   string  `parquet:"year" json:"year"`
	Month                  string  `parquet:"month" json:"month"`
	PayerSlug              string  `parquet:"payer_slug" json:"payer_slug"`
	BillingClass           string  `parquet:"billing_class" json:"billing_class"`
	CodeType               string  `parquet:"code_type" json:"code_type"`
	Code                   string  `parquet:"code" json:"code"`
	ProviderGroupUID       string  `parquet:"provider_group_uid" json:"provider_group_uid"`
	PosSetID               string  `parquet:"pos_set_id" json:"pos_set_id"`
	NegotiatedType         string  `parquet:"negotiated_type" json:"negotiated_type"`
	NegotiationArrangement string  `parquet:"negotiation_arrangement" json:"negotiation_arrangement"`
	NegotiatedRate         float64 `parquet:"negotiated_rate" json:"negotiated_rate"`
	ExpirationDate         string  `parquet:"expiration_date" json:"expiration_date"`
	Modifiers              string  `parquet:"modifiers,optional" json:"modifiers,omitempty"`
	ReportingEntityName    string  `parquet:"reporting_entity_name,optional" json:"reporting_entity_name,omitempty"`

	// Code dimension
	CodeName        *string `parquet:"code_name,optional" json:"code_name,omitempty"`
	CodeDescription *string `parquet:"code_description,optional" json:"code_description,omitempty"`

	// Code category dimension
	ProcedureSet   *string `parquet:"procedure_set,optional" json:"procedure_set,omitempty"`
	ProcedureClass *string `parquet:"procedure_class,optional" json:"procedure_class,omitempty"`
	ProcedureGroup *string `parquet:"procedure_group,optional" json:"procedure_group,omitempty"`

	// Payer dimension
	PayerName    *string `parquet:"payer_name,optional" json:"payer_name,omitempty"`
	PayerVersion *string `parquet:"payer_version,optional" json:"payer_version,omitempty"`

	// Provider group / NPI dimensions
	NPI                 *string `parquet:"npi,optional" json:"npi,omitempty"`
	OrganizationName    *string `parquet:"organization_name,optional" json:"organization_name,omitempty"`
	PrimaryTaxonomyCode *string `parquet:"primary_taxonomy_code,optional" json:"primary_taxonomy_code,omitempty"`
	PrimaryTaxonomyDesc *string `parquet:"primary_taxonomy_desc,optional" json:"primary_taxonomy_desc,omitempty"`
	ProviderType        *string `parquet:"provider_type,optional" json:"provider_type,omitempty"`

	// Geography dimension
	AddressHash  *string  `parquet:"address_hash,optional" json:"address_hash,omitempty"`
	CountyName   *string  `parquet:"county_name,optional" json:"county_name,omitempty"`
	CountyFIPS   *string  `parquet:"county_fips,optional" json:"county_fips,omitempty"`
	StatAreaName *string  `parquet:"stat_area_name,optional" json:"stat_area_name,omitempty"`
	StatAreaCode *string  `parquet:"stat_area_code,optional" json:"stat_area_code,omitempty"`
	Latitude     *float64 `parquet:"latitude,optional" json:"latitude,omitempty"`
	Longitude    *float64 `parquet:"longitude,optional" json:"longitude,omitempty"`

	// Medicare benchmark derivations
	MedicareNationalRate *float64 `parquet:"medicare_national_rate,optional" json:"medicare_national_rate,omitempty"`
	MedicareStateRate    *float64 `parquet:"medicare_state_rate,optional" json:"medicare_state_rate,omitempty"`
	RateToMedicareRatio  *float64 `parquet:"rate_to_medicare_ratio,optional" json:"rate_to_medicare_ratio,omitempty"`
	IsAboveMedicare      *bool    `parquet:"is_above_medicare,optional" json:"is_above_medicare,omitempty"`
}
