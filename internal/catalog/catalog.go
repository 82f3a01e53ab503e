// Package catalog maintains the partition catalog in catalog.db: one
// row per partition path, with the attribute values, row counts, and
// stat ranges downstream readers use to locate and prune partitions.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	rlerrors "github.com/ratelake/ratelake/internal/errors"
	"github.com/ratelake/ratelake/internal/partition"
	"github.com/ratelake/ratelake/pkg/types"
)

// Catalog records partitions and run summaries.
type Catalog interface {
	// RegisterPartition upserts the catalog row for a merged partition.
	RegisterPartition(ctx context.Context, res *partition.MergeResult, runID string) error

	// FindPartitions returns partitions matching the filter. The
	// payer, state, and billing class filters are mandatory.
	FindPartitions(ctx context.Context, filter Filter) ([]*PartitionRecord, error)

	// GetPartition retrieves a single partition by path.
	GetPartition(ctx context.Context, path string) (*PartitionRecord, error)

	// RecordRun stores a run summary.
	RecordRun(ctx context.Context, summary *types.RunSummary) error

	// GetRun retrieves a stored run summary by ID.
	GetRun(ctx context.Context, runID string) (*types.RunSummary, error)

	// Close closes the catalog database connections.
	Close() error
}

// PartitionRecord is one catalog row. The named attribute fields hold
// the sanitized forms that appear in the partition path; Key holds the
// original categorical values before sanitization, so a path segment
// like state=ga recovers its source value "GA" through the catalog.
type PartitionRecord struct {
	Path                string
	Key                 types.PartitionKey
	PayerSlug           string
	State               string
	BillingClass        string
	ProcedureSet        string
	ProcedureClass      string
	PrimaryTaxonomyCode string
	StatAreaName        string
	Year                string
	Month               string
	RowCount            int64
	SizeBytes           int64
	RateMin             float64
	RateMax             float64
	YearMonthMin        string
	YearMonthMax        string
	LastRunID           string
	UpdatedAt           time.Time
}

// Filter selects partitions. PayerSlug, State, and BillingClass are
// required; the rest narrow the result when non-empty. Values are
// matched against the sanitized forms stored in partition paths.
type Filter struct {
	PayerSlug           string
	State               string
	BillingClass        string
	ProcedureSet        string
	PrimaryTaxonomyCode string
	StatAreaName        string
	Year                string
	Month               string
}

// Validate checks that the required filters are present.
func (f Filter) Validate() error {
	if f.PayerSlug == "" || f.State == "" || f.BillingClass == "" {
		return rlerrors.New(rlerrors.ErrCategoryCatalog, rlerrors.CodeInvalidConfig,
			"payer_slug, state, and billing_class filters are required")
	}
	return nil
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	upsertStmt    *sql.Stmt
	recordRunStmt *sql.Stmt
}

// NewCatalog opens (or creates) the catalog at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	// Read connection pool: concurrent readers
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	c := &SQLiteCatalog{
		db:     db,
		readDB: readDB,
		dbPath: dbPath,
	}

	if err := c.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	c.upsertStmt, err = db.Prepare(`
		INSERT INTO partitions (
			path, payer_slug, state, billing_class,
			procedure_set, procedure_class, primary_taxonomy_code, stat_area_name,
			year, month, key_json,
			row_count, size_bytes, rate_min, rate_max,
			year_month_min, year_month_max, last_run_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			key_json = excluded.key_json,
			row_count = excluded.row_count,
			size_bytes = excluded.size_bytes,
			rate_min = excluded.rate_min,
			rate_max = excluded.rate_max,
			year_month_min = excluded.year_month_min,
			year_month_max = excluded.year_month_max,
			last_run_id = excluded.last_run_id,
			updated_at = excluded.updated_at`)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("catalog: failed to prepare upsert: %w", err)
	}

	c.recordRunStmt, err = db.Prepare(`
		INSERT INTO runs (run_id, status, summary_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			summary_json = excluded.summary_json,
			finished_at = excluded.finished_at`)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("catalog: failed to prepare run insert: %w", err)
	}

	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS partitions (
		path TEXT PRIMARY KEY,
		payer_slug TEXT NOT NULL,
		state TEXT NOT NULL,
		billing_class TEXT NOT NULL,
		procedure_set TEXT NOT NULL,
		procedure_class TEXT NOT NULL,
		primary_taxonomy_code TEXT NOT NULL,
		stat_area_name TEXT NOT NULL,
		year TEXT NOT NULL,
		month TEXT NOT NULL,
		key_json TEXT NOT NULL DEFAULT '[]',
		row_count INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL,
		rate_min REAL NOT NULL DEFAULT 0,
		rate_max REAL NOT NULL DEFAULT 0,
		year_month_min TEXT NOT NULL DEFAULT '',
		year_month_max TEXT NOT NULL DEFAULT '',
		last_run_id TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_partitions_lookup
		ON partitions(payer_slug, state, billing_class);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		summary_json TEXT NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	);`

	_, err := c.db.Exec(schema)
	return err
}

// RegisterPartition upserts the catalog row for a merged partition.
func (c *SQLiteCatalog) RegisterPartition(ctx context.Context, res *partition.MergeResult, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seg := func(col string) string {
		return partition.SanitizeValue(res.Key.Segment(col))
	}

	// Sanitized forms feed path-shaped filters; the raw values are kept
	// so a slug recovers its original.
	keyJSON, err := json.Marshal(res.Key.Values)
	if err != nil {
		return rlerrors.NewInternalError("failed to marshal partition key", err)
	}

	_, err = c.upsertStmt.ExecContext(ctx,
		res.RelPath,
		seg("payer_slug"), seg("state"), seg("billing_class"),
		seg("procedure_set"), seg("procedure_class"),
		seg("primary_taxonomy_code"), seg("stat_area_name"),
		seg("year"), seg("month"), string(keyJSON),
		res.RowCount, res.SizeBytes, res.RateMin, res.RateMax,
		res.YearMonthMin, res.YearMonthMax, runID, time.Now().UTC(),
	)
	if err != nil {
		return rlerrors.NewCatalogError(rlerrors.CodeCatalogWrite,
			fmt.Sprintf("failed to register partition %s", res.RelPath), err)
	}
	return nil
}

// FindPartitions returns partitions matching the filter.
func (c *SQLiteCatalog) FindPartitions(ctx context.Context, filter Filter) ([]*PartitionRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT path, payer_slug, state, billing_class,
		procedure_set, procedure_class, primary_taxonomy_code, stat_area_name,
		year, month, key_json, row_count, size_bytes, rate_min, rate_max,
		year_month_min, year_month_max, last_run_id, updated_at
		FROM partitions WHERE payer_slug = ? AND state = ? AND billing_class = ?`
	args := []interface{}{
		partition.SanitizeValue(filter.PayerSlug),
		partition.SanitizeValue(filter.State),
		partition.SanitizeValue(filter.BillingClass),
	}

	optional := []struct {
		col, val string
	}{
		{"procedure_set", filter.ProcedureSet},
		{"primary_taxonomy_code", filter.PrimaryTaxonomyCode},
		{"stat_area_name", filter.StatAreaName},
		{"year", filter.Year},
		{"month", filter.Month},
	}
	var clauses []string
	for _, opt := range optional {
		if opt.val != "" {
			clauses = append(clauses, fmt.Sprintf("%s = ?", opt.col))
			args = append(args, partition.SanitizeValue(opt.val))
		}
	}
	if len(clauses) > 0 {
		query += " AND " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY path"

	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, rlerrors.NewCatalogError(rlerrors.CodeCatalogWrite, "partition query failed", err)
	}
	defer rows.Close()

	var records []*PartitionRecord
	for rows.Next() {
		rec, err := scanPartition(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetPartition retrieves a single partition by path.
func (c *SQLiteCatalog) GetPartition(ctx context.Context, path string) (*PartitionRecord, error) {
	row := c.readDB.QueryRowContext(ctx, `SELECT path, payer_slug, state, billing_class,
		procedure_set, procedure_class, primary_taxonomy_code, stat_area_name,
		year, month, key_json, row_count, size_bytes, rate_min, rate_max,
		year_month_min, year_month_max, last_run_id, updated_at
		FROM partitions WHERE path = ?`, path)

	rec, err := scanPartition(row)
	if err == sql.ErrNoRows {
		return nil, rlerrors.New(rlerrors.ErrCategoryCatalog, rlerrors.CodePartitionNotFound,
			fmt.Sprintf("partition %s not in catalog", path))
	}
	return rec, err
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanPartition(row scannable) (*PartitionRecord, error) {
	var rec PartitionRecord
	var keyJSON string
	err := row.Scan(
		&rec.Path, &rec.PayerSlug, &rec.State, &rec.BillingClass,
		&rec.ProcedureSet, &rec.ProcedureClass, &rec.PrimaryTaxonomyCode, &rec.StatAreaName,
		&rec.Year, &rec.Month, &keyJSON, &rec.RowCount, &rec.SizeBytes, &rec.RateMin, &rec.RateMax,
		&rec.YearMonthMin, &rec.YearMonthMax, &rec.LastRunID, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keyJSON), &rec.Key.Values); err != nil {
		return nil, rlerrors.NewInternalError(
			fmt.Sprintf("corrupt key values for partition %s", rec.Path), err)
	}
	return &rec, nil
}

// RecordRun stores a run summary.
func (c *SQLiteCatalog) RecordRun(ctx context.Context, summary *types.RunSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(summary)
	if err != nil {
		return rlerrors.NewInternalError("failed to marshal run summary", err)
	}

	_, err = c.recordRunStmt.ExecContext(ctx,
		summary.RunID, string(summary.Status), string(data),
		summary.StartedAt.UTC(), summary.FinishedAt.UTC())
	if err != nil {
		return rlerrors.NewCatalogError(rlerrors.CodeCatalogWrite,
			fmt.Sprintf("failed to record run %s", summary.RunID), err)
	}
	return nil
}

// GetRun retrieves a stored run summary by ID.
func (c *SQLiteCatalog) GetRun(ctx context.Context, runID string) (*types.RunSummary, error) {
	var data string
	err := c.readDB.QueryRowContext(ctx,
		`SELECT summary_json FROM runs WHERE run_id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, rlerrors.New(rlerrors.ErrCategoryCatalog, rlerrors.CodePartitionNotFound,
			fmt.Sprintf("run %s not in catalog", runID))
	}
	if err != nil {
		return nil, err
	}

	var summary types.RunSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, rlerrors.NewInternalError("failed to unmarshal run summary", err)
	}
	return &summary, nil
}

// Close closes the catalog database connections.
func (c *SQLiteCatalog) Close() error {
	if c.upsertStmt != nil {
		c.upsertStmt.Close()
	}
	if c.recordRunStmt != nil {
		c.recordRunStmt.Close()
	}
	var firstErr error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			firstErr = err
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
