package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DatabaseConfig configures a database source: either a raw query string
// executed as-is, or a table plus equality filters.
type DatabaseConfig struct {
	Query   string                 `json:"query,omitempty"`
	Table   string                 `json:"table,omitempty"`
	Filters map[string]interface{} `json:"filters,omitempty"`
}

// DatabaseAdapter fetches records from the backing relational store.
type DatabaseAdapter struct {
	db *sqlx.DB
}

// NewDatabaseAdapter creates a database source adapter.
func NewDatabaseAdapter(db *sqlx.DB) *DatabaseAdapter {
	return &DatabaseAdapter{db: db}
}

func (a *DatabaseAdapter) Type() string { return TypeDatabase }

// Fetch executes the configured query or table lookup. Request-level filters
// are merged into the configured equality filters for table lookups.
func (a *DatabaseAdapter) Fetch(ctx context.Context, config json.RawMessage, filters map[string]interface{}) ([]pipeline.Record, error) {
	var cfg DatabaseConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid database source config: %w", err)
	}

	if cfg.Query != "" {
		// Raw queries pass through verbatim; callers own input trust.
		return a.queryRecords(ctx, cfg.Query)
	}

	if cfg.Table == "" {
		return nil, fmt.Errorf("database source needs a query or a table")
	}
	if !identifierPattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name: %q", cfg.Table)
	}

	merged := make(map[string]interface{}, len(cfg.Filters)+len(filters))
	for k, v := range cfg.Filters {
		merged[k] = v
	}
	for k, v := range filters {
		merged[k] = v
	}

	query := fmt.Sprintf("SELECT * FROM %s", cfg.Table)
	var args []interface{}
	if len(merged) > 0 {
		var clauses []string
		for field, value := range merged {
			if !identifierPattern.MatchString(field) {
				return nil, fmt.Errorf("invalid filter field: %q", field)
			}
			clauses = append(clauses, fmt.Sprintf("%s = ?", field))
			args = append(args, value)
		}
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	return a.queryRecords(ctx, query, args...)
}

func (a *DatabaseAdapter) queryRecords(ctx context.Context, query string, args ...interface{}) ([]pipeline.Record, error) {
	rows, err := a.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database source query failed: %w", err)
	}
	defer rows.Close()

	var records []pipeline.Record
	for rows.Next() {
		record := pipeline.Record{}
		if err := rows.MapScan(record); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		normalizeRecord(record)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database source iteration failed: %w", err)
	}
	return records, nil
}

// normalizeRecord coerces driver byte slices into strings so downstream
// pipeline coercions behave uniformly.
func normalizeRecord(record pipeline.Record) {
	for k, v := range record {
		if b, ok := v.([]byte); ok {
			record[k] = string(b)
		}
	}
}
