package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Query type discriminators. QueryBody semantics depend on the type.
const (
	QueryTypeRaw         = "raw"
	QueryTypeAggregation = "aggregation"
	QueryTypePipeline    = "pipeline"
)

// AnalyticsQuery is a stored, tenant-owned query definition.
type AnalyticsQuery struct {
	ID         string          `json:"id" db:"id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	Name       string          `json:"name" db:"name"`
	Type       string          `json:"type" db:"type"`
	QueryBody  json.RawMessage `json:"query" db:"query_body"`
	Parameters json.RawMessage `json:"parameters,omitempty" db:"parameters"`
	Schedule   sql.NullString  `json:"-" db:"schedule"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// ScheduleSpec returns the cron schedule if one is set.
func (q *AnalyticsQuery) ScheduleSpec() (string, bool) {
	if q.Schedule.Valid && q.Schedule.String != "" {
		return q.Schedule.String, true
	}
	return "", false
}

// AnalyticsReport holds a report configuration plus its cached data snapshot.
// Data is overwritten on each generation, not appended.
type AnalyticsReport struct {
	ID            string          `json:"id" db:"id"`
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	Type          string          `json:"type" db:"type"`
	Config        json.RawMessage `json:"config" db:"config"`
	Data          json.RawMessage `json:"data,omitempty" db:"data"`
	LastGenerated sql.NullTime    `json:"last_generated,omitempty" db:"last_generated"`
}

// ReportConfig references the queries and visualizations a report is built from.
type ReportConfig struct {
	QueryIDs       []string          `json:"queryIds"`
	Visualizations []json.RawMessage `json:"visualizations,omitempty"`
	Filters        []json.RawMessage `json:"filters,omitempty"`
}

// Dashboard is a stored dashboard row. The configuration blob is parsed and
// validated by the dashboard service.
type Dashboard struct {
	ID        string          `json:"id" db:"id"`
	TenantID  string          `json:"tenant_id" db:"tenant_id"`
	Name      string          `json:"name" db:"name"`
	Config    json.RawMessage `json:"config" db:"config"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// File is stored file metadata plus any previously extracted structured data.
// The analytics file source never re-processes the underlying file.
type File struct {
	ID            string          `json:"id" db:"id"`
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	Name          string          `json:"name" db:"name"`
	ContentType   sql.NullString  `json:"content_type,omitempty" db:"content_type"`
	SizeBytes     int64           `json:"size_bytes" db:"size_bytes"`
	StoragePath   sql.NullString  `json:"-" db:"storage_path"`
	ExtractedData json.RawMessage `json:"extracted_data,omitempty" db:"extracted_data"`
	UploadedAt    time.Time       `json:"uploaded_at" db:"uploaded_at"`
}
