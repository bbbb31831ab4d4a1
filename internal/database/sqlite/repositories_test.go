package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/opsai-platform/analytics-backend-go/internal/database/models"
	apperrors "github.com/opsai-platform/analytics-backend-go/pkg/errors"
)

const testSchema = `
CREATE TABLE analytics_queries (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL CHECK (type IN ('raw', 'aggregation', 'pipeline')),
    query_body TEXT NOT NULL,
    parameters TEXT,
    schedule TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX idx_queries_tenant_name ON analytics_queries (tenant_id, name);
CREATE TABLE analytics_reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    type TEXT NOT NULL,
    config TEXT NOT NULL,
    data TEXT,
    last_generated DATETIME
);
CREATE TABLE dashboards (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    config TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE files (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    content_type TEXT,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    storage_path TEXT,
    extracted_data TEXT,
    uploaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

func TestQueryRepository_CRUD(t *testing.T) {
	repo := NewQueryRepository(setupTestDB(t))
	ctx := context.Background()

	q := &models.AnalyticsQuery{
		ID:        "q1",
		TenantID:  "t1",
		Name:      "revenue_trend",
		Type:      models.QueryTypeRaw,
		QueryBody: json.RawMessage(`"SELECT 1"`),
		Schedule:  sql.NullString{String: "0 * * * *", Valid: true},
	}
	require.NoError(t, repo.Create(ctx, q))

	got, err := repo.GetByID(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "revenue_trend", got.Name)
	spec, ok := got.ScheduleSpec()
	assert.True(t, ok)
	assert.Equal(t, "0 * * * *", spec)

	byName, err := repo.GetByName(ctx, "t1", "revenue_trend")
	require.NoError(t, err)
	assert.Equal(t, "q1", byName.ID)

	_, err = repo.GetByName(ctx, "t2", "revenue_trend")
	assert.ErrorIs(t, err, apperrors.ErrQueryNotFound)

	scheduled, err := repo.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Len(t, scheduled, 1)

	got.Name = "revenue_trend_v2"
	got.Schedule = sql.NullString{}
	require.NoError(t, repo.Update(ctx, got))

	scheduled, err = repo.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Empty(t, scheduled)

	require.NoError(t, repo.Delete(ctx, "q1"))
	_, err = repo.GetByID(ctx, "q1")
	assert.ErrorIs(t, err, apperrors.ErrQueryNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "q1"), apperrors.ErrQueryNotFound)
}

func TestQueryRepository_TenantNameUniqueness(t *testing.T) {
	repo := NewQueryRepository(setupTestDB(t))
	ctx := context.Background()

	first := &models.AnalyticsQuery{
		ID: "q1", TenantID: "t1", Name: "dup",
		Type: models.QueryTypeRaw, QueryBody: json.RawMessage(`"SELECT 1"`),
	}
	require.NoError(t, repo.Create(ctx, first))

	dup := &models.AnalyticsQuery{
		ID: "q2", TenantID: "t1", Name: "dup",
		Type: models.QueryTypeRaw, QueryBody: json.RawMessage(`"SELECT 1"`),
	}
	assert.Error(t, repo.Create(ctx, dup))

	// Same name under a different tenant is fine.
	other := &models.AnalyticsQuery{
		ID: "q3", TenantID: "t2", Name: "dup",
		Type: models.QueryTypeRaw, QueryBody: json.RawMessage(`"SELECT 1"`),
	}
	assert.NoError(t, repo.Create(ctx, other))
}

func TestReportRepository_SnapshotOverwrite(t *testing.T) {
	repo := NewReportRepository(setupTestDB(t))
	ctx := context.Background()

	report := &models.AnalyticsReport{
		ID:       "r1",
		TenantID: "t1",
		Type:     "weekly",
		Config:   json.RawMessage(`{"queryIds":["q1"]}`),
	}
	require.NoError(t, repo.Create(ctx, report))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, got.LastGenerated.Valid)

	require.NoError(t, repo.UpdateData(ctx, "r1", json.RawMessage(`{"q1":{"rows":1}}`)))
	require.NoError(t, repo.UpdateData(ctx, "r1", json.RawMessage(`{"q1":{"rows":2}}`)))

	got, err = repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, got.LastGenerated.Valid)
	assert.JSONEq(t, `{"q1":{"rows":2}}`, string(got.Data))

	assert.ErrorIs(t, repo.UpdateData(ctx, "missing", json.RawMessage(`{}`)), apperrors.ErrNotFound)
}

func TestDashboardRepository_CRUD(t *testing.T) {
	repo := NewDashboardRepository(setupTestDB(t))
	ctx := context.Background()

	row := &models.Dashboard{
		ID:       "d1",
		TenantID: "t1",
		Name:     "Revenue",
		Config:   json.RawMessage(`{"dataSources":[]}`),
	}
	require.NoError(t, repo.Create(ctx, row))

	_, err := repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrDashboardNotFound)

	mine, err := repo.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	row.Name = "Revenue v2"
	require.NoError(t, repo.Update(ctx, row))

	got, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Revenue v2", got.Name)

	require.NoError(t, repo.Delete(ctx, "d1"))
	assert.ErrorIs(t, repo.Delete(ctx, "d1"), apperrors.ErrDashboardNotFound)
}

func TestFileRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO files (id, tenant_id, name, content_type, size_bytes, extracted_data)
		VALUES ('f1', 't1', 'invoice.pdf', 'application/pdf', 1024, '[{"total": 42}]')`)
	require.NoError(t, err)

	file, err := repo.GetByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "invoice.pdf", file.Name)
	assert.Equal(t, int64(1024), file.SizeBytes)
	assert.NotEmpty(t, file.ExtractedData)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
