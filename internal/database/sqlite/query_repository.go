package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opsai-platform/analytics-backend-go/internal/database/models"
	"github.com/opsai-platform/analytics-backend-go/internal/database/repositories"
	apperrors "github.com/opsai-platform/analytics-backend-go/pkg/errors"
)

// QueryRepository implements repositories.QueryRepository on sqlite.
type QueryRepository struct {
	db *sqlx.DB
}

// NewQueryRepository creates a new QueryRepository.
func NewQueryRepository(db *sqlx.DB) repositories.QueryRepository {
	return &QueryRepository{db: db}
}

// Create stores a new query definition.
func (r *QueryRepository) Create(ctx context.Context, query *models.AnalyticsQuery) error {
	now := time.Now().UTC()
	query.CreatedAt = now
	query.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO analytics_queries (id, tenant_id, name, type, query_body, parameters, schedule, created_at, updated_at)
		VALUES (:id, :tenant_id, :name, :type, :query_body, :parameters, :schedule, :created_at, :updated_at)`,
		query)
	if err != nil {
		return fmt.Errorf("failed to create query: %w", err)
	}
	return nil
}

// GetByID retrieves a query definition by id.
func (r *QueryRepository) GetByID(ctx context.Context, id string) (*models.AnalyticsQuery, error) {
	var query models.AnalyticsQuery
	err := r.db.GetContext(ctx, &query,
		`SELECT * FROM analytics_queries WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrQueryNotFound
		}
		return nil, fmt.Errorf("failed to get query: %w", err)
	}
	return &query, nil
}

// GetByName retrieves a tenant's query definition by its name. Named queries
// back the insight catalog.
func (r *QueryRepository) GetByName(ctx context.Context, tenantID, name string) (*models.AnalyticsQuery, error) {
	var query models.AnalyticsQuery
	err := r.db.GetContext(ctx, &query,
		`SELECT * FROM analytics_queries WHERE tenant_id = ? AND name = ?`, tenantID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrQueryNotFound
		}
		return nil, fmt.Errorf("failed to get query by name: %w", err)
	}
	return &query, nil
}

// ListByTenant returns all query definitions owned by a tenant.
func (r *QueryRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.AnalyticsQuery, error) {
	var queries []*models.AnalyticsQuery
	err := r.db.SelectContext(ctx, &queries,
		`SELECT * FROM analytics_queries WHERE tenant_id = ? ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	return queries, nil
}

// ListScheduled returns every query carrying a cron schedule, across tenants.
func (r *QueryRepository) ListScheduled(ctx context.Context) ([]*models.AnalyticsQuery, error) {
	var queries []*models.AnalyticsQuery
	err := r.db.SelectContext(ctx, &queries,
		`SELECT * FROM analytics_queries WHERE schedule IS NOT NULL AND schedule != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled queries: %w", err)
	}
	return queries, nil
}

// Update replaces a query definition.
func (r *QueryRepository) Update(ctx context.Context, query *models.AnalyticsQuery) error {
	query.UpdatedAt = time.Now().UTC()

	result, err := r.db.NamedExecContext(ctx, `
		UPDATE analytics_queries
		SET name = :name, type = :type, query_body = :query_body,
		    parameters = :parameters, schedule = :schedule, updated_at = :updated_at
		WHERE id = :id`,
		query)
	if err != nil {
		return fmt.Errorf("failed to update query: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.ErrQueryNotFound
	}
	return nil
}

// Delete removes a query definition.
func (r *QueryRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM analytics_queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete query: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.ErrQueryNotFound
	}
	return nil
}
