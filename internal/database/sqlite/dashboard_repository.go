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

// DashboardRepository implements repositories.DashboardRepository on sqlite.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(db *sqlx.DB) repositories.DashboardRepository {
	return &DashboardRepository{db: db}
}

// Create stores a new dashboard row.
func (r *DashboardRepository) Create(ctx context.Context, dashboard *models.Dashboard) error {
	now := time.Now().UTC()
	dashboard.CreatedAt = now
	dashboard.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO dashboards (id, tenant_id, name, config, created_at, updated_at)
		VALUES (:id, :tenant_id, :name, :config, :created_at, :updated_at)`,
		dashboard)
	if err != nil {
		return fmt.Errorf("failed to create dashboard: %w", err)
	}
	return nil
}

// GetByID retrieves a dashboard row by id.
func (r *DashboardRepository) GetByID(ctx context.Context, id string) (*models.Dashboard, error) {
	var dashboard models.Dashboard
	err := r.db.GetContext(ctx, &dashboard,
		`SELECT * FROM dashboards WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrDashboardNotFound
		}
		return nil, fmt.Errorf("failed to get dashboard: %w", err)
	}
	return &dashboard, nil
}

// ListByTenant returns all dashboards owned by a tenant.
func (r *DashboardRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.Dashboard, error) {
	var dashboards []*models.Dashboard
	err := r.db.SelectContext(ctx, &dashboards,
		`SELECT * FROM dashboards WHERE tenant_id = ? ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}
	return dashboards, nil
}

// ListAll returns every dashboard across tenants.
func (r *DashboardRepository) ListAll(ctx context.Context) ([]*models.Dashboard, error) {
	var dashboards []*models.Dashboard
	err := r.db.SelectContext(ctx, &dashboards,
		`SELECT * FROM dashboards ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}
	return dashboards, nil
}

// Update replaces a dashboard's name and configuration.
func (r *DashboardRepository) Update(ctx context.Context, dashboard *models.Dashboard) error {
	dashboard.UpdatedAt = time.Now().UTC()

	result, err := r.db.NamedExecContext(ctx, `
		UPDATE dashboards SET name = :name, config = :config, updated_at = :updated_at
		WHERE id = :id`,
		dashboard)
	if err != nil {
		return fmt.Errorf("failed to update dashboard: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.ErrDashboardNotFound
	}
	return nil
}

// Delete removes a dashboard.
func (r *DashboardRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM dashboards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dashboard: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.ErrDashboardNotFound
	}
	return nil
}
