package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opsai-platform/analytics-backend-go/internal/database/models"
	"github.com/opsai-platform/analytics-backend-go/internal/database/repositories"
	apperrors "github.com/opsai-platform/analytics-backend-go/pkg/errors"
)

// ReportRepository implements repositories.ReportRepository on sqlite.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(db *sqlx.DB) repositories.ReportRepository {
	return &ReportRepository{db: db}
}

// Create stores a new report configuration.
func (r *ReportRepository) Create(ctx context.Context, report *models.AnalyticsReport) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO analytics_reports (id, tenant_id, type, config, data, last_generated)
		VALUES (:id, :tenant_id, :type, :config, :data, :last_generated)`,
		report)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// GetByID retrieves a report by id.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.AnalyticsReport, error) {
	var report models.AnalyticsReport
	err := r.db.GetContext(ctx, &report,
		`SELECT * FROM analytics_reports WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &report, nil
}

// ListByTenant returns all reports owned by a tenant.
func (r *ReportRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.AnalyticsReport, error) {
	var reports []*models.AnalyticsReport
	err := r.db.SelectContext(ctx, &reports,
		`SELECT * FROM analytics_reports WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// UpdateData overwrites the cached snapshot and bumps last_generated.
func (r *ReportRepository) UpdateData(ctx context.Context, id string, data json.RawMessage) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE analytics_reports SET data = ?, last_generated = ? WHERE id = ?`,
		[]byte(data), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update report data: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Delete removes a report.
func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM analytics_reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
