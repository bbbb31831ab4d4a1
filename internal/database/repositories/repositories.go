package repositories

import (
	"context"
	"encoding/json"

	"github.com/opsai-platform/analytics-backend-go/internal/database/models"
)

// QueryRepository manages stored analytics query definitions.
type QueryRepository interface {
	Create(ctx context.Context, query *models.AnalyticsQuery) error
	GetByID(ctx context.Context, id string) (*models.AnalyticsQuery, error)
	GetByName(ctx context.Context, tenantID, name string) (*models.AnalyticsQuery, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.AnalyticsQuery, error)
	ListScheduled(ctx context.Context) ([]*models.AnalyticsQuery, error)
	Update(ctx context.Context, query *models.AnalyticsQuery) error
	Delete(ctx context.Context, id string) error
}

// ReportRepository manages report configurations and their cached snapshots.
type ReportRepository interface {
	Create(ctx context.Context, report *models.AnalyticsReport) error
	GetByID(ctx context.Context, id string) (*models.AnalyticsReport, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.AnalyticsReport, error)
	// UpdateData overwrites the cached snapshot and bumps last_generated.
	UpdateData(ctx context.Context, id string, data json.RawMessage) error
	Delete(ctx context.Context, id string) error
}

// DashboardRepository manages dashboard configuration rows.
type DashboardRepository interface {
	Create(ctx context.Context, dashboard *models.Dashboard) error
	GetByID(ctx context.Context, id string) (*models.Dashboard, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Dashboard, error)
	// ListAll spans tenants; the event bridge preloads its watches from it.
	ListAll(ctx context.Context) ([]*models.Dashboard, error)
	Update(ctx context.Context, dashboard *models.Dashboard) error
	Delete(ctx context.Context, id string) error
}

// FileRepository reads stored file metadata for the file source adapter.
type FileRepository interface {
	GetByID(ctx context.Context, id string) (*models.File, error)
}

// Repositories bundles all repository implementations.
type Repositories struct {
	Query     QueryRepository
	Report    ReportRepository
	Dashboard DashboardRepository
	File      FileRepository
}
