package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/opsai-platform/analytics-backend-go/internal/database/models"
	"github.com/opsai-platform/analytics-backend-go/internal/database/repositories"
	apperrors "github.com/opsai-platform/analytics-backend-go/pkg/errors"
)

// FileRepository implements repositories.FileRepository on sqlite.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository creates a new FileRepository.
func NewFileRepository(db *sqlx.DB) repositories.FileRepository {
	return &FileRepository{db: db}
}

// GetByID retrieves stored file metadata by id.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	var file models.File
	err := r.db.GetContext(ctx, &file, `SELECT * FROM files WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &file, nil
}

// NewRepositories wires all sqlite repository implementations.
func NewRepositories(db *sqlx.DB) *repositories.Repositories {
	return &repositories.Repositories{
		Query:     NewQueryRepository(db),
		Report:    NewReportRepository(db),
		Dashboard: NewDashboardRepository(db),
		File:      NewFileRepository(db),
	}
}
