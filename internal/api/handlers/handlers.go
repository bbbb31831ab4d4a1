package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/opsai-platform/analytics-backend-go/internal/config"
	"github.com/opsai-platform/analytics-backend-go/internal/core/dashboard"
	"github.com/opsai-platform/analytics-backend-go/internal/core/export"
	"github.com/opsai-platform/analytics-backend-go/internal/core/insights"
	"github.com/opsai-platform/analytics-backend-go/internal/core/query"
	"github.com/opsai-platform/analytics-backend-go/internal/database/repositories"
	"github.com/opsai-platform/analytics-backend-go/internal/websocket"
	"github.com/opsai-platform/analytics-backend-go/pkg/utils"
)

// Handlers bundles all HTTP handlers and their collaborators.
type Handlers struct {
	cfg        *config.Config
	repos      *repositories.Repositories
	executor   *query.Executor
	scheduler  *query.Scheduler
	dashboards *dashboard.Service
	insights   *insights.Generator
	exporter   *export.Engine
	hub        *websocket.Hub
	db         *sqlx.DB
	logger     *logrus.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(
	cfg *config.Config,
	repos *repositories.Repositories,
	db *sqlx.DB,
	executor *query.Executor,
	scheduler *query.Scheduler,
	dashboards *dashboard.Service,
	insightGen *insights.Generator,
	exporter *export.Engine,
	hub *websocket.Hub,
	logger *logrus.Logger,
) *Handlers {
	return &Handlers{
		cfg:        cfg,
		repos:      repos,
		executor:   executor,
		scheduler:  scheduler,
		dashboards: dashboards,
		insights:   insightGen,
		exporter:   exporter,
		hub:        hub,
		db:         db,
		logger:     logger,
	}
}

// tenantID resolves the caller's tenant from the X-Tenant-ID header. Every
// analytics route is tenant-scoped.
func tenantID(c *gin.Context) (string, bool) {
	id := c.GetHeader("X-Tenant-ID")
	if id == "" {
		utils.SendError(c, http.StatusBadRequest, "X-Tenant-ID header is required")
		return "", false
	}
	return id, true
}
