package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opsai-platform/analytics-backend-go/internal/database/models"
	apperrors "github.com/opsai-platform/analytics-backend-go/pkg/errors"
	"github.com/opsai-platform/analytics-backend-go/pkg/utils"
)

type dashboardRequest struct {
	Name   string          `json:"name" binding:"required"`
	Config json.RawMessage `json:"config" binding:"required"`
}

// CreateDashboard stores a new dashboard configuration.
func (h *Handlers) CreateDashboard(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	var req dashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid dashboard: "+err.Error())
		return
	}

	row := &models.Dashboard{
		ID:       uuid.NewString(),
		TenantID: tenant,
		Name:     req.Name,
		Config:   req.Config,
	}
	if err := h.repos.Dashboard.Create(c.Request.Context(), row); err != nil {
		h.logger.WithError(err).Error("Failed to create dashboard")
		utils.SendError(c, http.StatusInternalServerError, "Failed to create dashboard")
		return
	}
	c.JSON(http.StatusCreated, utils.Response{Success: true, Data: row})
}

// GetDashboard returns one dashboard row.
func (h *Handlers) GetDashboard(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	row, err := h.loadTenantDashboard(c, tenant)
	if err != nil {
		return
	}
	utils.SendSuccess(c, row)
}

// ListDashboards returns every dashboard owned by the tenant.
func (h *Handlers) ListDashboards(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	rows, err := h.repos.Dashboard.ListByTenant(c.Request.Context(), tenant)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list dashboards")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list dashboards")
		return
	}
	utils.SendSuccessWithMeta(c, rows, gin.H{"count": len(rows)})
}

// UpdateDashboard replaces a dashboard configuration and drops its cached
// data.
func (h *Handlers) UpdateDashboard(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	row, err := h.loadTenantDashboard(c, tenant)
	if err != nil {
		return
	}

	var req dashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid dashboard: "+err.Error())
		return
	}

	row.Name = req.Name
	row.Config = req.Config
	if err := h.repos.Dashboard.Update(c.Request.Context(), row); err != nil {
		h.logger.WithError(err).Error("Failed to update dashboard")
		utils.SendError(c, http.StatusInternalServerError, "Failed to update dashboard")
		return
	}

	h.dashboards.Invalidate(row.ID, tenant)
	utils.SendSuccess(c, row)
}

// DeleteDashboard removes a dashboard and its cached data.
func (h *Handlers) DeleteDashboard(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	row, err := h.loadTenantDashboard(c, tenant)
	if err != nil {
		return
	}

	if err := h.repos.Dashboard.Delete(c.Request.Context(), row.ID); err != nil {
		h.logger.WithError(err).Error("Failed to delete dashboard")
		utils.SendError(c, http.StatusInternalServerError, "Failed to delete dashboard")
		return
	}
	h.dashboards.Invalidate(row.ID, tenant)
	utils.SendSuccess(c, gin.H{"deleted": row.ID})
}

// GetDashboardData returns the composite (possibly cached) dashboard
// payload. Filters come from query parameters; unknown parameters are passed
// through to the sources.
func (h *Handlers) GetDashboardData(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	filters := map[string]interface{}{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			filters[key] = values[0]
		}
	}

	data, err := h.dashboards.GetDashboardData(c.Request.Context(), c.Param("id"), tenant, filters)
	if err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), "Failed to load dashboard data")
		return
	}
	utils.SendSuccess(c, data)
}

// InvalidateDashboard drops every cached filter variant of one dashboard.
func (h *Handlers) InvalidateDashboard(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	row, err := h.loadTenantDashboard(c, tenant)
	if err != nil {
		return
	}

	removed := h.dashboards.Invalidate(row.ID, tenant)
	utils.SendSuccess(c, gin.H{"invalidated": removed})
}

func (h *Handlers) loadTenantDashboard(c *gin.Context, tenant string) (*models.Dashboard, error) {
	row, err := h.repos.Dashboard.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil || row.TenantID != tenant {
		utils.SendError(c, http.StatusNotFound, "Dashboard not found")
		if err == nil {
			err = apperrors.ErrDashboardNotFound
		}
		return nil, err
	}
	return row, nil
}
