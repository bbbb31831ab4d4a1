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

type reportRequest struct {
	Type   string          `json:"type" binding:"required"`
	Config json.RawMessage `json:"config" binding:"required"`
}

// CreateReport stores a new report configuration. The data snapshot stays
// empty until the first generation.
func (h *Handlers) CreateReport(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid report: "+err.Error())
		return
	}

	var cfg models.ReportConfig
	if err := json.Unmarshal(req.Config, &cfg); err != nil || len(cfg.QueryIDs) == 0 {
		utils.SendError(c, http.StatusBadRequest, "Report config needs at least one queryId")
		return
	}

	// Every referenced query must belong to the caller's tenant. Foreign ids
	// get the same 404 shape as a direct lookup would.
	for _, queryID := range cfg.QueryIDs {
		q, err := h.repos.Query.GetByID(c.Request.Context(), queryID)
		if err != nil || q.TenantID != tenant {
			utils.SendError(c, http.StatusNotFound, "Query not found: "+queryID)
			return
		}
	}

	report := &models.AnalyticsReport{
		ID:       uuid.NewString(),
		TenantID: tenant,
		Type:     req.Type,
		Config:   req.Config,
	}
	if err := h.repos.Report.Create(c.Request.Context(), report); err != nil {
		h.logger.WithError(err).Error("Failed to create report")
		utils.SendError(c, http.StatusInternalServerError, "Failed to create report")
		return
	}
	c.JSON(http.StatusCreated, utils.Response{Success: true, Data: report})
}

// GetReport returns one report, including its latest snapshot.
func (h *Handlers) GetReport(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	report, err := h.loadTenantReport(c, tenant)
	if err != nil {
		return
	}
	utils.SendSuccess(c, report)
}

// ListReports returns every report owned by the tenant.
func (h *Handlers) ListReports(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	reports, err := h.repos.Report.ListByTenant(c.Request.Context(), tenant)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list reports")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list reports")
		return
	}
	utils.SendSuccessWithMeta(c, reports, gin.H{"count": len(reports)})
}

// GenerateReport executes the report's queries and overwrites the stored
// snapshot. A failing query fails the whole generation; the previous
// snapshot stays intact.
func (h *Handlers) GenerateReport(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	report, err := h.loadTenantReport(c, tenant)
	if err != nil {
		return
	}

	var cfg models.ReportConfig
	if err := json.Unmarshal(report.Config, &cfg); err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Stored report config is invalid")
		return
	}

	snapshot := make(map[string]interface{}, len(cfg.QueryIDs))
	for _, queryID := range cfg.QueryIDs {
		result, err := h.executor.Execute(c.Request.Context(), tenant, queryID, nil)
		if err != nil {
			utils.SendError(c, apperrors.GetStatusCode(err), "Report generation failed")
			return
		}
		snapshot[queryID] = result
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to serialize report data")
		return
	}
	if err := h.repos.Report.UpdateData(c.Request.Context(), report.ID, data); err != nil {
		h.logger.WithError(err).Error("Failed to store report snapshot")
		utils.SendError(c, http.StatusInternalServerError, "Failed to store report data")
		return
	}

	refreshed, err := h.repos.Report.GetByID(c.Request.Context(), report.ID)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to reload report")
		return
	}
	utils.SendSuccess(c, refreshed)
}

// DeleteReport removes a report and its snapshot.
func (h *Handlers) DeleteReport(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	report, err := h.loadTenantReport(c, tenant)
	if err != nil {
		return
	}

	if err := h.repos.Report.Delete(c.Request.Context(), report.ID); err != nil {
		h.logger.WithError(err).Error("Failed to delete report")
		utils.SendError(c, http.StatusInternalServerError, "Failed to delete report")
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": report.ID})
}

func (h *Handlers) loadTenantReport(c *gin.Context, tenant string) (*models.AnalyticsReport, error) {
	report, err := h.repos.Report.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil || report.TenantID != tenant {
		utils.SendError(c, http.StatusNotFound, "Report not found")
		if err == nil {
			err = apperrors.ErrNotFound
		}
		return nil, err
	}
	return report, nil
}
