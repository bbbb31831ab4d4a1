package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/opsai-platform/analytics-backend-go/pkg/errors"
	"github.com/opsai-platform/analytics-backend-go/pkg/utils"
)

// GetInsights generates the tenant's insights. Failing categories are
// skipped, so this endpoint never fails outright on a bad sub-query.
func (h *Handlers) GetInsights(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	insights := h.insights.Generate(c.Request.Context(), tenant)
	utils.SendSuccessWithMeta(c, insights, gin.H{"count": len(insights)})
}

// GetBusinessMetrics recomputes the tenant's derived metrics.
func (h *Handlers) GetBusinessMetrics(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	metrics, err := h.insights.BusinessMetrics(c.Request.Context(), tenant)
	if err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenant).Error("Failed to derive business metrics")
		utils.SendError(c, apperrors.GetStatusCode(err), "Failed to derive business metrics")
		return
	}
	utils.SendSuccessWithMeta(c, metrics, gin.H{"count": len(metrics)})
}

// ExportQuery executes a query and streams the serialized payload.
func (h *Handlers) ExportQuery(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	if _, err := h.loadTenantQuery(c, tenant); err != nil {
		return
	}

	format := c.Query("format")
	if format == "" {
		format = "csv"
	}

	var body struct {
		Parameters map[string]interface{} `json:"parameters,omitempty"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			utils.SendError(c, http.StatusBadRequest, "Invalid parameters: "+err.Error())
			return
		}
	}

	payload, err := h.exporter.ExportData(c.Request.Context(), tenant, c.Param("id"), format, body.Parameters)
	if err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), "Export failed")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+payload.Filename+`"`)
	if payload.Encoding != "" {
		c.Header("Content-Encoding", payload.Encoding)
	}
	c.Data(http.StatusOK, payload.ContentType, payload.Data)
}
