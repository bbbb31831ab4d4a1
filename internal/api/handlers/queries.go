package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opsai-platform/analytics-backend-go/internal/database/models"
	apperrors "github.com/opsai-platform/analytics-backend-go/pkg/errors"
	"github.com/opsai-platform/analytics-backend-go/pkg/utils"
)

type queryRequest struct {
	Name       string          `json:"name" binding:"required"`
	Type       string          `json:"type" binding:"required"`
	Query      json.RawMessage `json:"query" binding:"required"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Schedule   string          `json:"schedule,omitempty"`
}

func validQueryType(t string) bool {
	switch t {
	case models.QueryTypeRaw, models.QueryTypeAggregation, models.QueryTypePipeline:
		return true
	}
	return false
}

// CreateQuery stores a new tenant-owned query definition.
func (h *Handlers) CreateQuery(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid query definition: "+err.Error())
		return
	}
	if !validQueryType(req.Type) {
		utils.SendError(c, http.StatusBadRequest, "Unknown query type: "+req.Type)
		return
	}

	q := &models.AnalyticsQuery{
		ID:         uuid.NewString(),
		TenantID:   tenant,
		Name:       req.Name,
		Type:       req.Type,
		QueryBody:  req.Query,
		Parameters: req.Parameters,
	}
	if req.Schedule != "" {
		q.Schedule = sql.NullString{String: req.Schedule, Valid: true}
	}

	if err := h.repos.Query.Create(c.Request.Context(), q); err != nil {
		h.logger.WithError(err).Error("Failed to create query")
		utils.SendError(c, http.StatusInternalServerError, "Failed to create query")
		return
	}

	if req.Schedule != "" && h.scheduler != nil {
		if err := h.scheduler.Schedule(q.ID, tenant, req.Schedule); err != nil {
			h.logger.WithError(err).WithField("query_id", q.ID).Warn("Invalid schedule spec")
		}
	}

	c.JSON(http.StatusCreated, utils.Response{Success: true, Data: q})
}

// GetQuery returns one query definition.
func (h *Handlers) GetQuery(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	q, err := h.loadTenantQuery(c, tenant)
	if err != nil {
		return
	}
	utils.SendSuccess(c, q)
}

// ListQueries returns every query owned by the tenant.
func (h *Handlers) ListQueries(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	queries, err := h.repos.Query.ListByTenant(c.Request.Context(), tenant)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list queries")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list queries")
		return
	}
	utils.SendSuccessWithMeta(c, queries, gin.H{"count": len(queries)})
}

// UpdateQuery replaces a query definition.
func (h *Handlers) UpdateQuery(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	existing, err := h.loadTenantQuery(c, tenant)
	if err != nil {
		return
	}

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid query definition: "+err.Error())
		return
	}
	if !validQueryType(req.Type) {
		utils.SendError(c, http.StatusBadRequest, "Unknown query type: "+req.Type)
		return
	}

	existing.Name = req.Name
	existing.Type = req.Type
	existing.QueryBody = req.Query
	existing.Parameters = req.Parameters
	existing.Schedule = sql.NullString{String: req.Schedule, Valid: req.Schedule != ""}

	if err := h.repos.Query.Update(c.Request.Context(), existing); err != nil {
		h.logger.WithError(err).Error("Failed to update query")
		utils.SendError(c, http.StatusInternalServerError, "Failed to update query")
		return
	}

	if h.scheduler != nil {
		if err := h.scheduler.Schedule(existing.ID, tenant, req.Schedule); err != nil {
			h.logger.WithError(err).WithField("query_id", existing.ID).Warn("Invalid schedule spec")
		}
	}

	utils.SendSuccess(c, existing)
}

// DeleteQuery removes a query definition and its schedule.
func (h *Handlers) DeleteQuery(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	existing, err := h.loadTenantQuery(c, tenant)
	if err != nil {
		return
	}

	if err := h.repos.Query.Delete(c.Request.Context(), existing.ID); err != nil {
		h.logger.WithError(err).Error("Failed to delete query")
		utils.SendError(c, http.StatusInternalServerError, "Failed to delete query")
		return
	}
	if h.scheduler != nil {
		h.scheduler.Unschedule(existing.ID)
	}
	utils.SendSuccess(c, gin.H{"deleted": existing.ID})
}

// ExecuteQuery runs a stored query with request-supplied parameters.
func (h *Handlers) ExecuteQuery(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	if _, err := h.loadTenantQuery(c, tenant); err != nil {
		return
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

	result, err := h.executor.Execute(c.Request.Context(), tenant, c.Param("id"), body.Parameters)
	if err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), "Query execution failed")
		return
	}
	utils.SendSuccess(c, result)
}

// loadTenantQuery fetches the path query and enforces tenant ownership. On
// failure it writes the error response and returns a non-nil error.
func (h *Handlers) loadTenantQuery(c *gin.Context, tenant string) (*models.AnalyticsQuery, error) {
	q, err := h.repos.Query.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil || q.TenantID != tenant {
		utils.SendError(c, http.StatusNotFound, "Query not found")
		if err == nil {
			err = apperrors.ErrQueryNotFound
		}
		return nil, err
	}
	return q, nil
}
