package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/service"
	"github.com/jengzang/fleet-records-backend-go/pkg/response"
)

// KPIHandler handles HTTP requests for KPI summaries
type KPIHandler struct {
	service *service.KPIService
}

// NewKPIHandler creates a new KPI handler
func NewKPIHandler(service *service.KPIService) *KPIHandler {
	return &KPIHandler{service: service}
}

// GetKPI handles GET /api/v1/kpi
func (h *KPIHandler) GetKPI(c *gin.Context) {
	var filter models.KPIFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}
	if filter.StartTime > 0 && filter.EndTime > 0 && filter.EndTime <= filter.StartTime {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", errors.New("endTime must be after startTime"))
		return
	}
	scopeOrganization(c, &filter.OrganizationID)

	summary, err := h.service.GetSummary(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to aggregate KPIs", err)
		return
	}
	response.Success(c, summary)
}
