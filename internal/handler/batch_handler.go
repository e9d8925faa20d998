package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/service"
	"github.com/jengzang/fleet-records-backend-go/pkg/response"
)

// BatchHandler handles HTTP requests for ingest batch runs
type BatchHandler struct {
	service *service.BatchService
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(service *service.BatchService) *BatchHandler {
	return &BatchHandler{service: service}
}

// ListBatches handles GET /api/v1/batches
func (h *BatchHandler) ListBatches(c *gin.Context) {
	var filter models.BatchFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		response.BadRequest(c, "limit and offset must be >= 0", nil)
		return
	}

	runs, err := h.service.ListBatches(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to list batches", err)
		return
	}
	if runs == nil {
		runs = []models.BatchRun{}
	}

	response.Success(c, gin.H{
		"data":   runs,
		"count":  len(runs),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetBatch handles GET /api/v1/batches/:id
func (h *BatchHandler) GetBatch(c *gin.Context) {
	run, err := h.service.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to get batch", err)
		return
	}
	if run == nil {
		response.NotFound(c, "Batch not found")
		return
	}
	response.Success(c, run)
}
