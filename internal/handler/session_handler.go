package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/fleet-records-backend-go/internal/middleware"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/service"
	"github.com/jengzang/fleet-records-backend-go/pkg/response"
)

// SessionHandler handles HTTP requests for sessions
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service *service.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// GetSessions handles GET /api/v1/sessions
func (h *SessionHandler) GetSessions(c *gin.Context) {
	var filter models.SessionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}
	scopeOrganization(c, &filter.OrganizationID)

	sessions, total, err := h.service.GetSessions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to get sessions", err)
		return
	}

	// Calculate pagination info
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 100
	}
	if filter.PageSize > 1000 {
		filter.PageSize = 1000
	}
	totalPages := int(total) / filter.PageSize
	if int(total)%filter.PageSize > 0 {
		totalPages++
	}

	response.Success(c, gin.H{
		"data":       sessions,
		"total":      total,
		"page":       filter.Page,
		"pageSize":   filter.PageSize,
		"totalPages": totalPages,
	})
}

// GetSessionByID handles GET /api/v1/sessions/:id
func (h *SessionHandler) GetSessionByID(c *gin.Context) {
	detail, err := h.service.GetSessionDetail(c.Request.Context(), c.Param("id"), middleware.OrganizationID(c))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to get session", err)
		return
	}
	if detail == nil {
		response.Error(c, http.StatusNotFound, "Session not found", nil)
		return
	}
	response.Success(c, detail)
}
