package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/service"
	"github.com/jengzang/fleet-records-backend-go/pkg/response"
)

var errUnknownSeverity = errors.New("minSeverity must be one of light, moderate, grave, critical")

// EventHandler handles HTTP requests for stability events and hotspots
type EventHandler struct {
	events   *service.EventService
	hotspots *service.HotspotService
}

// NewEventHandler creates a new event handler
func NewEventHandler(events *service.EventService, hotspots *service.HotspotService) *EventHandler {
	return &EventHandler{events: events, hotspots: hotspots}
}

func validSeverity(v string) bool {
	if v == "" {
		return true
	}
	_, ok := models.ParseSeverity(v)
	return ok
}

// GetEvents handles GET /api/v1/events
func (h *EventHandler) GetEvents(c *gin.Context) {
	var filter models.EventFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}
	if !validSeverity(filter.MinSeverity) {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", errUnknownSeverity)
		return
	}
	scopeOrganization(c, &filter.OrganizationID)

	events, err := h.events.GetEvents(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to get events", err)
		return
	}

	response.Success(c, gin.H{
		"data":  events,
		"total": len(events),
	})
}

// GetHotspots handles GET /api/v1/hotspots
func (h *EventHandler) GetHotspots(c *gin.Context) {
	var filter models.HotspotFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}
	if !validSeverity(filter.MinSeverity) {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", errUnknownSeverity)
		return
	}
	if filter.RadiusMeters < 0 || filter.MinEvents < 0 || filter.Top < 0 {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", errors.New("radiusMeters, minEvents and top must be >= 0"))
		return
	}
	scopeOrganization(c, &filter.OrganizationID)

	result, err := h.hotspots.GetHotspots(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to cluster hotspots", err)
		return
	}
	response.Success(c, result)
}
