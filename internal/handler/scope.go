package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/fleet-records-backend-go/internal/middleware"
)

// scopeOrganization forces the organization of an authenticated request
// onto a filter field. Anonymous requests keep the requested value.
func scopeOrganization(c *gin.Context, field *string) {
	if org := middleware.OrganizationID(c); org != "" {
		*field = org
	}
}
