package models

// SessionFilter represents filter parameters for querying sessions
type SessionFilter struct {
	VehicleID      string `form:"vehicleId"`
	OrganizationID string `form:"organizationId"`
	StartTime      int64  `form:"startTime"` // Unix timestamp
	EndTime        int64  `form:"endTime"`   // Unix timestamp
	OnlyValid      bool   `form:"onlyValid"`
	Page           int    `form:"page"`
	PageSize       int    `form:"pageSize"`
}

// EventFilter represents filter parameters for querying stability events
type EventFilter struct {
	VehicleID      string `form:"vehicleId"`
	OrganizationID string `form:"organizationId"`
	SessionID      string `form:"sessionId"`
	MinSeverity    string `form:"minSeverity"` // light, moderate, grave, critical
	StartTime      int64  `form:"startTime"`
	EndTime        int64  `form:"endTime"`
	Geotagged      bool   `form:"geotagged"`
	Limit          int    `form:"limit"`
}

// HotspotFilter represents filter parameters for hotspot clustering
type HotspotFilter struct {
	EventFilter
	RadiusMeters float64 `form:"radiusMeters"`
	MinEvents    int     `form:"minEvents"`
	Top          int     `form:"top"`
}

// KPIFilter represents filter parameters for KPI aggregation
type KPIFilter struct {
	VehicleIDs     []string `form:"vehicleId"`
	OrganizationID string   `form:"organizationId"`
	StartTime      int64    `form:"startTime"`
	EndTime        int64    `form:"endTime"`
}
