package models

// GeofenceType tags what a geofence represents
type GeofenceType string

// GeofenceType constants
const (
	GeofenceStation  GeofenceType = "station"
	GeofenceWorkshop GeofenceType = "workshop"
)

// Geofence is a named station or workshop area owned by an organization.
// Exactly one of Circle or Polygon is set.
type Geofence struct {
	ID             string       `json:"id" yaml:"id"`
	Name           string       `json:"name" yaml:"name"`
	Type           GeofenceType `json:"type" yaml:"type"`
	OrganizationID string       `json:"organization_id" yaml:"organizationId"`

	Circle  *Circle    `json:"circle,omitempty" yaml:"circle,omitempty"`
	Polygon []GeoPoint `json:"polygon,omitempty" yaml:"polygon,omitempty"`

	// Synthetic geofences are derived at runtime (GPS-only mode)
	Synthetic bool `json:"synthetic,omitempty" yaml:"-"`
}

// Circle is a center plus radius in meters
type Circle struct {
	Center       GeoPoint `json:"center" yaml:"center"`
	RadiusMeters float64  `json:"radius_meters" yaml:"radiusMeters"`
}

// IsStation reports whether the geofence is a station
func (g Geofence) IsStation() bool {
	return g.Type == GeofenceStation
}

// IsWorkshop reports whether the geofence is a workshop
func (g Geofence) IsWorkshop() bool {
	return g.Type == GeofenceWorkshop
}
