package spatial

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used for every ground distance
const EarthRadiusMeters = 6371000.0

func latLng(p models.GeoPoint) s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lon)
}

// Distance returns the great-circle (Haversine) distance between two points in meters
func Distance(a, b models.GeoPoint) float64 {
	return latLng(a).Distance(latLng(b)).Radians() * EarthRadiusMeters
}

// DestinationPoint walks meters from p along bearing (degrees)
func DestinationPoint(p models.GeoPoint, bearing, meters float64) models.GeoPoint {
	origin := latLng(p)
	theta := (s1.Angle(bearing) * s1.Degree).Radians()
	delta := AngleFromMeters(meters).Radians()
	lat1, lon1 := origin.Lat.Radians(), origin.Lng.Radians()

	sinLat2 := math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta)
	lat2 := math.Asin(sinLat2)
	lon2 := lon1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(lat1), math.Cos(delta)-math.Sin(lat1)*sinLat2)

	dest := s2.LatLng{Lat: s1.Angle(lat2), Lng: s1.Angle(lon2)}.Normalized()
	return models.GeoPoint{Lat: dest.Lat.Degrees(), Lon: dest.Lng.Degrees()}
}

// ImpliedSpeedKmh returns the speed needed to travel between two fixes in dt seconds
func ImpliedSpeedKmh(a, b models.GeoPoint, dtSeconds float64) float64 {
	if dtSeconds <= 0 {
		return math.Inf(1)
	}
	return Distance(a, b) / dtSeconds * 3.6
}

// AngleFromMeters converts a ground distance to the s1.Angle used by s2 caps
func AngleFromMeters(meters float64) s1.Angle {
	return s1.Angle(meters / EarthRadiusMeters)
}
