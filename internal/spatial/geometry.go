package spatial

import (
	"github.com/golang/geo/s2"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// Centroid calculates the geographic centroid of a set of points
func Centroid(points []models.GeoPoint) models.GeoPoint {
	if len(points) == 0 {
		return models.GeoPoint{}
	}

	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}

	return models.GeoPoint{
		Lat: sumLat / float64(len(points)),
		Lon: sumLon / float64(len(points)),
	}
}

// RunningMean folds one more point into a mean of n points
func RunningMean(mean models.GeoPoint, n int, p models.GeoPoint) models.GeoPoint {
	if n <= 0 {
		return p
	}
	k := float64(n + 1)
	return models.GeoPoint{
		Lat: mean.Lat + (p.Lat-mean.Lat)/k,
		Lon: mean.Lon + (p.Lon-mean.Lon)/k,
	}
}

// PathLength calculates the total length of a path (sequence of points) in meters
func PathLength(points []models.GeoPoint) float64 {
	if len(points) < 2 {
		return 0
	}

	var totalDist float64
	for i := 1; i < len(points); i++ {
		totalDist += Distance(points[i-1], points[i])
	}

	return totalDist
}

// NewLoop builds a normalized s2 loop from polygon vertices.
// Returns nil for degenerate polygons.
func NewLoop(polygon []models.GeoPoint) *s2.Loop {
	vertices := polygon
	if len(vertices) > 1 && vertices[0] == vertices[len(vertices)-1] {
		vertices = vertices[:len(vertices)-1]
	}
	if len(vertices) < 3 {
		return nil
	}

	pts := make([]s2.Point, 0, len(vertices))
	for _, v := range vertices {
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(v.Lat, v.Lon)))
	}

	loop := s2.LoopFromPoints(pts)
	// Vertex order in source data is not reliable; keep the smaller side as the interior.
	loop.Normalize()
	return loop
}

// PointInPolygon checks if a point is inside a polygon
func PointInPolygon(point models.GeoPoint, polygon []models.GeoPoint) bool {
	loop := NewLoop(polygon)
	if loop == nil {
		return false
	}
	return loop.ContainsPoint(s2.PointFromLatLng(s2.LatLngFromDegrees(point.Lat, point.Lon)))
}

// ToS2 converts a GeoPoint into an s2 point
func ToS2(p models.GeoPoint) s2.Point {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon))
}
