package domain

import "github.com/samirrijal/gapfinder/internal/pkg/geospatial"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint = geospatial.Point

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// BoundsAround returns the bounding box of a circle.
func BoundsAround(center GeoPoint, radiusMeters float64) Bounds {
	minLat, minLng, maxLat, maxLng := geospatial.BoundingBox(center.Lat, center.Lng, radiusMeters)
	return Bounds{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}
}

// DefaultCoverageRadius is used for any entity whose radius is unspecified (2.5 mi).
var DefaultCoverageRadius = geospatial.MilesToMeters(2.5)
