package geospatial

import "math"

const earthRadiusKm = 6371.0

// EarthRadiusMeters is the mean Earth radius used by every distance helper.
const EarthRadiusMeters = earthRadiusKm * 1000

// MetersPerMile is deliberately 1609.34 rather than 1609.344 so radii match
// values computed and stored by earlier versions of the product.
const MetersPerMile = 1609.34

// Point is a WGS 84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within the lat/lng ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// Distance returns the Haversine distance in meters between p1 and p2.
func Distance(p1, p2 Point) float64 {
	return Haversine(p1.Lat, p1.Lng, p2.Lat, p2.Lng)
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / 111320.0
	lonDelta := radiusMeters / (111320.0 * math.Cos(toRad(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

// DestinationPoint returns the point reached by travelling distanceMeters from
// start along the initial bearing (degrees clockwise from north).
func DestinationPoint(start Point, bearingDeg, distanceMeters float64) Point {
	lat1 := toRad(start.Lat)
	lng1 := toRad(start.Lng)
	brng := toRad(bearingDeg)
	ang := distanceMeters / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brng))
	lng2 := lng1 + math.Atan2(
		math.Sin(brng)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2),
	)
	lng2 = math.Mod(lng2+3*math.Pi, 2*math.Pi) - math.Pi

	return Point{Lat: toDeg(lat2), Lng: toDeg(lng2)}
}

// MilesToMeters converts miles to meters.
func MilesToMeters(miles float64) float64 {
	return miles * MetersPerMile
}

// MetersToMiles converts meters to miles.
func MetersToMiles(meters float64) float64 {
	return meters / MetersPerMile
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
