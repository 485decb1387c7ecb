package geospatial

import "math"

// CircleArea returns the area of a circle of radius r in square meters.
func CircleArea(r float64) float64 {
	return math.Pi * r * r
}

// CirclesOverlap reports whether two coverage circles overlap.
// Externally tangent circles (distance == r1+r2) do not overlap.
func CirclesOverlap(c1 Point, r1 float64, c2 Point, r2 float64) bool {
	return Distance(c1, c2) < r1+r2
}

// IntersectionArea returns the area in square meters shared by two circles.
func IntersectionArea(c1 Point, r1 float64, c2 Point, r2 float64) float64 {
	return LensArea(Distance(c1, c2), r1, r2)
}

// LensArea computes the intersection area of two circles whose centers are d
// meters apart, treating the circles as planar at the scale of a coverage
// radius.
func LensArea(d, r1, r2 float64) float64 {
	if d >= r1+r2 {
		return 0
	}

	rMin := math.Min(r1, r2)
	if d <= math.Abs(r1-r2) {
		return CircleArea(rMin)
	}

	// Half-angles subtended by the chord at each center.
	alpha := math.Acos(clampUnit((d*d + r1*r1 - r2*r2) / (2 * d * r1)))
	beta := math.Acos(clampUnit((d*d + r2*r2 - r1*r1) / (2 * d * r2)))

	segments := r1*r1*alpha + r2*r2*beta
	triangle := 0.5 * math.Sqrt(math.Max(0, (-d+r1+r2)*(d+r1-r2)*(d-r1+r2)*(d+r1+r2)))

	area := segments - triangle
	if math.IsNaN(area) {
		// Only reachable at a near-tangent boundary; treat as full overlap.
		return CircleArea(rMin)
	}
	if area < 0 {
		return 0
	}
	return area
}

func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
