package usecases

import (
	"math"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/pkg/geospatial"
)

// DetectOverlaps returns every unordered pair of entities whose coverage
// circles overlap, in pair-discovery order (i < j, input order).
//
// The scan is O(n²). Upstream searches cap n at 20, so no spatial index is
// used; a grid or R-tree would be needed once n reaches a few hundred.
func DetectOverlaps(entities []domain.CoverageEntity) []domain.OverlapResult {
	results := make([]domain.OverlapResult, 0)

	for i := 0; i < len(entities); i++ {
		a := entities[i]
		ra := a.EffectiveRadius()

		for j := i + 1; j < len(entities); j++ {
			b := entities[j]
			rb := b.EffectiveRadius()

			d := geospatial.Distance(a.Location, b.Location)
			if d >= ra+rb {
				continue
			}

			area := geospatial.LensArea(d, ra, rb)
			pct := area / geospatial.CircleArea(math.Min(ra, rb)) * 100

			results = append(results, domain.OverlapResult{
				IDA:               a.ID,
				IDB:               b.ID,
				Distance:          d,
				OverlapAreaSqM:    area,
				OverlapPercentage: math.Min(100, math.Max(0, pct)),
			})
		}
	}

	return results
}

// EntitiesFromBusinesses builds coverage entities from search results.
// A non-positive radius leaves each entity on the default coverage radius.
func EntitiesFromBusinesses(businesses []domain.Business, radius float64) []domain.CoverageEntity {
	entities := make([]domain.CoverageEntity, len(businesses))
	for i, b := range businesses {
		entities[i] = domain.CoverageEntity{ID: b.ID, Location: b.Location, Radius: radius}
	}
	return entities
}

// SummarizeOverlaps aggregates overlap results for reporting.
func SummarizeOverlaps(results []domain.OverlapResult) domain.OverlapSummary {
	var s domain.OverlapSummary
	if len(results) == 0 {
		return s
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	var total float64

	for _, r := range results {
		total += r.OverlapPercentage
		if r.OverlapPercentage > s.MaxPercentage {
			s.MaxPercentage = r.OverlapPercentage
		}
		for _, id := range []string{r.IDA, r.IDB} {
			if counts[id] == 0 {
				order = append(order, id)
			}
			counts[id]++
		}
	}

	s.Pairs = len(results)
	s.MeanPercentage = total / float64(len(results))

	// First-seen wins ties so the summary is deterministic.
	for _, id := range order {
		if counts[id] > s.MostOverlappedCnt {
			s.MostOverlappedID = id
			s.MostOverlappedCnt = counts[id]
		}
	}
	return s
}

// BuildHeatmap weights each business by its rating and by how many
// overlapping pairs it appears in, normalised by the busiest business.
func BuildHeatmap(businesses []domain.Business, overlaps []domain.OverlapResult) []domain.HeatmapPoint {
	if len(businesses) == 0 {
		return []domain.HeatmapPoint{}
	}

	density := make(map[string]int, len(businesses))
	for _, o := range overlaps {
		density[o.IDA]++
		density[o.IDB]++
	}

	maxDensity := 1
	for _, n := range density {
		if n > maxDensity {
			maxDensity = n
		}
	}

	points := make([]domain.HeatmapPoint, len(businesses))
	for i, b := range businesses {
		rating := 0.5 // unrated businesses count as average
		if b.Rating != nil {
			rating = math.Max(0, math.Min(5, *b.Rating)) / 5
		}
		weight := 0.5*rating + 0.5*float64(density[b.ID])/float64(maxDensity)
		points[i] = domain.HeatmapPoint{Location: b.Location, Weight: weight}
	}
	return points
}
