package usecases_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
	"github.com/samirrijal/gapfinder/internal/pkg/geospatial"
)

var abando = domain.GeoPoint{Lat: 43.2614, Lng: -2.9275}

func TestDetectOverlaps_TwoBusinessesOneKmApart(t *testing.T) {
	entities := []domain.CoverageEntity{
		{ID: "a", Location: abando, Radius: 2000},
		{ID: "b", Location: geospatial.DestinationPoint(abando, 90, 1000), Radius: 2000},
	}

	results := usecases.DetectOverlaps(entities)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "a", r.IDA)
	assert.Equal(t, "b", r.IDB)
	assert.InDelta(t, 1000, r.Distance, 1)
	assert.Greater(t, r.OverlapAreaSqM, 0.0)
	assert.Less(t, r.OverlapAreaSqM, math.Pi*2000*2000)
	assert.Greater(t, r.OverlapPercentage, 0.0)
	assert.Less(t, r.OverlapPercentage, 100.0)
}

func TestDetectOverlaps_IdenticalCoordinates(t *testing.T) {
	entities := []domain.CoverageEntity{
		{ID: "small", Location: abando, Radius: 1000},
		{ID: "large", Location: abando, Radius: 1500},
	}

	results := usecases.DetectOverlaps(entities)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Distance)
	assert.InDelta(t, math.Pi*1000*1000, results[0].OverlapAreaSqM, 1e-6)
	assert.InDelta(t, 100, results[0].OverlapPercentage, 1e-9)
}

func TestDetectOverlaps_EqualRadiiSamePoint(t *testing.T) {
	entities := []domain.CoverageEntity{
		{ID: "x", Location: abando, Radius: 800},
		{ID: "y", Location: abando, Radius: 800},
	}
	results := usecases.DetectOverlaps(entities)
	require.Len(t, results, 1)
	assert.InDelta(t, 100, results[0].OverlapPercentage, 1e-9)
}

func TestDetectOverlaps_DefaultRadius(t *testing.T) {
	// 7 km apart: overlaps with two 2.5 mi circles (8046 m combined), not with 3 km circles.
	far := geospatial.DestinationPoint(abando, 0, 7000)
	entities := []domain.CoverageEntity{
		{ID: "a", Location: abando},
		{ID: "b", Location: far},
	}
	require.Len(t, usecases.DetectOverlaps(entities), 1)

	entities[0].Radius, entities[1].Radius = 3000, 3000
	assert.Empty(t, usecases.DetectOverlaps(entities))
}

func TestDetectOverlaps_NoOverlap(t *testing.T) {
	entities := []domain.CoverageEntity{
		{ID: "a", Location: abando, Radius: 100},
		{ID: "b", Location: geospatial.DestinationPoint(abando, 45, 5000), Radius: 100},
	}
	results := usecases.DetectOverlaps(entities)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestDetectOverlaps_PairsUniqueAndOrdered(t *testing.T) {
	n := 8
	entities := make([]domain.CoverageEntity, n)
	for i := range entities {
		entities[i] = domain.CoverageEntity{
			ID:       fmt.Sprintf("e%d", i),
			Location: geospatial.DestinationPoint(abando, float64(i*45), float64(i*150)),
			Radius:   1000,
		}
	}

	results := usecases.DetectOverlaps(entities)
	require.LessOrEqual(t, len(results), n*(n-1)/2)

	index := make(map[string]int, n)
	for i, e := range entities {
		index[e.ID] = i
	}

	seen := make(map[[2]string]bool)
	lastI, lastJ := -1, -1
	for _, r := range results {
		i, j := index[r.IDA], index[r.IDB]
		assert.Less(t, i, j, "pair must be ordered by discovery")
		assert.False(t, seen[[2]string{r.IDA, r.IDB}], "duplicate pair %s/%s", r.IDA, r.IDB)
		seen[[2]string{r.IDA, r.IDB}] = true

		assert.True(t, i > lastI || (i == lastI && j > lastJ), "results out of discovery order")
		lastI, lastJ = i, j

		assert.Less(t, r.Distance, 2000.0)
		assert.GreaterOrEqual(t, r.OverlapPercentage, 0.0)
		assert.LessOrEqual(t, r.OverlapPercentage, 100.0)
	}
}

func TestDetectOverlaps_Empty(t *testing.T) {
	assert.Empty(t, usecases.DetectOverlaps(nil))
	assert.Empty(t, usecases.DetectOverlaps([]domain.CoverageEntity{{ID: "solo", Location: abando}}))
}

func TestSummarizeOverlaps(t *testing.T) {
	results := []domain.OverlapResult{
		{IDA: "a", IDB: "b", OverlapPercentage: 20},
		{IDA: "a", IDB: "c", OverlapPercentage: 60},
		{IDA: "b", IDB: "c", OverlapPercentage: 40},
	}
	s := usecases.SummarizeOverlaps(results)
	assert.Equal(t, 3, s.Pairs)
	assert.Equal(t, 60.0, s.MaxPercentage)
	assert.InDelta(t, 40, s.MeanPercentage, 1e-9)
	assert.Equal(t, "a", s.MostOverlappedID)
	assert.Equal(t, 2, s.MostOverlappedCnt)

	assert.Equal(t, domain.OverlapSummary{}, usecases.SummarizeOverlaps(nil))
}

func TestBuildHeatmap(t *testing.T) {
	five, one := 5.0, 1.0
	businesses := []domain.Business{
		{ID: "a", Location: abando, Rating: &five},
		{ID: "b", Location: abando, Rating: &one},
		{ID: "c", Location: abando},
	}
	overlaps := []domain.OverlapResult{{IDA: "a", IDB: "b"}}

	points := usecases.BuildHeatmap(businesses, overlaps)
	require.Len(t, points, 3)
	assert.InDelta(t, 1.0, points[0].Weight, 1e-9)
	assert.InDelta(t, 0.6, points[1].Weight, 1e-9)
	assert.InDelta(t, 0.25, points[2].Weight, 1e-9)
}

func TestEntitiesFromBusinesses(t *testing.T) {
	bs := []domain.Business{{ID: "1", Location: abando}, {ID: "2", Location: abando}}
	entities := usecases.EntitiesFromBusinesses(bs, 0)
	require.Len(t, entities, 2)
	assert.Equal(t, domain.DefaultCoverageRadius, entities[0].EffectiveRadius())
	assert.Equal(t, "2", entities[1].ID)
}
