package usecases

import (
	"context"
	"fmt"
	"math"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/ports"
	"github.com/samirrijal/gapfinder/internal/pkg/geospatial"
	"github.com/samirrijal/gapfinder/internal/pkg/logging"
	"github.com/samirrijal/gapfinder/internal/pkg/metrics"
	"github.com/samirrijal/gapfinder/internal/pkg/telemetry"
)

const defaultMaxPoints = 5

// RecommendationService asks the analysis service for candidate locations and
// enriches them with demographics.
type RecommendationService struct {
	generator ports.RecommendationGenerator
	enricher  *Enricher
}

// NewRecommendationService creates a new RecommendationService.
func NewRecommendationService(generator ports.RecommendationGenerator, enricher *Enricher) *RecommendationService {
	return &RecommendationService{generator: generator, enricher: enricher}
}

// Candidates runs only the generator step and normalises its output.
func (s *RecommendationService) Candidates(ctx context.Context, req domain.AnalysisRequest) ([]domain.RecommendedPoint, error) {
	if !req.Center.Valid() {
		return nil, domain.ErrInvalidLocation
	}
	if req.RadiusM <= 0 {
		return nil, domain.ErrInvalidRadius
	}
	if req.MaxPoints <= 0 {
		req.MaxPoints = defaultMaxPoints
	}
	if req.Overlaps == nil {
		req.Overlaps = DetectOverlaps(EntitiesFromBusinesses(req.Businesses, 0))
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanGenerate)
	defer span.End()

	points, err := s.generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate recommendations: %w", err)
	}

	out := make([]domain.RecommendedPoint, 0, len(points))
	for _, p := range points {
		if !p.Location.Valid() {
			logging.FromContext(ctx).Warn("dropping recommendation with invalid location", "id", p.ID)
			continue
		}
		p.RiskScore = clampScore(p.RiskScore)
		p.DemographicFit.TargetMatch = clampScore(p.DemographicFit.TargetMatch)
		p.DemographicFit.CompetitionLevel = clampScore(p.DemographicFit.CompetitionLevel)
		p.DemographicFit.MarketPotential = clampScore(p.DemographicFit.MarketPotential)
		if p.NearestCompetitor.Name == "" {
			p.NearestCompetitor = NearestCompetitor(p.Location, req.Businesses)
		}
		p.Demographics = nil
		out = append(out, p)
		if len(out) == req.MaxPoints {
			break
		}
	}
	return out, nil
}

// Recommend generates candidates and attaches demographics to each one.
func (s *RecommendationService) Recommend(ctx context.Context, req domain.AnalysisRequest) ([]domain.RecommendedPoint, error) {
	points, err := s.Candidates(ctx, req)
	if err != nil {
		return nil, err
	}
	enriched := s.enricher.Enrich(ctx, points)
	metrics.RecommendationsGenerated.Add(float64(len(enriched)))
	return enriched, nil
}

// Enrich exposes the enricher for callers that already hold candidates.
func (s *RecommendationService) Enrich(ctx context.Context, points []domain.RecommendedPoint) []domain.RecommendedPoint {
	return s.enricher.Enrich(ctx, points)
}

// NearestCompetitor finds the closest business to p. It returns the zero
// value when there are no businesses.
func NearestCompetitor(p domain.GeoPoint, businesses []domain.Business) domain.NearestCompetitor {
	var nc domain.NearestCompetitor
	best := math.Inf(1)
	for _, b := range businesses {
		if d := geospatial.Distance(p, b.Location); d < best {
			best = d
			nc = domain.NearestCompetitor{DistanceM: d, Name: b.Name}
		}
	}
	return nc
}

func clampScore(v int) int {
	return min(100, max(0, v))
}
