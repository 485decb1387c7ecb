package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
)

// Activity names as registered on the worker.
const (
	ActivityGenerateCandidates = "GenerateCandidates"
	ActivityEnrichCandidates   = "EnrichCandidates"
)

// AnalysisActivities holds the activity implementations for the analysis workflow.
type AnalysisActivities struct {
	Recommendations *usecases.RecommendationService
}

// GenerateCandidates asks the analysis service for candidate locations.
// Invalid requests are not retried.
func (a *AnalysisActivities) GenerateCandidates(ctx context.Context, req domain.AnalysisRequest) ([]domain.RecommendedPoint, error) {
	points, err := a.Recommendations.Candidates(ctx, req)
	if errors.Is(err, domain.ErrInvalidLocation) || errors.Is(err, domain.ErrInvalidRadius) {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "invalid_request", err)
	}
	return points, err
}

// EnrichCandidates attaches demographics to every point. It never fails;
// per-point failures are carried on the points.
func (a *AnalysisActivities) EnrichCandidates(ctx context.Context, points []domain.RecommendedPoint) ([]domain.RecommendedPoint, error) {
	activity.GetLogger(ctx).Info("enriching candidates", "count", len(points))
	return a.Recommendations.Enrich(ctx, points), nil
}
