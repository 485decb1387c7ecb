package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/gapfinder/internal/core/domain"
)

// DefaultEnrichmentRetries is used when AnalysisInput.EnrichmentRetries is 0.
const DefaultEnrichmentRetries = 2

// AnalysisInput is the input for the analysis workflow.
type AnalysisInput struct {
	Request           domain.AnalysisRequest
	EnrichmentRetries int // rounds for transient demographics failures; negative disables
}

// AnalysisResult is the workflow output.
type AnalysisResult struct {
	Points            []domain.RecommendedPoint
	EnrichmentRetried int // points re-enriched after a transient failure
}

// AnalysisWorkflow generates candidate locations, enriches them with
// demographics, and re-enriches points whose lookup failed transiently.
// The enricher itself never retries, so retries live here.
func AnalysisWorkflow(ctx workflow.Context, input AnalysisInput) (AnalysisResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting analysis workflow", "businessType", input.Request.BusinessType)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Generate candidates
	var points []domain.RecommendedPoint
	if err := workflow.ExecuteActivity(ctx, ActivityGenerateCandidates, input.Request).Get(ctx, &points); err != nil {
		return AnalysisResult{}, err
	}

	// Step 2: Enrich
	if err := workflow.ExecuteActivity(ctx, ActivityEnrichCandidates, points).Get(ctx, &points); err != nil {
		return AnalysisResult{}, err
	}

	// Step 3: Re-enrich transient failures with a growing pause
	rounds := input.EnrichmentRetries
	if rounds == 0 {
		rounds = DefaultEnrichmentRetries
	}
	result := AnalysisResult{Points: points}

	for round := 1; round <= rounds; round++ {
		idx := transientFailures(result.Points)
		if len(idx) == 0 {
			break
		}
		if err := workflow.Sleep(ctx, time.Duration(round)*5*time.Second); err != nil {
			return result, err
		}

		retry := make([]domain.RecommendedPoint, len(idx))
		for i, j := range idx {
			retry[i] = result.Points[j]
		}
		var enriched []domain.RecommendedPoint
		if err := workflow.ExecuteActivity(ctx, ActivityEnrichCandidates, retry).Get(ctx, &enriched); err != nil {
			return result, err
		}
		for i, j := range idx {
			result.Points[j] = enriched[i]
		}
		result.EnrichmentRetried += len(idx)
		logger.Info("Re-enriched transient failures", "round", round, "points", len(idx))
	}

	logger.Info("Analysis complete", "points", len(result.Points))
	return result, nil
}

func transientFailures(points []domain.RecommendedPoint) []int {
	var idx []int
	for i, p := range points {
		if p.Demographics != nil && p.Demographics.Failure != nil && p.Demographics.Failure.Kind.Transient() {
			idx = append(idx, i)
		}
	}
	return idx
}
