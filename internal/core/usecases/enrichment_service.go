package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/pkg/logging"
	"github.com/samirrijal/gapfinder/internal/pkg/metrics"
	"github.com/samirrijal/gapfinder/internal/pkg/telemetry"
)

// Enricher attaches demographics to recommended points and businesses.
// Lookups run concurrently; one failed lookup never affects its siblings.
type Enricher struct {
	demographics  DemographicsFetcher
	maxGoroutines int
}

// NewEnricher creates a new Enricher. maxGoroutines <= 0 runs one lookup
// per element at once.
func NewEnricher(demographics DemographicsFetcher, maxGoroutines int) *Enricher {
	return &Enricher{demographics: demographics, maxGoroutines: maxGoroutines}
}

// Enrich returns a copy of points, in input order, with Demographics set on
// every element. The input slice is not modified.
func (e *Enricher) Enrich(ctx context.Context, points []domain.RecommendedPoint) []domain.RecommendedPoint {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanEnrich)
	defer span.End()
	start := time.Now()
	defer func() { metrics.EnrichmentDuration.Observe(time.Since(start).Seconds()) }()

	if len(points) == 0 {
		return []domain.RecommendedPoint{}
	}
	mapper := iter.Mapper[domain.RecommendedPoint, domain.RecommendedPoint]{MaxGoroutines: e.width(len(points))}
	return mapper.Map(points, func(p *domain.RecommendedPoint) domain.RecommendedPoint {
		out := *p
		out.SupportingBusinessNames = append([]string(nil), p.SupportingBusinessNames...)
		res := e.fetch(ctx, p.Location)
		out.Demographics = &res
		return out
	})
}

// EnrichBusinesses looks up demographics for each business location, in
// input order.
func (e *Enricher) EnrichBusinesses(ctx context.Context, businesses []domain.Business) []domain.BusinessDemographics {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanEnrich)
	defer span.End()

	if len(businesses) == 0 {
		return []domain.BusinessDemographics{}
	}
	mapper := iter.Mapper[domain.Business, domain.BusinessDemographics]{MaxGoroutines: e.width(len(businesses))}
	return mapper.Map(businesses, func(b *domain.Business) domain.BusinessDemographics {
		return domain.BusinessDemographics{BusinessID: b.ID, Demographics: e.fetch(ctx, b.Location)}
	})
}

func (e *Enricher) width(n int) int {
	if e.maxGoroutines <= 0 || e.maxGoroutines > n {
		return n
	}
	return e.maxGoroutines
}

// fetch isolates one lookup: a panicking fetcher becomes a failure on this
// element only.
func (e *Enricher) fetch(ctx context.Context, p domain.GeoPoint) (res domain.DemographicsResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("demographics lookup panicked", "key", DemographicsKey(p), "panic", r)
			res = domain.DemographicsFailed(domain.FailureNetwork, failureMessages[domain.FailureNetwork], fmt.Sprint(r))
		}
	}()

	res = e.demographics.Fetch(ctx, p)
	if !res.IsSet() {
		res = domain.DemographicsFailed(domain.FailureMalformed, failureMessages[domain.FailureMalformed], "empty lookup result")
	}
	return res
}
