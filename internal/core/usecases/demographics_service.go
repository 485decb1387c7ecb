package usecases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/ports"
	"github.com/samirrijal/gapfinder/internal/pkg/logging"
	"github.com/samirrijal/gapfinder/internal/pkg/metrics"
	"github.com/samirrijal/gapfinder/internal/pkg/telemetry"
)

// ACS 5-year detailed table variables requested for every tract.
const (
	fieldName       = "NAME"
	fieldPopulation = "B01003_001E"
	fieldIncome     = "B19013_001E"
	fieldHomeValue  = "B25077_001E"
)

// degreeFields are bachelor's, master's, professional and doctorate counts.
var degreeFields = []string{"B15003_022E", "B15003_023E", "B15003_024E", "B15003_025E"}

// DemographicsFields is the fixed field list sent to the statistics service.
var DemographicsFields = append([]string{fieldName, fieldPopulation, fieldIncome, fieldHomeValue}, degreeFields...)

var failureMessages = map[domain.FailureKind]string{
	domain.FailureNetwork:      "could not reach the census service",
	domain.FailureStatus:       "the census service returned an error",
	domain.FailureEmptyBody:    "the census service returned an empty response",
	domain.FailureMalformed:    "the census service returned an unreadable response",
	domain.FailureNoGeography:  "no census tract found for this location",
	domain.FailureNoStatistics: "no census statistics available for this tract",
	domain.FailureMissingField: "census statistics are missing required fields",
	domain.FailureCancelled:    "demographics lookup cancelled",
}

// DemographicsFetcher is what enrichment needs from the demographics lookup.
type DemographicsFetcher interface {
	Fetch(ctx context.Context, point domain.GeoPoint) domain.DemographicsResult
}

// DemographicsKey rounds a coordinate to ~11 m for in-flight dedupe.
func DemographicsKey(p domain.GeoPoint) string {
	return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lng)
}

// DemographicsService resolves a point to its census tract and fetches the
// tract's aggregates. Results are never cached; concurrent lookups for the
// same rounded coordinate share one request.
type DemographicsService struct {
	geo   ports.GeographyResolver
	stats ports.StatisticsProvider

	group   singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the shared context of one deduplicated lookup. It is cancelled
// once every waiter has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewDemographicsService creates a new DemographicsService.
func NewDemographicsService(geo ports.GeographyResolver, stats ports.StatisticsProvider) *DemographicsService {
	return &DemographicsService{geo: geo, stats: stats, flights: make(map[string]*flight)}
}

// Fetch never returns an error: every outcome is either a record or a
// classified failure. A cancelled ctx yields a cancelled failure.
func (s *DemographicsService) Fetch(ctx context.Context, point domain.GeoPoint) domain.DemographicsResult {
	if ctx.Err() != nil {
		return cancelledResult()
	}

	key := DemographicsKey(point)
	f := s.join(ctx, key)

	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.lookup(f.ctx, point), nil
	})

	select {
	case res := <-ch:
		s.leave(key, f)
		if ctx.Err() != nil {
			return cancelledResult()
		}
		return res.Val.(domain.DemographicsResult)
	case <-ctx.Done():
		s.leave(key, f)
		return cancelledResult()
	}
}

func (s *DemographicsService) join(ctx context.Context, key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.flights[key]
	if f == nil {
		f = &flight{}
		f.ctx, f.cancel = context.WithCancel(context.WithoutCancel(ctx))
		s.flights[key] = f
	}
	f.waiters++
	return f
}

func (s *DemographicsService) leave(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
	// A lookup abandoned by all waiters must not be joined by the next caller.
	s.group.Forget(key)
}

func (s *DemographicsService) lookup(ctx context.Context, point domain.GeoPoint) domain.DemographicsResult {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanDemographicsFetch)
	defer span.End()
	span.SetAttributes(
		attribute.Float64("geo.lat", point.Lat),
		attribute.Float64("geo.lng", point.Lng),
	)

	start := time.Now()
	res := s.resolve(ctx, point)
	metrics.DemographicsDuration.Observe(time.Since(start).Seconds())

	outcome := "ok"
	if res.Failure != nil {
		outcome = string(res.Failure.Kind)
		if !res.Failure.Cancelled() {
			span.SetStatus(codes.Error, res.Failure.Message)
			logging.FromContext(ctx).Warn("demographics lookup failed",
				"key", DemographicsKey(point),
				"kind", res.Failure.Kind,
				"detail", res.Failure.Detail,
			)
		}
	}
	metrics.DemographicsLookups.WithLabelValues(outcome).Inc()
	return res
}

func (s *DemographicsService) resolve(ctx context.Context, point domain.GeoPoint) domain.DemographicsResult {
	tract, err := s.geo.ResolveTract(ctx, point)
	if err != nil {
		return failureFrom(ctx, err)
	}

	table, err := s.stats.TractStatistics(ctx, tract, DemographicsFields)
	if err != nil {
		return failureFrom(ctx, err)
	}

	rec, err := ParseDemographics(table, tract)
	if err != nil {
		return failureFrom(ctx, err)
	}
	return domain.DemographicsOK(rec)
}

// ParseDemographics zips the statistics header with its data row by position
// and derives the record. Missing or negative numeric values count as 0.
func ParseDemographics(t ports.Table, tract ports.TractRef) (domain.DemographicsRecord, error) {
	if len(t.Header) == 0 || len(t.Row) == 0 {
		return domain.DemographicsRecord{}, domain.NewDemographicsError(domain.FailureNoStatistics, "statistics table has no data row", nil)
	}

	values := make(map[string]string, len(t.Header))
	for i, name := range t.Header {
		if i < len(t.Row) {
			values[name] = t.Row[i]
		}
	}

	popRaw, ok := values[fieldPopulation]
	if !ok {
		return domain.DemographicsRecord{}, domain.NewDemographicsError(domain.FailureMissingField,
			fmt.Sprintf("statistics response has no %s column", fieldPopulation), nil)
	}

	rec := domain.DemographicsRecord{
		Population:         parseCount(popRaw),
		MedianIncomeUSD:    parseCount(values[fieldIncome]),
		MedianHomeValueUSD: parseCount(values[fieldHomeValue]),
		TractName:          values[fieldName],
		StateFIPS:          tract.StateFIPS,
		CountyFIPS:         tract.CountyFIPS,
		TractFIPS:          tract.TractFIPS,
	}
	if rec.TractName == "" {
		rec.TractName = tract.Name
	}

	degrees := 0
	for _, f := range degreeFields {
		degrees += parseCount(values[f])
	}
	rec.CollegePercent = CollegePercent(degrees, rec.Population)

	return rec, nil
}

// CollegePercent is 100 × degreeHolders / population, or 0 for an empty tract.
func CollegePercent(degreeHolders, population int) float64 {
	if population <= 0 || degreeHolders <= 0 {
		return 0
	}
	return math.Min(100, 100*float64(degreeHolders)/float64(population))
}

func parseCount(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return max(n, 0)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || math.IsNaN(f) {
		return 0
	}
	return int(math.Round(f))
}

func failureFrom(ctx context.Context, err error) domain.DemographicsResult {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return cancelledResult()
	}
	kind := domain.DemographicsKind(err)
	return domain.DemographicsFailed(kind, failureMessages[kind], err.Error())
}

func cancelledResult() domain.DemographicsResult {
	return domain.DemographicsFailed(domain.FailureCancelled, failureMessages[domain.FailureCancelled], "")
}
