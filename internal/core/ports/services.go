package ports

import (
	"context"

	"github.com/samirrijal/gapfinder/internal/core/domain"
)

// PlacesProvider looks up businesses around a point (at most 20 per call).
// Quota exhaustion must be reported as domain.ErrQuotaExhausted.
type PlacesProvider interface {
	Nearby(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Business, error)
}

// TractRef identifies a census tract by its hierarchical area codes.
type TractRef struct {
	StateFIPS  string `json:"state"`
	CountyFIPS string `json:"county"`
	TractFIPS  string `json:"tract"`
	Name       string `json:"name,omitempty"`
}

// GeographyResolver maps a coordinate to the census tract containing it.
type GeographyResolver interface {
	ResolveTract(ctx context.Context, point domain.GeoPoint) (TractRef, error)
}

// Table is a header row plus one data row, aligned by position.
type Table struct {
	Header []string
	Row    []string
}

// StatisticsProvider returns aggregate statistics for a tract.
type StatisticsProvider interface {
	TractStatistics(ctx context.Context, tract TractRef, fields []string) (Table, error)
}

// RecommendationGenerator is the external analysis service. Returned points
// never carry Demographics.
type RecommendationGenerator interface {
	Generate(ctx context.Context, req domain.AnalysisRequest) ([]domain.RecommendedPoint, error)
}

// EventPublisher publishes search lifecycle events to a message broker.
type EventPublisher interface {
	PublishSearchEvent(ctx context.Context, event *domain.SearchEvent) error
}

// EventSubscriber subscribes to search lifecycle events.
type EventSubscriber interface {
	SubscribeSearchEvents(ctx context.Context, handler func(ctx context.Context, event *domain.SearchEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
