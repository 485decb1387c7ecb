package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/gapfinder/internal/adapters/postgres"
	"github.com/samirrijal/gapfinder/internal/adapters/valkey"
	"github.com/samirrijal/gapfinder/internal/core/ports"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers. Infrastructure
// fields may be nil when the backing service is not configured.
type Dependencies struct {
	Demographics    usecases.DemographicsFetcher
	Recommendations *usecases.RecommendationService
	Searches        *usecases.SearchOrchestrator
	SearchLog       ports.SearchLogRepository
	NATS            *nats.Conn
	DB              *postgres.DB
	Cache           *valkey.Cache
}
