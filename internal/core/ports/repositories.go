package ports

import (
	"context"

	"github.com/samirrijal/gapfinder/internal/core/domain"
)

// SearchLogRepository persists search outcomes.
type SearchLogRepository interface {
	Record(ctx context.Context, entry *domain.SearchLogEntry) error
	Recent(ctx context.Context, limit int) ([]domain.SearchLogEntry, error)
}
