package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/gapfinder/internal/core/domain"
)

const maxRecent = 100

// SearchLogRepo implements ports.SearchLogRepository with pgx.
type SearchLogRepo struct {
	db *DB
}

// NewSearchLogRepo creates a new SearchLogRepo.
func NewSearchLogRepo(db *DB) *SearchLogRepo {
	return &SearchLogRepo{db: db}
}

// Record upserts the final state of a search. A search that is cancelled
// after it was logged keeps its latest state.
func (r *SearchLogRepo) Record(ctx context.Context, e *domain.SearchLogEntry) error {
	c := e.Criteria
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO search_log (id, center_lat, center_lng, radius_m, coverage_m, place_type, keyword,
		                        state, business_count, overlap_count, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, business_count = EXCLUDED.business_count,
		    overlap_count = EXCLUDED.overlap_count, error = EXCLUDED.error
	`, e.ID, c.Center.Lat, c.Center.Lng, c.RadiusM, c.CoverageRadiusM, c.Type, c.Keyword,
		string(e.State), e.BusinessCount, e.OverlapCount, e.Error, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert search log: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (r *SearchLogRepo) Recent(ctx context.Context, limit int) ([]domain.SearchLogEntry, error) {
	if limit <= 0 || limit > maxRecent {
		limit = 20
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, center_lat, center_lng, radius_m, coverage_m, place_type, keyword,
		       state, business_count, overlap_count, error, created_at
		FROM search_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query search log: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SearchLogEntry, error) {
		var e domain.SearchLogEntry
		var state string
		err := row.Scan(&e.ID, &e.Criteria.Center.Lat, &e.Criteria.Center.Lng, &e.Criteria.RadiusM,
			&e.Criteria.CoverageRadiusM, &e.Criteria.Type, &e.Criteria.Keyword,
			&state, &e.BusinessCount, &e.OverlapCount, &e.Error, &e.CreatedAt)
		e.State = domain.SearchState(state)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan search log: %w", err)
	}
	return entries, nil
}
