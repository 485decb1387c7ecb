package domain

import "errors"

// SearchState is a step in the lifecycle of one user-triggered search.
type SearchState string

const (
	SearchIdle               SearchState = "idle"
	SearchSearching          SearchState = "searching"
	SearchSucceeded          SearchState = "succeeded"
	SearchEnrichmentComplete SearchState = "enrichment_complete"
	SearchFailed             SearchState = "failed"
	SearchCancelled          SearchState = "cancelled"
	SearchQuotaCooldown      SearchState = "quota_cooldown"
)

// Terminal reports whether no further transitions happen for this search
// (QuotaCooldown still returns to Idle on its own).
func (s SearchState) Terminal() bool {
	switch s {
	case SearchEnrichmentComplete, SearchFailed, SearchCancelled:
		return true
	}
	return false
}

var (
	// ErrQuotaExhausted is reported by the places provider when the API quota is used up.
	ErrQuotaExhausted = errors.New("places quota exhausted")
	// ErrSearchSuppressed is returned for searches requested during quota cooldown.
	ErrSearchSuppressed = errors.New("search suppressed during quota cooldown")
	// ErrSearchCancelled marks a search superseded or cancelled by the caller.
	ErrSearchCancelled = errors.New("search cancelled")
	// ErrInvalidRadius rejects non-positive or oversized search radii.
	ErrInvalidRadius = errors.New("invalid radius")
	// ErrInvalidLocation rejects out-of-range coordinates.
	ErrInvalidLocation = errors.New("invalid location")
)
