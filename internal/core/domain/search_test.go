package domain_test

import (
	"testing"

	"github.com/samirrijal/gapfinder/internal/core/domain"
)

func TestSearchState_Terminal(t *testing.T) {
	tests := []struct {
		state domain.SearchState
		want  bool
	}{
		{domain.SearchIdle, false},
		{domain.SearchSearching, false},
		{domain.SearchSucceeded, false},
		{domain.SearchQuotaCooldown, false},
		{domain.SearchEnrichmentComplete, true},
		{domain.SearchFailed, true},
		{domain.SearchCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestBoundsAround_ContainsCircle(t *testing.T) {
	center := domain.GeoPoint{Lat: 40.7128, Lng: -74.0060}
	b := domain.BoundsAround(center, 5000)

	if !(b.MinLat < center.Lat && center.Lat < b.MaxLat) {
		t.Errorf("lat %v not inside [%v, %v]", center.Lat, b.MinLat, b.MaxLat)
	}
	if !(b.MinLng < center.Lng && center.Lng < b.MaxLng) {
		t.Errorf("lng %v not inside [%v, %v]", center.Lng, b.MinLng, b.MaxLng)
	}
	// 5 km is about 0.045 degrees of latitude.
	if h := b.MaxLat - b.MinLat; h < 0.08 || h > 0.1 {
		t.Errorf("height = %v degrees, want about 0.09", h)
	}
}
