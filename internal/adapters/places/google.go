// Package places looks up nearby businesses through the Google Places API.
package places

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/pkg/readiness"
	"github.com/samirrijal/gapfinder/internal/pkg/telemetry"
)

// MaxResults is the number of places a single nearby search returns.
const MaxResults = 20

// maxRadius is the largest radius the nearby endpoint accepts.
const maxRadius = 50000

var ErrMissingAPIKey = errors.New("places api key not configured")

// Client implements ports.PlacesProvider.
type Client struct {
	maps *readiness.Loader[*maps.Client]
}

// New creates a Client. The underlying maps client is built on first use so
// a missing key only fails searches, not startup. Extra options such as
// maps.WithBaseURL are passed through.
func New(apiKey string, opts ...maps.ClientOption) *Client {
	return &Client{
		maps: readiness.NewLoader(func(context.Context) (*maps.Client, error) {
			if apiKey == "" {
				return nil, ErrMissingAPIKey
			}
			return maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
		}),
	}
}

// Nearby returns up to MaxResults businesses around the search center.
func (c *Client) Nearby(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Business, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanPlacesNearby)
	defer span.End()

	client, err := c.maps.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("places client: %w", err)
	}

	req := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: criteria.Center.Lat, Lng: criteria.Center.Lng},
		Radius:   uint(math.Min(math.Round(criteria.RadiusM), maxRadius)),
		Keyword:  criteria.Keyword,
	}
	if criteria.Type != "" {
		req.Type = maps.PlaceType(criteria.Type)
	}

	resp, err := client.NearbySearch(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isQuotaError(err) {
			return nil, fmt.Errorf("nearby search: %w", domain.ErrQuotaExhausted)
		}
		return nil, fmt.Errorf("nearby search: %w", err)
	}

	return toBusinesses(resp.Results), nil
}

// isQuotaError matches the status strings the maps client embeds in its errors.
func isQuotaError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "OVER_QUERY_LIMIT") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func toBusinesses(results []maps.PlacesSearchResult) []domain.Business {
	n := len(results)
	if n > MaxResults {
		n = MaxResults
	}

	out := make([]domain.Business, 0, n)
	for _, r := range results[:n] {
		b := domain.Business{
			ID:               r.PlaceID,
			Name:             r.Name,
			Location:         domain.GeoPoint{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
			Address:          r.Vicinity,
			UserRatingsTotal: r.UserRatingsTotal,
			Categories:       r.Types,
		}
		if b.Address == "" {
			b.Address = r.FormattedAddress
		}
		if r.UserRatingsTotal > 0 || r.Rating > 0 {
			rating := float64(r.Rating)
			b.Rating = &rating
		}
		out = append(out, b)
	}
	return out
}
