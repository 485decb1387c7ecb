// Package census resolves coordinates to census tracts and fetches
// American Community Survey aggregates for them.
package census

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/samirrijal/gapfinder/internal/core/domain"
)

// Config configures a Client.
type Config struct {
	GeocoderURL string // .../geocoder/geographies/coordinates
	StatsURL    string // .../data
	APIKey      string
	Year        int
	Timeout     time.Duration
}

// Client implements ports.GeographyResolver and ports.StatisticsProvider.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a new Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Year == 0 {
		cfg.Year = 2022
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// get performs a GET and classifies transport, status and empty-body failures.
func (c *Client) get(ctx context.Context, base string, q url.Values) ([]byte, int, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, 0, fmt.Errorf("parse url: %w", err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, domain.NewDemographicsError(domain.FailureNetwork, "census request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, domain.NewDemographicsError(domain.FailureNetwork, "read census response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, domain.NewDemographicsError(domain.FailureStatus,
			fmt.Sprintf("census service returned HTTP %d", resp.StatusCode), nil)
	}
	return body, resp.StatusCode, nil
}
