package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
)

const (
	maxOverlapEntities = 500
	maxEnrichPoints    = 50
	searchWait         = 30 * time.Second
)

type overlapsRequest struct {
	Entities []domain.CoverageEntity `json:"entities"`
}

type overlapsResponse struct {
	Overlaps []domain.OverlapResult `json:"overlaps"`
	Summary  domain.OverlapSummary  `json:"summary"`
}

// OverlapsHandler detects pairwise coverage overlaps in the posted entities.
func OverlapsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req overlapsRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Entities) > maxOverlapEntities {
			return errBadRequest(c, fmt.Sprintf("at most %d entities per request", maxOverlapEntities))
		}
		for i, e := range req.Entities {
			if !e.Location.Valid() {
				return errBadRequest(c, fmt.Sprintf("entity %d (%s) has an invalid location", i, e.ID))
			}
		}

		overlaps := usecases.DetectOverlaps(req.Entities)
		return c.JSON(overlapsResponse{
			Overlaps: overlaps,
			Summary:  usecases.SummarizeOverlaps(overlaps),
		})
	}
}

// demographicsResponse adds display strings to a successful lookup.
type demographicsResponse struct {
	domain.DemographicsResult
	IncomeDisplay    string `json:"income_display,omitempty"`
	HomeValueDisplay string `json:"home_value_display,omitempty"`
}

func newDemographicsResponse(r domain.DemographicsResult) demographicsResponse {
	resp := demographicsResponse{DemographicsResult: r}
	if r.OK() {
		resp.IncomeDisplay = r.Record.IncomeDisplay()
		resp.HomeValueDisplay = r.Record.HomeValueDisplay()
	}
	return resp
}

// DemographicsHandler returns census demographics for one point. A failed
// lookup is still a 200: the failure is part of the result.
func DemographicsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lng") == "" {
			return errBadRequest(c, "lat and lng are required")
		}
		p := domain.GeoPoint{Lat: c.QueryFloat("lat"), Lng: c.QueryFloat("lng")}
		if !p.Valid() {
			return errBadRequest(c, "lat must be within ±90 and lng within ±180")
		}

		res := deps.Demographics.Fetch(c.UserContext(), p)
		if res.Failure != nil && res.Failure.Cancelled() {
			c.Set(fiber.HeaderCacheControl, "no-store")
			return newError(c, fiber.StatusRequestTimeout, "timeout", res.Failure.Message)
		}
		if res.OK() {
			c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
		} else {
			// Failures are often transient; never let a cache replay one.
			c.Set(fiber.HeaderCacheControl, "no-store")
		}
		return c.JSON(newDemographicsResponse(res))
	}
}

type pointsPayload struct {
	Points []domain.RecommendedPoint `json:"points"`
}

// EnrichHandler attaches demographics to caller-supplied recommendations.
func EnrichHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req pointsPayload
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Points) > maxEnrichPoints {
			return errBadRequest(c, fmt.Sprintf("at most %d points per request", maxEnrichPoints))
		}

		return c.JSON(pointsPayload{Points: deps.Recommendations.Enrich(c.UserContext(), req.Points)})
	}
}

// RecommendHandler generates and enriches new candidate locations.
func RecommendHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req domain.AnalysisRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		points, err := deps.Recommendations.Recommend(c.UserContext(), req)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(pointsPayload{Points: points})
	}
}

// SearchHandler runs a search through the orchestrator and responds once the
// places results are ready. Enrichment continues in the background and is
// relayed over /ws. The orchestrator is process-wide, so a new search
// supersedes any in-flight one regardless of which client started it.
func SearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var criteria domain.SearchCriteria
		if err := c.BodyParser(&criteria); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		results := make(chan domain.SearchResults, 1)
		failed := make(chan error, 1)
		cancelled := make(chan struct{}, 1)
		cb := usecases.SearchCallbacks{
			OnResults: func(r domain.SearchResults) {
				select {
				case results <- r:
				default:
				}
			},
			OnError: func(_ string, err error) {
				select {
				case failed <- err:
				default:
				}
			},
			OnStateChange: func(_ string, s domain.SearchState) {
				if s == domain.SearchCancelled {
					select {
					case cancelled <- struct{}{}:
					default:
					}
				}
			},
		}

		h, err := deps.Searches.RunSearch(context.WithoutCancel(c.UserContext()), criteria, cb)
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set("X-Search-ID", h.ID)

		timer := time.NewTimer(searchWait)
		defer timer.Stop()

		select {
		case r := <-results:
			return c.JSON(r)
		case err := <-failed:
			return errFromDomain(c, err)
		case <-cancelled:
			return errFromDomain(c, domain.ErrSearchCancelled)
		case <-timer.C:
			h.Cancel()
			return newError(c, fiber.StatusGatewayTimeout, "timeout", "search did not finish in time")
		}
	}
}

// SearchStateHandler reports the orchestrator's current state.
func SearchStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-cache")
		return c.JSON(fiber.Map{"state": deps.Searches.State()})
	}
}

// RecentSearchesHandler lists the latest search log entries.
func RecentSearchesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.SearchLog == nil {
			return errUnavailable(c, "search log not configured")
		}
		limit := c.QueryInt("limit", 20)
		if limit <= 0 || limit > 100 {
			limit = 20
		}

		entries, err := deps.SearchLog.Recent(c.UserContext(), limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if entries == nil {
			entries = []domain.SearchLogEntry{}
		}
		return c.JSON(entries)
	}
}
