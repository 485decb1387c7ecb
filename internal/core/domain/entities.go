package domain

import (
	"time"
)

// Business is a place returned by the places lookup.
type Business struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Location         GeoPoint `json:"location"`
	Address          string   `json:"address,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	UserRatingsTotal int      `json:"user_ratings_total,omitempty"`
	Categories       []string `json:"categories,omitempty"`
}

// CoverageEntity is a point with a service-coverage radius in meters.
type CoverageEntity struct {
	ID       string   `json:"id"`
	Location GeoPoint `json:"location"`
	Radius   float64  `json:"radius"`
}

// EffectiveRadius returns the radius, falling back to DefaultCoverageRadius
// when it is unspecified.
func (e CoverageEntity) EffectiveRadius() float64 {
	if e.Radius <= 0 {
		return DefaultCoverageRadius
	}
	return e.Radius
}

// OverlapResult describes one overlapping unordered pair of entities.
type OverlapResult struct {
	IDA               string  `json:"id_a"`
	IDB               string  `json:"id_b"`
	Distance          float64 `json:"distance"`
	OverlapAreaSqM    float64 `json:"overlap_area_sq_m"`
	OverlapPercentage float64 `json:"overlap_percentage"` // relative to the smaller circle
}

// OverlapSummary aggregates a set of overlap results.
type OverlapSummary struct {
	Pairs             int     `json:"pairs"`
	MaxPercentage     float64 `json:"max_percentage"`
	MeanPercentage    float64 `json:"mean_percentage"`
	MostOverlappedID  string  `json:"most_overlapped_id,omitempty"`
	MostOverlappedCnt int     `json:"most_overlapped_count,omitempty"`
}

// DemographicFit scores how well a location matches the target market.
type DemographicFit struct {
	TargetMatch      int `json:"target_match"`
	CompetitionLevel int `json:"competition_level"`
	MarketPotential  int `json:"market_potential"`
}

// NearestCompetitor is the closest existing business to a recommended point.
type NearestCompetitor struct {
	DistanceM float64 `json:"distance_m"`
	Name      string  `json:"name"`
}

// RecommendedPoint is a candidate location produced by the analysis service.
// Only the enricher writes Demographics; all other fields are read-only.
type RecommendedPoint struct {
	ID                      string              `json:"id"`
	Location                GeoPoint            `json:"location"`
	RiskScore               int                 `json:"risk_score"` // Tortoise Level: 0 high risk, 100 steady
	Reasoning               string              `json:"reasoning"`
	DemographicFit          DemographicFit      `json:"demographic_fit"`
	NearestCompetitor       NearestCompetitor   `json:"nearest_competitor"`
	SupportingBusinessNames []string            `json:"supporting_business_names"`
	Demographics            *DemographicsResult `json:"demographics,omitempty"`
}

// AnalysisRequest is the context handed to the recommendation generator.
type AnalysisRequest struct {
	BusinessType string              `json:"business_type"`
	Center       GeoPoint            `json:"center"`
	RadiusM      float64             `json:"radius_m"`
	Businesses   []Business          `json:"businesses"`
	Overlaps     []OverlapResult     `json:"overlaps,omitempty"`
	Demographics *DemographicsResult `json:"demographics,omitempty"`
	MaxPoints    int                 `json:"max_points,omitempty"`
}

// HeatmapPoint is a weighted location for heatmap rendering.
type HeatmapPoint struct {
	Location GeoPoint `json:"location"`
	Weight   float64  `json:"weight"`
}

// SearchCriteria describes one user-triggered business search.
type SearchCriteria struct {
	Center          GeoPoint `json:"center"`
	RadiusM         float64  `json:"radius_m"`
	Type            string   `json:"type,omitempty"`
	Keyword         string   `json:"keyword,omitempty"`
	CoverageRadiusM float64  `json:"coverage_radius_m,omitempty"`
}

// SearchResults is delivered once the places lookup and overlap detection finish.
type SearchResults struct {
	SearchID   string          `json:"search_id"`
	Criteria   SearchCriteria  `json:"criteria"`
	Businesses []Business      `json:"businesses"`
	Overlaps   []OverlapResult `json:"overlaps"`
	Heatmap    []HeatmapPoint  `json:"heatmap"`
	Bounds     Bounds          `json:"bounds"` // viewport covering the search circle
	FromCache  bool            `json:"from_cache"`
	ReadyAt    time.Time       `json:"ready_at"`
}

// BusinessDemographics pairs a business with its enrichment outcome.
type BusinessDemographics struct {
	BusinessID   string             `json:"business_id"`
	Demographics DemographicsResult `json:"demographics"`
}

// SearchLogEntry records the outcome of one search.
type SearchLogEntry struct {
	ID            string         `json:"id"`
	Criteria      SearchCriteria `json:"criteria"`
	State         SearchState    `json:"state"`
	BusinessCount int            `json:"business_count"`
	OverlapCount  int            `json:"overlap_count"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// SearchEvent is published whenever a search changes state or produces data.
type SearchEvent struct {
	SearchID     string                 `json:"search_id"`
	State        SearchState            `json:"state"`
	Results      *SearchResults         `json:"results,omitempty"`
	Demographics []BusinessDemographics `json:"demographics,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Time         time.Time              `json:"time"`
}
