// Package openai generates placement recommendations with a chat model.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
)

var ErrEmptyResponse = errors.New("model returned no content")

const systemPrompt = `You are a retail site-selection analyst. Given a business type, a search area, ` +
	`the existing competitors and how their coverage areas overlap, propose new locations ` +
	`that sit in coverage gaps. Reply with a JSON object of the form ` +
	`{"points":[{"lat":0,"lng":0,"risk_score":0,"reasoning":"","demographic_fit":{"target_match":0,` +
	`"competition_level":0,"market_potential":0},"nearest_competitor":{"distance_m":0,"name":""},` +
	`"supporting_business_names":[]}]}. risk_score is 0 for high risk and 100 for a steady, low-risk site. ` +
	`All scores are integers from 0 to 100.`

// Recommender implements ports.RecommendationGenerator.
type Recommender struct {
	client *openai.Client
	model  string
}

// New creates a Recommender against the public API.
func New(apiKey, model string) *Recommender {
	return NewWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewWithConfig allows overriding the base URL and HTTP client.
func NewWithConfig(cfg openai.ClientConfig, model string) *Recommender {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Recommender{client: openai.NewClientWithConfig(cfg), model: model}
}

// Generate asks the model for up to req.MaxPoints candidate locations.
func (r *Recommender) Generate(ctx context.Context, req domain.AnalysisRequest) ([]domain.RecommendedPoint, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	return ParsePoints(resp.Choices[0].Message.Content)
}

type promptContext struct {
	BusinessType string                     `json:"business_type"`
	Center       domain.GeoPoint            `json:"center"`
	RadiusM      float64                    `json:"radius_m"`
	MaxPoints    int                        `json:"max_points"`
	Competitors  []promptBusiness           `json:"competitors"`
	Overlaps     []domain.OverlapResult     `json:"overlaps"`
	Summary      domain.OverlapSummary      `json:"overlap_summary"`
	Demographics *domain.DemographicsRecord `json:"area_demographics,omitempty"`
}

type promptBusiness struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Location domain.GeoPoint `json:"location"`
	Rating   *float64        `json:"rating,omitempty"`
}

func buildPrompt(req domain.AnalysisRequest) (string, error) {
	pc := promptContext{
		BusinessType: req.BusinessType,
		Center:       req.Center,
		RadiusM:      req.RadiusM,
		MaxPoints:    req.MaxPoints,
		Competitors:  make([]promptBusiness, len(req.Businesses)),
		Overlaps:     req.Overlaps,
		Summary:      usecases.SummarizeOverlaps(req.Overlaps),
	}
	for i, b := range req.Businesses {
		pc.Competitors[i] = promptBusiness{ID: b.ID, Name: b.Name, Location: b.Location, Rating: b.Rating}
	}
	if req.Demographics != nil && req.Demographics.OK() {
		pc.Demographics = req.Demographics.Record
	}

	b, err := json.Marshal(pc)
	if err != nil {
		return "", fmt.Errorf("marshal prompt context: %w", err)
	}
	return fmt.Sprintf("Suggest at most %d new %s locations for this area:\n%s", req.MaxPoints, req.BusinessType, b), nil
}

type wirePoint struct {
	Lat                     float64                  `json:"lat"`
	Lng                     float64                  `json:"lng"`
	RiskScore               float64                  `json:"risk_score"`
	Reasoning               string                   `json:"reasoning"`
	DemographicFit          map[string]float64       `json:"demographic_fit"`
	NearestCompetitor       domain.NearestCompetitor `json:"nearest_competitor"`
	SupportingBusinessNames []string                 `json:"supporting_business_names"`
}

// ParsePoints decodes the model's JSON reply. Code fences around the object
// are tolerated. Each point gets a fresh ID.
func ParsePoints(content string) ([]domain.RecommendedPoint, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var reply struct {
		Points []wirePoint `json:"points"`
	}
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}

	out := make([]domain.RecommendedPoint, len(reply.Points))
	for i, w := range reply.Points {
		names := w.SupportingBusinessNames
		if names == nil {
			names = []string{}
		}
		out[i] = domain.RecommendedPoint{
			ID:        uuid.NewString(),
			Location:  domain.GeoPoint{Lat: w.Lat, Lng: w.Lng},
			RiskScore: int(w.RiskScore),
			Reasoning: w.Reasoning,
			DemographicFit: domain.DemographicFit{
				TargetMatch:      int(w.DemographicFit["target_match"]),
				CompetitionLevel: int(w.DemographicFit["competition_level"]),
				MarketPotential:  int(w.DemographicFit["market_potential"]),
			},
			NearestCompetitor:       w.NearestCompetitor,
			SupportingBusinessNames: names,
		}
	}
	return out, nil
}
