package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/gapfinder/internal/adapters/openai"
	"github.com/samirrijal/gapfinder/internal/core/domain"
)

const reply = `{"points":[
  {"lat":40.72,"lng":-74.01,"risk_score":72,"reasoning":"gap between two clusters",
   "demographic_fit":{"target_match":80,"competition_level":30,"market_potential":65},
   "nearest_competitor":{"distance_m":850,"name":"Cafe One"},
   "supporting_business_names":["Gym A","Office Park"]},
  {"lat":40.70,"lng":-74.00,"risk_score":40.6,"reasoning":"near transit"}
]}`

func TestParsePoints(t *testing.T) {
	pts, err := openai.ParsePoints("```json\n" + reply + "\n```")
	require.NoError(t, err)
	require.Len(t, pts, 2)

	p := pts[0]
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, domain.GeoPoint{Lat: 40.72, Lng: -74.01}, p.Location)
	assert.Equal(t, 72, p.RiskScore)
	assert.Equal(t, domain.DemographicFit{TargetMatch: 80, CompetitionLevel: 30, MarketPotential: 65}, p.DemographicFit)
	assert.Equal(t, "Cafe One", p.NearestCompetitor.Name)
	assert.Equal(t, []string{"Gym A", "Office Park"}, p.SupportingBusinessNames)
	assert.Nil(t, p.Demographics)

	assert.Equal(t, 40, pts[1].RiskScore)
	assert.NotNil(t, pts[1].SupportingBusinessNames)
	assert.NotEqual(t, pts[0].ID, pts[1].ID)
}

func TestParsePoints_Invalid(t *testing.T) {
	_, err := openai.ParsePoints("I could not find any gaps.")
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req goopenai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "Cafe One")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(goopenai.ChatCompletionResponse{
			Choices: []goopenai.ChatCompletionChoice{{
				Message: goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: reply},
			}},
		})
	}))
	defer srv.Close()

	cfg := goopenai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	r := openai.NewWithConfig(cfg, "gpt-test")

	pts, err := r.Generate(context.Background(), domain.AnalysisRequest{
		BusinessType: "cafe",
		Center:       domain.GeoPoint{Lat: 40.71, Lng: -74.0},
		RadiusM:      2000,
		MaxPoints:    3,
		Businesses:   []domain.Business{{ID: "c1", Name: "Cafe One", Location: domain.GeoPoint{Lat: 40.71, Lng: -74.0}}},
	})
	require.NoError(t, err)
	assert.Len(t, pts, 2)
}

func TestGenerate_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	cfg := goopenai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"

	_, err := openai.NewWithConfig(cfg, "").Generate(context.Background(), domain.AnalysisRequest{MaxPoints: 1})
	assert.ErrorIs(t, err, openai.ErrEmptyResponse)
}
