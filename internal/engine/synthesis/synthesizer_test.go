// internal/engine/synthesis/synthesizer_test.go
package synthesis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decision-advisor/internal/common/config"
	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/engine/gateway"
	"decision-advisor/internal/models"
)

func draft(recommendation string, confidence int) string {
	b, _ := json.Marshal(map[string]interface{}{
		"final_recommendation": recommendation,
		"next_steps":           []string{"step one", "step two"},
		"confidence_score":     confidence,
		"confidence_rationale": "solid answers",
		"reasoning":            "because",
		"themes":               []string{"money"},
	})
	return string(b)
}

// promptServer answers with reconciled when the incoming prompt is the
// reconciliation round, and with draftText otherwise.
func promptServer(t *testing.T, draftText, reconciled string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		prompt, _ := body["prompt"].(string)

		text := draftText
		if strings.Contains(prompt, "reconciling advisory drafts") {
			text = reconciled
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"text": text, "confidence": 0.9})
	}))
}

func gatewayWith(t *testing.T, analyticalURL, exploratoryURL string) *gateway.Gateway {
	t.Helper()
	cfg := config.ProvidersConfig{}
	if analyticalURL != "" {
		cfg.Analytical = config.ProviderConfig{Enabled: true, BaseURL: analyticalURL, Timeout: 5000}
	}
	if exploratoryURL != "" {
		cfg.Exploratory = config.ProviderConfig{Enabled: true, BaseURL: exploratoryURL, Timeout: 5000}
	}
	return gateway.New(cfg, logger.NewTestLogger(t))
}

func answeredSession() *models.DecisionSession {
	s := models.NewDecisionSession("user-1", "Should I take the offer or stay?")
	s.DecisionType = models.DecisionStructured
	s.Phase = models.PhaseReady
	s.Personas = []string{"pragmatist", "skeptic"}
	s.Exchanges = []models.QAExchange{
		{Step: 1, Question: "What matters most?", Answer: "stability"},
	}
	return s
}

func TestRecommendConsensus(t *testing.T) {
	ana := promptServer(t, draft("take the offer", 80), draft("take the offer, negotiate start date", 85))
	defer ana.Close()
	exp := promptServer(t, draft("follow your energy", 70), "")
	defer exp.Close()

	s := New(gatewayWith(t, ana.URL, exp.URL), true, logger.NewTestLogger(t))
	rec := s.Recommend(context.Background(), answeredSession())

	require.NotNil(t, rec)
	assert.Equal(t, "take the offer, negotiate start date", rec.FinalRecommendation)
	assert.Equal(t, 85, rec.ConfidenceScore)
	assert.ElementsMatch(t, []string{"analytical", "exploratory"}, rec.Trace.ModelsUsed)
	assert.Equal(t, []string{"pragmatist", "skeptic"}, rec.Trace.PersonasConsulted)
	assert.False(t, rec.Trace.Fallback)
}

func TestRecommendSingleProvider(t *testing.T) {
	ana := promptServer(t, draft("stay put", 65), "")
	defer ana.Close()

	s := New(gatewayWith(t, ana.URL, ""), true, logger.NewTestLogger(t))
	rec := s.Recommend(context.Background(), answeredSession())

	require.NotNil(t, rec)
	assert.Equal(t, "stay put", rec.FinalRecommendation)
	assert.Equal(t, []string{"analytical"}, rec.Trace.ModelsUsed)
	assert.False(t, rec.Trace.Fallback)
}

func TestRecommendDegradedWhenOneContributorFails(t *testing.T) {
	ana := promptServer(t, draft("take the offer", 75), "")
	defer ana.Close()
	exp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer exp.Close()

	s := New(gatewayWith(t, ana.URL, exp.URL), true, logger.NewTestLogger(t))
	rec := s.Recommend(context.Background(), answeredSession())

	require.NotNil(t, rec)
	assert.Equal(t, "take the offer", rec.FinalRecommendation)
	assert.Equal(t, []string{"analytical"}, rec.Trace.ModelsUsed)
	assert.False(t, rec.Trace.Fallback)
}

func TestRecommendDegradedWhenReconcileUnparseable(t *testing.T) {
	ana := promptServer(t, draft("first parseable draft", 70), "sorry, I cannot merge these")
	defer ana.Close()
	exp := promptServer(t, draft("second draft", 60), "")
	defer exp.Close()

	s := New(gatewayWith(t, ana.URL, exp.URL), true, logger.NewTestLogger(t))
	rec := s.Recommend(context.Background(), answeredSession())

	require.NotNil(t, rec)
	assert.Equal(t, "first parseable draft", rec.FinalRecommendation)
	assert.False(t, rec.Trace.Fallback)
}

func TestRecommendStaticFallbackNeverFails(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	s := New(gatewayWith(t, down.URL, down.URL), true, logger.NewTestLogger(t))

	for i := 0; i < 3; i++ {
		rec := s.Recommend(context.Background(), answeredSession())
		require.NotNil(t, rec)
		assert.True(t, rec.Trace.Fallback)
		assert.Equal(t, []string{"fallback"}, rec.Trace.ModelsUsed)
		assert.NotEmpty(t, rec.FinalRecommendation)
		assert.NotEmpty(t, rec.NextSteps)
		assert.GreaterOrEqual(t, rec.ConfidenceScore, models.MinConfidence)
		assert.LessOrEqual(t, rec.ConfidenceScore, models.MaxConfidence)
	}
}

func TestRecommendClampsConfidence(t *testing.T) {
	tests := []struct {
		name     string
		reported int
		expected int
	}{
		{"above range", 150, 100},
		{"missing defaults", 0, models.DefaultConfidence},
		{"negative", -5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ana := promptServer(t, draft("do the thing", tt.reported), "")
			defer ana.Close()

			s := New(gatewayWith(t, ana.URL, ""), false, logger.NewTestLogger(t))
			rec := s.Recommend(context.Background(), answeredSession())
			assert.Equal(t, tt.expected, rec.ConfidenceScore)
		})
	}
}
