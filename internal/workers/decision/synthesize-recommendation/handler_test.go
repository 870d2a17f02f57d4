// internal/workers/decision/synthesize-recommendation/handler_test.go
package synthesizerecommendation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "decision-advisor/internal/common/errors"
	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/engine/conversation"
	"decision-advisor/internal/entitlement"
	"decision-advisor/internal/models"
)

type fakeEngine struct {
	calls   int
	result  *models.TurnResult
	err     error
	lastReq *conversation.TurnRequest
}

func (f *fakeEngine) Advance(_ context.Context, req *conversation.TurnRequest) (*models.TurnResult, error) {
	f.calls++
	f.lastReq = req
	return f.result, f.err
}

type fakeEntitlements struct {
	decision *entitlement.Decision
	err      error
}

func (f *fakeEntitlements) MayProceed(_ context.Context, _, _ string) (*entitlement.Decision, error) {
	return f.decision, f.err
}

type fakeStore struct{}

func (f *fakeStore) Load(_ context.Context, _ string) (*models.DecisionSession, error) {
	return nil, models.ErrSessionNotFound
}
func (f *fakeStore) Save(_ context.Context, _ *models.DecisionSession) error { return nil }

type fakeNotifier struct{}

func (f *fakeNotifier) RecommendationReady(_ context.Context, _ *models.DecisionSession, _ *models.Recommendation) {
}

func TestExecuteForcesRecommendationPhase(t *testing.T) {
	engine := &fakeEngine{result: &models.TurnResult{
		SessionID:  "sess-1",
		Phase:      models.PhaseComplete,
		IsComplete: true,
		Recommendation: &models.Recommendation{
			FinalRecommendation: "take the offer",
			ConfidenceScore:     70,
		},
	}}
	h := NewHandler(LoadConfig(), engine, allowAll(), &fakeStore{}, &fakeNotifier{}, logger.NewTestLogger(t))

	result, err := h.Execute(context.Background(), &Input{SessionID: "sess-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.True(t, result.IsComplete)
	assert.Equal(t, conversation.PhaseRecommendation, engine.lastReq.Phase)
	assert.Equal(t, "sess-1", engine.lastReq.SessionID)
}

func TestExecutePassesThroughInvalidTurn(t *testing.T) {
	engine := &fakeEngine{err: errs.NewInvalidTurnError("at least one answered question is required before a recommendation")}
	h := NewHandler(LoadConfig(), engine, allowAll(), &fakeStore{}, &fakeNotifier{}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{SessionID: "sess-1"})

	var se *errs.StandardError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errs.ErrCodeInvalidTurn, se.Code)
}

func TestExecuteEntitlementDeniedShortCircuits(t *testing.T) {
	engine := &fakeEngine{}
	h := NewHandler(LoadConfig(), engine, &fakeEntitlements{
		decision: &entitlement.Decision{Allowed: false, Reason: "entitlement has expired"},
	}, &fakeStore{}, &fakeNotifier{}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{SessionID: "sess-1", UserID: "user-1"})

	var se *errs.StandardError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errs.ErrCodeEntitlementDenied, se.Code)
	assert.Zero(t, engine.calls, "denied turns never reach the engine")
}

func allowAll() *fakeEntitlements {
	return &fakeEntitlements{decision: &entitlement.Decision{Allowed: true, Tier: "basic"}}
}
