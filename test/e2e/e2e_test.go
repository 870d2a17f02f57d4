// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decision-advisor/internal/common/config"
	"decision-advisor/internal/common/database"
	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/engine/classifier"
	"decision-advisor/internal/engine/conversation"
	"decision-advisor/internal/engine/followup"
	"decision-advisor/internal/engine/gateway"
	"decision-advisor/internal/engine/synthesis"
	"decision-advisor/internal/models"
	"decision-advisor/internal/store"
)

// The suite needs running Postgres, Redis, and provider endpoints, all taken
// from the regular config. Set E2E_TESTS=1 to run it.
func requireE2E(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("E2E_TESTS") == "" {
		t.Skip("E2E_TESTS not set, skipping")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestFullConversationAgainstRealServices(t *testing.T) {
	cfg := requireE2E(t)
	log := logger.NewTestLogger(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	defer pg.Close()
	require.NoError(t, pg.Ping(ctx))

	redisClient, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err)
	defer redisClient.Close()
	require.NoError(t, redisClient.Ping(ctx))

	gw := gateway.New(cfg.Providers, log)
	cls := classifier.New(gw, classifier.NewRedisCache(redisClient.Client),
		time.Duration(cfg.Engine.ClassificationTTL)*time.Second, log)
	machine := conversation.New(
		cls,
		followup.New(gw, log),
		synthesis.New(gw, cfg.Engine.ConsensusEnabled, log),
		store.NewPostgresStore(pg.DB, log),
		cfg.Engine,
		log,
	)

	result, err := machine.Advance(ctx, &conversation.TurnRequest{
		UserID:  "e2e-user",
		Phase:   conversation.PhaseInitial,
		Message: "Should I rent an office or keep working from home?",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionID)
	require.NotEmpty(t, result.FollowupQuestions)
	sessionID := result.SessionID

	answers := []string{
		"The office would cost about 800 a month.",
		"I miss having colleagues around.",
		"I could decide within a month.",
	}
	for _, answer := range answers {
		result, err = machine.Advance(ctx, &conversation.TurnRequest{
			SessionID: sessionID,
			UserID:    "e2e-user",
			Phase:     conversation.PhaseFollowup,
			Message:   answer,
		})
		require.NoError(t, err)
		if result.Phase == models.PhaseReady {
			break
		}
	}

	result, err = machine.Advance(ctx, &conversation.TurnRequest{
		SessionID: sessionID,
		UserID:    "e2e-user",
		Phase:     conversation.PhaseRecommendation,
	})
	require.NoError(t, err)
	require.True(t, result.IsComplete)
	require.NotNil(t, result.Recommendation)
	assert.NotEmpty(t, result.Recommendation.FinalRecommendation)
	assert.NotEmpty(t, result.Recommendation.Trace.ModelsUsed)
}
