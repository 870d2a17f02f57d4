// internal/engine/classifier/classifier_test.go
package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decision-advisor/internal/common/config"
	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/engine/gateway"
	"decision-advisor/internal/models"
)

func modelServer(t *testing.T, label string, calls *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":       label,
			"confidence": 0.9,
		})
	}))
}

func gatewayFor(t *testing.T, baseURL string) *gateway.Gateway {
	t.Helper()
	cfg := config.ProvidersConfig{
		Analytical: config.ProviderConfig{Enabled: true, BaseURL: baseURL, Timeout: 5000},
	}
	return gateway.New(cfg, logger.NewTestLogger(t))
}

func TestClassifyUsesModelAndCaches(t *testing.T) {
	var calls int64
	srv := modelServer(t, "This is a STRUCTURED decision.", &calls)
	defer srv.Close()

	c := New(gatewayFor(t, srv.URL), NewMemoryCache(), time.Hour, logger.NewTestLogger(t))

	dt := c.Classify(context.Background(), "Should I lease or buy a car?")
	assert.Equal(t, models.DecisionStructured, dt)
	assert.Equal(t, int64(1), calls)

	// same question again: served from cache, no second provider call
	dt = c.Classify(context.Background(), "Should I lease or buy a car?")
	assert.Equal(t, models.DecisionStructured, dt)
	assert.Equal(t, int64(1), calls)
}

func TestClassifyNormalizesCacheKey(t *testing.T) {
	var calls int64
	srv := modelServer(t, "intuitive", &calls)
	defer srv.Close()

	c := New(gatewayFor(t, srv.URL), NewMemoryCache(), time.Hour, logger.NewTestLogger(t))

	first := c.Classify(context.Background(), "Should I move abroad?")
	second := c.Classify(context.Background(), "  should i MOVE   abroad??  ")
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls)
}

func TestClassifyHeuristicWhenProvidersDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(gatewayFor(t, srv.URL), NewMemoryCache(), time.Hour, logger.NewTestLogger(t))

	tests := []struct {
		question string
		expected models.DecisionType
	}{
		{"Should I buy the Honda or the Toyota?", models.DecisionStructured},
		{"Would this job make me happy?", models.DecisionIntuitive},
		{"Should I take the new role?", models.DecisionMixed},
		{"Which option would I love more?", models.DecisionMixed},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(context.Background(), tt.question))
		})
	}
}

func TestClassifyUnusableReplyFallsToHeuristic(t *testing.T) {
	var calls int64
	srv := modelServer(t, "I am not sure what kind of decision that is.", &calls)
	defer srv.Close()

	c := New(gatewayFor(t, srv.URL), NewMemoryCache(), time.Hour, logger.NewTestLogger(t))

	dt := c.Classify(context.Background(), "Should I pick the red one or the blue one?")
	assert.Equal(t, models.DecisionStructured, dt)
}

func TestHeuristicResultNotCached(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"text": "intuitive", "confidence": 0.9})
	}))
	defer srv.Close()

	c := New(gatewayFor(t, srv.URL), NewMemoryCache(), time.Hour, logger.NewTestLogger(t))

	// first call: provider down, heuristic says mixed
	dt := c.Classify(context.Background(), "Should I change careers?")
	assert.Equal(t, models.DecisionMixed, dt)

	// second call: provider recovered, model answer wins
	dt = c.Classify(context.Background(), "Should I change careers?")
	assert.Equal(t, models.DecisionIntuitive, dt)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	_, found, err := cache.Get(ctx, "cls:missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "cls:abc", "structured", time.Minute))

	val, found, err := cache.Get(ctx, "cls:abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "structured", val)

	mr.FastForward(2 * time.Minute)
	_, found, err = cache.Get(ctx, "cls:abc")
	require.NoError(t, err)
	assert.False(t, found, "entry expires after its TTL")
}

func TestCacheKeyStability(t *testing.T) {
	assert.Equal(t, CacheKey("Should I move?"), CacheKey("should i move"))
	assert.NotEqual(t, CacheKey("Should I move?"), CacheKey("Should I stay?"))
}
