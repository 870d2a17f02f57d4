// internal/engine/classifier/classifier.go
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/common/metrics"
	"decision-advisor/internal/engine/gateway"
	"decision-advisor/internal/engine/repair"
	"decision-advisor/internal/models"
)

var allowedLabels = []string{
	string(models.DecisionStructured),
	string(models.DecisionIntuitive),
	string(models.DecisionMixed),
}

// Classifier assigns a decision type to a question. It is total: when the
// cache misses and every provider fails, the lexical heuristic answers, so
// Classify never returns an error.
type Classifier struct {
	gateway *gateway.Gateway
	cache   Cache
	ttl     time.Duration
	logger  logger.Logger
}

func New(gw *gateway.Gateway, cache Cache, ttl time.Duration, log logger.Logger) *Classifier {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Classifier{
		gateway: gw,
		cache:   cache,
		ttl:     ttl,
		logger:  log.WithFields(map[string]interface{}{"component": "classifier"}),
	}
}

// Classify returns the decision type for a question: cache, then model, then
// lexical heuristic. Model results are cached; heuristic results are not, so
// a later call can upgrade once providers recover.
func (c *Classifier) Classify(ctx context.Context, question string) models.DecisionType {
	key := CacheKey(question)

	if cached, found, err := c.cache.Get(ctx, key); err == nil && found {
		if dt, ok := validLabel(cached); ok {
			return dt
		}
	} else if err != nil {
		c.logger.Warn("classification cache read failed", map[string]interface{}{"error": err.Error()})
	}

	if dt, ok := c.classifyByModel(ctx, question); ok {
		if err := c.cache.Set(ctx, key, string(dt), c.ttl); err != nil {
			c.logger.Warn("classification cache write failed", map[string]interface{}{"error": err.Error()})
		}
		return dt
	}

	metrics.FallbacksUsed.WithLabelValues("classifier", "lexical").Inc()
	return lexicalClassify(question)
}

func (c *Classifier) classifyByModel(ctx context.Context, question string) (models.DecisionType, bool) {
	prompt := fmt.Sprintf(
		"Classify the following decision question as exactly one of: structured, intuitive, mixed.\n"+
			"structured: the person weighs concrete options against measurable criteria.\n"+
			"intuitive: the person is working through feelings, values, or identity.\n"+
			"mixed: both apply.\n\n"+
			"Question: %s\n\nAnswer with the single label only.",
		question,
	)

	reply, err := c.gateway.Invoke(ctx, gateway.ProviderAnalytical, prompt, nil)
	if err != nil {
		return "", false
	}

	label, ok := repair.Label(reply.Text, allowedLabels)
	if !ok {
		c.logger.Warn("unusable classification reply", map[string]interface{}{
			"provider": string(reply.Provider),
		})
		return "", false
	}
	return models.DecisionType(label), true
}

func validLabel(s string) (models.DecisionType, bool) {
	switch models.DecisionType(s) {
	case models.DecisionStructured, models.DecisionIntuitive, models.DecisionMixed:
		return models.DecisionType(s), true
	}
	return "", false
}

var (
	structuredMarkers = []string{" or ", " vs ", " versus ", "compare", "better", "cheaper", "which one", "option"}
	intuitiveMarkers  = []string{"feel", "happy", "passion", "fulfill", "love", "heart", "regret", "meaning"}
)

// lexicalClassify is the last-resort keyword heuristic. Questions matching
// both marker sets are mixed, as is anything matching neither.
func lexicalClassify(question string) models.DecisionType {
	q := " " + strings.ToLower(question) + " "

	structured := containsAny(q, structuredMarkers)
	intuitive := containsAny(q, intuitiveMarkers)

	switch {
	case structured && intuitive:
		return models.DecisionMixed
	case structured:
		return models.DecisionStructured
	case intuitive:
		return models.DecisionIntuitive
	default:
		return models.DecisionMixed
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
