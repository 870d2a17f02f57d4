// internal/engine/gateway/gateway.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"decision-advisor/internal/common/config"
	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/common/metrics"
)

// ProviderID names one configured model provider.
type ProviderID string

const (
	ProviderAnalytical  ProviderID = "analytical"
	ProviderExploratory ProviderID = "exploratory"
)

var (
	ErrProviderUnavailable   = errors.New("PROVIDER_UNAVAILABLE")
	ErrAllProvidersExhausted = errors.New("ALL_PROVIDERS_EXHAUSTED")
)

// Reply is one raw model answer. Confidence is the provider's own 0.0-1.0
// self-estimate, already normalized; the synthesizer works with its own
// 0-100 scale parsed out of Text.
type Reply struct {
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	Provider   ProviderID `json:"provider"`
}

// Gateway routes prompts to the configured providers. A failed call falls
// over to the other enabled provider exactly once; two failures surface
// ErrAllProvidersExhausted and the caller picks a degraded tier.
type Gateway struct {
	cfg    config.ProvidersConfig
	client *http.Client
	logger logger.Logger
}

func New(cfg config.ProvidersConfig, log logger.Logger) *Gateway {
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"component": "gateway"}),
	}
}

// Providers returns the enabled provider ids, analytical first.
func (g *Gateway) Providers() []ProviderID {
	var out []ProviderID
	if g.cfg.Analytical.Enabled {
		out = append(out, ProviderAnalytical)
	}
	if g.cfg.Exploratory.Enabled {
		out = append(out, ProviderExploratory)
	}
	return out
}

// Enabled reports whether a provider is configured and switched on.
func (g *Gateway) Enabled(p ProviderID) bool {
	return g.providerConfig(p).Enabled
}

func (g *Gateway) providerConfig(p ProviderID) config.ProviderConfig {
	if p == ProviderExploratory {
		return g.cfg.Exploratory
	}
	return g.cfg.Analytical
}

func other(p ProviderID) ProviderID {
	if p == ProviderAnalytical {
		return ProviderExploratory
	}
	return ProviderAnalytical
}

// Invoke sends a prompt to the requested provider, falling back to the other
// enabled provider on failure. The attempt order is fixed and there is at
// most one fallback hop per call.
func (g *Gateway) Invoke(ctx context.Context, p ProviderID, prompt string, promptContext map[string]interface{}) (*Reply, error) {
	attempts := []ProviderID{}
	if g.Enabled(p) {
		attempts = append(attempts, p)
	}
	if alt := other(p); g.Enabled(alt) {
		attempts = append(attempts, alt)
	}
	if len(attempts) == 0 {
		return nil, fmt.Errorf("%w: no provider enabled", ErrAllProvidersExhausted)
	}

	var lastErr error
	for i, attempt := range attempts {
		reply, err := g.call(ctx, attempt, prompt, promptContext)
		if err == nil {
			metrics.ProviderCalls.WithLabelValues(string(attempt), "success").Inc()
			if i > 0 {
				g.logger.Warn("provider fallback used", map[string]interface{}{
					"requested": string(p),
					"served":    string(attempt),
				})
			}
			return reply, nil
		}

		metrics.ProviderCalls.WithLabelValues(string(attempt), "error").Inc()
		g.logger.Warn("provider call failed", map[string]interface{}{
			"provider": string(attempt),
			"error":    err.Error(),
		})
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrAllProvidersExhausted, lastErr)
}

// InvokeDirect sends a prompt to exactly one provider with no fallback hop.
// The consensus fan-out uses it so each provider contributes at most one
// reply.
func (g *Gateway) InvokeDirect(ctx context.Context, p ProviderID, prompt string, promptContext map[string]interface{}) (*Reply, error) {
	if !g.Enabled(p) {
		return nil, fmt.Errorf("%w: provider %s disabled", ErrProviderUnavailable, p)
	}
	reply, err := g.call(ctx, p, prompt, promptContext)
	if err != nil {
		metrics.ProviderCalls.WithLabelValues(string(p), "error").Inc()
		return nil, err
	}
	metrics.ProviderCalls.WithLabelValues(string(p), "success").Inc()
	return reply, nil
}

func (g *Gateway) call(ctx context.Context, p ProviderID, prompt string, promptContext map[string]interface{}) (*Reply, error) {
	pc := g.providerConfig(p)

	timeout := time.Duration(pc.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	requestBody := map[string]interface{}{
		"prompt":      prompt,
		"context":     promptContext,
		"model":       pc.Model,
		"max_tokens":  g.cfg.MaxTokens,
		"temperature": g.cfg.Temperature,
	}

	body, _ := json.Marshal(requestBody)
	req, err := http.NewRequestWithContext(callCtx, "POST", pc.BaseURL+"/api/ai/generate", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if pc.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+pc.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var apiResponse struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrProviderUnavailable, err)
	}

	if strings.TrimSpace(apiResponse.Text) == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrProviderUnavailable)
	}
	if apiResponse.Confidence < 0.0 || apiResponse.Confidence > 1.0 {
		apiResponse.Confidence = 0.5
	}

	return &Reply{
		Text:       apiResponse.Text,
		Confidence: apiResponse.Confidence,
		Provider:   p,
	}, nil
}
