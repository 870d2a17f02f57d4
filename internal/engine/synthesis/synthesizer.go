// internal/engine/synthesis/synthesizer.go
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/common/metrics"
	"decision-advisor/internal/engine/gateway"
	"decision-advisor/internal/engine/repair"
	"decision-advisor/internal/models"
)

// modelReply is the JSON shape both providers are asked to return.
type modelReply struct {
	FinalRecommendation string   `json:"final_recommendation"`
	NextSteps           []string `json:"next_steps"`
	ConfidenceScore     int      `json:"confidence_score"`
	ConfidenceRationale string   `json:"confidence_rationale"`
	Reasoning           string   `json:"reasoning"`
	FrameworksUsed      []string `json:"frameworks_used"`
	Themes              []string `json:"themes"`
	ConfidenceFactors   []string `json:"confidence_factors"`
}

// Synthesizer produces the final recommendation for a session. It is total:
// when consensus, degraded single replies, and everything else fails, a
// static recommendation is returned instead of an error.
type Synthesizer struct {
	gateway          *gateway.Gateway
	consensusEnabled bool
	logger           logger.Logger
}

func New(gw *gateway.Gateway, consensusEnabled bool, log logger.Logger) *Synthesizer {
	return &Synthesizer{
		gateway:          gw,
		consensusEnabled: consensusEnabled,
		logger:           log.WithFields(map[string]interface{}{"component": "synthesis"}),
	}
}

// Recommend builds the recommendation for a session. Never returns nil.
func (s *Synthesizer) Recommend(ctx context.Context, session *models.DecisionSession) *models.Recommendation {
	started := time.Now()

	providers := s.gateway.Providers()
	var rec *models.Recommendation
	if s.consensusEnabled && len(providers) >= 2 {
		rec = s.consensus(ctx, session, providers)
	} else {
		rec = s.single(ctx, session)
	}

	if rec == nil {
		metrics.FallbacksUsed.WithLabelValues("synthesis", "static").Inc()
		rec = staticFallback(session)
	}

	rec.ConfidenceScore = models.ClampConfidence(rec.ConfidenceScore)
	rec.Trace.PersonasConsulted = session.Personas
	rec.Trace.ProcessingTimeMS = time.Since(started).Milliseconds()
	return rec
}

// single asks one provider and parses its structured reply.
func (s *Synthesizer) single(ctx context.Context, session *models.DecisionSession) *models.Recommendation {
	provider := gateway.ProviderAnalytical
	if session.DecisionType == models.DecisionIntuitive {
		provider = gateway.ProviderExploratory
	}

	reply, err := s.gateway.Invoke(ctx, provider, s.buildPrompt(session, steeringFor(provider)), nil)
	if err != nil {
		return nil
	}
	return s.parseReply(reply)
}

// consensus fans the prompt out to every enabled provider in parallel, then
// asks the analytical provider to reconcile the replies. A failed
// reconciliation degrades to the first parseable individual reply.
func (s *Synthesizer) consensus(ctx context.Context, session *models.DecisionSession, providers []gateway.ProviderID) *models.Recommendation {
	type outcome struct {
		reply *gateway.Reply
		err   error
	}

	outcomes := make([]outcome, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p gateway.ProviderID) {
			defer wg.Done()
			reply, err := s.gateway.InvokeDirect(ctx, p, s.buildPrompt(session, steeringFor(p)), nil)
			outcomes[i] = outcome{reply: reply, err: err}
		}(i, p)
	}
	wg.Wait()

	var replies []*gateway.Reply
	var modelsUsed []string
	for i, o := range outcomes {
		if o.err != nil {
			s.logger.Warn("consensus contributor failed", map[string]interface{}{
				"provider": string(providers[i]),
				"error":    o.err.Error(),
			})
			continue
		}
		replies = append(replies, o.reply)
		modelsUsed = append(modelsUsed, string(o.reply.Provider))
	}

	if len(replies) == 0 {
		return nil
	}

	if len(replies) == 1 {
		metrics.FallbacksUsed.WithLabelValues("synthesis", "degraded").Inc()
		return s.parseReply(replies[0])
	}

	if rec := s.reconcile(ctx, session, replies, modelsUsed); rec != nil {
		return rec
	}

	// reconciliation failed: take the first reply that parses
	metrics.FallbacksUsed.WithLabelValues("synthesis", "degraded").Inc()
	for _, reply := range replies {
		if rec := s.parseReply(reply); rec != nil {
			return rec
		}
	}
	return nil
}

func (s *Synthesizer) reconcile(ctx context.Context, session *models.DecisionSession, replies []*gateway.Reply, modelsUsed []string) *models.Recommendation {
	var parts []string
	parts = append(parts, "You are reconciling advisory drafts into one final recommendation.")
	parts = append(parts, fmt.Sprintf("\nDecision question: %s", session.Question))
	for _, reply := range replies {
		parts = append(parts, fmt.Sprintf("\nDraft from the %s advisor:\n%s", reply.Provider, reply.Text))
	}
	parts = append(parts, "\nMerge the drafts: keep points they agree on, resolve conflicts explicitly in the reasoning, and list the themes both raised.")
	parts = append(parts, jsonInstructions)

	reply, err := s.gateway.InvokeDirect(ctx, gateway.ProviderAnalytical, strings.Join(parts, "\n"), nil)
	if err != nil {
		s.logger.Warn("reconciliation call failed", map[string]interface{}{"error": err.Error()})
		return nil
	}

	rec := s.parseReply(reply)
	if rec == nil {
		return nil
	}
	rec.Trace.ModelsUsed = modelsUsed
	return rec
}

const jsonInstructions = `
Return JSON only:
{"final_recommendation":"...","next_steps":["..."],"confidence_score":0,"confidence_rationale":"...","reasoning":"...","frameworks_used":["..."],"themes":["..."],"confidence_factors":["..."]}`

func steeringFor(p gateway.ProviderID) string {
	if p == gateway.ProviderExploratory {
		return "Lean on values, feelings, and long-term identity. Name what the person seems drawn to."
	}
	return "Weigh the options against concrete criteria. Name the dominant constraint and the trade-off it forces."
}

func (s *Synthesizer) buildPrompt(session *models.DecisionSession, steering string) string {
	var parts []string

	parts = append(parts, "You are a decision advisor writing a final recommendation.")
	parts = append(parts, steering)
	parts = append(parts, fmt.Sprintf("\nDecision question: %s", session.Question))
	parts = append(parts, fmt.Sprintf("Decision style: %s", session.DecisionType))

	if len(session.Exchanges) > 0 {
		parts = append(parts, "\nWhat we learned:")
		for _, ex := range session.Exchanges {
			if ex.Answer == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("Q: %s", ex.Question))
			parts = append(parts, fmt.Sprintf("A: %s", ex.Answer))
		}
	}

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- Recommend one course of action and say why")
	parts = append(parts, "- Give 2 to 4 concrete next steps")
	parts = append(parts, "- Score your confidence from 0 to 100 and explain the score")
	parts = append(parts, jsonInstructions)

	return strings.Join(parts, "\n")
}

func (s *Synthesizer) parseReply(reply *gateway.Reply) *models.Recommendation {
	var parsed modelReply
	if err := repair.Decode(reply.Text, &parsed); err != nil {
		s.logger.Warn("unparseable synthesis reply", map[string]interface{}{
			"provider": string(reply.Provider),
		})
		return nil
	}
	if strings.TrimSpace(parsed.FinalRecommendation) == "" {
		return nil
	}

	return &models.Recommendation{
		FinalRecommendation: parsed.FinalRecommendation,
		NextSteps:           parsed.NextSteps,
		ConfidenceScore:     parsed.ConfidenceScore,
		ConfidenceRationale: parsed.ConfidenceRationale,
		Reasoning:           parsed.Reasoning,
		Trace: models.Trace{
			ModelsUsed:        []string{string(reply.Provider)},
			FrameworksUsed:    parsed.FrameworksUsed,
			Themes:            parsed.Themes,
			ConfidenceFactors: parsed.ConfidenceFactors,
		},
	}
}

// staticFallback is the tier of last resort. It always carries a trace so a
// reader can tell no model contributed.
func staticFallback(session *models.DecisionSession) *models.Recommendation {
	text := "We could not produce a tailored recommendation right now. Based on the conversation, write down your options, pick the constraint that matters most, and choose the option that best survives it."
	if session.DecisionType == models.DecisionIntuitive {
		text = "We could not produce a tailored recommendation right now. Based on the conversation, sit with each option for a day and notice which one you keep defending; that is usually your answer."
	}

	return &models.Recommendation{
		FinalRecommendation: text,
		NextSteps: []string{
			"List the options you are choosing between",
			"Name the single constraint or feeling that matters most",
			"Revisit this conversation once you have slept on it",
		},
		ConfidenceScore:     25,
		ConfidenceRationale: "No model provider was available; this is generic guidance.",
		Trace: models.Trace{
			ModelsUsed: []string{"fallback"},
			Fallback:   true,
		},
	}
}
