// internal/engine/followup/generator.go
package followup

import (
	"context"
	"fmt"
	"strings"

	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/common/metrics"
	"decision-advisor/internal/engine/gateway"
	"decision-advisor/internal/engine/persona"
	"decision-advisor/internal/engine/repair"
	"decision-advisor/internal/models"
)

// Result is one round of generated follow-up questions. Sufficient is the
// model's signal that it already has enough context to recommend; it is only
// ever true on the structured tier, and only once at least one answer is on
// record. Questions is never empty.
type Result struct {
	Questions  []models.FollowupQuestion
	Sufficient bool
}

// Generator produces the next round of follow-up questions for a session.
// It is total: a canned question set backs the model tiers, so Generate
// never returns an empty question list and never errors.
type Generator struct {
	gateway *gateway.Gateway
	logger  logger.Logger
}

func New(gw *gateway.Gateway, log logger.Logger) *Generator {
	return &Generator{
		gateway: gw,
		logger:  log.WithFields(map[string]interface{}{"component": "followup"}),
	}
}

// Generate returns up to count follow-up questions the session has not seen
// verbatim before.
func (g *Generator) Generate(ctx context.Context, session *models.DecisionSession, count int) *Result {
	if count < 1 {
		count = 1
	}

	p := personaForRound(session)

	reply, err := g.gateway.Invoke(ctx, providerFor(session.DecisionType), g.buildPrompt(session, p, count), nil)
	if err == nil {
		if result, ok := g.parseStructured(session, p, reply.Text, count); ok {
			if len(result.Questions) == 0 {
				// sufficient with no proposals; callers that ask anyway
				// still need a question behind the signal
				metrics.FallbacksUsed.WithLabelValues("followup", "canned").Inc()
				result.Questions = g.canned(session, p, count)
			}
			return result
		}
		if questions := g.parseLines(session, p, reply.Text, count); len(questions) > 0 {
			metrics.FallbacksUsed.WithLabelValues("followup", "lines").Inc()
			return &Result{Questions: questions}
		}
	}

	metrics.FallbacksUsed.WithLabelValues("followup", "canned").Inc()
	return &Result{Questions: g.canned(session, p, count)}
}

func providerFor(dt models.DecisionType) gateway.ProviderID {
	if dt == models.DecisionIntuitive {
		return gateway.ProviderExploratory
	}
	return gateway.ProviderAnalytical
}

// personaForRound rotates through the decision type's persona ordering, one
// persona per asked round.
func personaForRound(session *models.DecisionSession) persona.Persona {
	personas := persona.ForDecisionType(session.DecisionType)
	return personas[len(session.Exchanges)%len(personas)]
}

func (g *Generator) buildPrompt(session *models.DecisionSession, p persona.Persona, count int) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("You are %s, an advisor helping someone work through a decision.", p.Name))
	parts = append(parts, p.PromptFlavor)
	parts = append(parts, fmt.Sprintf("\nDecision question: %s", session.Question))

	if len(session.Exchanges) > 0 {
		parts = append(parts, "\nConversation so far:")
		for _, ex := range session.Exchanges {
			parts = append(parts, fmt.Sprintf("Q: %s", ex.Question))
			if ex.Answer != "" {
				parts = append(parts, fmt.Sprintf("A: %s", ex.Answer))
			}
		}
	}

	parts = append(parts, "\nInstructions:")
	parts = append(parts, fmt.Sprintf("- Propose up to %d new follow-up questions that have not been asked yet", count))
	parts = append(parts, "- Each question gets a short nudge explaining why it matters")
	parts = append(parts, `- Set "sufficient" to true only if the answers above already support a confident recommendation`)
	parts = append(parts, "\nReturn JSON only:")
	parts = append(parts, `{"questions":[{"question":"...","nudge":"...","category":"..."}],"sufficient":false}`)

	return strings.Join(parts, "\n")
}

func (g *Generator) parseStructured(session *models.DecisionSession, p persona.Persona, raw string, count int) (*Result, bool) {
	var parsed struct {
		Questions []struct {
			Question string `json:"question"`
			Nudge    string `json:"nudge"`
			Category string `json:"category"`
		} `json:"questions"`
		Sufficient bool `json:"sufficient"`
	}
	if err := repair.Decode(raw, &parsed); err != nil {
		return nil, false
	}

	var questions []models.FollowupQuestion
	for _, q := range parsed.Questions {
		text := strings.TrimSpace(q.Question)
		if text == "" || session.HasAsked(text) {
			continue
		}
		questions = append(questions, models.FollowupQuestion{
			Question: text,
			Nudge:    q.Nudge,
			Category: q.Category,
			Persona:  string(p.ID),
		})
		if len(questions) == count {
			break
		}
	}

	// sufficiency needs at least one answered exchange behind it; a first
	// turn can never be sufficient
	sufficient := parsed.Sufficient && session.AnsweredRounds() > 0
	if len(questions) == 0 && !sufficient {
		// parsed but empty: let a lower tier try
		return nil, false
	}
	return &Result{Questions: questions, Sufficient: sufficient}, true
}

func (g *Generator) parseLines(session *models.DecisionSession, p persona.Persona, raw string, count int) []models.FollowupQuestion {
	var questions []models.FollowupQuestion
	for _, line := range repair.QuestionLines(raw) {
		if session.HasAsked(line) {
			continue
		}
		questions = append(questions, models.FollowupQuestion{
			Question: line,
			Persona:  string(p.ID),
		})
		if len(questions) == count {
			break
		}
	}
	return questions
}

var cannedByType = map[models.DecisionType][]models.FollowupQuestion{
	models.DecisionStructured: {
		{Question: "What are the two or three options you are actually choosing between?", Nudge: "Naming the options keeps the comparison honest.", Category: "options"},
		{Question: "What measurable constraint matters most here, like cost, time, or risk?", Nudge: "One dominant constraint usually decides a structured choice.", Category: "constraints"},
		{Question: "What would make you rule an option out immediately?", Nudge: "Dealbreakers shrink the decision fast.", Category: "dealbreakers"},
	},
	models.DecisionIntuitive: {
		{Question: "When you imagine having already decided, which outcome feels lighter?", Nudge: "Your first reaction carries real information.", Category: "feelings"},
		{Question: "What are you most afraid of losing with this decision?", Nudge: "Fear of loss often drives intuitive choices more than upside.", Category: "fears"},
		{Question: "Who in your life is affected, and how do they feel about it?", Nudge: "Relationships shape how a choice sits with you long term.", Category: "relationships"},
	},
	models.DecisionMixed: {
		{Question: "What does the practical side of you say, and what does your gut say?", Nudge: "Splitting the two voices shows where they disagree.", Category: "perspective"},
		{Question: "What is the real deadline for this decision?", Nudge: "Urgency changes how much exploring you can afford.", Category: "timing"},
		{Question: "What would you advise a close friend in exactly your situation?", Nudge: "Distance makes trade-offs easier to see.", Category: "framing"},
	},
}

func (g *Generator) canned(session *models.DecisionSession, p persona.Persona, count int) []models.FollowupQuestion {
	pool := cannedByType[session.DecisionType]
	if pool == nil {
		pool = cannedByType[models.DecisionMixed]
	}

	var questions []models.FollowupQuestion
	for _, q := range pool {
		if session.HasAsked(q.Question) {
			continue
		}
		q.Persona = string(p.ID)
		questions = append(questions, q)
		if len(questions) == count {
			break
		}
	}

	if len(questions) == 0 {
		// every canned question was already used; ask a generic closer that
		// is made unique by the round number
		text := "Is there anything else about this decision we have not covered?"
		if session.HasAsked(text) {
			text = fmt.Sprintf("After %d rounds, what still feels unresolved about this decision?", session.AnsweredRounds())
		}
		questions = append(questions, models.FollowupQuestion{
			Question: text,
			Persona:  string(p.ID),
		})
	}
	return questions
}
