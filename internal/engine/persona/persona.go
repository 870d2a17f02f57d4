// internal/engine/persona/persona.go
package persona

import "decision-advisor/internal/models"

// ID identifies one advisory persona. The set is closed; unknown ids are
// rejected by ByID.
type ID string

const (
	Pragmatist ID = "pragmatist"
	Visionary  ID = "visionary"
	Skeptic    ID = "skeptic"
	Empath     ID = "empath"
)

// Lean is the provider a persona's questions are best served by.
type Lean string

const (
	LeanAnalytical  Lean = "analytical"
	LeanExploratory Lean = "exploratory"
)

// Persona describes one advisory voice used when generating follow-up
// questions and steering synthesis.
type Persona struct {
	ID           ID
	Name         string
	Lean         Lean
	PromptFlavor string
}

var registry = map[ID]Persona{
	Pragmatist: {
		ID:           Pragmatist,
		Name:         "The Pragmatist",
		Lean:         LeanAnalytical,
		PromptFlavor: "Focus on concrete constraints: money, time, reversibility, and what can be tested cheaply.",
	},
	Visionary: {
		ID:           Visionary,
		Name:         "The Visionary",
		Lean:         LeanExploratory,
		PromptFlavor: "Focus on long-term upside, identity, and what each option makes possible in five years.",
	},
	Skeptic: {
		ID:           Skeptic,
		Name:         "The Skeptic",
		Lean:         LeanAnalytical,
		PromptFlavor: "Probe hidden assumptions, failure modes, and what the person might be avoiding.",
	},
	Empath: {
		ID:           Empath,
		Name:         "The Empath",
		Lean:         LeanExploratory,
		PromptFlavor: "Focus on feelings, relationships, and which option the person would regret losing.",
	},
}

// ordering per decision type; the first persona leads the first round.
var byDecisionType = map[models.DecisionType][]ID{
	models.DecisionStructured: {Pragmatist, Skeptic, Visionary},
	models.DecisionIntuitive:  {Empath, Visionary, Skeptic},
	models.DecisionMixed:      {Pragmatist, Empath, Skeptic, Visionary},
}

// ByID returns the persona for a known id.
func ByID(id ID) (Persona, bool) {
	p, ok := registry[id]
	return p, ok
}

// ForDecisionType returns the ordered persona list consulted for a decision
// type. Unknown types get the mixed ordering.
func ForDecisionType(dt models.DecisionType) []Persona {
	ids, ok := byDecisionType[dt]
	if !ok {
		ids = byDecisionType[models.DecisionMixed]
	}
	out := make([]Persona, 0, len(ids))
	for _, id := range ids {
		out = append(out, registry[id])
	}
	return out
}

// All returns every registered persona in a stable order.
func All() []Persona {
	return []Persona{
		registry[Pragmatist],
		registry[Visionary],
		registry[Skeptic],
		registry[Empath],
	}
}
