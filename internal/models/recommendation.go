package models

const (
	// DefaultConfidence is assigned when a model reply omits or mangles the
	// confidence score.
	DefaultConfidence = 60

	MinConfidence = 0
	MaxConfidence = 100
)

// ClampConfidence forces a confidence score into the allowed range and
// substitutes the default for the zero value.
func ClampConfidence(score int) int {
	if score == 0 {
		return DefaultConfidence
	}
	if score < MinConfidence {
		return MinConfidence
	}
	if score > MaxConfidence {
		return MaxConfidence
	}
	return score
}

// FollowupQuestion is one question posed to the user during the collecting
// phase.
type FollowupQuestion struct {
	Question string `json:"question"`
	Nudge    string `json:"nudge,omitempty"`
	Category string `json:"category,omitempty"`
	Persona  string `json:"persona,omitempty"`
}

// Trace explains how a recommendation was produced. Every recommendation
// carries one, including the static fallback.
type Trace struct {
	ModelsUsed        []string `json:"modelsUsed"`
	FrameworksUsed    []string `json:"frameworksUsed,omitempty"`
	Themes            []string `json:"themes,omitempty"`
	ConfidenceFactors []string `json:"confidenceFactors,omitempty"`
	PersonasConsulted []string `json:"personasConsulted,omitempty"`
	ProcessingTimeMS  int64    `json:"processingTimeMs"`
	Fallback          bool     `json:"fallback"`
}

// Recommendation is the final advisory output for a session.
type Recommendation struct {
	FinalRecommendation string   `json:"finalRecommendation"`
	NextSteps           []string `json:"nextSteps"`
	ConfidenceScore     int      `json:"confidenceScore"`
	ConfidenceRationale string   `json:"confidenceRationale,omitempty"`
	Reasoning           string   `json:"reasoning,omitempty"`
	Trace               Trace    `json:"trace"`
}

// TurnResult is what the engine returns for every accepted turn.
type TurnResult struct {
	SessionID         string             `json:"sessionId"`
	Phase             Phase              `json:"phase"`
	StepNumber        int                `json:"stepNumber"`
	NarrativeText     string             `json:"narrativeText,omitempty"`
	FollowupQuestions []FollowupQuestion `json:"followupQuestions,omitempty"`
	DecisionType      DecisionType       `json:"decisionType"`
	IsComplete        bool               `json:"isComplete"`
	Recommendation    *Recommendation    `json:"recommendation,omitempty"`
}
