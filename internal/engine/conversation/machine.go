// internal/engine/conversation/machine.go
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"decision-advisor/internal/common/config"
	errs "decision-advisor/internal/common/errors"
	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/common/metrics"
	"decision-advisor/internal/engine/followup"
	"decision-advisor/internal/engine/persona"
	"decision-advisor/internal/models"
)

// Request phases. These name the caller's intent, not the session's state.
const (
	PhaseInitial        = "initial"
	PhaseFollowup       = "followup"
	PhaseRecommendation = "recommendation"
	PhaseGoDeeper       = "go_deeper"
)

// TurnRequest is one inbound conversation turn.
type TurnRequest struct {
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	Phase      string `json:"phase"`
	Message    string `json:"message"`
	StepNumber int    `json:"stepNumber"`
}

// Classifier assigns a decision type to the opening question.
type Classifier interface {
	Classify(ctx context.Context, question string) models.DecisionType
}

// Generator produces the next round of follow-up questions.
type Generator interface {
	Generate(ctx context.Context, session *models.DecisionSession, count int) *followup.Result
}

// Synthesizer produces the final recommendation.
type Synthesizer interface {
	Recommend(ctx context.Context, session *models.DecisionSession) *models.Recommendation
}

// Machine is the conversation state machine. It owns every session mutation:
// a turn either commits the full updated session or leaves it untouched.
type Machine struct {
	classifier        Classifier
	generator         Generator
	synthesizer       Synthesizer
	store             models.SessionStore
	maxRounds         int
	questionsPerRound int
	logger            logger.Logger
	now               func() time.Time
}

func New(c Classifier, g Generator, s Synthesizer, store models.SessionStore, cfg config.EngineConfig, log logger.Logger) *Machine {
	maxRounds := cfg.MaxQuestionRounds
	if maxRounds < 1 {
		maxRounds = 3
	}
	perRound := cfg.QuestionsPerRound
	if perRound < 1 {
		perRound = 1
	}
	return &Machine{
		classifier:        c,
		generator:         g,
		synthesizer:       s,
		store:             store,
		maxRounds:         maxRounds,
		questionsPerRound: perRound,
		logger:            log.WithFields(map[string]interface{}{"component": "conversation"}),
		now:               time.Now,
	}
}

// Advance processes one turn. The only rejection it surfaces for a loaded
// session is the invalid-turn error; provider trouble is absorbed by the
// collaborators' fallback tiers.
func (m *Machine) Advance(ctx context.Context, req *TurnRequest) (*models.TurnResult, error) {
	started := m.now()
	phase := req.Phase

	var result *models.TurnResult
	var err error
	switch phase {
	case PhaseInitial:
		result, err = m.initial(ctx, req)
	case PhaseFollowup:
		result, err = m.followup(ctx, req)
	case PhaseRecommendation:
		result, err = m.recommendation(ctx, req)
	case PhaseGoDeeper:
		result, err = m.goDeeper(ctx, req)
	default:
		err = errs.NewInvalidTurnError(fmt.Sprintf("unknown phase %q", phase))
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.TurnsProcessed.WithLabelValues(phase, outcome).Inc()
	metrics.TurnDuration.WithLabelValues(phase).Observe(time.Since(started).Seconds())
	return result, err
}

func (m *Machine) initial(ctx context.Context, req *TurnRequest) (*models.TurnResult, error) {
	if req.Message == "" {
		return nil, errs.NewInvalidTurnError("initial turn requires a message")
	}

	session := models.NewDecisionSession(req.UserID, req.Message)
	session.DecisionType = m.classifier.Classify(ctx, req.Message)
	for _, p := range persona.ForDecisionType(session.DecisionType) {
		session.Personas = append(session.Personas, string(p.ID))
	}

	round := m.generator.Generate(ctx, session, m.questionsPerRound)
	m.askQuestions(session, round.Questions)
	session.Phase = models.PhaseCollecting
	session.Step = 1

	if err := m.commit(ctx, session); err != nil {
		return nil, err
	}

	m.logger.Info("session started", map[string]interface{}{
		"sessionId":    session.ID,
		"decisionType": string(session.DecisionType),
	})

	return &models.TurnResult{
		SessionID:         session.ID,
		Phase:             session.Phase,
		StepNumber:        session.Step,
		NarrativeText:     "Let's work through this together. A few questions first.",
		FollowupQuestions: round.Questions,
		DecisionType:      session.DecisionType,
	}, nil
}

func (m *Machine) followup(ctx context.Context, req *TurnRequest) (*models.TurnResult, error) {
	session, err := m.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	if session.Phase != models.PhaseCollecting {
		return nil, errs.NewInvalidTurnError(fmt.Sprintf("followup not allowed in phase %q", session.Phase))
	}
	if req.Message == "" {
		return nil, errs.NewInvalidTurnError("followup turn requires an answer")
	}

	working := session.Clone()
	pending := working.PendingExchange()
	if pending == nil {
		return nil, errs.NewInvalidTurnError("no question is awaiting an answer")
	}
	pending.Answer = req.Message
	pending.AnsweredAt = m.now().UTC()

	// a deepened session gets exactly one more answered round before it is
	// ready again, regardless of the cap
	if working.Deepened() || working.AnsweredRounds() >= m.maxRounds {
		working.Phase = models.PhaseReady
		if err := m.commit(ctx, working); err != nil {
			return nil, err
		}
		return m.readyResult(working), nil
	}

	round := m.generator.Generate(ctx, working, m.questionsPerRound)
	if round.Sufficient {
		working.Phase = models.PhaseReady
		if err := m.commit(ctx, working); err != nil {
			return nil, err
		}
		return m.readyResult(working), nil
	}

	m.askQuestions(working, round.Questions)
	working.Step++

	if err := m.commit(ctx, working); err != nil {
		return nil, err
	}

	return &models.TurnResult{
		SessionID:         working.ID,
		Phase:             working.Phase,
		StepNumber:        working.Step,
		FollowupQuestions: round.Questions,
		DecisionType:      working.DecisionType,
	}, nil
}

func (m *Machine) recommendation(ctx context.Context, req *TurnRequest) (*models.TurnResult, error) {
	session, err := m.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	switch session.Phase {
	case models.PhaseReady:
	case models.PhaseCollecting:
		if session.AnsweredRounds() == 0 {
			return nil, errs.NewInvalidTurnError("at least one answered question is required before a recommendation")
		}
	default:
		return nil, errs.NewInvalidTurnError(fmt.Sprintf("recommendation not allowed in phase %q", session.Phase))
	}

	working := session.Clone()
	rec := m.synthesizer.Recommend(ctx, working)
	working.Phase = models.PhaseComplete

	if err := m.commit(ctx, working); err != nil {
		return nil, err
	}

	m.logger.Info("recommendation produced", map[string]interface{}{
		"sessionId":  working.ID,
		"confidence": rec.ConfidenceScore,
		"fallback":   rec.Trace.Fallback,
	})

	return &models.TurnResult{
		SessionID:      working.ID,
		Phase:          working.Phase,
		StepNumber:     working.Step,
		DecisionType:   working.DecisionType,
		IsComplete:     true,
		Recommendation: rec,
	}, nil
}

func (m *Machine) goDeeper(ctx context.Context, req *TurnRequest) (*models.TurnResult, error) {
	session, err := m.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	if session.Phase != models.PhaseComplete {
		return nil, errs.NewInvalidTurnError("go deeper is only available after a recommendation")
	}
	if session.Deepened() {
		return nil, errs.NewInvalidTurnError("this session has already gone deeper once")
	}

	working := session.Clone()
	working.DeepenedAt = m.now().UTC()
	working.Phase = models.PhaseCollecting

	round := m.generator.Generate(ctx, working, m.questionsPerRound)
	m.askQuestions(working, round.Questions)
	working.Step++

	if err := m.commit(ctx, working); err != nil {
		return nil, err
	}

	return &models.TurnResult{
		SessionID:         working.ID,
		Phase:             working.Phase,
		StepNumber:        working.Step,
		NarrativeText:     "Let's dig a little deeper before revisiting the recommendation.",
		FollowupQuestions: round.Questions,
		DecisionType:      working.DecisionType,
	}, nil
}

func (m *Machine) askQuestions(session *models.DecisionSession, questions []models.FollowupQuestion) {
	for _, q := range questions {
		session.Exchanges = append(session.Exchanges, models.QAExchange{
			Step:     session.Step + 1,
			Question: q.Question,
			Nudge:    q.Nudge,
			Category: q.Category,
			Persona:  q.Persona,
		})
	}
}

func (m *Machine) readyResult(session *models.DecisionSession) *models.TurnResult {
	return &models.TurnResult{
		SessionID:     session.ID,
		Phase:         session.Phase,
		StepNumber:    session.Step,
		NarrativeText: "I have enough context now. Ask for the recommendation whenever you are ready.",
		DecisionType:  session.DecisionType,
	}
}

func (m *Machine) load(ctx context.Context, sessionID string) (*models.DecisionSession, error) {
	if sessionID == "" {
		return nil, errs.NewInvalidTurnError("sessionId is required")
	}
	session, err := m.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, errs.NewSessionNotFoundError(sessionID)
		}
		return nil, errs.NewSessionLoadFailedError(err)
	}
	return session, nil
}

// commit persists the fully updated session. A cancelled context aborts the
// turn before anything is written.
func (m *Machine) commit(ctx context.Context, session *models.DecisionSession) error {
	if err := ctx.Err(); err != nil {
		return errs.NewSessionSaveFailedError(err)
	}
	session.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, session); err != nil {
		return errs.NewSessionSaveFailedError(err)
	}
	return nil
}
