package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned by SessionStore.Load for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// DecisionType is the reasoning style assigned to a session. It is set
// exactly once when the session is created and never changes afterwards.
type DecisionType string

const (
	DecisionStructured DecisionType = "structured"
	DecisionIntuitive  DecisionType = "intuitive"
	DecisionMixed      DecisionType = "mixed"
)

// Phase is the conversation state a session is currently in.
type Phase string

const (
	PhaseNew        Phase = "new"
	PhaseCollecting Phase = "collecting"
	PhaseReady      Phase = "ready_for_recommendation"
	PhaseComplete   Phase = "complete"
)

// QAExchange is one question/answer pair in a session. Immutable once the
// answer is recorded.
type QAExchange struct {
	Step       int       `json:"step" db:"step"`
	Question   string    `json:"question" db:"question"`
	Nudge      string    `json:"nudge,omitempty" db:"nudge"`
	Category   string    `json:"category,omitempty" db:"category"`
	Persona    string    `json:"persona,omitempty" db:"persona"`
	Answer     string    `json:"answer,omitempty" db:"answer"`
	AnsweredAt time.Time `json:"answeredAt,omitempty" db:"answered_at"`
}

// DecisionSession is one user's end-to-end interaction for a single decision
// question. Only the conversation state machine mutates it.
type DecisionSession struct {
	ID           string       `json:"id" db:"id"`
	UserID       string       `json:"userId" db:"user_id"`
	Question     string       `json:"question" db:"question"`
	DecisionType DecisionType `json:"decisionType" db:"decision_type"`
	Phase        Phase        `json:"phase" db:"phase"`
	Step         int          `json:"step" db:"step"`
	Exchanges    []QAExchange `json:"exchanges" db:"exchanges"`
	Personas     []string     `json:"personas,omitempty" db:"personas"`
	DeepenedAt   time.Time    `json:"deepenedAt,omitempty" db:"deepened_at"`
	CreatedAt    time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time    `json:"updatedAt" db:"updated_at"`
}

// NewDecisionSession creates a session in the new phase for a first message.
func NewDecisionSession(userID, question string) *DecisionSession {
	now := time.Now().UTC()
	return &DecisionSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Question:  question,
		Phase:     PhaseNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AnsweredRounds counts exchanges that already carry a user answer.
func (s *DecisionSession) AnsweredRounds() int {
	n := 0
	for _, ex := range s.Exchanges {
		if ex.Answer != "" {
			n++
		}
	}
	return n
}

// HasAsked reports whether the exact question text was already posed in this
// session. The generator uses it to guarantee no verbatim repeats.
func (s *DecisionSession) HasAsked(question string) bool {
	for _, ex := range s.Exchanges {
		if ex.Question == question {
			return true
		}
	}
	return false
}

// PendingExchange returns the last exchange awaiting an answer, or nil.
func (s *DecisionSession) PendingExchange() *QAExchange {
	for i := len(s.Exchanges) - 1; i >= 0; i-- {
		if s.Exchanges[i].Answer == "" {
			return &s.Exchanges[i]
		}
	}
	return nil
}

// Deepened reports whether the one-shot go-deeper re-entry was already used.
func (s *DecisionSession) Deepened() bool {
	return !s.DeepenedAt.IsZero()
}

// Clone returns a deep copy. The state machine mutates the copy and commits
// it all-or-nothing, so a cancelled turn never leaves a half-updated session.
func (s *DecisionSession) Clone() *DecisionSession {
	cp := *s
	cp.Exchanges = make([]QAExchange, len(s.Exchanges))
	copy(cp.Exchanges, s.Exchanges)
	cp.Personas = make([]string, len(s.Personas))
	copy(cp.Personas, s.Personas)
	return &cp
}

// SessionStore defines the persistence collaborator boundary. Load and Save
// are assumed atomic per session id; write serialization per session is the
// store's responsibility, not the engine's.
type SessionStore interface {
	Load(ctx context.Context, id string) (*DecisionSession, error)
	Save(ctx context.Context, session *DecisionSession) error
}
