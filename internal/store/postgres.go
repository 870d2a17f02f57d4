// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/models"
)

// PostgresStore persists decision sessions in a single table. Exchanges and
// personas are stored as JSONB so a session round-trips in one row.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "store"}),
	}
}

const loadQuery = `
SELECT id, user_id, question, decision_type, phase, step, exchanges, personas, deepened_at, created_at, updated_at
FROM decision_sessions
WHERE id = $1`

const saveQuery = `
INSERT INTO decision_sessions (id, user_id, question, decision_type, phase, step, exchanges, personas, deepened_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	phase = EXCLUDED.phase,
	step = EXCLUDED.step,
	exchanges = EXCLUDED.exchanges,
	personas = EXCLUDED.personas,
	deepened_at = EXCLUDED.deepened_at,
	updated_at = EXCLUDED.updated_at`

// Load fetches a session by id, returning models.ErrSessionNotFound for
// unknown ids.
func (s *PostgresStore) Load(ctx context.Context, id string) (*models.DecisionSession, error) {
	var (
		session       models.DecisionSession
		exchangesJSON []byte
		personasJSON  []byte
		deepenedAt    sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, loadQuery, id).Scan(
		&session.ID,
		&session.UserID,
		&session.Question,
		&session.DecisionType,
		&session.Phase,
		&session.Step,
		&exchangesJSON,
		&personasJSON,
		&deepenedAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	if len(exchangesJSON) > 0 {
		if err := json.Unmarshal(exchangesJSON, &session.Exchanges); err != nil {
			return nil, fmt.Errorf("decode exchanges for session %s: %w", id, err)
		}
	}
	if len(personasJSON) > 0 {
		if err := json.Unmarshal(personasJSON, &session.Personas); err != nil {
			return nil, fmt.Errorf("decode personas for session %s: %w", id, err)
		}
	}
	if deepenedAt.Valid {
		session.DeepenedAt = deepenedAt.Time
	}

	return &session, nil
}

// Save upserts the full session row.
func (s *PostgresStore) Save(ctx context.Context, session *models.DecisionSession) error {
	exchangesJSON, err := json.Marshal(session.Exchanges)
	if err != nil {
		return fmt.Errorf("encode exchanges: %w", err)
	}
	personasJSON, err := json.Marshal(session.Personas)
	if err != nil {
		return fmt.Errorf("encode personas: %w", err)
	}

	var deepenedAt sql.NullTime
	if !session.DeepenedAt.IsZero() {
		deepenedAt = sql.NullTime{Time: session.DeepenedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, saveQuery,
		session.ID,
		session.UserID,
		session.Question,
		session.DecisionType,
		session.Phase,
		session.Step,
		exchangesJSON,
		personasJSON,
		deepenedAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}
