package calllog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists turn logs in PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) RecordTurn(ctx context.Context, t TurnLog) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO kaiwa_call_turns (
			id, session_id, call_sid, path, turn,
			user_text, assistant_text, sentences,
			error_message, duration_ms, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.New().String(), t.SessionID, t.CallSID, t.Path, t.Turn,
		t.UserText, t.AssistantText, t.Sentences,
		t.ErrorMessage, t.DurationMS, time.Now(),
	)
	return err
}
