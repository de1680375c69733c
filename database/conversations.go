package database

import (
	"context"
	"fmt"
	"time"

	"case-explainer/types"

	"github.com/google/uuid"
)

// StoreConversation persists a question/answer turn for a case.
func (s *PostgresStore) StoreConversation(ctx context.Context, turn types.ConversationTurn) error {
	id, err := uuid.Parse(turn.ID)
	if err != nil {
		id = uuid.New()
	}
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const query = `
		INSERT INTO conversations (id, case_id, question, answer, confidence, cached, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.DB.ExecContext(ctx, query, id, turn.CaseID, turn.Question, turn.Answer, turn.Confidence, turn.Cached, createdAt)
	if err != nil {
		return fmt.Errorf("failed to store conversation turn: %w", err)
	}
	return nil
}

// GetConversation returns the last limit turns of a case, oldest first.
func (s *PostgresStore) GetConversation(ctx context.Context, caseID string, limit int) ([]types.ConversationTurn, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, case_id, question, answer, confidence, cached, created_at
		FROM (
			SELECT id, case_id, question, answer, confidence, cached, created_at
			FROM conversations
			WHERE case_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := s.DB.QueryContext(ctx, query, caseID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer rows.Close()

	var turns []types.ConversationTurn
	for rows.Next() {
		var t types.ConversationTurn
		var id uuid.UUID
		if err := rows.Scan(&id, &t.CaseID, &t.Question, &t.Answer, &t.Confidence, &t.Cached, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		t.ID = id.String()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}
	return turns, nil
}

// DeleteConversation drops the stored history of a case.
func (s *PostgresStore) DeleteConversation(ctx context.Context, caseID string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM conversations WHERE case_id = $1`, caseID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversation: %w", err)
	}
	return res.RowsAffected()
}
