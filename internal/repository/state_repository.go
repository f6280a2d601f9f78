package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marketvision/cardgenbot/internal/models"
)

type StateRepository struct {
	db *sql.DB
}

func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Get returns the user's conversation state, or nil when the user is idle.
func (r *StateRepository) Get(ctx context.Context, userID int64) (*models.ConversationState, error) {
	const query = `
SELECT user_id, feature, step, COALESCE(step_data, ''), updated_at
FROM user_states WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	var st models.ConversationState
	var raw string
	if err := row.Scan(&st.UserID, &st.Feature, &st.Step, &raw, &st.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan state: %w", err)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &st.StepData); err != nil {
			// A corrupt payload should not wedge the conversation.
			st.StepData = models.StepData{}
		}
	}
	return &st, nil
}

// Set upserts the state, replacing any prior record for the user.
func (r *StateRepository) Set(ctx context.Context, userID int64, feature models.Feature, step models.Step, data models.StepData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal step data: %w", err)
	}
	const query = `
INSERT INTO user_states (user_id, feature, step, step_data)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE feature = VALUES(feature), step = VALUES(step), step_data = VALUES(step_data)`
	if _, err := r.db.ExecContext(ctx, query, userID, feature, step, string(raw)); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (r *StateRepository) Clear(ctx context.Context, userID int64) error {
	const query = `DELETE FROM user_states WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}
