package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/marketvision/cardgenbot/internal/models"
)

type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Append writes one usage-log row. The log is append-only and is never read
// back by the running bot.
func (r *UsageRepository) Append(ctx context.Context, entry models.UsageEntry) error {
	var metadata any
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal usage metadata: %w", err)
		}
		metadata = string(raw)
	}
	success := 0
	if entry.Success {
		success = 1
	}
	const query = `
INSERT INTO usage_log (user_id, feature, message_type, content, image_count, tokens_used, success, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, entry.UserID, entry.Feature, entry.MessageType, entry.Content, entry.ImageCount, entry.TokensUsed, success, metadata); err != nil {
		return fmt.Errorf("insert usage entry: %w", err)
	}
	return nil
}
