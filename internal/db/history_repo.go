package db

import (
	"context"
	"encoding/json"

	"pulsefeed/internal/types"
)

// HistoryRepository provides data access for the notification_history table.
// The pipeline only ever inserts; read-state updates belong to the inbox API
// which shares the table but not this codebase.
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository creates a new HistoryRepository backed by the given
// database connection (pool or transaction).
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create inserts a notification-history record. The caller must set the ID
// and all display fields; CreatedAt defaults to NOW() when zero.
func (r *HistoryRepository) Create(ctx context.Context, h *types.NotificationHistory) error {
	channelsJSON, err := json.Marshal(h.Channels)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode channels", err)
	}

	var metadataJSON []byte
	if h.Metadata != nil {
		metadataJSON, err = json.Marshal(h.Metadata)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to encode metadata", err)
		}
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO notification_history
		 (id, recipient_id, type, priority, actor_id, actor_name, actor_avatar,
		  is_aggregated, aggregated_count, title, message, image_url, is_read,
		  channels, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false,
		         $13, $14, COALESCE($15, NOW()))`,
		h.ID,
		h.RecipientID,
		string(h.Type),
		string(h.Priority),
		nilIfEmpty(h.ActorID),
		nilIfEmpty(h.ActorName),
		nilIfEmpty(h.ActorAvatar),
		h.IsAggregated,
		h.AggregatedCount,
		nilIfEmpty(h.Title),
		h.Message,
		nilIfEmpty(h.ImageURL),
		channelsJSON,
		metadataJSON,
		nilIfZeroTime(h.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create history record", err)
	}
	return nil
}
