package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pulsefeed/internal/types"
)

// PreferenceRecord is a recipient's stored notification settings. A recipient
// with no row gets the zero-value-free default: everything allowed.
type PreferenceRecord struct {
	RecipientID string `db:"recipient_id"`

	PushEnabled bool `db:"push_enabled"`

	DNDEnabled bool   `db:"dnd_enabled"`
	DNDStart   string `db:"dnd_start"` // "HH:MM"
	DNDEnd     string `db:"dnd_end"`   // "HH:MM"

	ActivityEnabled  bool `db:"activity_enabled"`
	SocialEnabled    bool `db:"social_enabled"`
	MarketingEnabled bool `db:"marketing_enabled"`
}

// CategoryEnabled reports whether the given category toggle is on. Security
// notifications cannot be disabled.
func (p *PreferenceRecord) CategoryEnabled(c types.PreferenceCategory) bool {
	switch c {
	case types.CategoryActivity:
		return p.ActivityEnabled
	case types.CategorySocial:
		return p.SocialEnabled
	case types.CategoryMarketing:
		return p.MarketingEnabled
	default:
		return true
	}
}

// PreferenceRepository provides read access to per-recipient notification
// preferences. The pipeline never writes preferences.
type PreferenceRepository struct {
	db DBTX
}

// NewPreferenceRepository creates a new PreferenceRepository backed by the
// given database connection.
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get fetches the preference record for a recipient. Returns (nil, nil) when
// no record exists -- absence means default allow-all.
func (r *PreferenceRepository) Get(ctx context.Context, recipientID string) (*PreferenceRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT recipient_id, push_enabled,
		        dnd_enabled, COALESCE(dnd_start, ''), COALESCE(dnd_end, ''),
		        activity_enabled, social_enabled, marketing_enabled
		 FROM notification_preferences
		 WHERE recipient_id = $1`,
		recipientID,
	)

	var rec PreferenceRecord
	err := row.Scan(
		&rec.RecipientID, &rec.PushEnabled,
		&rec.DNDEnabled, &rec.DNDStart, &rec.DNDEnd,
		&rec.ActivityEnabled, &rec.SocialEnabled, &rec.MarketingEnabled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load preferences", err)
	}
	return &rec, nil
}
