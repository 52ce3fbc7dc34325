package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsefeed/internal/types"
)

// mockDBTX records Exec/QueryRow calls and returns scripted results.
type mockDBTX struct {
	execSQL  []string
	execArgs [][]any
	execErr  error

	row pgx.Row
}

func (m *mockDBTX) Exec(_ context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	m.execSQL = append(m.execSQL, sql)
	m.execArgs = append(m.execArgs, arguments)
	if m.execErr != nil {
		return pgconn.CommandTag{}, m.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *mockDBTX) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDBTX) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return m.row
}

// mockRow scripts a single pgx.Row scan.
type mockRow struct {
	values []any
	err    error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *bool:
			*d = v.(bool)
		}
	}
	return nil
}

func TestHistoryCreate(t *testing.T) {
	dbtx := &mockDBTX{}
	repo := NewHistoryRepository(dbtx)

	h := &types.NotificationHistory{
		ID:              "n1",
		RecipientID:     "u1",
		Type:            types.EventLike,
		Priority:        types.PriorityCritical,
		ActorID:         "a1",
		ActorName:       "Alice",
		IsAggregated:    true,
		AggregatedCount: 5,
		Message:         "Alice and 4 others liked your post",
		Channels:        []types.DeliveryChannel{types.ChannelPush, types.ChannelEmail, types.ChannelSMS},
		CreatedAt:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(context.Background(), h))
	require.Len(t, dbtx.execArgs, 1)

	args := dbtx.execArgs[0]
	assert.Equal(t, "n1", args[0])
	assert.Equal(t, "u1", args[1])
	assert.Equal(t, "LIKE", args[2])
	assert.Equal(t, "CRITICAL", args[3])
	assert.Equal(t, true, args[7])
	assert.Equal(t, 5, args[8])
	assert.JSONEq(t, `["PUSH","EMAIL","SMS"]`, string(args[12].([]byte)))
}

func TestHistoryCreate_NullsEmptyDisplayFields(t *testing.T) {
	dbtx := &mockDBTX{}
	repo := NewHistoryRepository(dbtx)

	h := &types.NotificationHistory{
		ID:          "n1",
		RecipientID: "u1",
		Type:        types.EventOTP,
		Priority:    types.PriorityCritical,
		Message:     "Your one-time passcode has arrived",
	}
	require.NoError(t, repo.Create(context.Background(), h))

	args := dbtx.execArgs[0]
	assert.Nil(t, args[4], "empty actor_id must be NULL")
	assert.Nil(t, args[5], "empty actor_name must be NULL")
	assert.Nil(t, args[14], "zero created_at must be NULL for COALESCE")
}

func TestHistoryCreate_WrapsDBError(t *testing.T) {
	dbtx := &mockDBTX{execErr: errors.New("connection refused")}
	repo := NewHistoryRepository(dbtx)

	err := repo.Create(context.Background(), &types.NotificationHistory{ID: "n1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestPreferenceGet_NoRowMeansNil(t *testing.T) {
	dbtx := &mockDBTX{row: &mockRow{err: pgx.ErrNoRows}}
	repo := NewPreferenceRepository(dbtx)

	rec, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, rec, "absent record must mean default allow-all, not an error")
}

func TestPreferenceGet_ScansRecord(t *testing.T) {
	dbtx := &mockDBTX{row: &mockRow{values: []any{
		"u1", true, true, "22:00", "08:00", true, false, true,
	}}}
	repo := NewPreferenceRepository(dbtx)

	rec, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.DNDEnabled)
	assert.Equal(t, "22:00", rec.DNDStart)
	assert.False(t, rec.CategoryEnabled(types.CategorySocial))
	assert.True(t, rec.CategoryEnabled(types.CategorySecurity), "security can never be disabled")
}

func TestPreferenceGet_WrapsDBError(t *testing.T) {
	dbtx := &mockDBTX{row: &mockRow{err: errors.New("timeout")}}
	repo := NewPreferenceRepository(dbtx)

	_, err := repo.Get(context.Background(), "u1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
