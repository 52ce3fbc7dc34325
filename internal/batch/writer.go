// Package batch implements the write-back of a flushed window's raw event
// list into the social-graph tables. Each window produces at most one bulk
// insert per table so database load stays bounded under bursty fan-in.
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pulsefeed/internal/db"
	"pulsefeed/internal/types"
)

// defaultCommentContent is written when a raw COMMENT event carries no
// content in its extension map.
const defaultCommentContent = "(comment)"

// Result reports the outcome of one batch write. Err is informational: the
// caller persists the notification-history record regardless of whether the
// social-graph rows landed.
type Result struct {
	Written int64
	Err     error
}

// Writer converts a window's raw event list into deduplicated bulk inserts.
type Writer struct {
	db     db.DBTX
	logger types.Logger
}

// NewWriter creates a Writer against the social-graph database.
func NewWriter(dbtx db.DBTX, logger types.Logger) *Writer {
	return &Writer{db: dbtx, logger: logger}
}

// ExecuteBatchWrite dispatches on the first event's type and performs a
// single multi-row insert for the window. Likes are deduplicated on
// (post, actor), follows on (follower, target); comments are inserted as-is
// with defaulted content. Unknown types are a no-op success. Write failures
// are reported in the Result but never propagate as an error return.
func (w *Writer) ExecuteBatchWrite(ctx context.Context, events []types.NotificationEvent) Result {
	if len(events) == 0 {
		return Result{}
	}

	var res Result
	switch events[0].Type {
	case types.EventLike:
		res = w.writeLikes(ctx, events)
	case types.EventComment, types.EventCommentReply:
		res = w.writeComments(ctx, events)
	case types.EventFollow:
		res = w.writeFollows(ctx, events)
	default:
		return Result{}
	}

	if res.Err != nil {
		w.logger.Error("batch write failed",
			"event_type", string(events[0].Type),
			"events", len(events),
			"error", res.Err.Error(),
		)
	}
	return res
}

// writeLikes bulk-inserts like rows deduplicated on (post_id, user_id) so
// repeated likes by the same actor within the window collapse to one row.
// ON CONFLICT DO NOTHING additionally absorbs rows that already exist.
func (w *Writer) writeLikes(ctx context.Context, events []types.NotificationEvent) Result {
	type likeRow struct {
		postID, actorID string
		at              time.Time
	}

	seen := make(map[string]bool, len(events))
	var rows []likeRow
	for _, ev := range events {
		actor := ev.ActorRef()
		postID := ev.TargetID()
		if actor.ID == "" || postID == "" {
			continue
		}
		key := postID + "\x00" + actor.ID
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, likeRow{postID: postID, actorID: actor.ID, at: ev.Timestamp})
	}
	if len(rows) == 0 {
		return Result{}
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO post_likes (post_id, user_id, created_at) VALUES `)
	args := make([]any, 0, len(rows)*3)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, r.postID, r.actorID, r.at)
	}
	sb.WriteString(` ON CONFLICT (post_id, user_id) DO NOTHING`)

	tag, err := w.db.Exec(ctx, sb.String(), args...)
	if err != nil {
		return Result{Err: types.NewAppError(types.ErrCodeInternalDB, "bulk like insert failed", err)}
	}
	return Result{Written: tag.RowsAffected()}
}

// writeComments bulk-inserts comment rows. The raw log is not deduplicated:
// the same actor commenting twice is two rows. Content comes from the
// event's extension map and is defaulted when absent.
func (w *Writer) writeComments(ctx context.Context, events []types.NotificationEvent) Result {
	type commentRow struct {
		postID, actorID, content string
		at                       time.Time
	}

	var rows []commentRow
	for _, ev := range events {
		actor := ev.ActorRef()
		postID := ev.TargetID()
		if actor.ID == "" || postID == "" {
			continue
		}
		content := ev.Ext.ExtraString("content")
		if content == "" {
			content = defaultCommentContent
		}
		rows = append(rows, commentRow{postID: postID, actorID: actor.ID, content: content, at: ev.Timestamp})
	}
	if len(rows) == 0 {
		return Result{}
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO post_comments (post_id, user_id, content, created_at) VALUES `)
	args := make([]any, 0, len(rows)*4)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4)
		args = append(args, r.postID, r.actorID, r.content, r.at)
	}

	tag, err := w.db.Exec(ctx, sb.String(), args...)
	if err != nil {
		return Result{Err: types.NewAppError(types.ErrCodeInternalDB, "bulk comment insert failed", err)}
	}
	return Result{Written: tag.RowsAffected()}
}

// writeFollows bulk-inserts follow edges deduplicated on (follower_id,
// following_id).
func (w *Writer) writeFollows(ctx context.Context, events []types.NotificationEvent) Result {
	type followRow struct {
		followerID, followingID string
		at                      time.Time
	}

	seen := make(map[string]bool, len(events))
	var rows []followRow
	for _, ev := range events {
		actor := ev.ActorRef()
		if actor.ID == "" || ev.RecipientID == "" {
			continue
		}
		key := actor.ID + "\x00" + ev.RecipientID
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, followRow{followerID: actor.ID, followingID: ev.RecipientID, at: ev.Timestamp})
	}
	if len(rows) == 0 {
		return Result{}
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO user_follows (follower_id, following_id, created_at) VALUES `)
	args := make([]any, 0, len(rows)*3)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, r.followerID, r.followingID, r.at)
	}
	sb.WriteString(` ON CONFLICT (follower_id, following_id) DO NOTHING`)

	tag, err := w.db.Exec(ctx, sb.String(), args...)
	if err != nil {
		return Result{Err: types.NewAppError(types.ErrCodeInternalDB, "bulk follow insert failed", err)}
	}
	return Result{Written: tag.RowsAffected()}
}
