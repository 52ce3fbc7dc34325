// Package aggregate implements the windowed aggregation engine. In-flight
// windows live in a shared cache keyed by (recipient, event type, target
// entity, window id); the cache is the single source of truth so any consumer
// instance or the flush task can touch a window.
//
// Key namespace per window:
//
//	agg:<recipientId>:<type>[:<targetEntityId>]:<windowId>          actor set (sorted by arrival)
//	agg:<recipientId>:<type>[:<targetEntityId>]:<windowId>:meta     first-event snapshot + actor display metadata
//	agg:<recipientId>:<type>[:<targetEntityId>]:<windowId>:events   raw event log (zstd-compressed JSON)
//
// Every key carries a TTL of windowLength + buffer, refreshed on each touch,
// so abandoned windows expire on their own even if the flush task dies.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pulsefeed/internal/types"
)

const (
	metaSuffix   = ":meta"
	eventsSuffix = ":events"

	// metaFieldFirst holds the first-seen event snapshot for the window.
	metaFieldFirst = "first"
	// metaFieldActors holds the ordered actor display metadata.
	metaFieldActors = "actors"

	// scanPageSize is the COUNT hint for SCAN during flush.
	scanPageSize = 200

	// instantThreshold is the distinct-actor count up to which events are
	// still delivered instantly. The 3rd distinct actor onward is buffered.
	instantThreshold = 2
)

// Cache is the subset of redis.Cmdable the engine uses. *redis.Client
// satisfies it; tests provide an in-memory fake.
type Cache interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	ZRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	HSetNX(ctx context.Context, key, field string, value interface{}) *redis.BoolCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// actorMeta is the display metadata stored per distinct actor, in first-seen
// order.
type actorMeta struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Decision is the admit-path outcome for one event.
type Decision struct {
	// SendNow is true when the event should be delivered immediately. When
	// false the event is represented only inside its window and the caller
	// must not deliver it independently.
	SendNow bool
	// Count is the distinct-actor count for the window after this event.
	Count int
	// Priority is the delivery priority, already escalated per the
	// admit-path rule when applicable.
	Priority types.Priority
}

// Engine maintains the time-bucketed aggregation windows.
type Engine struct {
	cache  Cache
	clock  types.Clock
	logger types.Logger
	codec  *eventCodec

	window time.Duration
	buffer time.Duration
}

// NewEngine creates an aggregation engine. window is the bucket length (60s
// in production) and buffer the extra TTL grace applied on top of it.
func NewEngine(cache Cache, clock types.Clock, logger types.Logger, window, buffer time.Duration) (*Engine, error) {
	codec, err := newEventCodec()
	if err != nil {
		return nil, err
	}
	return &Engine{
		cache:  cache,
		clock:  clock,
		logger: logger,
		codec:  codec,
		window: window,
		buffer: buffer,
	}, nil
}

// windowID computes the bucket index for a point in time.
func (e *Engine) windowID(t time.Time) int64 {
	return t.Unix() / int64(e.window.Seconds())
}

// windowKey derives the base cache key for a window. The target segment is
// omitted for events without a target entity (e.g. FOLLOW).
func windowKey(recipientID string, t types.EventType, targetID string, windowID int64) string {
	if targetID == "" {
		return fmt.Sprintf("agg:%s:%s:%d", recipientID, t, windowID)
	}
	return fmt.Sprintf("agg:%s:%s:%s:%d", recipientID, t, targetID, windowID)
}

// Admit records an event into its aggregation window and decides between
// instant and batched delivery.
//
// The first two distinct actors in a window always get instant delivery; from
// the third distinct actor on, events are buffered until the flush task
// drains the window. Re-admitting an actor refreshes their arrival timestamp
// without growing the count. Every touch refreshes the window TTL.
func (e *Engine) Admit(ctx context.Context, ev *types.NotificationEvent) (Decision, error) {
	actor := ev.ActorRef()
	if !ev.Type.Aggregatable() || actor.ID == "" {
		return Decision{SendNow: true, Count: 1, Priority: ev.EffectivePriority()}, nil
	}

	now := e.clock.Now()
	win := e.windowID(now)
	base := windowKey(ev.RecipientID, ev.Type, ev.TargetID(), win)
	metaKey := base + metaSuffix
	eventsKey := base + eventsSuffix

	// Each key gets its TTL immediately after being written, never deferred:
	// an error later in the admit path must not leave unexpiring keys behind.
	ttl := e.window + e.buffer

	// Deduplicated actor set: re-adding updates the timestamp only.
	added, err := e.cache.ZAdd(ctx, base, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: actor.ID,
	}).Result()
	if err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeCacheUnavailable, "failed to touch actor set", err)
	}
	if err := e.cache.Expire(ctx, base, ttl).Err(); err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeCacheUnavailable, "failed to refresh window TTL", err)
	}

	// First event for the key snapshots the window metadata.
	firstJSON, err := json.Marshal(ev)
	if err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode event", err)
	}
	if _, err := e.cache.HSetNX(ctx, metaKey, metaFieldFirst, string(firstJSON)).Result(); err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeCacheUnavailable, "failed to snapshot window metadata", err)
	}
	if err := e.cache.Expire(ctx, metaKey, ttl).Err(); err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeCacheUnavailable, "failed to refresh window TTL", err)
	}

	// New distinct actor: append display metadata in first-seen order.
	if added > 0 {
		if err := e.appendActorMeta(ctx, metaKey, actor); err != nil {
			return Decision{}, err
		}
	}

	// The raw event log is not deduplicated; it feeds the batch write-back.
	entry, err := e.codec.encode(ev)
	if err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode event log entry", err)
	}
	if err := e.cache.RPush(ctx, eventsKey, entry).Err(); err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeCacheUnavailable, "failed to append event log", err)
	}
	if err := e.cache.Expire(ctx, eventsKey, ttl).Err(); err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeCacheUnavailable, "failed to refresh window TTL", err)
	}

	count, err := e.cache.ZCard(ctx, base).Result()
	if err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeCacheUnavailable, "failed to read actor count", err)
	}

	return Decision{
		SendNow:  count <= instantThreshold,
		Count:    int(count),
		Priority: escalateOnAdmit(ev.Type, int(count), ev.EffectivePriority()),
	}, nil
}

// appendActorMeta appends the actor's display metadata to the window's
// ordered actor list if not already present. The read-modify-write is safe
// because all events for a window key arrive on the same broker partition and
// are processed serially.
func (e *Engine) appendActorMeta(ctx context.Context, metaKey string, actor types.Actor) error {
	raw, err := e.cache.HGetAll(ctx, metaKey).Result()
	if err != nil {
		return types.NewAppError(types.ErrCodeCacheUnavailable, "failed to read window metadata", err)
	}

	var actors []actorMeta
	if existing, ok := raw[metaFieldActors]; ok && existing != "" {
		if err := json.Unmarshal([]byte(existing), &actors); err != nil {
			e.logger.Warn("corrupt actor metadata, rebuilding", "key", metaKey, "error", err.Error())
			actors = nil
		}
	}
	for _, a := range actors {
		if a.ID == actor.ID {
			return nil
		}
	}

	actors = append(actors, actorMeta{ID: actor.ID, Name: actor.DisplayName, Avatar: actor.AvatarURL})
	encoded, err := json.Marshal(actors)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode actor metadata", err)
	}
	if err := e.cache.HSet(ctx, metaKey, metaFieldActors, string(encoded)).Err(); err != nil {
		return types.NewAppError(types.ErrCodeCacheUnavailable, "failed to write actor metadata", err)
	}
	return nil
}

// FlushExpired scans for windows one full cycle old (windowId ==
// currentWindowId - 1, so no in-flight writers remain), synthesizes an
// AggregatedData per non-empty window, deletes the window keys, and invokes
// emit with the result. It returns the number of windows emitted.
//
// Keys are deleted before emit runs, which prevents re-flush from this
// instance. There is no distributed lock: concurrent flushes from multiple
// instances can race between scan and delete, so single-instance flush is
// assumed.
func (e *Engine) FlushExpired(ctx context.Context, emit func(context.Context, *types.AggregatedData) error) (int, error) {
	now := e.clock.Now()
	prev := e.windowID(now) - 1

	scanner := newKeyScanner(e.cache, fmt.Sprintf("agg:*:%d", prev), scanPageSize)
	flushed := 0

	for {
		key, ok, err := scanner.Next(ctx)
		if err != nil {
			return flushed, types.NewAppError(types.ErrCodeCacheUnavailable, "window scan failed", err)
		}
		if !ok {
			break
		}

		data, err := e.collectWindow(ctx, key, now)
		if err != nil {
			e.logger.Error("failed to collect window, skipping", "key", key, "error", err.Error())
			continue
		}
		if data == nil {
			// Empty or already-drained window.
			continue
		}

		flushed++
		if err := emit(ctx, data); err != nil {
			e.logger.Error("flush callback failed", "key", key, "error", err.Error())
		}
	}

	return flushed, nil
}

// collectWindow reads the full window state, deletes the three sub-keys, and
// builds the AggregatedData. Returns (nil, nil) when the actor set is empty,
// which happens when another flush pass already drained the key.
func (e *Engine) collectWindow(ctx context.Context, base string, now time.Time) (*types.AggregatedData, error) {
	metaKey := base + metaSuffix
	eventsKey := base + eventsSuffix

	count, err := e.cache.ZCard(ctx, base).Result()
	if err != nil {
		return nil, fmt.Errorf("read actor count: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	meta, err := e.cache.HGetAll(ctx, metaKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read window metadata: %w", err)
	}

	var first types.NotificationEvent
	if raw, ok := meta[metaFieldFirst]; ok {
		if err := json.Unmarshal([]byte(raw), &first); err != nil {
			return nil, fmt.Errorf("decode first event: %w", err)
		}
	} else {
		return nil, fmt.Errorf("window %s has no first-event snapshot", base)
	}

	var actors []actorMeta
	if raw, ok := meta[metaFieldActors]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &actors); err != nil {
			e.logger.Warn("corrupt actor metadata at flush, falling back to actor set", "key", base)
			actors = nil
		}
	}
	if actors == nil {
		members, err := e.cache.ZRange(ctx, base, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("read actor set: %w", err)
		}
		for _, id := range members {
			actors = append(actors, actorMeta{ID: id})
		}
	}

	entries, err := e.cache.LRange(ctx, eventsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	events := make([]types.NotificationEvent, 0, len(entries))
	for _, entry := range entries {
		ev, err := e.codec.decode([]byte(entry))
		if err != nil {
			e.logger.Warn("undecodable event log entry dropped", "key", base, "error", err.Error())
			continue
		}
		events = append(events, *ev)
	}

	// Delete all three sub-keys before handing the data out, so a second
	// flush pass finds nothing. The deletes are one round trip, not a
	// transaction.
	if err := e.cache.Del(ctx, base, metaKey, eventsKey).Err(); err != nil {
		return nil, fmt.Errorf("delete window keys: %w", err)
	}

	actorIDs := make([]string, 0, len(actors))
	actorNames := make([]string, 0, len(actors))
	actorAvatars := make([]string, 0, len(actors))
	for _, a := range actors {
		actorIDs = append(actorIDs, a.ID)
		actorNames = append(actorNames, a.Name)
		actorAvatars = append(actorAvatars, a.Avatar)
	}

	priority := first.EffectivePriority()
	if escalateOnFlush(first.Type, int(count)) {
		priority = types.PriorityCritical
	}

	return &types.AggregatedData{
		RecipientID:  first.RecipientID,
		Type:         first.Type,
		TargetID:     first.TargetID(),
		ActorIDs:     actorIDs,
		ActorNames:   actorNames,
		ActorAvatars: actorAvatars,
		FirstEvent:   first,
		Count:        int(count),
		LastAt:       now,
		Priority:     priority,
		Message:      GenerateMessage(first.Type, actorNames, int(count)),
		Events:       events,
	}, nil
}
