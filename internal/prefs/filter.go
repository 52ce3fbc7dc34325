// Package prefs implements the preference filter: the per-event allow/deny
// decision based on a recipient's stored notification settings.
//
// The filter fails open everywhere: delivery is prioritized over strict
// preference enforcement, so any lookup or parse error results in allow.
package prefs

import (
	"context"
	"fmt"

	"pulsefeed/internal/db"
	"pulsefeed/internal/types"
)

// PreferenceSource loads a recipient's preference record. Satisfied by
// *db.PreferenceRepository; tests provide a stub.
type PreferenceSource interface {
	Get(ctx context.Context, recipientID string) (*db.PreferenceRecord, error)
}

// Filter decides whether a recipient should be notified for an event type.
type Filter struct {
	source PreferenceSource
	clock  types.Clock
	logger types.Logger
}

// NewFilter creates a Filter. The clock abstraction allows deterministic
// testing of the do-not-disturb window.
func NewFilter(source PreferenceSource, clock types.Clock, logger types.Logger) *Filter {
	return &Filter{
		source: source,
		clock:  clock,
		logger: logger,
	}
}

// Allow reports whether the recipient should be notified for the event type.
//
// Checks, in order:
//  1. Do-not-disturb window (may wrap midnight) -- inside means deny.
//  2. Global push toggle -- disabled means deny.
//  3. Category toggle for the event's category -- disabled means deny.
//
// A missing preference record means default allow-all. Lookup errors fail
// open. The method has no side effects beyond the read.
func (f *Filter) Allow(ctx context.Context, recipientID string, eventType types.EventType) bool {
	rec, err := f.source.Get(ctx, recipientID)
	if err != nil {
		f.logger.Warn("preference lookup failed, failing open",
			"recipient_id", recipientID,
			"error", err.Error(),
		)
		return true
	}
	if rec == nil {
		return true
	}

	// 1. Do-not-disturb window.
	if rec.DNDEnabled {
		inside, err := f.inDNDWindow(rec.DNDStart, rec.DNDEnd)
		if err != nil {
			f.logger.Warn("do-not-disturb window unparseable, failing open",
				"recipient_id", recipientID,
				"start", rec.DNDStart,
				"end", rec.DNDEnd,
				"error", err.Error(),
			)
		} else if inside {
			return false
		}
	}

	// 2. Global push toggle.
	if !rec.PushEnabled {
		return false
	}

	// 3. Category toggle.
	return rec.CategoryEnabled(eventType.Category())
}

// inDNDWindow reports whether "now" (process time, minutes since midnight;
// the loader pins the process to UTC) falls inside the [start, end] window. start > end means the
// window wraps midnight (overnight), handled as now >= start OR now <= end.
func (f *Filter) inDNDWindow(start, end string) (bool, error) {
	startMin, err := parseMinutes(start)
	if err != nil {
		return false, err
	}
	endMin, err := parseMinutes(end)
	if err != nil {
		return false, err
	}

	now := f.clock.Now()
	nowMin := now.Hour()*60 + now.Minute()

	if startMin > endMin {
		// Overnight window, e.g. 22:00-08:00.
		return nowMin >= startMin || nowMin <= endMin, nil
	}
	return nowMin >= startMin && nowMin <= endMin, nil
}

// parseMinutes parses an "HH:MM" string into minutes since midnight.
func parseMinutes(s string) (int, error) {
	var h, m int
	n, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil || n != 2 {
		return 0, fmt.Errorf("expected HH:MM format, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return h*60 + m, nil
}
