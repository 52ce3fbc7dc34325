package aggregate

import "pulsefeed/internal/types"

// The two escalation rules below intentionally differ: the admit path and the
// flush path inherited distinct thresholds from the product, and the business
// rule has not been unified. Keep them separate so the divergence stays
// visible. See DESIGN.md.

// escalateOnAdmit applies the admit-path (single-event, non-flush) escalation
// rule: LIKE windows at exactly 3 or 4 distinct actors escalate to CRITICAL
// (the engagement sweet spot). Everything else keeps the base priority.
func escalateOnAdmit(t types.EventType, count int, base types.Priority) types.Priority {
	if t == types.EventLike && (count == 3 || count == 4) {
		return types.PriorityCritical
	}
	return base
}

// escalateOnFlush applies the flush-path escalation rule: LIKE or COMMENT
// windows with 3 to 10 distinct actors inclusive escalate to CRITICAL.
func escalateOnFlush(t types.EventType, count int) bool {
	if count < 3 || count > 10 {
		return false
	}
	return t == types.EventLike || t == types.EventComment
}
