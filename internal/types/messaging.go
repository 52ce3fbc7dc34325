package types

import "time"

// Broker header keys carried on every message. Headers duplicate the routing
// fields as plain strings so downstream consumers can route without fully
// deserializing the JSON body.
const (
	HeaderPriority  = "priority"
	HeaderType      = "type"
	HeaderTimestamp = "timestamp"
)

// EventHeaders is the plain-string header projection of a NotificationEvent.
type EventHeaders struct {
	Priority  string
	Type      string
	Timestamp string
}

// HeadersFor builds the header projection for an event. The timestamp is
// formatted as RFC3339 in UTC.
func HeadersFor(e *NotificationEvent) EventHeaders {
	return EventHeaders{
		Priority:  string(e.EffectivePriority()),
		Type:      string(e.Type),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	}
}
