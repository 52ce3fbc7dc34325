package types

import (
	"time"
)

// EventType is the closed enumeration of interaction events the pipeline
// understands. Producers send these as plain strings in the broker payload.
type EventType string

const (
	EventLike          EventType = "LIKE"
	EventComment       EventType = "COMMENT"
	EventCommentReply  EventType = "COMMENT_REPLY"
	EventFollow        EventType = "FOLLOW"
	EventBellPost      EventType = "BELL_POST"
	EventMention       EventType = "MENTION"
	EventPostShare     EventType = "POST_SHARE"
	EventStoryView     EventType = "STORY_VIEW"
	EventOTP           EventType = "OTP"
	EventPasswordReset EventType = "PASSWORD_RESET"
	EventSecurityAlert EventType = "SECURITY_ALERT"
	EventMarketing     EventType = "MARKETING"
	EventDigest        EventType = "DIGEST"
)

// Valid reports whether t is a member of the closed EventType set.
func (t EventType) Valid() bool {
	switch t {
	case EventLike, EventComment, EventCommentReply, EventFollow, EventBellPost,
		EventMention, EventPostShare, EventStoryView, EventOTP, EventPasswordReset,
		EventSecurityAlert, EventMarketing, EventDigest:
		return true
	}
	return false
}

// Priority controls consumer scheduling and delivery channel fan-out.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityLow      Priority = "LOW"
)

// DefaultPriority returns the fixed priority for an event type. Producers may
// override it per event, but the mapping itself never changes at runtime.
func (t EventType) DefaultPriority() Priority {
	switch t {
	case EventOTP, EventPasswordReset, EventSecurityAlert:
		return PriorityCritical
	case EventLike, EventComment, EventCommentReply, EventFollow,
		EventBellPost, EventMention, EventPostShare:
		return PriorityHigh
	default:
		// STORY_VIEW, MARKETING, DIGEST and anything unknown.
		return PriorityLow
	}
}

// Aggregatable reports whether events of this type may be collapsed into a
// time-bucketed window. Security-critical and broadcast types always bypass
// aggregation.
func (t EventType) Aggregatable() bool {
	switch t {
	case EventLike, EventComment, EventCommentReply, EventFollow,
		EventPostShare, EventStoryView:
		return true
	}
	return false
}

// PreferenceCategory groups event types for the per-recipient category toggles.
type PreferenceCategory string

const (
	CategoryActivity  PreferenceCategory = "activity"
	CategorySocial    PreferenceCategory = "social"
	CategoryMarketing PreferenceCategory = "marketing"
	// CategorySecurity cannot be disabled by recipients.
	CategorySecurity PreferenceCategory = "security"
)

// Category maps an event type to its preference category.
func (t EventType) Category() PreferenceCategory {
	switch t {
	case EventLike, EventComment, EventCommentReply, EventMention,
		EventPostShare, EventStoryView, EventBellPost:
		return CategoryActivity
	case EventFollow:
		return CategorySocial
	case EventMarketing, EventDigest:
		return CategoryMarketing
	default:
		return CategorySecurity
	}
}

// DeliveryChannel identifies a downstream delivery transport.
type DeliveryChannel string

const (
	ChannelPush  DeliveryChannel = "PUSH"
	ChannelEmail DeliveryChannel = "EMAIL"
	ChannelSMS   DeliveryChannel = "SMS"
)

// Actor is the identity that performed the interaction. Display fields are
// optional; system-generated events (OTP, digests) carry no actor at all.
type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// TargetType identifies the kind of entity an interaction points at.
type TargetType string

const (
	TargetPost    TargetType = "POST"
	TargetComment TargetType = "COMMENT"
	TargetStory   TargetType = "STORY"
	TargetUser    TargetType = "USER"
)

// Target describes the entity the interaction happened on.
type Target struct {
	Type TargetType `json:"type"`
	ID   string     `json:"id"`
}

// Extensions carries the channel metadata and aggregation flags attached to an
// event. The known fields are typed; Extra holds only fields the core does not
// interpret (producer-specific hints, template variables, comment content).
type Extensions struct {
	Aggregated         bool              `json:"aggregated,omitempty"`
	AggregatedCount    int               `json:"aggregated_count,omitempty"`
	AggregatedActorIDs []string          `json:"aggregated_actor_ids,omitempty"`
	Channels           []DeliveryChannel `json:"channels,omitempty"`
	Extra              map[string]any    `json:"extra,omitempty"`
}

// ExtraString returns the named residual field as a string, or "" if absent.
func (e Extensions) ExtraString(key string) string {
	if e.Extra == nil {
		return ""
	}
	s, _ := e.Extra[key].(string)
	return s
}

// NotificationEvent is the unit of work flowing through the pipeline. It is
// JSON-encoded on the broker; snake_case tags match the producer services.
type NotificationEvent struct {
	ID          string     `json:"id"`
	Type        EventType  `json:"type"`
	Priority    Priority   `json:"priority,omitempty"`
	Actor       *Actor     `json:"actor,omitempty"`
	RecipientID string     `json:"recipient_id"`
	Target      *Target    `json:"target,omitempty"`
	Title       string     `json:"title,omitempty"`
	Message     string     `json:"message,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
	Ext         Extensions `json:"ext,omitempty"`
}

// EffectivePriority returns the producer override when present, otherwise the
// fixed per-type priority.
func (e *NotificationEvent) EffectivePriority() Priority {
	if e.Priority != "" {
		return e.Priority
	}
	return e.Type.DefaultPriority()
}

// TargetID returns the target entity id, or "" for events without a target.
func (e *NotificationEvent) TargetID() string {
	if e.Target == nil {
		return ""
	}
	return e.Target.ID
}

// ActorRef returns the event's actor, never nil. Events without an actor get
// a zero Actor so callers can read display fields without nil checks.
func (e *NotificationEvent) ActorRef() Actor {
	if e.Actor == nil {
		return Actor{}
	}
	return *e.Actor
}

// AggregatedData is the synthesized result of a window: everything needed to
// build one human-readable notification plus the raw event list that feeds the
// batch write-back.
type AggregatedData struct {
	RecipientID  string              `json:"recipient_id"`
	Type         EventType           `json:"type"`
	TargetID     string              `json:"target_id,omitempty"`
	ActorIDs     []string            `json:"actor_ids"`
	ActorNames   []string            `json:"actor_names"`
	ActorAvatars []string            `json:"actor_avatars"`
	FirstEvent   NotificationEvent   `json:"first_event"`
	Count        int                 `json:"count"`
	LastAt       time.Time           `json:"last_at"`
	Priority     Priority            `json:"priority"`
	Message      string              `json:"message"`
	Events       []NotificationEvent `json:"events,omitempty"`
}

// NotificationHistory is the relational record persisted for every delivered
// notification (immediate or flushed). Read state belongs to the inbox UI and
// is never touched by the pipeline after insert.
type NotificationHistory struct {
	ID              string            `json:"id" db:"id"`
	RecipientID     string            `json:"recipient_id" db:"recipient_id"`
	Type            EventType         `json:"type" db:"type"`
	Priority        Priority          `json:"priority" db:"priority"`
	ActorID         string            `json:"actor_id,omitempty" db:"actor_id"`
	ActorName       string            `json:"actor_name,omitempty" db:"actor_name"`
	ActorAvatar     string            `json:"actor_avatar,omitempty" db:"actor_avatar"`
	IsAggregated    bool              `json:"is_aggregated" db:"is_aggregated"`
	AggregatedCount int               `json:"aggregated_count" db:"aggregated_count"`
	Title           string            `json:"title,omitempty" db:"title"`
	Message         string            `json:"message" db:"message"`
	ImageURL        string            `json:"image_url,omitempty" db:"image_url"`
	IsRead          bool              `json:"is_read" db:"is_read"`
	Channels        []DeliveryChannel `json:"channels" db:"channels"`
	Metadata        map[string]any    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

// AuditStatus records the pipeline outcome for one event.
type AuditStatus string

const (
	AuditSent          AuditStatus = "SENT"
	AuditFilteredPrefs AuditStatus = "FILTERED_PREFS"
	AuditSuppressed    AuditStatus = "SUPPRESSED"
	AuditFailed        AuditStatus = "FAILED"
)
