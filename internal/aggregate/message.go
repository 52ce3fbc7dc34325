package aggregate

import (
	"fmt"

	"pulsefeed/internal/types"
)

// verbPhrase returns the per-type verb phrase used when composing aggregated
// messages for aggregatable event types.
func verbPhrase(t types.EventType) string {
	switch t {
	case types.EventLike:
		return "liked your post"
	case types.EventComment:
		return "commented on your post"
	case types.EventCommentReply:
		return "replied to your comment"
	case types.EventFollow:
		return "started following you"
	case types.EventPostShare:
		return "shared your post"
	case types.EventStoryView:
		return "viewed your story"
	}
	return ""
}

// fixedPhrase returns the actor-independent message for non-aggregatable
// event types.
func fixedPhrase(t types.EventType) string {
	switch t {
	case types.EventOTP:
		return "Your one-time passcode has arrived"
	case types.EventPasswordReset:
		return "Your password reset link is ready"
	case types.EventSecurityAlert:
		return "New sign-in to your account detected"
	case types.EventMention:
		return "You were mentioned in a post"
	case types.EventBellPost:
		return "New post from someone you follow"
	case types.EventMarketing:
		return "Something new is waiting for you"
	case types.EventDigest:
		return "Your activity digest is ready"
	}
	return "You have a new notification"
}

// GenerateMessage builds the human-readable message for an event type given
// the first-seen actor names and the distinct-actor count.
//
//	count == 1: "{first actor} {verb phrase}"
//	count >  1: "{first actor} and {count-1} other(s) {verb phrase}"
//
// Non-aggregatable types use fixed, actor-independent phrases.
func GenerateMessage(t types.EventType, actorNames []string, count int) string {
	verb := verbPhrase(t)
	if verb == "" || len(actorNames) == 0 {
		return fixedPhrase(t)
	}

	first := actorNames[0]
	if count <= 1 {
		return first + " " + verb
	}

	others := "others"
	if count == 2 {
		others = "other"
	}
	return fmt.Sprintf("%s and %d %s %s", first, count-1, others, verb)
}
