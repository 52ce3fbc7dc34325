// Package channels maps a notification's final priority to the ordered set of
// delivery channels the downstream senders should attempt.
package channels

import "pulsefeed/internal/types"

// Resolve returns the ordered delivery channel set for a priority. The result
// is always non-empty; unknown priorities degrade to push-only.
func Resolve(p types.Priority) []types.DeliveryChannel {
	switch p {
	case types.PriorityCritical:
		return []types.DeliveryChannel{types.ChannelPush, types.ChannelEmail, types.ChannelSMS}
	case types.PriorityHigh:
		return []types.DeliveryChannel{types.ChannelPush, types.ChannelEmail}
	case types.PriorityLow:
		return []types.DeliveryChannel{types.ChannelPush}
	default:
		return []types.DeliveryChannel{types.ChannelPush}
	}
}
