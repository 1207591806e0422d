package domain

import "strings"

// Preference is one (user, category) delivery setting. A missing row is not
// an error: absence means DefaultPreference.
type Preference struct {
	UserID          string
	Category        Category
	InAppEnabled    bool
	EmailEnabled    bool
	MinimumPriority Priority
}

// DefaultPreference returns the system defaults applied when no row exists:
// in-app on, email off, minimum priority normal.
func DefaultPreference(userID string, category Category) Preference {
	return Preference{
		UserID:          strings.TrimSpace(userID),
		Category:        category,
		InAppEnabled:    true,
		EmailEnabled:    false,
		MinimumPriority: PriorityNormal,
	}
}

// Allows reports whether the preference admits the given priority on at least
// one enabled channel. The critical escalation path bypasses this gate.
func (p Preference) Allows(priority Priority) bool {
	if !priority.AtLeast(p.MinimumPriority) {
		return false
	}
	return p.InAppEnabled || p.EmailEnabled
}

// ChannelEnabled reports whether the preference enables the given channel.
// The realtime push channel follows the in-app setting; it carries the same
// persisted notification.
func (p Preference) ChannelEnabled(channel Channel) bool {
	switch channel {
	case ChannelInApp, ChannelWebSocket:
		return p.InAppEnabled
	case ChannelEmail:
		return p.EmailEnabled
	default:
		return false
	}
}
