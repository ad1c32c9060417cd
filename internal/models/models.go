package models

import (
	"strings"
	"time"
)

// Account represents a registered screen name.
type Account struct {
	ID             string
	ScreenName     string // display form, as typed at sign-up
	ScreenNameKey  string // normalized identity key
	Password       string // bcrypt hash
	AvatarURL      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResetCode      string
	ResetExpiresAt *time.Time
}

// NormalizeScreenName produces the case-insensitive identity key for a screen name.
func NormalizeScreenName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PresenceState is derived from live session activity and is never stored.
type PresenceState string

const (
	PresenceOnline  PresenceState = "online"
	PresenceAway    PresenceState = "away"
	PresenceOffline PresenceState = "offline"
)

// DefaultBuddyGroup is used when a buddy is added without a group name.
const DefaultBuddyGroup = "Buddies"

// BuddyEntry is a directional relationship record owned by one account.
type BuddyEntry struct {
	ID        string
	OwnerID   string
	TargetID  string
	Group     string
	Muted     bool
	Blocked   bool
	CreatedAt time.Time

	// Populated by list queries that join the accounts table.
	TargetScreenName string
	TargetAvatarURL  string
}

// Message is a relayed instant message held until the recipient polls it.
type Message struct {
	ID        string
	Sender    string // normalized screen name
	Recipient string // normalized screen name
	Body      string
	HTMLBody  string
	CreatedAt time.Time
	Delivered bool
}

// TypingEvent is an ephemeral best-effort signal, never persisted.
type TypingEvent struct {
	Sender string
	SentAt time.Time
}
