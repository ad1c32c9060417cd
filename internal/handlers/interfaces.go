package handlers

import (
	"context"
	"io"
	"time"

	"github.com/stridebuddy/backend/internal/auth"
	"github.com/stridebuddy/backend/internal/buddies"
	"github.com/stridebuddy/backend/internal/models"
)

// AccountStore captures the persistence operations required by the handlers.
type AccountStore interface {
	Create(ctx context.Context, account models.Account) error
	FindByScreenName(ctx context.Context, name string) (models.Account, error)
	FindByID(ctx context.Context, id string) (models.Account, error)
	UpdateCredential(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	SetResetCode(ctx context.Context, id, code string, expiresAt time.Time) error
	SetAvatarURL(ctx context.Context, id, url string, updatedAt time.Time) error
}

// SessionStore issues, validates, and revokes session tokens.
type SessionStore interface {
	Create(identity auth.Identity) (string, error)
	Touch(token string, idle bool) error
	Validate(token string) (auth.Identity, error)
	Revoke(token string)
}

// BuddyDirectory serves validated buddy-list operations.
type BuddyDirectory interface {
	Add(ctx context.Context, owner models.Account, targetName, group string) (models.BuddyEntry, error)
	Remove(ctx context.Context, owner models.Account, targetName string) error
	SetMute(ctx context.Context, owner models.Account, targetName string, muted bool) error
	SetBlock(ctx context.Context, owner models.Account, targetName string, blocked bool) error
	Groups(ctx context.Context, owner models.Account) ([]buddies.Group, error)
}

// PresenceSource derives presence states for accounts.
type PresenceSource interface {
	StateOf(account string) models.PresenceState
	Observed(ctx context.Context, viewer, target models.Account) (models.PresenceState, error)
}

// MessageRelay accepts, queues, and drains messages and typing signals.
type MessageRelay interface {
	Send(ctx context.Context, sender auth.Identity, recipientName, body, htmlBody string) (models.Message, error)
	Poll(account string) ([]models.Message, []models.TypingEvent, uint64)
	NotifyTyping(ctx context.Context, sender auth.Identity, recipientName string) error
}

// AvatarStorage persists avatar images and returns their public location.
type AvatarStorage interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// SignOnCounter records successful sign-ons for metrics.
type SignOnCounter interface {
	SignOn()
}
