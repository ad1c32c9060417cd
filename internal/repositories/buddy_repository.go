package repositories

import (
	"context"

	"github.com/stridebuddy/backend/internal/models"
)

// BuddyRepository captures the persistence operations for buddy entries.
type BuddyRepository interface {
	Add(ctx context.Context, entry models.BuddyEntry) error
	Remove(ctx context.Context, ownerID, targetID string) error
	SetMute(ctx context.Context, ownerID, targetID string, muted bool) error
	SetBlock(ctx context.Context, ownerID, targetID string, blocked bool) error
	ListForOwner(ctx context.Context, ownerID string) ([]models.BuddyEntry, error)
	IsBlocked(ctx context.Context, accountA, accountB string) (bool, error)
}
