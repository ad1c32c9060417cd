package buddies

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stridebuddy/backend/internal/models"
	"github.com/stridebuddy/backend/internal/repositories"
)

// ErrSelfBuddy indicates an account tried to add itself to its own list.
var ErrSelfBuddy = errors.New("cannot add yourself as a buddy")

// AccountFinder resolves screen names to accounts.
type AccountFinder interface {
	FindByScreenName(ctx context.Context, name string) (models.Account, error)
}

// EntryStore captures the persistence operations the directory needs.
type EntryStore interface {
	Add(ctx context.Context, entry models.BuddyEntry) error
	Remove(ctx context.Context, ownerID, targetID string) error
	SetMute(ctx context.Context, ownerID, targetID string, muted bool) error
	SetBlock(ctx context.Context, ownerID, targetID string, blocked bool) error
	ListForOwner(ctx context.Context, ownerID string) ([]models.BuddyEntry, error)
	IsBlocked(ctx context.Context, accountA, accountB string) (bool, error)
}

// Group is a named slice of buddy entries for list rendering.
type Group struct {
	Name    string
	Buddies []models.BuddyEntry
}

// Directory validates and serves buddy-list operations on top of the entry store.
type Directory struct {
	Accounts AccountFinder
	Entries  EntryStore
	NowFunc  func() time.Time
}

// Add creates a buddy entry for owner referencing the named target account.
// The target must exist, must not be the owner, and must not already be listed.
func (d *Directory) Add(ctx context.Context, owner models.Account, targetName, group string) (models.BuddyEntry, error) {
	key := models.NormalizeScreenName(targetName)
	if key == "" {
		return models.BuddyEntry{}, fmt.Errorf("buddy target: %w", repositories.ErrNotFound)
	}
	if key == owner.ScreenNameKey {
		return models.BuddyEntry{}, ErrSelfBuddy
	}

	target, err := d.Accounts.FindByScreenName(ctx, key)
	if err != nil {
		return models.BuddyEntry{}, err
	}

	if group == "" {
		group = models.DefaultBuddyGroup
	}

	entry := models.BuddyEntry{
		ID:               uuid.NewString(),
		OwnerID:          owner.ID,
		TargetID:         target.ID,
		Group:            group,
		CreatedAt:        d.now(),
		TargetScreenName: target.ScreenName,
		TargetAvatarURL:  target.AvatarURL,
	}

	if err := d.Entries.Add(ctx, entry); err != nil {
		return models.BuddyEntry{}, err
	}
	return entry, nil
}

// Remove deletes the owner's entry for the named target. Removing an absent
// entry, or naming an account that does not exist, is not an error.
func (d *Directory) Remove(ctx context.Context, owner models.Account, targetName string) error {
	target, err := d.Accounts.FindByScreenName(ctx, models.NormalizeScreenName(targetName))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return err
	}
	return d.Entries.Remove(ctx, owner.ID, target.ID)
}

// SetMute flips the mute flag on an existing entry. Mute is a client-side
// notification hint only; the relay and presence engine never consult it.
func (d *Directory) SetMute(ctx context.Context, owner models.Account, targetName string, muted bool) error {
	target, err := d.Accounts.FindByScreenName(ctx, models.NormalizeScreenName(targetName))
	if err != nil {
		return err
	}
	return d.Entries.SetMute(ctx, owner.ID, target.ID, muted)
}

// SetBlock flips the block flag on an existing entry. Block is authoritative:
// it denies message delivery and presence visibility in both directions.
func (d *Directory) SetBlock(ctx context.Context, owner models.Account, targetName string, blocked bool) error {
	target, err := d.Accounts.FindByScreenName(ctx, models.NormalizeScreenName(targetName))
	if err != nil {
		return err
	}
	return d.Entries.SetBlock(ctx, owner.ID, target.ID, blocked)
}

// Groups returns the owner's buddy list grouped by group name, groups sorted
// by name. Order within a group follows the underlying list query.
func (d *Directory) Groups(ctx context.Context, owner models.Account) ([]Group, error) {
	entries, err := d.Entries.ListForOwner(ctx, owner.ID)
	if err != nil {
		return nil, err
	}

	byName := make(map[string][]models.BuddyEntry)
	for _, entry := range entries {
		byName[entry.Group] = append(byName[entry.Group], entry)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]Group, 0, len(names))
	for _, name := range names {
		groups = append(groups, Group{Name: name, Buddies: byName[name]})
	}
	return groups, nil
}

// IsBlocked reports whether a block exists between the two accounts in either
// direction.
func (d *Directory) IsBlocked(ctx context.Context, accountA, accountB string) (bool, error) {
	return d.Entries.IsBlocked(ctx, accountA, accountB)
}

func (d *Directory) now() time.Time {
	if d.NowFunc != nil {
		return d.NowFunc()
	}
	return time.Now().UTC()
}
