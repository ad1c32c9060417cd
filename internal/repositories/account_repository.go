package repositories

import (
	"context"
	"time"

	"github.com/stridebuddy/backend/internal/models"
)

// AccountRepository captures the persistence operations for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account models.Account) error
	FindByScreenName(ctx context.Context, name string) (models.Account, error)
	FindByID(ctx context.Context, id string) (models.Account, error)
	UpdateCredential(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	SetResetCode(ctx context.Context, id, code string, expiresAt time.Time) error
	SetAvatarURL(ctx context.Context, id, url string, updatedAt time.Time) error
}
