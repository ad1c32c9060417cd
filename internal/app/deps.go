package app

import (
	"context"

	"github.com/stridebuddy/backend/internal/auth"
	"github.com/stridebuddy/backend/internal/buddies"
	"github.com/stridebuddy/backend/internal/config"
	"github.com/stridebuddy/backend/internal/db"
	"github.com/stridebuddy/backend/internal/handlers"
	"github.com/stridebuddy/backend/internal/metrics"
	"github.com/stridebuddy/backend/internal/middleware"
	"github.com/stridebuddy/backend/internal/presence"
	"github.com/stridebuddy/backend/internal/relay"
	"github.com/stridebuddy/backend/internal/repositories"
	"github.com/stridebuddy/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, sessions *auth.Store, m *metrics.Metrics) (handlers.Dependencies, error) {
	accounts := repositories.NewPostgresAccountRepository(pool)
	buddyRepo := repositories.NewPostgresBuddyRepository(pool)

	directory := &buddies.Directory{Accounts: accounts, Entries: buddyRepo}

	engine := &presence.Engine{
		AwayThreshold: cfg.AwayThreshold,
		Sessions:      sessions,
		Blocks:        directory,
	}

	messageRelay := relay.New(relay.Options{
		QueueCap:  cfg.QueueCap,
		TypingCap: cfg.TypingCap,
		Accounts:  accounts,
		Blocks:    directory,
		Sessions:  sessions,
		Stats:     m,
	})

	deps := handlers.Dependencies{
		Accounts: accounts,
		Sessions: sessions,
		Buddies:  directory,
		Presence: engine,
		Relay:    messageRelay,
		AuthLimiter: middleware.NewKeyRateLimiter(
			cfg.AuthRateLimit.Requests,
			cfg.AuthRateLimit.Window,
			cfg.AuthRateLimit.Burst,
			cfg.AuthRateLimit.TTL,
		),
		SignOns: m,
		Metrics: m.Handler(),
	}

	if cfg.ObjectStore.Bucket != "" {
		avatars, err := storage.NewS3AvatarStore(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, err
		}
		deps.Avatars = avatars
	}

	return deps, nil
}
