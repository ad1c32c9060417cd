package presence

import (
	"context"
	"time"

	"github.com/stridebuddy/backend/internal/auth"
	"github.com/stridebuddy/backend/internal/models"
)

// SessionSource exposes heartbeat snapshots for an account's live sessions.
type SessionSource interface {
	SessionsFor(account string) []auth.Activity
}

// BlockChecker reports whether a block exists between two accounts in either
// direction.
type BlockChecker interface {
	IsBlocked(ctx context.Context, accountA, accountB string) (bool, error)
}

// Engine derives presence on demand from session data. Nothing is stored, so
// presence can never drift from session liveness.
type Engine struct {
	AwayThreshold time.Duration
	Sessions      SessionSource
	Blocks        BlockChecker
	NowFunc       func() time.Time
}

// StateOf computes the account's true presence: Offline with no live
// sessions; Away when the freshest session is idle or its heartbeat is older
// than the away threshold; Online otherwise.
func (e *Engine) StateOf(account string) models.PresenceState {
	sessions := e.Sessions.SessionsFor(account)
	if len(sessions) == 0 {
		return models.PresenceOffline
	}

	newest := sessions[0]
	for _, act := range sessions[1:] {
		if act.LastHeartbeat.After(newest.LastHeartbeat) {
			newest = act
		}
	}

	if newest.Idle || e.now().Sub(newest.LastHeartbeat) > e.AwayThreshold {
		return models.PresenceAway
	}
	return models.PresenceOnline
}

// Observed computes the target's presence as seen by the viewer. A block in
// either direction hides the true state entirely and reports Offline. Mute
// has no presence effect.
func (e *Engine) Observed(ctx context.Context, viewer, target models.Account) (models.PresenceState, error) {
	blocked, err := e.Blocks.IsBlocked(ctx, viewer.ID, target.ID)
	if err != nil {
		return models.PresenceOffline, err
	}
	if blocked {
		return models.PresenceOffline, nil
	}
	return e.StateOf(target.ScreenNameKey), nil
}

func (e *Engine) now() time.Time {
	if e.NowFunc != nil {
		return e.NowFunc()
	}
	return time.Now().UTC()
}
