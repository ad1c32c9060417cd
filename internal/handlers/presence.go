package handlers

import (
	"net/http"

	"github.com/stridebuddy/backend/internal/logging"
	"github.com/stridebuddy/backend/internal/models"
)

// PresenceHandler serves derived presence for the caller and their buddies.
type PresenceHandler struct {
	Sessions SessionStore
	Accounts AccountStore
	Buddies  BuddyDirectory
	Presence PresenceSource
}

// Get handles GET /api/v1/presence requests. Presence is recomputed from
// session data on every call; a block in either direction reports Offline.
func (h PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := requireSession(w, r, h.Sessions)
	if !ok {
		return
	}

	if h.Accounts == nil || h.Buddies == nil || h.Presence == nil {
		logger.Error("presence dependencies unavailable")
		errorJSON(ctx, w, http.StatusInternalServerError, "presence service unavailable")
		return
	}

	viewer, err := h.Accounts.FindByID(ctx, identity.AccountID)
	if err != nil {
		// A valid session pointing at a missing account is an invariant
		// violation, not a client error.
		logger.Error("session resolves to unknown account", "accountId", identity.AccountID, "error", err)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to resolve account")
		return
	}

	groups, err := h.Buddies.Groups(ctx, viewer)
	if err != nil {
		logger.Error("failed to list buddies", "error", err, "accountId", viewer.ID)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to list buddies")
		return
	}

	states := make(map[string]models.PresenceState)
	for _, group := range groups {
		for _, entry := range group.Buddies {
			target := models.Account{
				ID:            entry.TargetID,
				ScreenName:    entry.TargetScreenName,
				ScreenNameKey: models.NormalizeScreenName(entry.TargetScreenName),
			}
			state, err := h.Presence.Observed(ctx, viewer, target)
			if err != nil {
				logger.Error("failed to derive presence", "error", err, "target", target.ScreenNameKey)
				errorJSON(ctx, w, http.StatusInternalServerError, "unable to derive presence")
				return
			}
			states[target.ScreenNameKey] = state
		}
	}

	respondJSON(ctx, w, http.StatusOK, presenceResponse{
		Self:    h.Presence.StateOf(identity.ScreenName),
		Buddies: states,
	})
}

type presenceResponse struct {
	Self    models.PresenceState            `json:"self"`
	Buddies map[string]models.PresenceState `json:"buddies"`
}
