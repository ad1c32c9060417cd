package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/stridebuddy/backend/internal/buddies"
	"github.com/stridebuddy/backend/internal/logging"
	"github.com/stridebuddy/backend/internal/models"
	"github.com/stridebuddy/backend/internal/repositories"
)

// BuddyHandler implements buddy-list endpoints.
type BuddyHandler struct {
	Sessions SessionStore
	Accounts AccountStore
	Buddies  BuddyDirectory
}

// Handle serves /api/v1/buddies: GET lists the grouped buddy list, POST adds
// an entry.
func (h BuddyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.add(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h BuddyHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	groups, err := h.Buddies.Groups(ctx, owner)
	if err != nil {
		logger.Error("failed to list buddies", "error", err, "accountId", owner.ID)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to list buddies")
		return
	}

	out := make([]buddyGroup, 0, len(groups))
	for _, group := range groups {
		entries := make([]buddyView, 0, len(group.Buddies))
		for _, entry := range group.Buddies {
			entries = append(entries, buddyView{
				ScreenName: entry.TargetScreenName,
				AvatarURL:  entry.TargetAvatarURL,
				Muted:      entry.Muted,
				Blocked:    entry.Blocked,
				AddedAt:    entry.CreatedAt,
			})
		}
		out = append(out, buddyGroup{Name: group.Name, Buddies: entries})
	}

	respondJSON(ctx, w, http.StatusOK, listBuddiesResponse{Groups: out})
}

func (h BuddyHandler) add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req buddyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid buddy add payload", "error", err)
		errorJSON(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScreenName == "" {
		errorJSON(ctx, w, http.StatusBadRequest, "screen name is required")
		return
	}

	entry, err := h.Buddies.Add(ctx, owner, req.ScreenName, req.Group)
	if err != nil {
		switch {
		case errors.Is(err, buddies.ErrSelfBuddy):
			errorJSON(ctx, w, http.StatusConflict, "cannot add yourself as a buddy")
		case errors.Is(err, repositories.ErrNotFound):
			errorJSON(ctx, w, http.StatusNotFound, "no account with that screen name")
		case errors.Is(err, repositories.ErrConflict):
			errorJSON(ctx, w, http.StatusConflict, "buddy already on your list")
		default:
			logger.Error("failed to add buddy", "error", err, "accountId", owner.ID)
			errorJSON(ctx, w, http.StatusInternalServerError, "unable to add buddy")
		}
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{
		"screenName": entry.TargetScreenName,
		"group":      entry.Group,
	})
}

// Remove handles POST /api/v1/buddies/remove. Removing an absent buddy succeeds.
func (h BuddyHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req buddyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid buddy remove payload", "error", err)
		errorJSON(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScreenName == "" {
		errorJSON(ctx, w, http.StatusBadRequest, "screen name is required")
		return
	}

	if err := h.Buddies.Remove(ctx, owner, req.ScreenName); err != nil {
		logger.Error("failed to remove buddy", "error", err, "accountId", owner.ID)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to remove buddy")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "removed"})
}

// Mute handles POST /api/v1/buddies/mute requests.
func (h BuddyHandler) Mute(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, "mute")
}

// Block handles POST /api/v1/buddies/block requests.
func (h BuddyHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, "block")
}

func (h BuddyHandler) setFlag(w http.ResponseWriter, r *http.Request, flag string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req buddyFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid buddy flag payload", "flag", flag, "error", err)
		errorJSON(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScreenName == "" {
		errorJSON(ctx, w, http.StatusBadRequest, "screen name is required")
		return
	}

	var err error
	if flag == "mute" {
		err = h.Buddies.SetMute(ctx, owner, req.ScreenName, req.Enabled)
	} else {
		err = h.Buddies.SetBlock(ctx, owner, req.ScreenName, req.Enabled)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			errorJSON(ctx, w, http.StatusNotFound, "no such buddy on your list")
			return
		}
		logger.Error("failed to update buddy flag", "flag", flag, "error", err, "accountId", owner.ID)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to update buddy")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h BuddyHandler) owner(w http.ResponseWriter, r *http.Request) (models.Account, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := requireSession(w, r, h.Sessions)
	if !ok {
		return models.Account{}, false
	}

	if h.Accounts == nil || h.Buddies == nil {
		logger.Error("buddy dependencies unavailable", "hasAccounts", h.Accounts != nil, "hasBuddies", h.Buddies != nil)
		errorJSON(ctx, w, http.StatusInternalServerError, "buddy service unavailable")
		return models.Account{}, false
	}

	owner, err := h.Accounts.FindByID(ctx, identity.AccountID)
	if err != nil {
		logger.Error("session resolves to unknown account", "accountId", identity.AccountID, "error", err)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to resolve account")
		return models.Account{}, false
	}
	return owner, true
}

type buddyRequest struct {
	ScreenName string `json:"screenName"`
	Group      string `json:"group"`
}

type buddyFlagRequest struct {
	ScreenName string `json:"screenName"`
	Enabled    bool   `json:"enabled"`
}

type buddyView struct {
	ScreenName string    `json:"screenName"`
	AvatarURL  string    `json:"avatarUrl,omitempty"`
	Muted      bool      `json:"muted"`
	Blocked    bool      `json:"blocked"`
	AddedAt    time.Time `json:"addedAt"`
}

type buddyGroup struct {
	Name    string      `json:"name"`
	Buddies []buddyView `json:"buddies"`
}

type listBuddiesResponse struct {
	Groups []buddyGroup `json:"groups"`
}
