package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/stridebuddy/backend/internal/logging"
)

// SessionHandler implements the heartbeat endpoint.
type SessionHandler struct {
	Sessions SessionStore
}

// Heartbeat handles POST /api/v1/session/heartbeat requests. The client
// reports its explicit idle flag with every beat; absence of beats past the
// expiry ceiling signs the session out.
func (h SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session store unavailable")
		errorJSON(ctx, w, http.StatusInternalServerError, "session service unavailable")
		return
	}

	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid heartbeat payload", "error", err)
		errorJSON(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Sessions.Touch(bearerToken(r), req.Idle); err != nil {
		errorJSON(ctx, w, http.StatusUnauthorized, "invalid or expired session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

type heartbeatRequest struct {
	Idle bool `json:"idle"`
}
