package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/stridebuddy/backend/internal/auth"
	"github.com/stridebuddy/backend/internal/logging"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func errorJSON(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

// bearerToken extracts the session token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// requireSession validates the caller's token, answering a uniform 401 when
// it is missing, unknown, or expired. The bool reports whether to proceed.
func requireSession(w http.ResponseWriter, r *http.Request, sessions SessionStore) (auth.Identity, bool) {
	ctx := r.Context()
	if sessions == nil {
		logging.FromContext(ctx).Error("session store unavailable")
		errorJSON(ctx, w, http.StatusInternalServerError, "session service unavailable")
		return auth.Identity{}, false
	}

	identity, err := sessions.Validate(bearerToken(r))
	if err != nil {
		errorJSON(ctx, w, http.StatusUnauthorized, "invalid or expired session")
		return auth.Identity{}, false
	}
	return identity, true
}
