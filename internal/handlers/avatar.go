package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/stridebuddy/backend/internal/logging"
)

// maxAvatarBytes bounds avatar uploads.
const maxAvatarBytes = 1 << 20

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
}

// AvatarHandler stores account avatar images in the configured object store.
type AvatarHandler struct {
	Sessions SessionStore
	Accounts AccountStore
	Storage  AvatarStorage // nil when no bucket is configured
	NowFunc  func() time.Time
}

// Upload handles POST /api/v1/avatar requests. The request body is the raw
// image; the Content-Type header selects the stored extension.
func (h AvatarHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := requireSession(w, r, h.Sessions)
	if !ok {
		return
	}

	if h.Storage == nil {
		errorJSON(ctx, w, http.StatusServiceUnavailable, "avatar storage is not configured")
		return
	}
	if h.Accounts == nil {
		logger.Error("account store unavailable")
		errorJSON(ctx, w, http.StatusInternalServerError, "avatar service unavailable")
		return
	}

	contentType := r.Header.Get("Content-Type")
	ext, ok := avatarExtensions[contentType]
	if !ok {
		errorJSON(ctx, w, http.StatusUnsupportedMediaType, "avatar must be png, jpeg, or gif")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	key := fmt.Sprintf("avatars/%s%s", identity.AccountID, ext)

	url, err := h.Storage.Save(ctx, key, contentType, body)
	if err != nil {
		logger.Error("failed to store avatar", "error", err, "accountId", identity.AccountID)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to store avatar")
		return
	}

	if err := h.Accounts.SetAvatarURL(ctx, identity.AccountID, url, h.now()); err != nil {
		logger.Error("failed to record avatar url", "error", err, "accountId", identity.AccountID)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to record avatar")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"url": url})
}

func (h AvatarHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
