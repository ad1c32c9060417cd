package handlers

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stridebuddy/backend/internal/auth"
	"github.com/stridebuddy/backend/internal/logging"
	"github.com/stridebuddy/backend/internal/models"
	"github.com/stridebuddy/backend/internal/repositories"
)

const (
	minScreenNameLen = 2
	maxScreenNameLen = 32
	minPasswordLen   = 8

	resetCodeTTL = 15 * time.Minute
)

// AuthHandler implements account and session lifecycle endpoints.
type AuthHandler struct {
	Accounts AccountStore
	Sessions SessionStore
	Limiter  RateLimiter
	Metrics  SignOnCounter
	NowFunc  func() time.Time
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Accounts == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasAccounts", h.Accounts != nil, "hasSessions", h.Sessions != nil)
		errorJSON(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	if !allowRequest(h.Limiter, r, "signup") {
		errorJSON(ctx, w, http.StatusTooManyRequests, "too many attempts, slow down")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		errorJSON(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.ScreenName = strings.TrimSpace(req.ScreenName)
	if msg, ok := validateCredentials(req.ScreenName, req.Password); !ok {
		logger.Warn("signup rejected", "reason", msg, "screenName", req.ScreenName)
		errorJSON(ctx, w, http.StatusBadRequest, msg)
		return
	}

	key := models.NormalizeScreenName(req.ScreenName)
	if _, err := h.Accounts.FindByScreenName(ctx, key); err == nil {
		logger.Warn("signup existing account", "screenName", key)
		errorJSON(ctx, w, http.StatusConflict, "screen name already taken")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("signup account lookup failed", "error", err, "screenName", key)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to verify existing accounts")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("signup failed to hash password", "error", err)
		errorJSON(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	now := h.now()
	account := models.Account{
		ID:            uuid.NewString(),
		ScreenName:    req.ScreenName,
		ScreenNameKey: key,
		Password:      string(hashed),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.Accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("signup conflict", "screenName", key)
			errorJSON(ctx, w, http.StatusConflict, "screen name already taken")
			return
		}
		logger.Error("signup failed to create account", "error", err, "screenName", key)
		errorJSON(ctx, w, http.StatusInternalServerError, "failed to create account")
		return
	}

	token, err := h.Sessions.Create(auth.Identity{AccountID: account.ID, ScreenName: key})
	if err != nil {
		logger.Error("signup failed to create session", "error", err, "accountId", account.ID)
		errorJSON(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondJSON(ctx, w, http.StatusCreated, sessionResponse{Token: token, ScreenName: account.ScreenName})
}

// SignOn handles POST /api/v1/auth/signon requests.
func (h AuthHandler) SignOn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Accounts == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasAccounts", h.Accounts != nil, "hasSessions", h.Sessions != nil)
		errorJSON(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	if !allowRequest(h.Limiter, r, "signon") {
		errorJSON(ctx, w, http.StatusTooManyRequests, "too many attempts, slow down")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signon payload", "error", err)
		errorJSON(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := models.NormalizeScreenName(req.ScreenName)
	if key == "" || req.Password == "" {
		logger.Warn("signon missing credentials", "screenName", key)
		errorJSON(ctx, w, http.StatusBadRequest, "screen name and password are required")
		return
	}

	account, err := h.Accounts.FindByScreenName(ctx, key)
	if err != nil {
		logger.Warn("signon account lookup failed", "screenName", key, "error", err)
		errorJSON(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(req.Password)); err != nil {
		logger.Warn("signon password mismatch", "accountId", account.ID)
		errorJSON(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.Sessions.Create(auth.Identity{AccountID: account.ID, ScreenName: key})
	if err != nil {
		logger.Error("failed to create session", "error", err, "accountId", account.ID)
		errorJSON(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	if h.Metrics != nil {
		h.Metrics.SignOn()
	}
	respondJSON(ctx, w, http.StatusOK, sessionResponse{Token: token, ScreenName: account.ScreenName})
}

// SignOut handles POST /api/v1/auth/signout requests.
func (h AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if _, ok := requireSession(w, r, h.Sessions); !ok {
		return
	}

	h.Sessions.Revoke(bearerToken(r))
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "signed out"})
}

// RequestPasswordReset handles POST /api/v1/auth/password-reset requests. The
// response never reveals whether the account exists. No mail delivery is
// wired, so the code is echoed back for development setups.
func (h AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Accounts == nil {
		logger.Error("account store unavailable")
		errorJSON(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	if !allowRequest(h.Limiter, r, "reset") {
		errorJSON(ctx, w, http.StatusTooManyRequests, "too many attempts, slow down")
		return
	}

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid password reset payload", "error", err)
		errorJSON(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := models.NormalizeScreenName(req.ScreenName)
	if key == "" {
		errorJSON(ctx, w, http.StatusBadRequest, "screen name is required")
		return
	}

	account, err := h.Accounts.FindByScreenName(ctx, key)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("password reset lookup failed", "error", err, "screenName", key)
			errorJSON(ctx, w, http.StatusInternalServerError, "unable to process password reset")
			return
		}
		respondJSON(ctx, w, http.StatusAccepted, resetResponse{Status: "reset code issued if the account exists"})
		return
	}

	code, err := resetCode()
	if err != nil {
		logger.Error("failed to generate reset code", "error", err)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	if err := h.Accounts.SetResetCode(ctx, account.ID, code, h.now().Add(resetCodeTTL)); err != nil {
		logger.Error("failed to store reset code", "error", err, "accountId", account.ID)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, resetResponse{
		Status:  "reset code issued if the account exists",
		DevCode: code,
	})
}

// ConfirmPasswordReset handles POST /api/v1/auth/password-reset/confirm requests.
func (h AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Accounts == nil {
		logger.Error("account store unavailable")
		errorJSON(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	var req confirmResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset confirm payload", "error", err)
		errorJSON(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := models.NormalizeScreenName(req.ScreenName)
	req.Code = strings.TrimSpace(req.Code)
	if key == "" || req.Code == "" || req.NewPassword == "" {
		errorJSON(ctx, w, http.StatusBadRequest, "screen name, code, and new password are required")
		return
	}
	if len(req.NewPassword) < minPasswordLen {
		errorJSON(ctx, w, http.StatusBadRequest, fmt.Sprintf("password must be at least %d characters", minPasswordLen))
		return
	}

	account, err := h.Accounts.FindByScreenName(ctx, key)
	if err != nil || account.ResetCode == "" || account.ResetCode != req.Code {
		errorJSON(ctx, w, http.StatusBadRequest, "invalid code")
		return
	}
	if account.ResetExpiresAt == nil || h.now().After(*account.ResetExpiresAt) {
		errorJSON(ctx, w, http.StatusBadRequest, "code expired")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash new password", "error", err)
		errorJSON(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	if err := h.Accounts.UpdateCredential(ctx, account.ID, string(hashed), h.now()); err != nil {
		logger.Error("failed to rotate credential", "error", err, "accountId", account.ID)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to reset password")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "password updated"})
}

func validateCredentials(screenName, password string) (string, bool) {
	if screenName == "" || password == "" {
		return "screen name and password are required", false
	}
	if len(screenName) < minScreenNameLen || len(screenName) > maxScreenNameLen {
		return fmt.Sprintf("screen name must be %d-%d characters", minScreenNameLen, maxScreenNameLen), false
	}
	if len(password) < minPasswordLen {
		return fmt.Sprintf("password must be at least %d characters", minPasswordLen), false
	}
	return "", true
}

func resetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

type credentialsRequest struct {
	ScreenName string `json:"screenName"`
	Password   string `json:"password"`
}

type resetRequest struct {
	ScreenName string `json:"screenName"`
}

type confirmResetRequest struct {
	ScreenName  string `json:"screenName"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type sessionResponse struct {
	Token      string `json:"token"`
	ScreenName string `json:"screenName"`
}

type resetResponse struct {
	Status  string `json:"status"`
	DevCode string `json:"devCode,omitempty"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
