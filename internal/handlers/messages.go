package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/stridebuddy/backend/internal/logging"
	"github.com/stridebuddy/backend/internal/relay"
)

// MessageHandler implements the send/poll/typing endpoints.
type MessageHandler struct {
	Sessions SessionStore
	Relay    MessageRelay
}

// Handle serves /api/v1/messages: POST sends, GET polls.
func (h MessageHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.send(w, r)
	case http.MethodGet:
		h.poll(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h MessageHandler) send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := requireSession(w, r, h.Sessions)
	if !ok {
		return
	}
	if h.Relay == nil {
		logger.Error("message relay unavailable")
		errorJSON(ctx, w, http.StatusInternalServerError, "message service unavailable")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid send payload", "error", err)
		errorJSON(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScreenName == "" {
		errorJSON(ctx, w, http.StatusBadRequest, "recipient screen name is required")
		return
	}

	msg, err := h.Relay.Send(ctx, identity, req.ScreenName, req.Body, req.HTMLBody)
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrEmptyBody):
			errorJSON(ctx, w, http.StatusBadRequest, "message body is required")
		case errors.Is(err, relay.ErrRecipientNotFound):
			errorJSON(ctx, w, http.StatusNotFound, "no account with that screen name")
		case errors.Is(err, relay.ErrBlocked):
			errorJSON(ctx, w, http.StatusForbidden, "delivery blocked")
		default:
			logger.Error("failed to relay message", "error", err, "sender", identity.ScreenName)
			errorJSON(ctx, w, http.StatusInternalServerError, "unable to send message")
		}
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, sendMessageResponse{MessageID: msg.ID, CreatedAt: msg.CreatedAt})
}

func (h MessageHandler) poll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireSession(w, r, h.Sessions)
	if !ok {
		return
	}
	if h.Relay == nil {
		logging.FromContext(ctx).Error("message relay unavailable")
		errorJSON(ctx, w, http.StatusInternalServerError, "message service unavailable")
		return
	}

	messages, typing, dropped := h.Relay.Poll(identity.ScreenName)

	out := make([]messageView, 0, len(messages))
	for _, msg := range messages {
		out = append(out, messageView{
			ID:        msg.ID,
			Sender:    msg.Sender,
			Body:      msg.Body,
			HTMLBody:  msg.HTMLBody,
			CreatedAt: msg.CreatedAt,
		})
	}

	typingOut := make([]typingView, 0, len(typing))
	for _, event := range typing {
		typingOut = append(typingOut, typingView{Sender: event.Sender, SentAt: event.SentAt})
	}

	respondJSON(ctx, w, http.StatusOK, pollResponse{
		Messages: out,
		Typing:   typingOut,
		Dropped:  dropped,
	})
}

// Typing handles POST /api/v1/messages/typing requests. The signal is
// fire-and-forget; the response does not reveal whether it was forwarded.
func (h MessageHandler) Typing(w http.ResponseWriter, r *http.Request) {
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
	if h.Relay == nil {
		logger.Error("message relay unavailable")
		errorJSON(ctx, w, http.StatusInternalServerError, "message service unavailable")
		return
	}

	var req typingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid typing payload", "error", err)
		errorJSON(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScreenName == "" {
		errorJSON(ctx, w, http.StatusBadRequest, "recipient screen name is required")
		return
	}

	if err := h.Relay.NotifyTyping(ctx, identity, req.ScreenName); err != nil {
		logger.Error("failed to forward typing signal", "error", err, "sender", identity.ScreenName)
		errorJSON(ctx, w, http.StatusInternalServerError, "unable to forward typing signal")
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]string{"status": "ok"})
}

type sendMessageRequest struct {
	ScreenName string `json:"screenName"`
	Body       string `json:"body"`
	HTMLBody   string `json:"htmlBody"`
}

type sendMessageResponse struct {
	MessageID string    `json:"messageId"`
	CreatedAt time.Time `json:"createdAt"`
}

type typingRequest struct {
	ScreenName string `json:"screenName"`
}

type messageView struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	HTMLBody  string    `json:"htmlBody,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type typingView struct {
	Sender string    `json:"sender"`
	SentAt time.Time `json:"sentAt"`
}

type pollResponse struct {
	Messages []messageView `json:"messages"`
	Typing   []typingView  `json:"typing"`
	Dropped  uint64        `json:"dropped"`
}
