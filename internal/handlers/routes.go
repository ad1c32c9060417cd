package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	authh := AuthHandler{Accounts: deps.Accounts, Sessions: deps.Sessions, Limiter: deps.AuthLimiter, Metrics: deps.SignOns}
	session := SessionHandler{Sessions: deps.Sessions}
	presence := PresenceHandler{Sessions: deps.Sessions, Accounts: deps.Accounts, Buddies: deps.Buddies, Presence: deps.Presence}
	buddiesH := BuddyHandler{Sessions: deps.Sessions, Accounts: deps.Accounts, Buddies: deps.Buddies}
	messages := MessageHandler{Sessions: deps.Sessions, Relay: deps.Relay}
	avatar := AvatarHandler{Sessions: deps.Sessions, Accounts: deps.Accounts, Storage: deps.Avatars}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/signup", authh.SignUp)
	mux.HandleFunc("/api/v1/auth/signon", authh.SignOn)
	mux.HandleFunc("/api/v1/auth/signout", authh.SignOut)
	mux.HandleFunc("/api/v1/auth/password-reset", authh.RequestPasswordReset)
	mux.HandleFunc("/api/v1/auth/password-reset/confirm", authh.ConfirmPasswordReset)
	mux.HandleFunc("/api/v1/session/heartbeat", session.Heartbeat)
	mux.HandleFunc("/api/v1/presence", presence.Get)
	mux.HandleFunc("/api/v1/buddies", buddiesH.Handle)
	mux.HandleFunc("/api/v1/buddies/remove", buddiesH.Remove)
	mux.HandleFunc("/api/v1/buddies/mute", buddiesH.Mute)
	mux.HandleFunc("/api/v1/buddies/block", buddiesH.Block)
	mux.HandleFunc("/api/v1/messages", messages.Handle)
	mux.HandleFunc("/api/v1/messages/typing", messages.Typing)
	mux.HandleFunc("/api/v1/avatar", avatar.Upload)

	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Accounts    AccountStore
	Sessions    SessionStore
	Buddies     BuddyDirectory
	Presence    PresenceSource
	Relay       MessageRelay
	Avatars     AvatarStorage
	AuthLimiter RateLimiter
	SignOns     SignOnCounter
	Metrics     http.Handler
}
