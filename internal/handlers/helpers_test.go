package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stridebuddy/backend/internal/auth"
	"github.com/stridebuddy/backend/internal/buddies"
	"github.com/stridebuddy/backend/internal/models"
	"github.com/stridebuddy/backend/internal/presence"
	"github.com/stridebuddy/backend/internal/relay"
	"github.com/stridebuddy/backend/internal/repositories"
)

// memAccounts is an in-memory AccountStore for handler tests.
type memAccounts struct {
	mu   sync.Mutex
	byID map[string]models.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: make(map[string]models.Account)}
}

func (m *memAccounts) Create(_ context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.ScreenNameKey == account.ScreenNameKey {
			return repositories.ErrConflict
		}
	}
	m.byID[account.ID] = account
	return nil
}

func (m *memAccounts) FindByScreenName(_ context.Context, name string) (models.Account, error) {
	key := models.NormalizeScreenName(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.byID {
		if account.ScreenNameKey == key {
			return account, nil
		}
	}
	return models.Account{}, repositories.ErrNotFound
}

func (m *memAccounts) FindByID(_ context.Context, id string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return models.Account{}, repositories.ErrNotFound
	}
	return account, nil
}

func (m *memAccounts) UpdateCredential(_ context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	account.Password = passwordHash
	account.ResetCode = ""
	account.ResetExpiresAt = nil
	account.UpdatedAt = updatedAt
	m.byID[id] = account
	return nil
}

func (m *memAccounts) SetResetCode(_ context.Context, id, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	account.ResetCode = code
	account.ResetExpiresAt = &expiresAt
	m.byID[id] = account
	return nil
}

func (m *memAccounts) SetAvatarURL(_ context.Context, id, url string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	account.AvatarURL = url
	account.UpdatedAt = updatedAt
	m.byID[id] = account
	return nil
}

// memEntries is an in-memory buddies.EntryStore for handler tests.
type memEntries struct {
	mu      sync.Mutex
	entries map[string]models.BuddyEntry
}

func newMemEntries() *memEntries {
	return &memEntries{entries: make(map[string]models.BuddyEntry)}
}

func pairKey(ownerID, targetID string) string { return ownerID + "/" + targetID }

func (m *memEntries) Add(_ context.Context, entry models.BuddyEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(entry.OwnerID, entry.TargetID)
	if _, ok := m.entries[key]; ok {
		return repositories.ErrConflict
	}
	m.entries[key] = entry
	return nil
}

func (m *memEntries) Remove(_ context.Context, ownerID, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, pairKey(ownerID, targetID))
	return nil
}

func (m *memEntries) SetMute(_ context.Context, ownerID, targetID string, muted bool) error {
	return m.setFlag(ownerID, targetID, func(entry *models.BuddyEntry) { entry.Muted = muted })
}

func (m *memEntries) SetBlock(_ context.Context, ownerID, targetID string, blocked bool) error {
	return m.setFlag(ownerID, targetID, func(entry *models.BuddyEntry) { entry.Blocked = blocked })
}

func (m *memEntries) setFlag(ownerID, targetID string, apply func(*models.BuddyEntry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(ownerID, targetID)
	entry, ok := m.entries[key]
	if !ok {
		return repositories.ErrNotFound
	}
	apply(&entry)
	m.entries[key] = entry
	return nil
}

func (m *memEntries) ListForOwner(_ context.Context, ownerID string) ([]models.BuddyEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BuddyEntry
	for _, entry := range m.entries {
		if entry.OwnerID == ownerID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memEntries) IsBlocked(_ context.Context, accountA, accountB string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[pairKey(accountA, accountB)]; ok && entry.Blocked {
		return true, nil
	}
	if entry, ok := m.entries[pairKey(accountB, accountA)]; ok && entry.Blocked {
		return true, nil
	}
	return false, nil
}

// fakeClock is a mutable time source shared across the stack under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv runs the full handler stack against in-memory collaborators.
type testEnv struct {
	t        *testing.T
	server   *httptest.Server
	accounts *memAccounts
	sessions *auth.Store
	clock    *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newFakeClock()
	accounts := newMemAccounts()
	entries := newMemEntries()

	sessions := auth.NewStore(10 * time.Minute)
	sessions.WithNowFunc(clock.Now)

	directory := &buddies.Directory{Accounts: accounts, Entries: entries, NowFunc: clock.Now}

	engine := &presence.Engine{
		AwayThreshold: 2 * time.Minute,
		Sessions:      sessions,
		Blocks:        directory,
		NowFunc:       clock.Now,
	}

	messageRelay := relay.New(relay.Options{
		Accounts: accounts,
		Blocks:   directory,
		Sessions: sessions,
		NowFunc:  clock.Now,
	})

	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Accounts: accounts,
		Sessions: sessions,
		Buddies:  directory,
		Presence: engine,
		Relay:    messageRelay,
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{t: t, server: server, accounts: accounts, sessions: sessions, clock: clock}
}

// do issues a JSON request against the test server, decoding the response body
// into out when out is non-nil. It returns the response status code.
func (e *testEnv) do(method, path, token string, payload, out any) int {
	e.t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			e.t.Fatalf("marshal request payload: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		e.t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			e.t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// signUp registers an account and returns its session token.
func (e *testEnv) signUp(screenName, password string) string {
	e.t.Helper()

	var resp struct {
		Token      string `json:"token"`
		ScreenName string `json:"screenName"`
	}
	status := e.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"screenName": screenName,
		"password":   password,
	}, &resp)
	if status != http.StatusCreated {
		e.t.Fatalf("signup %s returned status %d", screenName, status)
	}
	if resp.Token == "" {
		e.t.Fatalf("signup %s returned an empty token", screenName)
	}
	return resp.Token
}

func (e *testEnv) heartbeat(token string, idle bool) int {
	e.t.Helper()
	return e.do(http.MethodPost, "/api/v1/session/heartbeat", token, map[string]bool{"idle": idle}, nil)
}

func (e *testEnv) addBuddy(token, screenName, group string) int {
	e.t.Helper()
	return e.do(http.MethodPost, "/api/v1/buddies", token, map[string]string{
		"screenName": screenName,
		"group":      group,
	}, nil)
}

func (e *testEnv) setBlock(token, screenName string, enabled bool) int {
	e.t.Helper()
	return e.do(http.MethodPost, "/api/v1/buddies/block", token, map[string]any{
		"screenName": screenName,
		"enabled":    enabled,
	}, nil)
}

func (e *testEnv) presenceOf(token string) (string, map[string]string) {
	e.t.Helper()

	var resp struct {
		Self    string            `json:"self"`
		Buddies map[string]string `json:"buddies"`
	}
	status := e.do(http.MethodGet, "/api/v1/presence", token, nil, &resp)
	if status != http.StatusOK {
		e.t.Fatalf("presence returned status %d", status)
	}
	return resp.Self, resp.Buddies
}

type polledMessages struct {
	Messages []struct {
		ID        string    `json:"id"`
		Sender    string    `json:"sender"`
		Body      string    `json:"body"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"messages"`
	Typing []struct {
		Sender string    `json:"sender"`
		SentAt time.Time `json:"sentAt"`
	} `json:"typing"`
	Dropped uint64 `json:"dropped"`
}

func (e *testEnv) poll(token string) (polledMessages, int) {
	e.t.Helper()

	var resp polledMessages
	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/api/v1/messages", nil)
	if err != nil {
		e.t.Fatalf("build poll request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	raw, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("poll: %v", err)
	}
	defer raw.Body.Close()

	if raw.StatusCode == http.StatusOK {
		if err := json.NewDecoder(raw.Body).Decode(&resp); err != nil {
			e.t.Fatalf("decode poll response: %v", err)
		}
	}
	return resp, raw.StatusCode
}

func (e *testEnv) send(token, recipient, body string) int {
	e.t.Helper()
	return e.do(http.MethodPost, "/api/v1/messages", token, map[string]string{
		"screenName": recipient,
		"body":       body,
	}, nil)
}
