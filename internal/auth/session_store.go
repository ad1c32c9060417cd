package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidSession is returned uniformly for unknown, expired, and revoked
// tokens so callers cannot distinguish the three cases.
var ErrInvalidSession = errors.New("invalid session")

// Identity is the account a validated token belongs to.
type Identity struct {
	AccountID  string
	ScreenName string // normalized identity key
}

// Activity is a point-in-time snapshot of one session's heartbeat state.
type Activity struct {
	IssuedAt      time.Time
	LastHeartbeat time.Time
	Idle          bool
}

// session is a live token record. Heartbeat fields are atomics so Touch and
// presence reads never contend with the shard locks that guard the maps.
type session struct {
	token     string
	identity  Identity
	issuedAt  time.Time
	heartbeat atomic.Int64 // unix nanoseconds
	idle      atomic.Bool
}

func (s *session) activity() Activity {
	return Activity{
		IssuedAt:      s.issuedAt,
		LastHeartbeat: time.Unix(0, s.heartbeat.Load()),
		Idle:          s.idle.Load(),
	}
}

const shardCount = 32

type tokenShard struct {
	mu      sync.RWMutex
	byToken map[string]*session
}

type accountShard struct {
	mu        sync.RWMutex
	byAccount map[string]map[string]*session // screen name key -> token -> session
}

// Store holds all live sessions in memory for the lifetime of the process.
// Tokens are sharded by token hash; a second index sharded by account key
// serves presence queries. Writers always take the token shard before the
// account shard, so the two lock families cannot deadlock.
type Store struct {
	ttl      time.Duration
	now      func() time.Time
	tokens   [shardCount]tokenShard
	accounts [shardCount]accountShard
}

// NewStore constructs a session store whose sessions expire after ttl without
// a heartbeat.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	s := &Store{ttl: ttl, now: time.Now}
	for i := range s.tokens {
		s.tokens[i].byToken = make(map[string]*session)
	}
	for i := range s.accounts {
		s.accounts[i].byAccount = make(map[string]map[string]*session)
	}
	return s
}

// WithNowFunc allows tests to override the time source.
func (s *Store) WithNowFunc(now func() time.Time) {
	s.now = now
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

// Create issues a fresh unguessable token for the identity and records a new
// live session with the current time as its first heartbeat.
func (s *Store) Create(identity Identity) (string, error) {
	if identity.AccountID == "" || identity.ScreenName == "" {
		return "", errors.New("auth: identity must carry account id and screen name")
	}

	token, err := randomToken()
	if err != nil {
		return "", err
	}

	now := s.now()
	sess := &session{token: token, identity: identity, issuedAt: now}
	sess.heartbeat.Store(now.UnixNano())

	ts := &s.tokens[shardIndex(token)]
	ts.mu.Lock()
	ts.byToken[token] = sess
	ts.mu.Unlock()

	as := &s.accounts[shardIndex(identity.ScreenName)]
	as.mu.Lock()
	set, ok := as.byAccount[identity.ScreenName]
	if !ok {
		set = make(map[string]*session)
		as.byAccount[identity.ScreenName] = set
	}
	set[token] = sess
	as.mu.Unlock()

	return token, nil
}

// Touch records a heartbeat and the client's explicit idle flag. Expired and
// unknown tokens both fail with ErrInvalidSession.
func (s *Store) Touch(token string, idle bool) error {
	sess, err := s.lookup(token)
	if err != nil {
		return err
	}
	sess.heartbeat.Store(s.now().UnixNano())
	sess.idle.Store(idle)
	return nil
}

// Validate resolves a token to its identity. Every authenticated operation
// goes through this before any side effect.
func (s *Store) Validate(token string) (Identity, error) {
	sess, err := s.lookup(token)
	if err != nil {
		return Identity{}, err
	}
	return sess.identity, nil
}

// Revoke removes a session immediately. Revoking an unknown token is a no-op.
func (s *Store) Revoke(token string) {
	if token == "" {
		return
	}
	ts := &s.tokens[shardIndex(token)]
	ts.mu.Lock()
	sess, ok := ts.byToken[token]
	if ok {
		delete(ts.byToken, token)
	}
	ts.mu.Unlock()

	if ok {
		s.dropAccountIndex(sess)
	}
}

// SessionsFor returns heartbeat snapshots for the account's live sessions.
// Expired sessions are skipped; the sweeper removes them eventually.
func (s *Store) SessionsFor(account string) []Activity {
	as := &s.accounts[shardIndex(account)]
	as.mu.RLock()
	set := as.byAccount[account]
	sessions := make([]*session, 0, len(set))
	for _, sess := range set {
		sessions = append(sessions, sess)
	}
	as.mu.RUnlock()

	now := s.now()
	var out []Activity
	for _, sess := range sessions {
		act := sess.activity()
		if now.Sub(act.LastHeartbeat) > s.ttl {
			continue
		}
		out = append(out, act)
	}
	return out
}

// HasLive reports whether the account has at least one unexpired session.
func (s *Store) HasLive(account string) bool {
	return len(s.SessionsFor(account)) > 0
}

// Count returns the number of live sessions across all shards.
func (s *Store) Count() int {
	total := 0
	now := s.now()
	for i := range s.tokens {
		ts := &s.tokens[i]
		ts.mu.RLock()
		for _, sess := range ts.byToken {
			if now.Sub(time.Unix(0, sess.heartbeat.Load())) <= s.ttl {
				total++
			}
		}
		ts.mu.RUnlock()
	}
	return total
}

// Sweep removes every session whose last heartbeat is older than the ttl and
// returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for i := range s.tokens {
		ts := &s.tokens[i]
		var expired []*session
		ts.mu.Lock()
		for token, sess := range ts.byToken {
			if now.Sub(time.Unix(0, sess.heartbeat.Load())) > s.ttl {
				delete(ts.byToken, token)
				expired = append(expired, sess)
			}
		}
		ts.mu.Unlock()

		for _, sess := range expired {
			s.dropAccountIndex(sess)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions on the given interval until the context ends.
func (s *Store) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 && logger != nil {
				logger.Info("expired sessions swept", "removed", removed)
			}
		}
	}
}

// lookup fetches a session, lazily expiring it if its heartbeat is too old.
// Lazy expiry covers the window between sweeper passes.
func (s *Store) lookup(token string) (*session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	ts := &s.tokens[shardIndex(token)]
	ts.mu.RLock()
	sess, ok := ts.byToken[token]
	ts.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidSession
	}

	if s.now().Sub(time.Unix(0, sess.heartbeat.Load())) > s.ttl {
		s.Revoke(token)
		return nil, ErrInvalidSession
	}
	return sess, nil
}

func (s *Store) dropAccountIndex(sess *session) {
	as := &s.accounts[shardIndex(sess.identity.ScreenName)]
	as.mu.Lock()
	if set, ok := as.byAccount[sess.identity.ScreenName]; ok {
		delete(set, sess.token)
		if len(set) == 0 {
			delete(as.byAccount, sess.identity.ScreenName)
		}
	}
	as.mu.Unlock()
}

func randomToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
