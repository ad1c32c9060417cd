package relay

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stridebuddy/backend/internal/auth"
	"github.com/stridebuddy/backend/internal/models"
	"github.com/stridebuddy/backend/internal/repositories"
)

var (
	// ErrBlocked indicates a block exists between sender and recipient.
	ErrBlocked = errors.New("delivery blocked")
	// ErrRecipientNotFound indicates the recipient screen name is unknown.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrEmptyBody indicates a send with no message content.
	ErrEmptyBody = errors.New("message body is required")
)

// AccountResolver resolves screen names to accounts.
type AccountResolver interface {
	FindByScreenName(ctx context.Context, name string) (models.Account, error)
}

// BlockChecker reports whether a block exists between two accounts in either
// direction.
type BlockChecker interface {
	IsBlocked(ctx context.Context, accountA, accountB string) (bool, error)
}

// LivenessSource reports whether an account has a live session.
type LivenessSource interface {
	HasLive(account string) bool
}

// Stats receives relay counters; implementations must be safe for concurrent use.
type Stats interface {
	MessageRelayed()
	MessageDropped()
	TypingForwarded()
}

// Options configures a Relay.
type Options struct {
	QueueCap  int // max undelivered messages per recipient
	TypingCap int // max buffered typing events per recipient
	Accounts  AccountResolver
	Blocks    BlockChecker
	Sessions  LivenessSource
	Stats     Stats // optional
	NowFunc   func() time.Time
}

const queueShardCount = 16

type queueShard struct {
	mu     sync.Mutex
	queues map[string]*queue
}

// queue buffers undelivered messages and typing events for one recipient.
// Each queue has its own lock and no relay operation ever holds two queue
// locks at once, so lock ordering across accounts never arises.
type queue struct {
	mu       sync.Mutex
	messages []models.Message
	typing   []models.TypingEvent
	dropped  uint64 // evictions since the last poll
}

// Relay accepts messages from authenticated senders and holds them until the
// recipient polls. State is process-lifetime only.
type Relay struct {
	queueCap  int
	typingCap int
	accounts  AccountResolver
	blocks    BlockChecker
	sessions  LivenessSource
	stats     Stats
	now       func() time.Time
	shards    [queueShardCount]queueShard
}

// New constructs a Relay from the provided options.
func New(opts Options) *Relay {
	if opts.QueueCap <= 0 {
		opts.QueueCap = 256
	}
	if opts.TypingCap <= 0 {
		opts.TypingCap = 32
	}
	if opts.NowFunc == nil {
		opts.NowFunc = func() time.Time { return time.Now().UTC() }
	}
	r := &Relay{
		queueCap:  opts.QueueCap,
		typingCap: opts.TypingCap,
		accounts:  opts.Accounts,
		blocks:    opts.Blocks,
		sessions:  opts.Sessions,
		stats:     opts.Stats,
		now:       opts.NowFunc,
	}
	for i := range r.shards {
		r.shards[i].queues = make(map[string]*queue)
	}
	return r
}

// Send validates the relationship between sender and recipient and enqueues a
// message for the recipient's next poll. The body is treated as opaque text;
// an optional HTML variant is carried alongside, never interpreted.
func (r *Relay) Send(ctx context.Context, sender auth.Identity, recipientName, body, htmlBody string) (models.Message, error) {
	if strings.TrimSpace(body) == "" && strings.TrimSpace(htmlBody) == "" {
		return models.Message{}, ErrEmptyBody
	}

	recipient, err := r.resolve(ctx, recipientName)
	if err != nil {
		return models.Message{}, err
	}

	blocked, err := r.blocks.IsBlocked(ctx, sender.AccountID, recipient.ID)
	if err != nil {
		return models.Message{}, fmt.Errorf("check block: %w", err)
	}
	if blocked {
		return models.Message{}, ErrBlocked
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Sender:    sender.ScreenName,
		Recipient: recipient.ScreenNameKey,
		Body:      body,
		HTMLBody:  htmlBody,
		CreatedAt: r.now(),
	}

	q := r.queueFor(recipient.ScreenNameKey)
	q.mu.Lock()
	if len(q.messages) >= r.queueCap {
		// Oldest-first eviction keeps memory bounded for recipients that
		// never poll; the dropped count is surfaced on the next poll.
		q.messages = q.messages[1:]
		q.dropped++
		if r.stats != nil {
			r.stats.MessageDropped()
		}
	}
	q.messages = append(q.messages, msg)
	q.mu.Unlock()

	if r.stats != nil {
		r.stats.MessageRelayed()
	}
	return msg, nil
}

// Poll drains the account's queue in FIFO (creation-time) order, marking each
// message delivered, and returns pending typing events plus the number of
// messages evicted since the previous poll.
func (r *Relay) Poll(account string) ([]models.Message, []models.TypingEvent, uint64) {
	q := r.queueFor(account)

	q.mu.Lock()
	messages := q.messages
	typing := q.typing
	dropped := q.dropped
	q.messages = nil
	q.typing = nil
	q.dropped = 0
	q.mu.Unlock()

	for i := range messages {
		messages[i].Delivered = true
	}
	return messages, typing, dropped
}

// NotifyTyping forwards a transient typing signal to the recipient's next
// poll. It is best-effort: unknown recipients, blocked pairs, and recipients
// with no live session all drop the signal silently.
func (r *Relay) NotifyTyping(ctx context.Context, sender auth.Identity, recipientName string) error {
	recipient, err := r.resolve(ctx, recipientName)
	if err != nil {
		if errors.Is(err, ErrRecipientNotFound) {
			return nil
		}
		return err
	}

	blocked, err := r.blocks.IsBlocked(ctx, sender.AccountID, recipient.ID)
	if err != nil || blocked {
		return err
	}

	if !r.sessions.HasLive(recipient.ScreenNameKey) {
		return nil
	}

	event := models.TypingEvent{Sender: sender.ScreenName, SentAt: r.now()}

	q := r.queueFor(recipient.ScreenNameKey)
	q.mu.Lock()
	if len(q.typing) >= r.typingCap {
		q.typing = q.typing[1:]
	}
	q.typing = append(q.typing, event)
	q.mu.Unlock()

	if r.stats != nil {
		r.stats.TypingForwarded()
	}
	return nil
}

func (r *Relay) resolve(ctx context.Context, name string) (models.Account, error) {
	key := models.NormalizeScreenName(name)
	if key == "" {
		return models.Account{}, ErrRecipientNotFound
	}
	account, err := r.accounts.FindByScreenName(ctx, key)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Account{}, ErrRecipientNotFound
		}
		return models.Account{}, fmt.Errorf("resolve recipient: %w", err)
	}
	return account, nil
}

func (r *Relay) queueFor(account string) *queue {
	h := fnv.New32a()
	_, _ = h.Write([]byte(account))
	shard := &r.shards[h.Sum32()%queueShardCount]

	shard.mu.Lock()
	defer shard.mu.Unlock()
	q, ok := shard.queues[account]
	if !ok {
		q = &queue{}
		shard.queues[account] = q
	}
	return q
}
