package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stridebuddy/backend/internal/auth"
	"github.com/stridebuddy/backend/internal/models"
	"github.com/stridebuddy/backend/internal/repositories"
)

type fakeResolver struct {
	byKey map[string]models.Account
}

func (f fakeResolver) FindByScreenName(_ context.Context, name string) (models.Account, error) {
	account, ok := f.byKey[name]
	if !ok {
		return models.Account{}, repositories.ErrNotFound
	}
	return account, nil
}

type fakeBlocks struct {
	blocked map[string]bool // "a/b" normalized ordering is the caller's concern
}

func (f fakeBlocks) IsBlocked(_ context.Context, a, b string) (bool, error) {
	return f.blocked[a+"/"+b] || f.blocked[b+"/"+a], nil
}

type fakeLiveness struct {
	live map[string]bool
}

func (f fakeLiveness) HasLive(account string) bool { return f.live[account] }

type countingStats struct {
	relayed int
	dropped int
	typing  int
}

func (c *countingStats) MessageRelayed()  { c.relayed++ }
func (c *countingStats) MessageDropped()  { c.dropped++ }
func (c *countingStats) TypingForwarded() { c.typing++ }

func testRelay(opts Options) *Relay {
	if opts.Accounts == nil {
		opts.Accounts = fakeResolver{byKey: map[string]models.Account{
			"wave": {ID: "acct-1", ScreenName: "Wave", ScreenNameKey: "wave"},
			"buzz": {ID: "acct-2", ScreenName: "Buzz", ScreenNameKey: "buzz"},
		}}
	}
	if opts.Blocks == nil {
		opts.Blocks = fakeBlocks{}
	}
	if opts.Sessions == nil {
		opts.Sessions = fakeLiveness{live: map[string]bool{"wave": true, "buzz": true}}
	}
	return New(opts)
}

func sender() auth.Identity {
	return auth.Identity{AccountID: "acct-1", ScreenName: "wave"}
}

func TestSendAndPollFIFO(t *testing.T) {
	relay := testRelay(Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := relay.Send(ctx, sender(), "Buzz", fmt.Sprintf("msg-%d", i), ""); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
	}

	messages, typing, dropped := relay.Poll("buzz")
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, msg := range messages {
		if want := fmt.Sprintf("msg-%d", i); msg.Body != want {
			t.Fatalf("message %d out of order: got %q, want %q", i, msg.Body, want)
		}
		if !msg.Delivered {
			t.Fatalf("message %d not marked delivered", i)
		}
		if msg.Sender != "wave" || msg.Recipient != "buzz" {
			t.Fatalf("message %d has wrong endpoints: %+v", i, msg)
		}
	}
	if len(typing) != 0 || dropped != 0 {
		t.Fatalf("expected no typing events or drops, got %d/%d", len(typing), dropped)
	}

	// Each message is delivered at most once.
	messages, _, _ = relay.Poll("buzz")
	if len(messages) != 0 {
		t.Fatalf("expected an empty queue on the second poll, got %d", len(messages))
	}
}

func TestSendEmptyBody(t *testing.T) {
	relay := testRelay(Options{})

	if _, err := relay.Send(context.Background(), sender(), "buzz", "   ", ""); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}

	// An HTML-only payload still counts as content.
	if _, err := relay.Send(context.Background(), sender(), "buzz", "", "<b>hi</b>"); err != nil {
		t.Fatalf("expected HTML-only send to succeed, got %v", err)
	}
}

func TestSendUnknownRecipient(t *testing.T) {
	relay := testRelay(Options{})

	if _, err := relay.Send(context.Background(), sender(), "nobody", "hi", ""); !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
	if _, err := relay.Send(context.Background(), sender(), "  ", "hi", ""); !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound for blank name, got %v", err)
	}
}

func TestSendBlockedEitherDirection(t *testing.T) {
	relay := testRelay(Options{
		Blocks: fakeBlocks{blocked: map[string]bool{"acct-2/acct-1": true}},
	})

	if _, err := relay.Send(context.Background(), sender(), "buzz", "hi", ""); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}

	messages, _, _ := relay.Poll("buzz")
	if len(messages) != 0 {
		t.Fatalf("blocked message must never reach the queue, got %d", len(messages))
	}
}

func TestQueueOverflowEvictsOldest(t *testing.T) {
	stats := &countingStats{}
	relay := testRelay(Options{QueueCap: 2, Stats: stats})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := relay.Send(ctx, sender(), "buzz", fmt.Sprintf("msg-%d", i), ""); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
	}

	messages, _, dropped := relay.Poll("buzz")
	if dropped != 2 {
		t.Fatalf("expected 2 dropped, got %d", dropped)
	}
	if len(messages) != 2 {
		t.Fatalf("expected the queue capped at 2, got %d", len(messages))
	}
	if messages[0].Body != "msg-2" || messages[1].Body != "msg-3" {
		t.Fatalf("expected the two newest messages to survive, got %q and %q", messages[0].Body, messages[1].Body)
	}
	if stats.dropped != 2 || stats.relayed != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// The dropped counter resets once reported.
	_, _, dropped = relay.Poll("buzz")
	if dropped != 0 {
		t.Fatalf("expected dropped counter to reset, got %d", dropped)
	}
}

func TestNotifyTyping(t *testing.T) {
	stats := &countingStats{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	relay := testRelay(Options{Stats: stats, NowFunc: func() time.Time { return now }})

	if err := relay.NotifyTyping(context.Background(), sender(), "buzz"); err != nil {
		t.Fatalf("NotifyTyping returned error: %v", err)
	}

	_, typing, _ := relay.Poll("buzz")
	if len(typing) != 1 {
		t.Fatalf("expected 1 typing event, got %d", len(typing))
	}
	if typing[0].Sender != "wave" || !typing[0].SentAt.Equal(now) {
		t.Fatalf("unexpected typing event: %+v", typing[0])
	}
	if stats.typing != 1 {
		t.Fatalf("expected typing counter 1, got %d", stats.typing)
	}
}

func TestNotifyTypingBestEffortDrops(t *testing.T) {
	stats := &countingStats{}
	relay := testRelay(Options{
		Stats:    stats,
		Sessions: fakeLiveness{live: map[string]bool{}},
	})
	ctx := context.Background()

	// Unknown recipient, blocked pair, and offline recipient all drop quietly.
	if err := relay.NotifyTyping(ctx, sender(), "nobody"); err != nil {
		t.Fatalf("expected silence for unknown recipient, got %v", err)
	}
	if err := relay.NotifyTyping(ctx, sender(), "buzz"); err != nil {
		t.Fatalf("expected silence for offline recipient, got %v", err)
	}

	blockedRelay := testRelay(Options{
		Stats:  stats,
		Blocks: fakeBlocks{blocked: map[string]bool{"acct-1/acct-2": true}},
	})
	if err := blockedRelay.NotifyTyping(ctx, sender(), "buzz"); err != nil {
		t.Fatalf("expected silence for blocked pair, got %v", err)
	}

	_, typing, _ := relay.Poll("buzz")
	if len(typing) != 0 {
		t.Fatalf("expected no typing events, got %d", len(typing))
	}
	if stats.typing != 0 {
		t.Fatalf("expected typing counter 0, got %d", stats.typing)
	}
}

func TestTypingOverflowEvictsOldest(t *testing.T) {
	relay := testRelay(Options{TypingCap: 2})
	ctx := context.Background()

	senders := []auth.Identity{
		{AccountID: "acct-1", ScreenName: "wave"},
		{AccountID: "acct-1", ScreenName: "wave"},
		{AccountID: "acct-1", ScreenName: "wave"},
	}
	for _, s := range senders {
		if err := relay.NotifyTyping(ctx, s, "buzz"); err != nil {
			t.Fatalf("NotifyTyping returned error: %v", err)
		}
	}

	_, typing, _ := relay.Poll("buzz")
	if len(typing) != 2 {
		t.Fatalf("expected typing buffer capped at 2, got %d", len(typing))
	}
}

func TestRecipientNameNormalization(t *testing.T) {
	relay := testRelay(Options{})

	if _, err := relay.Send(context.Background(), sender(), "  BuZZ  ", "hi", ""); err != nil {
		t.Fatalf("Send with unnormalized name returned error: %v", err)
	}

	messages, _, _ := relay.Poll("buzz")
	if len(messages) != 1 {
		t.Fatalf("expected the message under the normalized key, got %d", len(messages))
	}
}
