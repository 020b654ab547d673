// Package bot runs the long-poll loop and turns platform updates into
// tracker calls and chat replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"invitetrack/cmd/internal/gateway"
	"invitetrack/cmd/internal/telegram"
	"invitetrack/cmd/internal/tracker"

	"golang.org/x/sync/semaphore"
)

const (
	defaultPollTimeout = 30 * time.Second
	defaultMaxInFlight = 16
	maxPollBackoff     = 30 * time.Second
)

var ErrInvalidInput = errors.New("invalid input")

// Platform is the messaging platform as the bot uses it.
type Platform interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	GetMembershipStatus(ctx context.Context, chatID, userID int64) (gateway.Status, error)
}

// Engine is the tracker surface the bot drives.
type Engine interface {
	Help() string
	CreateLink(ctx context.Context, chatID int64, u tracker.User, private bool) (string, error)
	GetLeaderboard(ctx context.Context, chatID int64) (string, error)
	GetMyInvites(ctx context.Context, chatID int64, u tracker.User) (string, error)
	JoinRequested(ctx context.Context, req tracker.JoinRequest) error
	DirectJoinObserved(ctx context.Context, j tracker.DirectJoin) (bool, error)
}

// ChatObserver is told about every group chat the bot sees.
type ChatObserver interface {
	Observe(chatID int64)
}

// Bot polls for updates and handles each one in its own goroutine.
type Bot struct {
	platform    Platform
	engine      Engine
	chats       ChatObserver
	log         *slog.Logger
	pollTimeout time.Duration
	inFlight    *semaphore.Weighted
	wg          sync.WaitGroup
}

// Option configures the Bot.
type Option func(*Bot) error

// WithPollTimeout sets the long-poll wait.
func WithPollTimeout(d time.Duration) Option {
	return func(b *Bot) error {
		if d < 0 {
			return fmt.Errorf("%w: negative poll timeout", ErrInvalidInput)
		}
		b.pollTimeout = d
		return nil
	}
}

// WithMaxInFlight bounds concurrently handled updates.
func WithMaxInFlight(n int) Option {
	return func(b *Bot) error {
		if n < 1 {
			return fmt.Errorf("%w: max in flight must be >= 1", ErrInvalidInput)
		}
		b.inFlight = semaphore.NewWeighted(int64(n))
		return nil
	}
}

// WithChatObserver registers chats as they are seen.
func WithChatObserver(o ChatObserver) Option {
	return func(b *Bot) error {
		b.chats = o
		return nil
	}
}

// WithLogger sets the bot logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bot) error {
		if log != nil {
			b.log = log
		}
		return nil
	}
}

// New constructs a Bot.
func New(platform Platform, engine Engine, opts ...Option) (*Bot, error) {
	if platform == nil || engine == nil {
		return nil, ErrInvalidInput
	}
	b := &Bot{
		platform:    platform,
		engine:      engine,
		log:         slog.Default(),
		pollTimeout: defaultPollTimeout,
		inFlight:    semaphore.NewWeighted(defaultMaxInFlight),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Run polls until ctx is cancelled, then waits for in-flight handlers.
// Handler contexts derive from ctx, so they are cancelled with it.
func (b *Bot) Run(ctx context.Context) error {
	defer b.wg.Wait()

	b.log.Info("bot.start", "poll_timeout", b.pollTimeout.String())
	var (
		offset  int64
		backoff time.Duration
	)
	for {
		if ctx.Err() != nil {
			b.log.Info("bot.stop")
			return nil
		}

		updates, err := b.platform.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			backoff = nextBackoff(backoff)
			b.log.Warn("bot.poll.fail", "err", err, "retry_in", backoff.String())
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if err := b.inFlight.Acquire(ctx, 1); err != nil {
				break
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				defer b.inFlight.Release(1)
				b.Handle(ctx, u)
			}()
		}
	}
}

// Handle processes one update synchronously.
func (b *Bot) Handle(ctx context.Context, u telegram.Update) {
	switch {
	case u.Message != nil:
		b.observe(u.Message.Chat)
		b.handleMessage(ctx, u.Message)
	case u.ChatJoinRequest != nil:
		b.observe(u.ChatJoinRequest.Chat)
		b.handleJoinRequest(ctx, u.ChatJoinRequest)
	case u.ChatMember != nil:
		b.observe(u.ChatMember.Chat)
		b.handleMemberUpdate(ctx, u.ChatMember)
	default:
		b.log.Debug("bot.update.ignored", "update_id", u.UpdateID)
	}
}

func (b *Bot) handleJoinRequest(ctx context.Context, r *telegram.ChatJoinRequest) {
	req := tracker.JoinRequest{
		ChatID: r.Chat.ID,
		User:   toUser(r.From),
		Token:  linkToken(r.InviteLink),
	}
	if err := b.engine.JoinRequested(ctx, req); err != nil {
		b.log.Error("bot.join_request.fail", "chat_id", r.Chat.ID, "user_id", r.From.ID, "err", err)
	}
}

func (b *Bot) handleMemberUpdate(ctx context.Context, m *telegram.ChatMemberUpdated) {
	j := tracker.DirectJoin{
		ChatID:         m.Chat.ID,
		User:           toUser(m.NewChatMember.User),
		Token:          linkToken(m.InviteLink),
		PreviousStatus: gateway.ParseStatus(m.OldChatMember.Status),
		NewStatus:      gateway.ParseStatus(m.NewChatMember.Status),
		ViaJoinRequest: m.ViaJoinRequest,

		PreviousIsMember: m.OldChatMember.IsMember,
		NewIsMember:      m.NewChatMember.IsMember,
	}
	if m.InviteLink != nil {
		j.LinkRequiresApproval = m.InviteLink.CreatesJoinRequest
	}
	if j.User.ID == 0 || m.NewChatMember.User.IsBot {
		return
	}

	if _, err := b.engine.DirectJoinObserved(ctx, j); err != nil {
		b.log.Error("bot.direct_join.fail", "chat_id", j.ChatID, "user_id", j.User.ID, "err", err)
	}

	name := m.NewChatMember.User.FirstName
	switch {
	case j.Joined():
		b.send(ctx, j.ChatID, fmt.Sprintf("👋 Welcome %s!", name))
	case j.Left():
		b.send(ctx, j.ChatID, fmt.Sprintf("❌ %s has left.", name))
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if err := b.platform.SendMessage(ctx, chatID, text); err != nil {
		b.log.Warn("bot.send.fail", "chat_id", chatID, "err", err)
	}
}

func (b *Bot) observe(c telegram.Chat) {
	if b.chats != nil && c.Group() {
		b.chats.Observe(c.ID)
	}
}

func toUser(u telegram.User) tracker.User {
	return tracker.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

func linkToken(l *telegram.ChatInviteLink) *string {
	if l == nil || strings.TrimSpace(l.InviteLink) == "" {
		return nil
	}
	s := l.InviteLink
	return &s
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return time.Second
	}
	d *= 2
	if d > maxPollBackoff {
		return maxPollBackoff
	}
	return d
}
