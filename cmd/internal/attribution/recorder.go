package attribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"invitetrack/cmd/internal/ids"
	"invitetrack/cmd/internal/metrics"
)

// UnknownInviter mirrors invite.UnknownInviter for joins with no link.
const UnknownInviter = "Unknown"

// Resolver maps an invite token to the inviter key that owns it.
// Unknown tokens resolve to UnknownInviter without error.
type Resolver interface {
	ResolveInviter(ctx context.Context, token string) (string, error)
}

// Recorder appends attribution events for accepted joins.
//
// It does not deduplicate repeated signals for the same (chat, user); callers
// must invoke RecordJoin once per accepted join.
type Recorder struct {
	store    Store
	resolver Resolver
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// RecorderOption configures the Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the recorder logger.
func WithLogger(log *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder constructs a Recorder.
func NewRecorder(store Store, resolver Resolver, opts ...RecorderOption) (*Recorder, error) {
	if store == nil || resolver == nil {
		return nil, ErrInvalidInput
	}
	r := &Recorder{
		store:    store,
		resolver: resolver,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// RecordJoin attributes inviteeUserID's join of chatID to the owner of token.
//
// A nil or unregistered token is recorded under UnknownInviter. JoinedAt is
// the recorder's clock, never caller-supplied. Store failures are returned
// wrapped in ErrPersistence and nothing is recorded.
func (r *Recorder) RecordJoin(ctx context.Context, chatID int64, token *string, inviteeUserID int64) (Event, error) {
	if r == nil || r.store == nil {
		return Event{}, ErrInvalidInput
	}
	if chatID == 0 || inviteeUserID == 0 {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	tok := ""
	if token != nil {
		tok = strings.TrimSpace(*token)
	}

	inviter := UnknownInviter
	if tok != "" {
		key, err := r.resolver.ResolveInviter(ctx, tok)
		if err != nil {
			r.log.Error("join.resolve.fail", "chat_id", chatID, "user_id", inviteeUserID, "err", err)
			return Event{}, wrapPersistence(err)
		}
		if key != "" {
			inviter = key
		}
	}

	now := r.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Event{}, err
	}

	ev, err := r.store.Append(ctx, Event{
		ID:            id,
		ChatID:        chatID,
		InviterKey:    inviter,
		InviteeUserID: inviteeUserID,
		Token:         tok,
		JoinedAt:      now,
	})
	if err != nil {
		r.log.Error("join.record.fail", "chat_id", chatID, "user_id", inviteeUserID, "inviter", inviter, "err", err)
		return Event{}, wrapPersistence(err)
	}

	resolved := inviter != UnknownInviter
	r.metrics.JoinRecorded(resolved)
	r.log.Info("join.recorded",
		"chat_id", chatID,
		"user_id", inviteeUserID,
		"inviter", inviter,
		"resolved", resolved,
		"event_id", ev.ID,
	)
	return ev, nil
}

// Events returns the chat's events in append order.
func (r *Recorder) Events(ctx context.Context, chatID int64) ([]Event, error) {
	evs, err := r.store.ListByChat(ctx, chatID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	return evs, nil
}

// EventsByInviter returns the chat's events attributed to inviterKey.
func (r *Recorder) EventsByInviter(ctx context.Context, chatID int64, inviterKey string) ([]Event, error) {
	evs, err := r.store.ListByInviter(ctx, chatID, inviterKey)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	return evs, nil
}

// Chats lists chats that have recorded joins.
func (r *Recorder) Chats(ctx context.Context) ([]int64, error) {
	chats, err := r.store.ListChats(ctx)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	return chats, nil
}

func wrapPersistence(err error) error {
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
