// Package membership decides whether a recorded invite still counts.
//
// An invite is valid while the invitee is a member, administrator or creator
// of the chat right now. Validity is a live property: it is re-checked with the
// platform on every evaluation and never cached.
package membership

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"invitetrack/cmd/internal/gateway"
	"invitetrack/cmd/internal/metrics"
)

const defaultTimeout = 5 * time.Second

var ErrInvalidInput = errors.New("invalid input")

// StatusSource reports a user's current status in a chat.
type StatusSource interface {
	GetMembershipStatus(ctx context.Context, chatID, userID int64) (gateway.Status, error)
}

// Evaluator checks invite validity against a StatusSource.
type Evaluator struct {
	src     StatusSource
	log     *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	minAge  time.Duration
	now     func() time.Time
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithTimeout bounds each membership query.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMinAge requires an invitee to have joined at least d ago before the
// invite counts. Zero (the default) only rejects joins stamped in the future.
func WithMinAge(d time.Duration) Option {
	return func(e *Evaluator) {
		if d >= 0 {
			e.minAge = d
		}
	}
}

// WithLogger sets the evaluator logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Evaluator) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(src StatusSource, opts ...Option) (*Evaluator, error) {
	if src == nil {
		return nil, ErrInvalidInput
	}
	e := &Evaluator{
		src:     src,
		log:     slog.Default(),
		timeout: defaultTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// MinAge is the configured minimum membership age.
func (e *Evaluator) MinAge() time.Duration { return e.minAge }

// Now is the evaluator's clock.
func (e *Evaluator) Now() time.Time { return e.now() }

// IsValid issues one membership query and reports whether the user is
// currently present in the chat.
//
// Query failures are logged and reported as not valid; they never propagate.
func (e *Evaluator) IsValid(ctx context.Context, chatID, userID int64) bool {
	st, err := e.Status(ctx, chatID, userID)
	if err != nil {
		e.metrics.ValidityChecked(metrics.OutcomeError)
		e.log.Warn("validity.check.fail", "chat_id", chatID, "user_id", userID, "err", err)
		return false
	}
	if !st.Present() {
		e.metrics.ValidityChecked(metrics.OutcomeNotMember)
		return false
	}
	e.metrics.ValidityChecked(metrics.OutcomeValid)
	return true
}

// Evaluate applies the age gate to joinedAt and then IsValid.
// Joins that fail the age gate are rejected without querying the platform.
func (e *Evaluator) Evaluate(ctx context.Context, chatID, userID int64, joinedAt time.Time) bool {
	if !e.OldEnough(joinedAt) {
		e.metrics.ValidityChecked(metrics.OutcomeTooRecent)
		return false
	}
	return e.IsValid(ctx, chatID, userID)
}

// OldEnough reports whether joinedAt passes the age gate.
func (e *Evaluator) OldEnough(joinedAt time.Time) bool {
	return e.now().Sub(joinedAt) >= e.minAge
}

// Status queries the platform with the evaluator's per-call timeout.
func (e *Evaluator) Status(ctx context.Context, chatID, userID int64) (gateway.Status, error) {
	if err := ctx.Err(); err != nil {
		return gateway.StatusNotFound, err
	}
	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.src.GetMembershipStatus(qctx, chatID, userID)
}
