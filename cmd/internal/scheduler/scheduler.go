// Package scheduler posts the daily leaderboard to every tracked chat.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"invitetrack/cmd/internal/metrics"

	"github.com/sourcegraph/conc/pool"
)

const (
	defaultConcurrency = 4
	defaultRunTimeout  = 10 * time.Minute
)

var ErrInvalidInput = errors.New("invalid input")

// Scheduled chat outcomes, used as metric labels.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// Reporter renders the daily report for one chat.
type Reporter interface {
	RunScheduledReport(ctx context.Context, chatID int64) (string, error)
}

// Sender delivers a report.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Lister yields the chats to report on.
type Lister interface {
	Chats(ctx context.Context) ([]int64, error)
}

// Summary is the result of one daily run.
type Summary struct {
	Chats  int
	Sent   int
	Failed int
}

// Scheduler runs the daily report.
type Scheduler struct {
	reporter    Reporter
	sender      Sender
	chats       Lister
	at          Clock
	loc         *time.Location
	concurrency int
	runTimeout  time.Duration
	log         *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Option configures the Scheduler.
type Option func(*Scheduler) error

// WithDailyAt sets the time of day of the run.
func WithDailyAt(at Clock) Option {
	return func(s *Scheduler) error {
		if at.Hour < 0 || at.Hour > 23 || at.Minute < 0 || at.Minute > 59 {
			return fmt.Errorf("%w: daily time %v", ErrInvalidInput, at)
		}
		s.at = at
		return nil
	}
}

// WithLocation sets the time zone the daily time is read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) error {
		if loc != nil {
			s.loc = loc
		}
		return nil
	}
}

// WithConcurrency bounds chats reported in parallel.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) error {
		if n < 1 {
			return fmt.Errorf("%w: concurrency must be >= 1", ErrInvalidInput)
		}
		s.concurrency = n
		return nil
	}
}

// WithRunTimeout bounds one whole daily run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) error {
		if d <= 0 {
			return fmt.Errorf("%w: run timeout must be > 0", ErrInvalidInput)
		}
		s.runTimeout = d
		return nil
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// WithMetrics counts per-chat outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) error {
		s.metrics = m
		return nil
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// New constructs a Scheduler.
func New(reporter Reporter, sender Sender, chats Lister, opts ...Option) (*Scheduler, error) {
	if reporter == nil || sender == nil || chats == nil {
		return nil, ErrInvalidInput
	}
	s := &Scheduler{
		reporter:    reporter,
		sender:      sender,
		chats:       chats,
		loc:         time.UTC,
		concurrency: defaultConcurrency,
		runTimeout:  defaultRunTimeout,
		log:         slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Run fires RunOnce every day at the configured time until ctx is cancelled.
// A run in progress is allowed to finish (bounded by the run timeout).
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := NextRun(s.now(), s.at, s.loc)
		s.log.Info("scheduler.next", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
		s.RunOnce(runCtx)
		cancel()
	}
}

// RunOnce reports to every tracked chat. A chat whose report or delivery
// fails is logged and counted; the others still run.
func (s *Scheduler) RunOnce(ctx context.Context) Summary {
	start := s.now()
	chats, err := s.chats.Chats(ctx)
	if err != nil {
		s.log.Error("scheduler.chats.fail", "err", err, "known", len(chats))
	}

	var sent, failed atomic.Int64
	p := pool.New().WithMaxGoroutines(s.concurrency)
	for _, chatID := range chats {
		p.Go(func() {
			if err := s.reportChat(ctx, chatID); err != nil {
				failed.Add(1)
				s.metrics.ScheduledChat(OutcomeFailed)
				s.log.Error("scheduler.chat.fail", "chat_id", chatID, "err", err)
				return
			}
			sent.Add(1)
			s.metrics.ScheduledChat(OutcomeSent)
		})
	}
	p.Wait()

	sum := Summary{Chats: len(chats), Sent: int(sent.Load()), Failed: int(failed.Load())}
	s.log.Info("scheduler.run.done",
		"chats", sum.Chats,
		"sent", sum.Sent,
		"failed", sum.Failed,
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
	return sum
}

func (s *Scheduler) reportChat(ctx context.Context, chatID int64) error {
	text, err := s.reporter.RunScheduledReport(ctx, chatID)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	if err := s.sender.SendMessage(ctx, chatID, text); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}
