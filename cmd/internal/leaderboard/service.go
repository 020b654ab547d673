// Package leaderboard ranks inviters by how many of their invitees are still
// in the chat.
package leaderboard

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"invitetrack/cmd/internal/attribution"

	"github.com/sourcegraph/conc/pool"
)

const defaultConcurrency = 8

var ErrInvalidInput = errors.New("invalid input")

// EventSource reads recorded attribution events in append order.
type EventSource interface {
	Events(ctx context.Context, chatID int64) ([]attribution.Event, error)
	EventsByInviter(ctx context.Context, chatID int64, inviterKey string) ([]attribution.Event, error)
}

// Validator decides whether one recorded join still counts.
// It must not fail: errors are its own to log and count as not valid.
type Validator interface {
	Evaluate(ctx context.Context, chatID, userID int64, joinedAt time.Time) bool
}

// Entry is one ranked inviter.
type Entry struct {
	InviterKey string
	ValidCount int
}

// Report is a ranked leaderboard for one chat. It is computed on demand and
// never cached.
type Report struct {
	ChatID      int64
	Entries     []Entry
	Events      int
	GeneratedAt time.Time
}

// Empty reports whether the chat had no recorded invites at all.
func (r Report) Empty() bool { return r.Events == 0 }

// Invitee is one join in a personal report.
type Invitee struct {
	UserID        int64
	JoinedAt      time.Time
	DaysSinceJoin int
	Valid         bool
}

// PersonalReport lists one inviter's recorded joins with their current validity.
type PersonalReport struct {
	ChatID      int64
	InviterKey  string
	Invitees    []Invitee
	ValidCount  int
	GeneratedAt time.Time
}

// Empty reports whether the inviter has no recorded invites yet.
func (p PersonalReport) Empty() bool { return len(p.Invitees) == 0 }

// Service builds reports.
type Service struct {
	events      EventSource
	validator   Validator
	concurrency int
	log         *slog.Logger
	now         func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithConcurrency bounds the number of in-flight membership queries per report.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(events EventSource, validator Validator, opts ...Option) (*Service, error) {
	if events == nil || validator == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		events:      events,
		validator:   validator,
		concurrency: defaultConcurrency,
		log:         slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// BuildReport counts each inviter's valid invites in chatID and ranks them.
//
// Every inviter with at least one recorded event appears, even with zero valid
// invites. Entries are sorted by ValidCount descending; ties keep the order in
// which inviters first appear in the event log, so repeated builds over the
// same state are identical regardless of query completion order.
//
// Cancelling ctx abandons the build and returns ctx.Err().
func (s *Service) BuildReport(ctx context.Context, chatID int64) (Report, error) {
	if chatID == 0 {
		return Report{}, ErrInvalidInput
	}
	start := time.Now()

	evs, err := s.events.Events(ctx, chatID)
	if err != nil {
		return Report{}, err
	}

	valid, err := s.evaluate(ctx, evs)
	if err != nil {
		return Report{}, err
	}

	var (
		order  []string
		counts = make(map[string]int)
	)
	for i, ev := range evs {
		if _, seen := counts[ev.InviterKey]; !seen {
			order = append(order, ev.InviterKey)
			counts[ev.InviterKey] = 0
		}
		if valid[i] {
			counts[ev.InviterKey]++
		}
	}

	entries := make([]Entry, 0, len(order))
	for _, key := range order {
		entries = append(entries, Entry{InviterKey: key, ValidCount: counts[key]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ValidCount > entries[j].ValidCount
	})

	s.log.Info("report.built",
		"chat_id", chatID,
		"events", len(evs),
		"inviters", len(entries),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Report{
		ChatID:      chatID,
		Entries:     entries,
		Events:      len(evs),
		GeneratedAt: s.now(),
	}, nil
}

// PersonalReport lists inviterKey's joins in chatID with their current validity.
func (s *Service) PersonalReport(ctx context.Context, chatID int64, inviterKey string) (PersonalReport, error) {
	if chatID == 0 || inviterKey == "" {
		return PersonalReport{}, ErrInvalidInput
	}

	evs, err := s.events.EventsByInviter(ctx, chatID, inviterKey)
	if err != nil {
		return PersonalReport{}, err
	}

	valid, err := s.evaluate(ctx, evs)
	if err != nil {
		return PersonalReport{}, err
	}

	now := s.now()
	out := PersonalReport{
		ChatID:      chatID,
		InviterKey:  inviterKey,
		Invitees:    make([]Invitee, 0, len(evs)),
		GeneratedAt: now,
	}
	for i, ev := range evs {
		out.Invitees = append(out.Invitees, Invitee{
			UserID:        ev.InviteeUserID,
			JoinedAt:      ev.JoinedAt,
			DaysSinceJoin: daysBetween(ev.JoinedAt, now),
			Valid:         valid[i],
		})
		if valid[i] {
			out.ValidCount++
		}
	}
	return out, nil
}

// evaluate checks every event with at most s.concurrency queries in flight.
// Results are indexed like evs.
func (s *Service) evaluate(ctx context.Context, evs []attribution.Event) ([]bool, error) {
	valid := make([]bool, len(evs))
	if len(evs) == 0 {
		return valid, ctx.Err()
	}

	p := pool.New().WithMaxGoroutines(s.concurrency)
	for i, ev := range evs {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			valid[i] = s.validator.Evaluate(ctx, ev.ChatID, ev.InviteeUserID, ev.JoinedAt)
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return valid, nil
}

// daysBetween returns whole days from a to b, floored (negative when a is after b).
func daysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}
