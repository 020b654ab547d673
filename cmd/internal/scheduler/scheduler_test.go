package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"
)

type fakeReporter struct {
	fail map[int64]bool
}

func (r fakeReporter) RunScheduledReport(_ context.Context, chatID int64) (string, error) {
	if r.fail[chatID] {
		return "", errors.New("membership lookups unavailable")
	}
	return "Daily Leaderboard:\n...", nil
}

type fakeSender struct {
	mu   sync.Mutex
	fail map[int64]bool
	got  []int64
}

func (s *fakeSender) SendMessage(_ context.Context, chatID int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[chatID] {
		return errors.New("chat not found")
	}
	s.got = append(s.got, chatID)
	return nil
}

type staticChats struct {
	ids []int64
	err error
}

func (c staticChats) Chats(context.Context) ([]int64, error) { return c.ids, c.err }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParseClock(t *testing.T) {
	t.Parallel()

	good := map[string]Clock{
		"00:00":  {0, 0},
		"9:05":   {9, 5},
		" 23:59": {23, 59},
	}
	for in, want := range good {
		got, err := ParseClock(in)
		if err != nil || got != want {
			t.Fatalf("ParseClock(%q)=%v,%v want=%v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "24:00", "12:60", "noon", "12-30"} {
		if _, err := ParseClock(in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ParseClock(%q) err=%v want ErrInvalidInput", in, err)
		}
	}
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	at := Clock{Hour: 9, Minute: 30}
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{
			now:  time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		},
		{
			now:  time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		},
		{
			now:  time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC),
			want: time.Date(2027, 1, 1, 9, 30, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		if got := NextRun(tc.now, at, time.UTC); !got.Equal(tc.want) {
			t.Fatalf("NextRun(%v)=%v want=%v", tc.now, got, tc.want)
		}
	}

	// 09:30 in UTC+3 is 06:30 UTC.
	loc := time.FixedZone("UTC+3", 3*60*60)
	got := NextRun(time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC), at, loc)
	if want := time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("NextRun in zone=%v want=%v", got, want)
	}
}

func TestChatRegistry(t *testing.T) {
	t.Parallel()

	r := NewChatRegistry(staticChats{ids: []int64{-3, -1}}, -2, 0)
	r.Observe(-1)
	r.Observe(-4)
	r.Observe(0)

	// -4 was only seen and has no recorded joins, so it gets no report.
	got, err := r.Chats(context.Background())
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if want := []int64{-3, -2, -1}; !slices.Equal(got, want) {
		t.Fatalf("chats=%v want=%v", got, want)
	}

	broken := NewChatRegistry(staticChats{err: errors.New("db down")}, -9)
	broken.Observe(-5)
	got, err = broken.Chats(context.Background())
	if err == nil || !slices.Equal(got, []int64{-9, -5}) {
		t.Fatalf("chats=%v err=%v", got, err)
	}

	sourceless := NewChatRegistry(nil)
	sourceless.Observe(-6)
	if got, err := sourceless.Chats(context.Background()); err != nil || !slices.Equal(got, []int64{-6}) {
		t.Fatalf("chats=%v err=%v", got, err)
	}
}

func TestRunOnce_SkipsSeenChatsWithoutJoins(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	reg := NewChatRegistry(staticChats{ids: []int64{-1}}, -2)
	reg.Observe(-3)
	s, err := New(fakeReporter{}, sender, reg, WithLogger(quiet()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sum := s.RunOnce(context.Background())
	slices.Sort(sender.got)
	if sum.Chats != 2 || !slices.Equal(sender.got, []int64{-2, -1}) {
		t.Fatalf("summary=%+v sent=%v", sum, sender.got)
	}
}

func TestRunOnce_IsolatesFailures(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{fail: map[int64]bool{-3: true}}
	s, err := New(
		fakeReporter{fail: map[int64]bool{-2: true}},
		sender,
		staticChats{ids: []int64{-1, -2, -3, -4}},
		WithConcurrency(2),
		WithLogger(quiet()),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sum := s.RunOnce(context.Background())
	if sum != (Summary{Chats: 4, Sent: 2, Failed: 2}) {
		t.Fatalf("summary=%+v", sum)
	}
	slices.Sort(sender.got)
	if want := []int64{-4, -1}; !slices.Equal(sender.got, want) {
		t.Fatalf("sent=%v want=%v", sender.got, want)
	}
}

func TestRunOnce_ListFailureStillReportsKnownChats(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	reg := NewChatRegistry(staticChats{err: errors.New("db down")}, -7)
	s, err := New(fakeReporter{}, sender, reg, WithLogger(quiet()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if sum := s.RunOnce(context.Background()); sum.Sent != 1 || sender.got[0] != -7 {
		t.Fatalf("summary=%+v sent=%v", sum, sender.got)
	}
}

func TestRun_FiresAtScheduledTime(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	// The clock sits just before a minute boundary so the first run is due almost at once.
	base := time.Now()
	at := base.Add(50 * time.Millisecond).UTC()
	fixed := time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), 0, 0, time.UTC)
	offset := fixed.Sub(base) - 20*time.Millisecond
	clock := func() time.Time { return time.Now().Add(offset) }

	s, err := New(fakeReporter{}, sender, staticChats{ids: []int64{-1}},
		WithDailyAt(Clock{Hour: fixed.Hour(), Minute: fixed.Minute()}),
		WithClock(clock),
		WithLogger(quiet()),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		sender.mu.Lock()
		n := len(sender.got)
		sender.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("daily run did not fire")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeSender{}, staticChats{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err=%v want ErrInvalidInput", err)
	}
	if _, err := New(fakeReporter{}, &fakeSender{}, staticChats{}, WithConcurrency(0)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err=%v want ErrInvalidInput", err)
	}
	if _, err := New(fakeReporter{}, &fakeSender{}, staticChats{}, WithDailyAt(Clock{Hour: 25})); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err=%v want ErrInvalidInput", err)
	}
}
