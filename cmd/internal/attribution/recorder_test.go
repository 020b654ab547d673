package attribution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type mapResolver struct {
	mu    sync.RWMutex
	links map[string]string
	err   error
}

func (m *mapResolver) ResolveInviter(_ context.Context, token string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if key, ok := m.links[token]; ok {
		return key, nil
	}
	return UnknownInviter, nil
}

type brokenStore struct{ InMemoryStore }

var errStoreDown = errors.New("store down")

func (*brokenStore) Append(context.Context, Event) (Event, error) { return Event{}, errStoreDown }

func strPtr(s string) *string { return &s }

func newTestRecorder(t *testing.T, links map[string]string) (*Recorder, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	rec, err := NewRecorder(store, &mapResolver{links: links})
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	return rec, store
}

func TestRecordJoin_ResolvesInviter(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	store := NewInMemoryStore()
	rec, err := NewRecorder(store, &mapResolver{links: map[string]string{"https://t.me/+a": "alice"}}, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	ev, err := rec.RecordJoin(context.Background(), -100, strPtr("https://t.me/+a"), 777)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ev.InviterKey != "alice" || ev.ChatID != -100 || ev.InviteeUserID != 777 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.JoinedAt.Equal(fixed) {
		t.Fatalf("joined_at=%v want=%v", ev.JoinedAt, fixed)
	}
	if len(ev.ID) != 26 || ev.Seq != 1 {
		t.Fatalf("id=%q seq=%d", ev.ID, ev.Seq)
	}
	if ev.Token != "https://t.me/+a" {
		t.Fatalf("token=%q", ev.Token)
	}
}

func TestRecordJoin_UnknownFallback(t *testing.T) {
	t.Parallel()

	rec, store := newTestRecorder(t, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		token *string
	}{
		{name: "nil token", token: nil},
		{name: "blank token", token: strPtr("  ")},
		{name: "unregistered token", token: strPtr("nonexistent-token")},
	}
	for i, tc := range cases {
		ev, err := rec.RecordJoin(ctx, 1, tc.token, int64(100+i))
		if err != nil {
			t.Fatalf("%s: record: %v", tc.name, err)
		}
		if ev.InviterKey != UnknownInviter {
			t.Fatalf("%s: inviter=%q want=%q", tc.name, ev.InviterKey, UnknownInviter)
		}
	}

	evs, _ := store.ListByInviter(ctx, 1, UnknownInviter)
	if len(evs) != len(cases) {
		t.Fatalf("unknown bucket=%d want=%d", len(evs), len(cases))
	}
}

func TestRecordJoin_ConcurrentAppendsAllRecorded(t *testing.T) {
	t.Parallel()

	rec, store := newTestRecorder(t, map[string]string{"https://t.me/+shared": "alice"})
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		user := int64(1000 + i)
		go func() {
			defer wg.Done()
			_, err := rec.RecordJoin(ctx, 1, strPtr("https://t.me/+shared"), user)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	evs, err := store.ListByChat(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != n {
		t.Fatalf("events=%d want=%d", len(evs), n)
	}
	seenUsers := make(map[int64]bool, n)
	seenIDs := make(map[string]bool, n)
	for i, ev := range evs {
		if seenUsers[ev.InviteeUserID] || seenIDs[ev.ID] {
			t.Fatalf("duplicate event: %+v", ev)
		}
		seenUsers[ev.InviteeUserID] = true
		seenIDs[ev.ID] = true
		if i > 0 && ev.Seq <= evs[i-1].Seq {
			t.Fatalf("events not in append order at %d", i)
		}
	}
}

func TestRecordJoin_PersistenceFailure(t *testing.T) {
	t.Parallel()

	rec, err := NewRecorder(&brokenStore{}, &mapResolver{})
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	_, err = rec.RecordJoin(context.Background(), 1, nil, 5)
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, errStoreDown) {
		t.Fatalf("err=%v want ErrPersistence wrapping cause", err)
	}
}

func TestRecordJoin_ResolverFailureRecordsNothing(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	rec, err := NewRecorder(store, &mapResolver{err: fmt.Errorf("registry: %w", errStoreDown)})
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if _, err := rec.RecordJoin(context.Background(), 1, strPtr("https://t.me/+a"), 5); !errors.Is(err, ErrPersistence) {
		t.Fatalf("err=%v want ErrPersistence", err)
	}
	evs, _ := store.ListByChat(context.Background(), 1)
	if len(evs) != 0 {
		t.Fatalf("events=%d want=0", len(evs))
	}
}

func TestRecordJoin_InvalidInput(t *testing.T) {
	t.Parallel()

	rec, _ := newTestRecorder(t, nil)
	if _, err := rec.RecordJoin(context.Background(), 0, nil, 5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero chat err=%v", err)
	}
	if _, err := rec.RecordJoin(context.Background(), 1, nil, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero user err=%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rec.RecordJoin(ctx, 1, nil, 5); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled err=%v", err)
	}
}

func TestRecorder_ChatsAndInviterViews(t *testing.T) {
	t.Parallel()

	rec, _ := newTestRecorder(t, map[string]string{"a": "alice", "b": "bob"})
	ctx := context.Background()

	for _, j := range []struct {
		chat  int64
		token string
		user  int64
	}{
		{chat: 30, token: "a", user: 1},
		{chat: 10, token: "b", user: 2},
		{chat: 30, token: "b", user: 3},
		{chat: 30, token: "a", user: 4},
	} {
		if _, err := rec.RecordJoin(ctx, j.chat, strPtr(j.token), j.user); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	chats, err := rec.Chats(ctx)
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if len(chats) != 2 || chats[0] != 10 || chats[1] != 30 {
		t.Fatalf("chats=%v want=[10 30]", chats)
	}

	alice, err := rec.EventsByInviter(ctx, 30, "alice")
	if err != nil {
		t.Fatalf("by inviter: %v", err)
	}
	if len(alice) != 2 || alice[0].InviteeUserID != 1 || alice[1].InviteeUserID != 4 {
		t.Fatalf("alice events=%+v", alice)
	}

	all, err := rec.Events(ctx, 30)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("chat 30 events=%d want=3", len(all))
	}
}
