package attribution

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryStore keeps events per chat in append order.
// Used when no database is configured and in tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	seq   int64
	chats map[int64][]Event
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chats: make(map[int64][]Event)}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Append assigns the next Seq and stores ev.
func (s *InMemoryStore) Append(ctx context.Context, ev Event) (Event, error) {
	if err := validate(ev); err != nil {
		return Event{}, err
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	ev.Seq = s.seq
	s.chats[ev.ChatID] = append(s.chats[ev.ChatID], ev)
	return ev, nil
}

// ListByChat returns a snapshot of the chat's events.
func (s *InMemoryStore) ListByChat(ctx context.Context, chatID int64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.chats[chatID]
	if len(evs) == 0 {
		return nil, nil
	}
	return append([]Event(nil), evs...), nil
}

// ListByInviter returns the chat's events attributed to inviterKey.
func (s *InMemoryStore) ListByInviter(ctx context.Context, chatID int64, inviterKey string) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, ev := range s.chats[chatID] {
		if ev.InviterKey == inviterKey {
			out = append(out, ev)
		}
	}
	return out, nil
}

// ListChats returns the chats that have events, ascending.
func (s *InMemoryStore) ListChats(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]int64, 0, len(s.chats))
	for chatID, evs := range s.chats {
		if len(evs) > 0 {
			out = append(out, chatID)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func validate(ev Event) error {
	if strings.TrimSpace(ev.ID) == "" || ev.ChatID == 0 || ev.InviteeUserID == 0 {
		return ErrInvalidInput
	}
	if strings.TrimSpace(ev.InviterKey) == "" || ev.JoinedAt.IsZero() {
		return ErrInvalidInput
	}
	return nil
}
