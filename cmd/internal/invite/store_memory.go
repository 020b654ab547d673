package invite

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore keeps tokens in a map guarded by a RWMutex.
// Used when no database is configured and in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]Token)}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Upsert stores t, replacing any record with the same token.
func (s *InMemoryStore) Upsert(ctx context.Context, t Token) error {
	t.Token = normalizeToken(t.Token)
	if t.Token == "" || strings.TrimSpace(t.InviterKey) == "" || !t.Mode.Valid() {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.ExpiresAt = cloneTime(t.ExpiresAt)

	s.mu.Lock()
	s.tokens[t.Token] = t
	s.mu.Unlock()
	return nil
}

// Get returns the record for token.
func (s *InMemoryStore) Get(ctx context.Context, token string) (Token, error) {
	token = normalizeToken(token)
	if token == "" {
		return Token{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}

	s.mu.RLock()
	t, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return Token{}, ErrNotFound
	}
	t.ExpiresAt = cloneTime(t.ExpiresAt)
	return t, nil
}

// ListByInviter returns the inviter's tokens for chatID, newest first.
func (s *InMemoryStore) ListByInviter(ctx context.Context, chatID int64, inviterKey string) ([]Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []Token
	for _, t := range s.tokens {
		if t.ChatID == chatID && t.InviterKey == inviterKey {
			t.ExpiresAt = cloneTime(t.ExpiresAt)
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
