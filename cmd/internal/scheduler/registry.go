package scheduler

import (
	"context"
	"slices"
	"sync"
)

// ChatSource lists chats with recorded joins.
type ChatSource interface {
	Chats(ctx context.Context) ([]int64, error)
}

// ChatRegistry is the set of chats the daily report goes to: configured
// chats, which always get a report, and chats with recorded joins. Chats the
// bot has only seen are used in place of the event store when it cannot be
// listed, so a chat without invite data is never sent an empty report.
type ChatRegistry struct {
	mu         sync.RWMutex
	configured map[int64]struct{}
	seen       map[int64]struct{}
	source     ChatSource
}

// NewChatRegistry seeds the registry with configured chats. source may be nil.
func NewChatRegistry(source ChatSource, configured ...int64) *ChatRegistry {
	r := &ChatRegistry{
		configured: make(map[int64]struct{}),
		seen:       make(map[int64]struct{}),
		source:     source,
	}
	for _, id := range configured {
		if id != 0 {
			r.configured[id] = struct{}{}
		}
	}
	return r
}

// Observe records that the bot is in chatID.
func (r *ChatRegistry) Observe(chatID int64) {
	if chatID == 0 {
		return
	}
	r.mu.Lock()
	r.seen[chatID] = struct{}{}
	r.mu.Unlock()
}

// Chats returns the chats to report on in ascending order. A failing source
// is reported alongside the configured and seen chats.
func (r *ChatRegistry) Chats(ctx context.Context) ([]int64, error) {
	var (
		ids    []int64
		srcErr error
	)
	if r.source != nil {
		ids, srcErr = r.source.Chats(ctx)
	}

	r.mu.RLock()
	set := make(map[int64]struct{}, len(r.configured)+len(ids))
	for id := range r.configured {
		set[id] = struct{}{}
	}
	if r.source == nil || srcErr != nil {
		for id := range r.seen {
			set[id] = struct{}{}
		}
	}
	r.mu.RUnlock()

	for _, id := range ids {
		set[id] = struct{}{}
	}

	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, srcErr
}
