package attribution

import "context"

// Store persists attribution events.
//
// Requirements:
//   - Append is atomic: the whole event is stored or nothing is.
//   - Concurrent appends are never lost and each gets a distinct Seq.
//   - List results are in append (Seq ASC) order.
type Store interface {
	Append(ctx context.Context, ev Event) (Event, error)
	ListByChat(ctx context.Context, chatID int64) ([]Event, error)
	ListByInviter(ctx context.Context, chatID int64, inviterKey string) ([]Event, error)
	// ListChats returns the distinct chats that have at least one event, ascending.
	ListChats(ctx context.Context) ([]int64, error)
	Close() error
}
