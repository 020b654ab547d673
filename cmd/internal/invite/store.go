package invite

import "context"

// Store is the persistence boundary for invite tokens.
//
// Requirements:
//   - Upsert replaces any prior record with the same token atomically;
//     readers observe either the old record or the new one.
//   - Upsert never touches other tokens of the same inviter.
//   - Get returns ErrNotFound for unknown tokens.
type Store interface {
	Upsert(ctx context.Context, t Token) error
	Get(ctx context.Context, token string) (Token, error)
	// ListByInviter returns the inviter's tokens for chatID, newest first.
	ListByInviter(ctx context.Context, chatID int64, inviterKey string) ([]Token, error)
	Close() error
}
