package gateway

import "time"

// LinkOptions describes an invite link request.
type LinkOptions struct {
	// JoinApprovalRequired makes joiners send a join request instead of entering directly.
	JoinApprovalRequired bool

	// ExpiresAt is nil for links that never expire.
	ExpiresAt *time.Time

	// Name is an optional label shown to chat admins (max 32 chars on Telegram).
	Name string
}
