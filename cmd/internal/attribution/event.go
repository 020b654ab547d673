package attribution

import "time"

// Event is one recorded join attributed to an inviter.
type Event struct {
	// ID is a ULID assigned at record time.
	ID string
	// Seq is the store-assigned append position, increasing across the store.
	Seq int64

	ChatID        int64
	InviterKey    string
	InviteeUserID int64
	// Token is the invite link the join came through; empty when none was reported.
	Token string

	JoinedAt time.Time
}
