package invite

import (
	"strings"
	"time"
)

// UnknownInviter is the inviter key joins are attributed to when the
// invite token is missing or was never registered.
const UnknownInviter = "Unknown"

// Mode is the kind of link a token was issued as.
type Mode string

const (
	// ModePublic links never expire.
	ModePublic Mode = "public"
	// ModePrivateTimed links expire at Token.ExpiresAt.
	ModePrivateTimed Mode = "private_timed"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePublic || m == ModePrivateTimed
}

// Token binds a platform-issued invite link to the inviter who requested it.
type Token struct {
	Token       string
	InviterKey  string
	InviterName string
	ChatID      int64
	Mode        Mode
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// Expired reports whether a timed token is past its expiry at now.
func (t Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

func normalizeToken(s string) string {
	return strings.TrimSpace(s)
}
