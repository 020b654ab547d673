package tracker

import (
	"fmt"
	"strconv"
	"strings"

	"invitetrack/cmd/internal/invite"
)

// KeyPolicy chooses how an inviter is identified in stored tokens and events.
type KeyPolicy string

const (
	// KeyByID uses the numeric platform user id. Stable across renames.
	KeyByID KeyPolicy = "id"
	// KeyByDisplay uses "@username", falling back to the full name.
	KeyByDisplay KeyPolicy = "display"
)

// ParseKeyPolicy parses a configured policy; empty means KeyByID.
func ParseKeyPolicy(s string) (KeyPolicy, error) {
	switch KeyPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeyByID:
		return KeyByID, nil
	case KeyByDisplay:
		return KeyByDisplay, nil
	default:
		return "", fmt.Errorf("%w: unknown inviter key policy %q", ErrInvalidInput, s)
	}
}

// User is the person behind a command or a join.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Display is "@username" when set, else the full name.
func (u User) Display() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return strconv.FormatInt(u.ID, 10)
	}
	return name
}

// Key returns u's inviter key under p. A display name that reads like the
// unresolved-inviter bucket gets the user id appended.
func (p KeyPolicy) Key(u User) string {
	if p == KeyByDisplay {
		d := u.Display()
		if d == invite.UnknownInviter {
			d = fmt.Sprintf("%s (%d)", d, u.ID)
		}
		return d
	}
	if u.ID == 0 {
		return ""
	}
	return strconv.FormatInt(u.ID, 10)
}
