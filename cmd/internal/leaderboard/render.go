package leaderboard

import (
	"fmt"
	"strings"
)

// Labeler turns an inviter key into display text.
type Labeler func(inviterKey string) string

// Render formats a report as plain text. A nil label prints keys as-is.
func Render(r Report, label Labeler) string {
	if label == nil {
		label = func(k string) string { return k }
	}

	var b strings.Builder
	b.WriteString("Leaderboard of valid invites:")
	if r.Empty() {
		b.WriteString("\nNo invite data available yet.")
		return b.String()
	}
	for i, e := range r.Entries {
		fmt.Fprintf(&b, "\n%d. %s: %d valid %s", i+1, label(e.InviterKey), e.ValidCount, plural(e.ValidCount, "invite", "invites"))
	}
	return b.String()
}

// RenderPersonal formats a personal report for the inviter named who.
func RenderPersonal(p PersonalReport, who string) string {
	if p.Empty() {
		return "You haven't invited anyone yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Invite stats for you (%s):", who)
	for _, inv := range p.Invitees {
		status := "(Valid)"
		if !inv.Valid {
			status = "(Not valid)"
		}
		fmt.Fprintf(&b, "\n- User %d joined %d day(s) ago. %s", inv.UserID, inv.DaysSinceJoin, status)
	}
	fmt.Fprintf(&b, "\nTotal valid invites: %d", p.ValidCount)
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
