package bot

import (
	"context"
	"fmt"
	"strings"

	"invitetrack/cmd/internal/telegram"
)

const (
	groupOnlyText    = "This command only works in a group."
	unauthorizedText = "Sorry, you are not authorized to use this command."
)

// parseCommand extracts "/name" from text, dropping any "@botname" suffix and
// arguments. ok is false for plain messages.
func parseCommand(text string) (name string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name = strings.Fields(text)[0]
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), true
}

func (b *Bot) handleMessage(ctx context.Context, m *telegram.Message) {
	cmd, ok := parseCommand(m.Text)
	if !ok || m.From == nil {
		return
	}
	chatID := m.Chat.ID
	user := toUser(*m.From)

	var reply string
	switch cmd {
	case "/help", "/start":
		reply = b.engine.Help()
	case "/getinvite", "/getinviteprivate":
		if !m.Chat.Group() {
			reply = groupOnlyText
			break
		}
		reply, _ = b.engine.CreateLink(ctx, chatID, user, cmd == "/getinviteprivate")
	case "/leaderboard":
		if !m.Chat.Group() {
			reply = groupOnlyText
			break
		}
		reply, _ = b.engine.GetLeaderboard(ctx, chatID)
	case "/myinvites":
		if !m.Chat.Group() {
			reply = groupOnlyText
			break
		}
		reply, _ = b.engine.GetMyInvites(ctx, chatID, user)
	case "/getchatid":
		reply = b.chatIDReply(ctx, chatID, user.ID)
	default:
		return
	}

	b.log.Info("bot.command", "command", cmd, "chat_id", chatID, "user_id", user.ID)
	if reply != "" {
		b.send(ctx, chatID, reply)
	}
}

func (b *Bot) chatIDReply(ctx context.Context, chatID, userID int64) string {
	status, err := b.platform.GetMembershipStatus(ctx, chatID, userID)
	if err != nil {
		b.log.Error("bot.getchatid.status_fail", "chat_id", chatID, "user_id", userID, "err", err)
		return unauthorizedText
	}
	if !status.Admin() {
		return unauthorizedText
	}
	return fmt.Sprintf("The Chat ID is: %d", chatID)
}
