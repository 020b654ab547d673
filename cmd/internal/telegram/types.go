package telegram

import "strings"

// User is a Telegram account.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// FullName joins first and last name the way clients display them.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Chat is the subset of chat fields the bot reads.
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// Group reports whether the chat is a group or supergroup.
func (c Chat) Group() bool {
	return c.Type == "group" || c.Type == "supergroup"
}

// Message is an inbound text message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// ChatInviteLink is an invite link as reported by the platform.
type ChatInviteLink struct {
	InviteLink         string `json:"invite_link"`
	Creator            *User  `json:"creator,omitempty"`
	CreatesJoinRequest bool   `json:"creates_join_request"`
	IsPrimary          bool   `json:"is_primary"`
	IsRevoked          bool   `json:"is_revoked"`
	Name               string `json:"name,omitempty"`
	ExpireDate         int64  `json:"expire_date,omitempty"`
}

// ChatJoinRequest is sent when a user asks to join through an approval-required link.
type ChatJoinRequest struct {
	Chat       Chat            `json:"chat"`
	From       User            `json:"from"`
	UserChatID int64           `json:"user_chat_id"`
	Date       int64           `json:"date"`
	InviteLink *ChatInviteLink `json:"invite_link,omitempty"`
}

// ChatMember is a user's standing in a chat. IsMember is only sent for
// restricted members and tells whether they are still in the chat.
type ChatMember struct {
	Status   string `json:"status"`
	User     User   `json:"user"`
	IsMember bool   `json:"is_member,omitempty"`
}

// ChatMemberUpdated is sent when a member's status changes.
type ChatMemberUpdated struct {
	Chat           Chat            `json:"chat"`
	From           User            `json:"from"`
	Date           int64           `json:"date"`
	OldChatMember  ChatMember      `json:"old_chat_member"`
	NewChatMember  ChatMember      `json:"new_chat_member"`
	InviteLink     *ChatInviteLink `json:"invite_link,omitempty"`
	ViaJoinRequest bool            `json:"via_join_request,omitempty"`
}

// Update is one inbound event from getUpdates. Exactly one payload is set.
type Update struct {
	UpdateID        int64              `json:"update_id"`
	Message         *Message           `json:"message,omitempty"`
	ChatMember      *ChatMemberUpdated `json:"chat_member,omitempty"`
	ChatJoinRequest *ChatJoinRequest   `json:"chat_join_request,omitempty"`
}

// Update kinds requested from getUpdates.
var AllowedUpdates = []string{"message", "chat_member", "chat_join_request"}
