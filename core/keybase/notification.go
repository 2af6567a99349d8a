// Package keybase serves the bot over Keybase chat by driving the keybase
// CLI: notifications come from "chat api-listen", replies go through
// "chat api".
package keybase

import (
	"encoding/json"
	"fmt"
)

// Notification is one line of "keybase chat api-listen" output.
type Notification struct {
	Type   string      `json:"type"`
	Source string      `json:"source,omitempty"`
	Msg    *MsgSummary `json:"msg,omitempty"`
}

// MsgSummary is the message part of a chat notification.
type MsgSummary struct {
	ID             int64   `json:"id"`
	ConversationID string  `json:"conversation_id"`
	Channel        Channel `json:"channel"`
	Sender         Sender  `json:"sender"`
	SentAt         int64   `json:"sent_at"`
	Content        Content `json:"content"`
}

// Channel addresses a conversation. It doubles as the reply target.
type Channel struct {
	Name        string `json:"name"`
	MembersType string `json:"members_type,omitempty"`
	TopicType   string `json:"topic_type,omitempty"`
	TopicName   string `json:"topic_name,omitempty"`
}

// Sender identifies the author of a message.
type Sender struct {
	UID        string `json:"uid,omitempty"`
	Username   string `json:"username"`
	DeviceName string `json:"device_name,omitempty"`
}

// Content holds the typed message body. Only text content is read.
type Content struct {
	Type string       `json:"type"`
	Text *TextContent `json:"text,omitempty"`
}

// TextContent is the body of a text message.
type TextContent struct {
	Body string `json:"body"`
}

const (
	notificationChat = "chat"
	contentText      = "text"
	membersTeam      = "team"
)

// DecodeNotification parses a single api-listen line.
func DecodeNotification(line []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(line, &n); err != nil {
		return Notification{}, fmt.Errorf("keybase: decode notification: %w", err)
	}
	return n, nil
}
