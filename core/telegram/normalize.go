package telegram

import (
	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// Normalizer is the Telegram update normalizer.
var Normalizer = engine.NormalizerFunc[tele.Update](Normalize)

// Normalize maps a Telegram update onto the canonical form. Only private
// chats are conversations; anything else becomes /unsupported so the sender
// learns the mode is not served.
func Normalize(u tele.Update) (engine.Update, error) {
	switch {
	case u.Message != nil:
		return normalizeMessage(u.Message)
	case u.Callback != nil:
		return normalizeCallback(u.Callback)
	case u.Query != nil:
		if u.Query.Sender == nil {
			return engine.Update{}, engine.ErrMalformedNotification
		}
		return unsupported(u.Query.Sender.ID, u.Query.Sender.Username), nil
	case u.ChannelPost != nil:
		if u.ChannelPost.Chat == nil {
			return engine.Update{}, engine.ErrMalformedNotification
		}
		return unsupported(u.ChannelPost.Chat.ID, ""), nil
	default:
		return engine.Update{}, engine.ErrMalformedNotification
	}
}

func normalizeMessage(m *tele.Message) (engine.Update, error) {
	if m.Chat == nil {
		return engine.Update{}, engine.ErrMalformedNotification
	}
	if m.Chat.Type != tele.ChatPrivate {
		return unsupported(m.Chat.ID, senderName(m.Sender)), nil
	}
	name := m.Chat.Username
	if name == "" {
		name = senderName(m.Sender)
	}
	return engine.Update{ConversationID: m.Chat.ID, Sender: name, Text: m.Text}, nil
}

func normalizeCallback(cb *tele.Callback) (engine.Update, error) {
	name := senderName(cb.Sender)
	if cb.Message == nil || cb.Message.Chat == nil {
		if cb.Sender == nil {
			return engine.Update{}, engine.ErrMalformedNotification
		}
		return unsupported(cb.Sender.ID, name), nil
	}
	chat := cb.Message.Chat
	if chat.Type != tele.ChatPrivate {
		return unsupported(chat.ID, name), nil
	}
	if name == "" {
		name = chat.Username
	}
	return engine.Update{ConversationID: chat.ID, Sender: name, Text: callbacks.CommandText(cb)}, nil
}

func unsupported(id int64, sender string) engine.Update {
	return engine.Update{ConversationID: id, Sender: sender, Text: engine.CmdUnsupported}
}

func senderName(u *tele.User) string {
	if u == nil {
		return ""
	}
	return u.Username
}
