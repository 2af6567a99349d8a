// Package matrix serves the bot in Matrix direct rooms through mautrix.
package matrix

import (
	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/transport"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Notification is a timeline event together with the joined member count
// of its room, which decides whether the room is a direct chat.
type Notification struct {
	Event   *event.Event
	Members int
}

// Normalizer maps Matrix events onto canonical updates and remembers which
// room each conversation id stands for.
type Normalizer struct {
	Rooms *transport.Directory[id.RoomID]
}

// NewNormalizer returns a normalizer with an empty room directory.
func NewNormalizer() *Normalizer {
	return &Normalizer{Rooms: transport.NewDirectory[id.RoomID]()}
}

// Normalize implements engine.Normalizer. The sender identity is the full
// user id. Rooms with more than two members are not served.
func (nz *Normalizer) Normalize(n Notification) (engine.Update, error) {
	evt := n.Event
	if evt == nil || evt.Type != event.EventMessage || evt.RoomID == "" || evt.Sender == "" {
		return engine.Update{}, engine.ErrMalformedNotification
	}
	conv := nz.Rooms.ID(evt.RoomID)
	sender := evt.Sender.String()
	if n.Members > 2 {
		return engine.Update{ConversationID: conv, Sender: sender, Text: engine.CmdUnsupported}, nil
	}

	var text string
	if msg := evt.Content.AsMessage(); msg != nil && msg.MsgType == event.MsgText {
		text = msg.Body
	}
	return engine.Update{ConversationID: conv, Sender: sender, Text: text}, nil
}

// Room returns the room registered for a conversation id.
func (nz *Normalizer) Room(conv int64) (id.RoomID, bool) {
	return nz.Rooms.Key(conv)
}
