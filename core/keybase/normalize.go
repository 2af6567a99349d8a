package keybase

import (
	"strings"

	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/transport"
)

// Normalizer maps Keybase notifications onto canonical updates. Channels are
// registered in the directory so replies can be addressed later.
type Normalizer struct {
	Channels *transport.Directory[Channel]
}

// NewNormalizer returns a normalizer with an empty channel directory.
func NewNormalizer() *Normalizer {
	return &Normalizer{Channels: transport.NewDirectory[Channel]()}
}

// Normalize implements engine.Normalizer. Non-text content yields an empty
// text; team channels are not served and become /unsupported.
func (nz *Normalizer) Normalize(n Notification) (engine.Update, error) {
	if n.Type != notificationChat || n.Msg == nil {
		return engine.Update{}, engine.ErrMalformedNotification
	}
	msg := n.Msg
	if msg.Sender.Username == "" || strings.TrimSpace(msg.Channel.Name) == "" {
		return engine.Update{}, engine.ErrMalformedNotification
	}

	id := nz.Channels.ID(replyChannel(msg.Channel))
	if msg.Channel.MembersType == membersTeam {
		return engine.Update{ConversationID: id, Sender: msg.Sender.Username, Text: engine.CmdUnsupported}, nil
	}

	var text string
	if msg.Content.Type == contentText && msg.Content.Text != nil {
		text = msg.Content.Text.Body
	}
	return engine.Update{ConversationID: id, Sender: msg.Sender.Username, Text: text}, nil
}

// Channel returns the reply channel registered for a conversation id.
func (nz *Normalizer) Channel(id int64) (Channel, bool) {
	return nz.Channels.Key(id)
}

func replyChannel(ch Channel) Channel {
	return Channel{Name: ch.Name, MembersType: ch.MembersType, TopicName: ch.TopicName}
}
