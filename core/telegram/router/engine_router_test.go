package router

import (
	"context"
	"testing"

	"github.com/m3rciful/grinbot/core/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

type recordingHandler struct {
	updates []engine.Update
}

func (h *recordingHandler) Handle(_ context.Context, u engine.Update) engine.OutgoingMessage {
	h.updates = append(h.updates, u)
	return engine.OutgoingMessage{ConversationID: u.ConversationID}
}

func TestEngineRoutesEndpoints(t *testing.T) {
	routes := EngineRoutes(&recordingHandler{})
	var endpoints []any
	for _, r := range routes {
		require.NotNil(t, r.Handler)
		endpoints = append(endpoints, r.Endpoint)
	}
	assert.ElementsMatch(t, []any{tele.OnText, tele.OnCallback, tele.OnQuery, tele.OnMedia, tele.OnChannelPost}, endpoints)
}

func TestEngineHandlerMalformedIsNotReplied(t *testing.T) {
	b, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	require.NoError(t, err)

	h := &recordingHandler{}
	require.NoError(t, engineHandler(h)(b.NewContext(tele.Update{ID: 3})))
	require.Len(t, h.updates, 1)
	assert.Equal(t, engine.Update{ConversationID: engine.UnroutableConversation}, h.updates[0])
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "balance", commandName("/balance"))
	assert.Equal(t, "send", commandName("/send 1 http://x"))
	assert.Equal(t, "unknown", commandName(""))
	assert.Equal(t, "unknown", commandName("hello"))
}
