package keybase

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/sender"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentReply struct {
	ch   Channel
	body string
}

type fakeReplier struct {
	mu   sync.Mutex
	sent []sentReply
}

func (f *fakeReplier) Send(_ context.Context, ch Channel, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentReply{ch, body})
	return nil
}

func newTestService(r Replier) *Service {
	return NewService(ServiceOptions{
		Handler:    engine.New(engine.Options{Identity: "alice"}),
		Replier:    r,
		Self:       "grinbot",
		Dispatcher: sender.NewDispatcher(sender.Options{Component: "test"}),
	})
}

func textLine(sender, body string) string {
	return `{"type":"chat","msg":{"id":1,"channel":{"name":"alice,grinbot","members_type":"impteamnative"},` +
		`"sender":{"username":"` + sender + `"},"content":{"type":"text","text":{"body":"` + body + `"}}}}`
}

func TestServeRepliesInChannel(t *testing.T) {
	r := &fakeReplier{}
	svc := newTestService(r)

	input := strings.Join([]string{
		textLine("alice", "/help"),
		"",
		textLine("grinbot", "/help"),
		textLine("mallory", "/balance"),
	}, "\n")
	require.NoError(t, svc.Serve(context.Background(), strings.NewReader(input)))

	require.Len(t, r.sent, 2)
	assert.Equal(t, Channel{Name: "alice,grinbot", MembersType: "impteamnative"}, r.sent[0].ch)
	assert.Contains(t, r.sent[0].body, "*")
	assert.NotContains(t, r.sent[0].body, "**")
	assert.Equal(t, engine.WrongIdentityNotice, r.sent[1].body)
}

func TestServeMalformedLineIsNotReplied(t *testing.T) {
	r := &fakeReplier{}
	svc := newTestService(r)
	require.NoError(t, svc.Serve(context.Background(), strings.NewReader("{oops\n"+`{"type":"wallet"}`)))
	assert.Empty(t, r.sent)
}

func TestHandleEmptyBodyGetsPrompt(t *testing.T) {
	r := &fakeReplier{}
	svc := newTestService(r)
	err := svc.Handle(context.Background(), Notification{Type: "chat", Msg: &MsgSummary{
		Channel: Channel{Name: "alice,grinbot"},
		Sender:  Sender{Username: "alice"},
		Content: Content{Type: "text", Text: &TextContent{Body: "/home"}},
	}})
	require.NoError(t, err)
	require.Len(t, r.sent, 1)
	assert.Equal(t, engine.EmptyReplyPrompt, r.sent[0].body)
}
