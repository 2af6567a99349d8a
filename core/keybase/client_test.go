package keybase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeRunner struct {
	binary string
	calls  []Command
	out    []byte
	err    error
}

func (f *fakeRunner) run(_ context.Context, binary string, c Command) ([]byte, error) {
	f.binary = binary
	f.calls = append(f.calls, c)
	return f.out, f.err
}

func TestClientSend(t *testing.T) {
	fr := &fakeRunner{out: []byte(`{"result":{"message":"message sent","id":21}}`)}
	c := NewClient("", "/srv/kb", fr.run)

	require.NoError(t, c.Send(context.Background(), Channel{Name: "alice,grinbot"}, "*Balance*"))
	require.Len(t, fr.calls, 1)
	assert.Equal(t, "keybase", fr.binary)
	assert.Equal(t, []string{"--home", "/srv/kb", "chat", "api"}, fr.calls[0].Args)

	req := gjson.ParseBytes(fr.calls[0].Stdin)
	assert.Equal(t, "send", req.Get("method").String())
	assert.Equal(t, "alice,grinbot", req.Get("params.options.channel.name").String())
	assert.Equal(t, "*Balance*", req.Get("params.options.message.body").String())
	assert.False(t, req.Get("params.options.channel.members_type").Exists())
}

func TestClientSendAPIError(t *testing.T) {
	fr := &fakeRunner{out: []byte(`{"error":{"code":2300,"message":"channel not found"}}`)}
	err := NewClient("kb", "", fr.run).Send(context.Background(), Channel{Name: "x"}, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel not found")

	fr = &fakeRunner{out: []byte("garbage")}
	assert.Error(t, NewClient("kb", "", fr.run).Send(context.Background(), Channel{Name: "x"}, "hi"))

	fr = &fakeRunner{err: errors.New("exit status 1")}
	assert.Error(t, NewClient("kb", "", fr.run).Send(context.Background(), Channel{Name: "x"}, "hi"))
}

func TestClientLogin(t *testing.T) {
	fr := &fakeRunner{}
	require.NoError(t, NewClient("kb", "", fr.run).Login(context.Background(), "grinbot", "paper words"))
	require.Len(t, fr.calls, 1)
	assert.Equal(t, []string{"oneshot", "--username", "grinbot"}, fr.calls[0].Args)
	assert.Equal(t, []string{"KEYBASE_PAPERKEY=paper words"}, fr.calls[0].Env)
}
