package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWallet struct {
	createMsg, sendMsg, balanceMsg string
	err                            error

	calls      []string
	sentAmount decimal.Decimal
	sentTo     *url.URL
}

func (w *fakeWallet) Create(context.Context) (string, error) {
	w.calls = append(w.calls, "create")
	return w.createMsg, w.err
}

func (w *fakeWallet) Send(_ context.Context, amount decimal.Decimal, dest *url.URL) (string, error) {
	w.calls = append(w.calls, "send")
	w.sentAmount, w.sentTo = amount, dest
	return w.sendMsg, w.err
}

func (w *fakeWallet) Balance(context.Context) (string, error) {
	w.calls = append(w.calls, "balance")
	return w.balanceMsg, w.err
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestReduceWalletSuccess(t *testing.T) {
	w := &fakeWallet{createMsg: "seed words", sendMsg: "sent", balanceMsg: "total 1"}
	s := NewState(ExternalContext{Wallet: w})
	ctx := context.Background()

	next := Reduce(ctx, s, Create{ConversationID: 1})
	assert.Equal(t, ScreenCreate, next.Screen)
	assert.Equal(t, "seed words", next.Message)
	assert.Equal(t, SeverityNone, next.Severity)

	amount := decimal.RequireFromString("1.5")
	next = Reduce(ctx, next, Send{ConversationID: 1, Amount: amount, Destination: mustURL(t, "http://r.example.org")})
	assert.Equal(t, ScreenSend, next.Screen)
	assert.Equal(t, "sent", next.Message)
	assert.True(t, w.sentAmount.Equal(amount))
	assert.Equal(t, "r.example.org", w.sentTo.Host)

	next = Reduce(ctx, next, Balance{ConversationID: 1})
	assert.Equal(t, ScreenBalance, next.Screen)
	assert.Equal(t, "total 1", next.Message)
	assert.Equal(t, SeverityNone, next.Severity)

	assert.Equal(t, []string{"create", "send", "balance"}, w.calls)
	assert.Same(t, w, next.Context.Wallet.(*fakeWallet))
}

func TestReduceWalletFailureSeverity(t *testing.T) {
	w := &fakeWallet{err: errors.New("wallet locked")}
	s := NewState(ExternalContext{Wallet: w})
	ctx := context.Background()

	created := Reduce(ctx, s, Create{ConversationID: 1})
	assert.Equal(t, ScreenCreate, created.Screen)
	assert.Equal(t, "Error: wallet locked", created.Message)
	assert.Equal(t, SeverityError, created.Severity)

	sent := Reduce(ctx, s, Send{ConversationID: 1, Amount: decimal.NewFromInt(1), Destination: mustURL(t, "http://x")})
	assert.Equal(t, ScreenSend, sent.Screen)
	assert.Equal(t, SeverityInfo, sent.Severity)

	bal := Reduce(ctx, s, Balance{ConversationID: 1})
	assert.Equal(t, ScreenBalance, bal.Screen)
	assert.Equal(t, "Error: wallet locked", bal.Message)
	assert.Equal(t, SeverityInfo, bal.Severity)

	// Failures are not retried.
	assert.Equal(t, []string{"create", "send", "balance"}, w.calls)
}

func TestReduceWithoutWallet(t *testing.T) {
	next := Reduce(context.Background(), NewState(ExternalContext{}), Balance{ConversationID: 3})
	assert.Equal(t, "Error: wallet is not configured", next.Message)
	assert.Equal(t, SeverityInfo, next.Severity)
}

func TestReduceNoticesKeepScreen(t *testing.T) {
	w := &fakeWallet{balanceMsg: "ok"}
	s := Reduce(context.Background(), NewState(ExternalContext{Wallet: w}), Balance{ConversationID: 1})
	require.Equal(t, ScreenBalance, s.Screen)

	cases := []struct {
		action   Action
		message  string
		severity Severity
	}{
		{NoIdentity{ConversationID: 2}, NoIdentityNotice, SeverityWarn},
		{WrongIdentity{ConversationID: 2}, WrongIdentityNotice, SeverityWarn},
		{ModeNotSupported{ConversationID: 2}, UnsupportedNotice, SeverityWarn},
		{CommandError{ConversationID: 2, Err: ErrAmountNotANumber}, "Error: amount is not a number", SeverityError},
		{Unknown{ConversationID: 2}, "", SeverityError},
	}
	for _, tc := range cases {
		next := Reduce(context.Background(), s, tc.action)
		assert.Equal(t, ScreenBalance, next.Screen, tc.action.Name())
		assert.Equal(t, tc.message, next.Message, tc.action.Name())
		assert.Equal(t, tc.severity, next.Severity, tc.action.Name())
		assert.Equal(t, int64(2), next.ConversationID)
	}
	assert.Equal(t, []string{"balance"}, w.calls, "notices must not touch the wallet")
}

func TestReduceHomeIdempotent(t *testing.T) {
	s := NewState(ExternalContext{})
	s = Reduce(context.Background(), s, Help{ConversationID: 1})
	once := Reduce(context.Background(), s, Home{ConversationID: 1})
	twice := Reduce(context.Background(), once, Home{ConversationID: 1})
	assert.Equal(t, ScreenHome, once.Screen)
	assert.Equal(t, once, twice)
	assert.Empty(t, twice.Message)
}

func TestReduceBack(t *testing.T) {
	screens := []Action{Help{ConversationID: 1}, Balance{ConversationID: 1}, Create{ConversationID: 1}, Home{ConversationID: 1}}
	w := &fakeWallet{}
	for _, a := range screens {
		s := NewState(ExternalContext{Wallet: w})
		before := s.PrevScreen
		s = Reduce(context.Background(), s, a)
		back := Reduce(context.Background(), s, Back{ConversationID: 1})
		assert.Equal(t, ScreenHome, back.PrevScreen, a.Name())
		assert.Equal(t, before, back.Screen, a.Name())
		assert.Empty(t, back.Message)
		assert.Equal(t, SeverityNone, back.Severity)
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := NewState(ExternalContext{})
	_ = Reduce(context.Background(), s, Help{ConversationID: 9})
	assert.False(t, s.HasConversation)
	assert.Equal(t, ScreenHome, s.Screen)
	assert.Empty(t, s.Message)
}

func TestEngineHandleUnsupportedMode(t *testing.T) {
	var observed []Severity
	e := New(Options{
		Identity: "alice",
		Observers: []Observer{func(_ context.Context, _ Action, s State) {
			observed = append(observed, s.Severity)
		}},
	})
	out := e.Handle(context.Background(), Update{ConversationID: 99, Sender: "alice", Text: CmdUnsupported})
	assert.Equal(t, OutgoingMessage{ConversationID: 99, Text: UnsupportedNotice, QuickCommands: []string{"/balance", "/help"}}, out)
	assert.Equal(t, ScreenHome, e.State().Screen)
	assert.Equal(t, []Severity{SeverityWarn}, observed)
}

func TestEngineCommandSkipsIdentity(t *testing.T) {
	w := &fakeWallet{balanceMsg: "balance ok"}
	e := New(Options{Identity: "alice", Context: ExternalContext{Wallet: w}})
	out := e.Command(context.Background(), "/balance", 0)
	assert.Equal(t, "balance ok", out.Text)
	assert.Equal(t, int64(0), out.ConversationID)
	assert.True(t, e.State().HasConversation)
}

func TestRenderEmptyMessage(t *testing.T) {
	out := Render(State{ConversationID: 4})
	assert.Equal(t, "", out.Text)
	assert.Equal(t, EmptyReplyPrompt, out.Body())
	assert.Equal(t, QuickCommands, out.QuickCommands)
	assert.Equal(t, HelpText, Render(State{Message: HelpText}).Body())
}

func TestCanonicalRoutesMalformed(t *testing.T) {
	nz := NormalizerFunc[string](func(string) (Update, error) { return Update{}, ErrMalformedNotification })
	u, err := Canonical[string](nz, "x")
	assert.ErrorIs(t, err, ErrMalformedNotification)
	assert.Equal(t, Unknown{ConversationID: UnroutableConversation}, ActionFor(u, "alice"))
}

func TestLogObserver(t *testing.T) {
	buf := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(buf, nil))
	obs := LogObserver(log)

	obs(context.Background(), Home{}, State{})
	assert.Empty(t, buf.String())

	obs(context.Background(), WrongIdentity{ConversationID: 3}, State{Severity: SeverityWarn, Message: WrongIdentityNotice, ConversationID: 3, HasConversation: true})
	line := buf.String()
	assert.True(t, strings.Contains(line, "level=WARN"), line)
	assert.True(t, strings.Contains(line, "action=wrong_identity"), line)
	assert.True(t, strings.Contains(line, "state.conversation_id=3"), line)
}
