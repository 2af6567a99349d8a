package telegram

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/grinbot/core/config"
)

type botAPICall struct {
	method string
	text   string
}

// fakeBotAPI answers every Bot API method with a minimal message result.
func fakeBotAPI(t *testing.T) (*tele.Bot, func() []botAPICall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []botAPICall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(body, &payload)
		mu.Lock()
		calls = append(calls, botAPICall{method: r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:], text: payload.Text})
		mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"chat":{"id":5,"type":"private"}}}`)
	}))
	t.Cleanup(srv.Close)

	b, err := tele.NewBot(tele.Settings{URL: srv.URL, Token: "1:test", Offline: true, Synchronous: true})
	require.NoError(t, err)
	return b, func() []botAPICall {
		mu.Lock()
		defer mu.Unlock()
		return append([]botAPICall(nil), calls...)
	}
}

func chain(mws []Middleware, h tele.HandlerFunc) tele.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i].Use(h)
	}
	return h
}

func TestDefaultMiddlewaresNotifyThrottledUser(t *testing.T) {
	b, calls := fakeBotAPI(t)
	cfg := &coreconfig.Config{RateLimit: coreconfig.RateLimitConfig{IntervalMS: 3_600_000}}

	mws := DefaultMiddlewares(cfg, nil)
	names := make([]string, 0, len(mws))
	for _, m := range mws {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"recover", "rate_limit", "logger"}, names)

	handled := 0
	h := chain(mws, func(tele.Context) error { handled++; return nil })
	update := func(id int) tele.Update {
		return tele.Update{ID: id, Message: &tele.Message{
			Chat:   privateChat(5, "alice"),
			Sender: &tele.User{ID: 5, Username: "alice"},
			Text:   "/balance",
		}}
	}
	require.NoError(t, h(b.NewContext(update(1))))
	require.NoError(t, h(b.NewContext(update(2))))

	assert.Equal(t, 1, handled)
	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, "sendMessage", got[0].method)
	assert.Equal(t, LimitedText, got[0].text)
}

func TestLimitedNoticeSkipsInlineQueries(t *testing.T) {
	b, calls := fakeBotAPI(t)
	c := b.NewContext(tele.Update{ID: 1, Query: &tele.Query{ID: "q", Sender: &tele.User{ID: 5}}})
	require.NoError(t, LimitedNotice(c))
	assert.Empty(t, calls())
}
