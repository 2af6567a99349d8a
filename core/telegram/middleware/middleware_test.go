package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	require.NoError(t, err)
	return b
}

func messageUpdate(id int, userID int64, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: userID, Username: "alice"},
		Text:   text,
	}}
}

func TestRecoverMiddleware(t *testing.T) {
	b := offlineBot(t)
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	var err error
	assert.NotPanics(t, func() { err = h(b.NewContext(messageUpdate(1, 5, "/help"))) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRateLimitMiddleware(t *testing.T) {
	b := offlineBot(t)
	var handled, limited int
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	h := mw(func(tele.Context) error { handled++; return nil })

	require.NoError(t, h(b.NewContext(messageUpdate(1, 5, "/help"))))
	require.NoError(t, h(b.NewContext(messageUpdate(2, 5, "/balance"))))
	require.NoError(t, h(b.NewContext(messageUpdate(3, 6, "/help"))))

	assert.Equal(t, 2, handled)
	assert.Equal(t, 1, limited)
}

func TestRateLimitExclusions(t *testing.T) {
	b := offlineBot(t)
	var handled int
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"message": {}},
	})
	h := mw(func(tele.Context) error { handled++; return nil })
	for i := 0; i < 3; i++ {
		require.NoError(t, h(b.NewContext(messageUpdate(i, 5, "/help"))))
	}
	assert.Equal(t, 3, handled)
}

func TestLoggerMiddlewareStoresRID(t *testing.T) {
	b := offlineBot(t)
	var rid string
	h := LoggerMiddleware(func(c tele.Context) error {
		rid, _ = c.Get("rid").(string)
		return nil
	})
	require.NoError(t, h(b.NewContext(messageUpdate(77, 5, "/help"))))
	assert.NotEmpty(t, rid)
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, "message", updateKind(messageUpdate(1, 5, "hi")))
	assert.Equal(t, "callback", updateKind(tele.Update{Callback: &tele.Callback{}}))
	assert.Equal(t, "inline_query", updateKind(tele.Update{Query: &tele.Query{}}))
	assert.Equal(t, "other", updateKind(tele.Update{}))
}

func TestSeenUpdatesForgetsOldest(t *testing.T) {
	s := &seenUpdates{set: make(map[int]struct{})}
	assert.True(t, s.firstTime(1))
	assert.False(t, s.firstTime(1))
	for id := 2; id <= len(s.ring)+1; id++ {
		require.True(t, s.firstTime(id))
	}
	assert.True(t, s.firstTime(1))
}
