package journal

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/logger"
)

const sqliteSchema = `CREATE TABLE journal (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	rid TEXT NOT NULL DEFAULT '',
	transport TEXT NOT NULL,
	conversation_id INTEGER NOT NULL,
	action TEXT NOT NULL,
	screen TEXT NOT NULL,
	severity TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
)`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(sqliteSchema)
	require.NoError(t, err)

	s := NewStore(db)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var n int
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return s
}

// recent returns up to limit entries of a conversation, newest first.
func (s *Store) recent(ctx context.Context, conversationID int64, limit int) ([]Entry, error) {
	query := s.db.Rebind(selectEntries + ` WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`)
	var out []Entry
	err := s.db.SelectContext(ctx, &out, query, conversationID, limit)
	return out, err
}

type stubWallet struct{ err error }

func (w stubWallet) Create(context.Context) (string, error) { return "word1 word2 word3", w.err }
func (w stubWallet) Send(context.Context, decimal.Decimal, *url.URL) (string, error) {
	return "sent", w.err
}
func (w stubWallet) Balance(context.Context) (string, error) { return "**Balance**", w.err }

func TestObserverRecordsWalletActionsAndSeverities(t *testing.T) {
	s := newTestStore(t)
	e := engine.New(engine.Options{
		Identity:  "alice",
		Context:   engine.ExternalContext{Wallet: stubWallet{}},
		Observers: []engine.Observer{Observer(s, "telegram")},
	})
	ctx := context.Background()

	e.Handle(ctx, engine.Update{ConversationID: 5, Sender: "alice", Text: "/help"})
	e.Handle(ctx, engine.Update{ConversationID: 5, Sender: "alice", Text: "/balance"})
	e.Handle(ctx, engine.Update{ConversationID: 5, Sender: "alice", Text: "/create"})
	e.Handle(ctx, engine.Update{ConversationID: 5, Sender: "mallory", Text: "/balance"})

	got, err := s.recent(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "wrong_identity", got[0].Action)
	assert.Equal(t, "warn", got[0].Severity)
	assert.Equal(t, engine.WrongIdentityNotice, got[0].Message)

	assert.Equal(t, "create", got[1].Action)
	assert.Empty(t, got[1].Message, "recovery phrase must not be stored")

	assert.Equal(t, "balance", got[2].Action)
	assert.Equal(t, "balance", got[2].Screen)
	assert.Equal(t, "**Balance**", got[2].Message)
	assert.Equal(t, "telegram", got[2].Transport)
	assert.True(t, got[0].CreatedAt.After(got[2].CreatedAt))
}

func TestObserverKeepsFailedCreateMessage(t *testing.T) {
	s := newTestStore(t)
	obs := Observer(s, "cli")
	obs(context.Background(), engine.Create{ConversationID: 0}, engine.State{
		Screen:   engine.ScreenCreate,
		Message:  "Error: Wallet exists",
		Severity: engine.SeverityError,
	})
	got, err := s.recent(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Error: Wallet exists", got[0].Message)
	assert.Equal(t, "error", got[0].Severity)
}

func TestObserverStoresRequestID(t *testing.T) {
	s := newTestStore(t)
	ctx := logger.WithRID(context.Background(), "9f0c2c4e-rid")
	Observer(s, "keybase")(ctx, engine.Balance{ConversationID: 2}, engine.State{ConversationID: 2, Screen: engine.ScreenBalance})

	got, err := s.recent(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "9f0c2c4e-rid", got[0].RID)
	assert.Equal(t, "keybase", got[0].Transport)
}

func TestObserverSwallowsWriteErrors(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.db.Close())
	assert.NotPanics(t, func() {
		Observer(s, "cli")(context.Background(), engine.Balance{}, engine.State{Severity: engine.SeverityInfo})
	})
	_, _, err := s.Last(context.Background())
	assert.Error(t, err)
}

func TestLast(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Last(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Insert(ctx, Entry{Transport: "matrix", ConversationID: 1, Action: "help", Screen: "help"}))
	require.NoError(t, s.Insert(ctx, Entry{Transport: "matrix", ConversationID: 2, Action: "balance", Screen: "balance"}))

	last, ok, err := s.Last(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "balance", last.Action)
	assert.Equal(t, int64(2), last.ConversationID)
}

func TestTruncateRunes(t *testing.T) {
	long := strings.Repeat("ツ", maxMessageRunes+10)
	assert.Equal(t, maxMessageRunes, len([]rune(truncateRunes(long, maxMessageRunes))))
	assert.Equal(t, "abc", truncateRunes("abc", 3))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
}
