// Package journal keeps an append-only record of wallet operations and
// rejected commands. It is an audit trail; bot state is never reloaded from it.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/logger"
)

// maxMessageRunes bounds the stored message. Recovery phrases are never stored.
const maxMessageRunes = 512

// Entry is one journal row.
type Entry struct {
	ID             int64     `db:"id"`
	RID            string    `db:"rid"`
	Transport      string    `db:"transport"`
	ConversationID int64     `db:"conversation_id"`
	Action         string    `db:"action"`
	Screen         string    `db:"screen"`
	Severity       string    `db:"severity"`
	Message        string    `db:"message"`
	CreatedAt      time.Time `db:"created_at"`
}

// Store writes and reads journal rows.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore wraps an open database.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const insertEntry = `INSERT INTO journal (rid, transport, conversation_id, action, screen, severity, message, created_at)
VALUES (:rid, :transport, :conversation_id, :action, :screen, :severity, :message, :created_at)`

// Insert appends an entry. CreatedAt defaults to now.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if _, err := s.db.NamedExecContext(ctx, insertEntry, e); err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

const selectEntries = `SELECT id, rid, transport, conversation_id, action, screen, severity, message, created_at
FROM journal`

// Last returns the newest entry. ok is false when the journal is empty.
func (s *Store) Last(ctx context.Context) (e Entry, ok bool, err error) {
	err = s.db.GetContext(ctx, &e, selectEntries+` ORDER BY created_at DESC, id DESC LIMIT 1`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Entry{}, false, nil
	case err != nil:
		return Entry{}, false, fmt.Errorf("journal: last: %w", err)
	}
	return e, true, nil
}

// Observer records wallet actions and every state with a severity. Write
// failures are logged and never reach the pipeline.
func Observer(s *Store, transport string) engine.Observer {
	return func(ctx context.Context, a engine.Action, st engine.State) {
		if !journaled(a, st) {
			return
		}
		start := time.Now()
		e := Entry{
			RID:            logger.RIDFrom(ctx),
			Transport:      transport,
			ConversationID: st.ConversationID,
			Action:         a.Name(),
			Screen:         st.Screen.String(),
			Severity:       st.Severity.String(),
			Message:        journalMessage(a, st),
		}
		if err := s.Insert(ctx, e); err != nil {
			logger.Error(ctx, "journal", "journal.insert",
				slog.String("status", "fail"),
				slog.String("action", e.Action),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			return
		}
		logger.Debug(ctx, "journal", "journal.insert",
			slog.String("status", "ok"),
			slog.String("action", e.Action),
			slog.Duration("duration", logger.Took(start)),
		)
	}
}

func journaled(a engine.Action, st engine.State) bool {
	switch a.(type) {
	case engine.Create, engine.Send, engine.Balance:
		return true
	}
	return st.Severity != engine.SeverityNone
}

func journalMessage(a engine.Action, st engine.State) string {
	if _, ok := a.(engine.Create); ok && st.Severity == engine.SeverityNone {
		return ""
	}
	return truncateRunes(st.Message, maxMessageRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
