package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	ctxLoggerKey ctxKey = iota
	ctxMetaKey
)

// meta is the per-update correlation data attached to every log line.
// It is copied on each With* call so parents never observe child values.
type meta struct {
	rid       string
	handler   string
	transport string
	updateID  int
	userID    int64
	chatID    int64

	conversation    int64
	hasConversation bool
}

func metaFrom(ctx context.Context) meta {
	if ctx == nil {
		return meta{}
	}
	m, _ := ctx.Value(ctxMetaKey).(meta)
	return m
}

func withMeta(ctx context.Context, edit func(*meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	edit(&m)
	return context.WithValue(ctx, ctxMetaKey, m)
}

// WithLogger stores log in ctx for layers that have no component of their own.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLoggerKey, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLoggerKey).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}

// WithRID attaches a request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *meta) { m.rid = rid })
}

// RIDFrom returns the correlation id, if any.
func RIDFrom(ctx context.Context) string {
	return metaFrom(ctx).rid
}

// WithUpdateMeta attaches Telegram update identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *meta) {
		m.updateID = updateID
		m.userID = userID
		m.chatID = chatID
	})
}

// UpdateIDFrom returns the Telegram update id, or 0.
func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }

// UserIDFrom returns the Telegram user id, or 0.
func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).userID }

// ChatIDFrom returns the Telegram chat id, or 0.
func ChatIDFrom(ctx context.Context) int64 { return metaFrom(ctx).chatID }

// WithHandler names the handler serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.handler = handler })
}

// HandlerFrom returns the handler name, if any.
func HandlerFrom(ctx context.Context) string {
	return metaFrom(ctx).handler
}

// WithConversation attaches the engine conversation id.
func WithConversation(ctx context.Context, id int64) context.Context {
	return withMeta(ctx, func(m *meta) {
		m.conversation = id
		m.hasConversation = true
	})
}

// ConversationIDFrom extracts the conversation id; ok is false when unset.
func ConversationIDFrom(ctx context.Context) (int64, bool) {
	m := metaFrom(ctx)
	return m.conversation, m.hasConversation
}

// WithTransport names the chat transport an update arrived on.
func WithTransport(ctx context.Context, name string) context.Context {
	if name == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.transport = name })
}

// TransportFrom returns the transport name, if any.
func TransportFrom(ctx context.Context) string {
	return metaFrom(ctx).transport
}

// fields returns the non-zero correlation values keyed by their log names.
func (m meta) fields() []field {
	out := make([]field, 0, 8)
	if m.rid != "" {
		out = append(out, field{"rid", m.rid})
	}
	if m.transport != "" {
		out = append(out, field{"transport", m.transport})
	}
	if m.updateID != 0 {
		out = append(out, field{"update_id", m.updateID})
	}
	if m.hasConversation {
		out = append(out, field{"conversation_id", m.conversation})
	}
	if m.userID != 0 {
		out = append(out, field{"user_id", m.userID})
	}
	if m.chatID != 0 {
		out = append(out, field{"chat_id", m.chatID})
	}
	if m.handler != "" {
		out = append(out, field{"handler", m.handler})
	}
	return out
}
