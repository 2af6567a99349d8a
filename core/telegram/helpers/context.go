package helpers

import (
	"context"

	"github.com/m3rciful/grinbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Transport is the transport name attached to every Telegram log context.
const Transport = "telegram"

// ctxKey is the tele.Context slot holding the per-update log context.
const ctxKey = "grinbot.ctx"

// StoreContext replaces the per-update context kept on c.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// BuildContext returns the per-update context, creating it on first use with
// the rid and the update, user and chat ids.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxKey).(context.Context); ok {
		return ctx
	}

	upd := c.Update()
	var userID, chatID int64
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		chatID = ch.ID
	}
	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(upd.ID, chatID, userID)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
	ctx = logger.WithTransport(ctx, Transport)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithConversation adds the engine conversation id to the stored context.
func WithConversation(c tele.Context, id int64) context.Context {
	ctx := logger.WithConversation(BuildContext(c), id)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler adds the handler name to the stored context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}
