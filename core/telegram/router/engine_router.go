package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/logger"
	tg "github.com/m3rciful/grinbot/core/telegram"
	tghelpers "github.com/m3rciful/grinbot/core/telegram/helpers"
	"github.com/m3rciful/grinbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Handler is the part of the engine the routes need.
type Handler interface {
	Handle(ctx context.Context, u engine.Update) engine.OutgoingMessage
}

// EngineRoutes binds every update kind the bot can receive to the engine.
// Commands have no individual handlers: the engine owns the grammar.
func EngineRoutes(h Handler) []tg.Route {
	handler := middleware.RecoverMiddleware(middleware.LoggerMiddleware(engineHandler(h)))
	endpoints := []string{tele.OnText, tele.OnCallback, tele.OnQuery, tele.OnMedia, tele.OnChannelPost}
	routes := make([]tg.Route, 0, len(endpoints))
	for _, ep := range endpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: handler})
	}
	return routes
}

func engineHandler(h Handler) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		if c.Callback() != nil {
			_ = c.Respond()
		}

		u, err := engine.Canonical[tele.Update](tg.Normalizer, c.Update())
		sum := summary{handler: commandName(u.Text), start: start, malformed: err != nil}
		ctx := tghelpers.WithConversation(c, u.ConversationID)
		ctx = tghelpers.WithHandler(c, sum.handler)

		out := h.Handle(ctx, u)
		if out.ConversationID == engine.UnroutableConversation {
			sum.log(ctx, logger.StatusSkip, nil)
			return nil
		}

		if c.Query() != nil {
			err = tghelpers.AnswerQuery(c, out)
		} else {
			err = tghelpers.SendReply(c, out)
		}
		status := logger.StatusOK
		if err != nil {
			status = logger.StatusFail
		}
		sum.log(ctx, status, err)
		return err
	}
}

// summary is the one line logged per handled update.
type summary struct {
	handler   string
	start     time.Time
	malformed bool
}

func (s summary) log(ctx context.Context, status string, err error) {
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", s.handler),
		slog.Duration("duration", time.Since(s.start)),
	}
	if s.malformed {
		attrs = append(attrs, slog.String("reason", "malformed"))
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		if code := tg.StatusOf(err); code != 0 {
			attrs = append(attrs, slog.Int("http_code", code))
		}
	}
	logger.Info(ctx, "tg", "handler.handled", attrs...)
}

// commandName is the lowercased command without its slash, or "unknown"
// for free text.
func commandName(text string) string {
	name, _ := engine.Tokenize(strings.TrimSpace(text))
	if len(name) < 2 || name[0] != '/' {
		return "unknown"
	}
	return strings.ToLower(name[1:])
}
