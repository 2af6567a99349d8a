package helpers

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/logger"
	"github.com/m3rciful/grinbot/core/sender"
	"github.com/m3rciful/grinbot/core/telegram/format"
	"github.com/m3rciful/grinbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// queryResultID is the single article id used for inline query answers.
const queryResultID = "grinbot-notice"

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the retrying sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

func send(c tele.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}
	ctx := BuildContext(c)
	return disp.Do(ctx, action, endpoint, func(context.Context) error { return run() })
}

// SendReply delivers an engine reply to its conversation as HTML with the
// quick command keyboard. Unroutable replies are dropped.
func SendReply(c tele.Context, out engine.OutgoingMessage) error {
	if out.ConversationID == engine.UnroutableConversation {
		logger.Debug(BuildContext(c), "tg", "reply.skip", slog.String("reason", "unroutable"))
		return nil
	}
	text := format.TelegramHTML(out.Body())
	opts := &tele.SendOptions{
		ParseMode:   tele.ModeHTML,
		ReplyMarkup: keyboard.QuickCommands(out.QuickCommands),
	}
	return send(c, "send.reply", "sendMessage", func() error {
		_, err := c.Bot().Send(tele.ChatID(out.ConversationID), text, opts)
		return err
	})
}

// AnswerQuery answers an inline query with a single personal article
// carrying the reply text.
func AnswerQuery(c tele.Context, out engine.OutgoingMessage) error {
	q := c.Query()
	if q == nil {
		return nil
	}
	body := out.Body()
	article := &tele.ArticleResult{Title: body, Text: body}
	article.SetResultID(queryResultID)
	resp := &tele.QueryResponse{
		Results:    tele.Results{article},
		IsPersonal: true,
	}
	return send(c, "answer.query", "answerInlineQuery", func() error {
		return c.Bot().Answer(q, resp)
	})
}
