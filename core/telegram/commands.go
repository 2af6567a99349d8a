package telegram

import (
	"context"
	"log/slog"

	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// MenuCommands are shown in the Telegram command menu. Parsing never
// depends on this list.
var MenuCommands = []tele.Command{
	{Text: engine.CmdBalance, Description: "Show wallet balance"},
	{Text: engine.CmdSend, Description: "Send grin: /send <amount> <destination>"},
	{Text: engine.CmdCreate, Description: "Create a new wallet"},
	{Text: engine.CmdHelp, Description: "Show help"},
	{Text: engine.CmdHome, Description: "Back to the home screen"},
}

// SetupCommands publishes the command menu. Failure is logged, not fatal.
func SetupCommands(ctx context.Context, bot *tele.Bot, cmds []tele.Command) {
	if bot == nil || len(cmds) == 0 {
		return
	}
	if err := bot.SetCommands(cmds); err != nil {
		logger.Warn(ctx, "tg.wire", "register.commands.set_failed",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	logger.Info(ctx, "tg.wire", "register.commands",
		slog.String("status", "ok"),
		slog.Int("commands", len(cmds)),
	)
}
