package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/grinbot/core/config"
	"github.com/m3rciful/grinbot/core/logger"
	"github.com/m3rciful/grinbot/core/netutil"
	"github.com/m3rciful/grinbot/core/sender"
	tghelpers "github.com/m3rciful/grinbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config *coreconfig.Config

	DispatcherOptions sender.Options
	Dispatcher        *sender.Dispatcher

	Middlewares []Middleware
	Routes      []Route
	// Commands populate the command menu; nil uses MenuCommands.
	Commands []tele.Command

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is handed to the lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *sender.Dispatcher
}

func newPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	timeout := time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}

func newBot(ctx context.Context, cfg *coreconfig.Config, poller tele.Poller) (*tele.Bot, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: netutil.NewHTTPClient(netutil.ClientOptions{MaxIdleConns: 10, Retries: 3}),
		// One update at a time keeps replies in order.
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			lctx := ctx
			if c != nil {
				lctx = tghelpers.BuildContext(c)
			}
			logger.Error(lctx, "tg", "handler.error",
				slog.String("status", logger.StatusFail),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	return bot, nil
}

// logMode reports the update source and, for long polling, clears any
// webhook left over from a previous deployment.
func logMode(ctx context.Context, bot *tele.Bot, poller tele.Poller, cleanup bool, took time.Duration) {
	switch p := poller.(type) {
	case *tele.Webhook:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", took),
		)
	case *tele.LongPoller:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
			slog.Duration("duration", took),
		)
		if !cleanup {
			return
		}
		if err := bot.RemoveWebhook(false); err != nil {
			logger.Warn(ctx, "tg", "delete_webhook",
				slog.String("status", logger.StatusFail),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
	}
}

func wire(ctx context.Context, bot *tele.Bot, opts RunOptions) {
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	var routes int
	for _, r := range opts.Routes {
		if r.Endpoint == nil || r.Handler == nil {
			continue
		}
		bot.Handle(r.Endpoint, r.Handler)
		routes++
	}
	logger.Info(ctx, "tg.wire", "complete",
		slog.Int("routes", routes),
		slog.Int("middlewares", len(opts.Middlewares)),
	)

	cmds := opts.Commands
	if cmds == nil {
		cmds = MenuCommands
	}
	SetupCommands(ctx, bot, cmds)
}

func newDispatcher(dopts sender.Options) *sender.Dispatcher {
	if dopts.Component == "" {
		dopts.Component = "tg.sender"
	}
	if dopts.StatusOf == nil {
		dopts.StatusOf = StatusOf
	}
	if dopts.RetryAfter == nil {
		dopts.RetryAfter = RetryAfterOf
	}
	return sender.NewDispatcher(dopts)
}

// RunTelegram serves the bot until ctx is done or the poller stops.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	ctx = logger.WithTransport(ctx, tghelpers.Transport)

	poller := newPoller(opts.Config)
	start := time.Now()
	bot, err := newBot(ctx, opts.Config, poller)
	if err != nil {
		return err
	}
	logMode(ctx, bot, poller, !opts.DisableWebhookCleanup, logger.Took(start))

	disp := opts.Dispatcher
	if disp == nil {
		disp = newDispatcher(opts.DispatcherOptions)
	}
	defer disp.Close()
	tghelpers.SetDispatcher(disp)
	defer tghelpers.SetDispatcher(nil)

	wire(ctx, bot, opts)

	rt := Runtime{Bot: bot, Dispatcher: disp}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-stopped
	case <-stopped:
	}

	if opts.OnStop != nil {
		return opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	return nil
}
