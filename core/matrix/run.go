package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/grinbot/core/config"
	"github.com/m3rciful/grinbot/core/logger"
	"github.com/m3rciful/grinbot/core/sender"

	"maunium.net/go/mautrix/id"
)

// RunOptions controls the behaviour of Run.
type RunOptions struct {
	Config  *coreconfig.Config
	Handler Handler

	DispatcherOptions sender.Options

	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// Run syncs with the homeserver and serves direct rooms until ctx is done.
func Run(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return fmt.Errorf("matrix: nil config provided")
	}
	if opts.Handler == nil {
		return fmt.Errorf("matrix: nil handler provided")
	}
	cfg := opts.Config.Matrix
	ctx = logger.WithTransport(ctx, Transport)

	client, err := NewClient(cfg.Homeserver, cfg.UserID, cfg.AccessToken, cfg.DeviceID)
	if err != nil {
		return err
	}

	dopts := opts.DispatcherOptions
	if dopts.Component == "" {
		dopts.Component = "matrix.sender"
	}
	if dopts.StatusOf == nil {
		dopts.StatusOf = StatusOf
	}
	if dopts.RetryAfter == nil {
		dopts.RetryAfter = RetryAfterOf
	}
	disp := sender.NewDispatcher(dopts)
	defer disp.Close()

	svc := NewService(ServiceOptions{
		Handler:    opts.Handler,
		Room:       client,
		Self:       client.UserID(),
		Owner:      id.UserID(opts.Config.Bot.Username),
		Since:      time.Now(),
		Dispatcher: disp,
	})

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx); err != nil {
			return err
		}
	}
	logger.Info(ctx, "matrix", "mode",
		slog.String("mode", "sync"),
		slog.String("homeserver", cfg.Homeserver),
		slog.String("user_id", cfg.UserID),
	)

	runErr := client.Sync(ctx, svc.HandleMessage, svc.HandleMember)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx))
	}
	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
