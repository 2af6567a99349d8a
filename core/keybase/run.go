package keybase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	coreconfig "github.com/m3rciful/grinbot/core/config"
	"github.com/m3rciful/grinbot/core/logger"
	"github.com/m3rciful/grinbot/core/sender"
)

// Listen runs "chat api-listen" and hands its stdout to serve. It returns
// when serve returns or the process exits. The process is killed when serve
// fails.
func (c *Client) Listen(ctx context.Context, serve func(context.Context, io.Reader) error) error {
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cmd := exec.CommandContext(listenCtx, c.binary, c.args("chat", "api-listen")...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("keybase: api-listen pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("keybase: start api-listen: %w", err)
	}
	serveErr := serve(ctx, stdout)
	if serveErr != nil {
		cancel()
	}
	waitErr := cmd.Wait()
	if serveErr != nil {
		return serveErr
	}
	if waitErr != nil && ctx.Err() == nil {
		return fmt.Errorf("keybase: api-listen exited: %w", waitErr)
	}
	return nil
}

// RunOptions controls the behaviour of Run.
type RunOptions struct {
	Config  *coreconfig.Config
	Handler Handler

	// Client overrides the CLI client built from Config.
	Client            *Client
	DispatcherOptions sender.Options

	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// Run serves the bot over Keybase until ctx is done or the listener exits.
func Run(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return fmt.Errorf("keybase: nil config provided")
	}
	if opts.Handler == nil {
		return fmt.Errorf("keybase: nil handler provided")
	}
	cfg := opts.Config.Keybase
	ctx = logger.WithTransport(ctx, Transport)

	client := opts.Client
	if client == nil {
		client = NewClient(cfg.Binary, cfg.Home, nil)
	}
	if cfg.PaperKey != "" {
		if err := client.Login(ctx, cfg.Username, cfg.PaperKey); err != nil {
			return err
		}
		logger.Info(ctx, "keybase", "login", slog.String("status", "ok"), slog.String("username", cfg.Username))
	}

	dopts := opts.DispatcherOptions
	if dopts.Component == "" {
		dopts.Component = "keybase.sender"
	}
	disp := sender.NewDispatcher(dopts)
	defer disp.Close()

	svc := NewService(ServiceOptions{
		Handler:    opts.Handler,
		Replier:    client,
		Self:       cfg.Username,
		Dispatcher: disp,
	})

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx); err != nil {
			return err
		}
	}
	logger.Info(ctx, "keybase", "mode", slog.String("mode", "api-listen"), slog.String("username", cfg.Username))

	runErr := client.Listen(ctx, svc.Serve)

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
