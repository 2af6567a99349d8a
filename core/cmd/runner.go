package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/m3rciful/grinbot/core/bootstrap"
	coreconfig "github.com/m3rciful/grinbot/core/config"
	"github.com/m3rciful/grinbot/core/keybase"
	"github.com/m3rciful/grinbot/core/logger"
	"github.com/m3rciful/grinbot/core/markup"
	"github.com/m3rciful/grinbot/core/matrix"
	coretelegram "github.com/m3rciful/grinbot/core/telegram"
	"github.com/m3rciful/grinbot/core/telegram/router"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// Options describe how to load configuration, bootstrap the engine, and run
// the configured transport.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string
	// ConfigPath takes precedence over ConfigEnvVar.
	ConfigPath string

	// Command runs once against the engine and prints the reply instead of
	// serving a transport.
	Command string
	Stdout  io.Writer

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(ctx context.Context, cfg ConfigCarrier) (*bootstrap.Result, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	RunKeybase     func(ctx context.Context, opts keybase.RunOptions) error
	RunMatrix      func(ctx context.Context, opts matrix.RunOptions) error
}

// Run loads configuration, bootstraps the engine, and either answers a single
// command or serves the configured transport until interrupted.
func Run(opts Options) error {
	if opts.LoadConfig == nil {
		return fmt.Errorf("cmd: LoadConfig is required")
	}

	cfgPath, err := configPath(opts)
	if err != nil {
		return err
	}

	log.Printf("loading config: %s", cfgPath)
	carrier, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	cfg := carrier.CoreConfig()
	if cfg == nil {
		return fmt.Errorf("cmd: loaded config is missing core configuration")
	}

	oneShot := strings.TrimSpace(opts.Command) != ""
	if oneShot && cfg.Logging.Console == "" {
		// stdout carries the reply
		cfg.Logging.Console = "stderr"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	boot := opts.Bootstrap
	if boot == nil {
		boot = func(ctx context.Context, c ConfigCarrier) (*bootstrap.Result, error) {
			return bootstrap.Run(ctx, bootstrap.Options{
				Config:  c.CoreConfig(),
				Modules: bootstrap.DefaultModules(),
			})
		}
	}
	startedAt := time.Now()
	res, err := boot(ctx, carrier)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer func() {
		if err := res.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}()

	if oneShot {
		out := res.Engine.Command(ctx, opts.Command, 0)
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		_, err := fmt.Fprintln(w, markup.Plain(out.Body()))
		return err
	}

	onStart := func(ctx context.Context) error {
		logger.Info(ctx, "app", "ready",
			slog.String("transport", cfg.Transport),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}
	onStop := func(ctx context.Context) error {
		logger.Info(ctx, "app", "shutdown")
		return nil
	}

	switch cfg.Transport {
	case coreconfig.TransportKeybase:
		run := opts.RunKeybase
		if run == nil {
			run = keybase.Run
		}
		return run(ctx, keybase.RunOptions{
			Config:  cfg,
			Handler: res.Engine,
			OnStart: onStart,
			OnStop:  onStop,
		})
	case coreconfig.TransportMatrix:
		run := opts.RunMatrix
		if run == nil {
			run = matrix.Run
		}
		return run(ctx, matrix.RunOptions{
			Config:  cfg,
			Handler: res.Engine,
			OnStart: onStart,
			OnStop:  onStop,
		})
	default:
		run := opts.RunTelegram
		if run == nil {
			run = coretelegram.RunTelegram
		}
		return run(ctx, coretelegram.RunOptions{
			Config:      cfg,
			Middlewares: coretelegram.DefaultMiddlewares(cfg, nil),
			Routes:      router.EngineRoutes(res.Engine),
			OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
				return onStart(ctx)
			},
			OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
				return onStop(ctx)
			},
		})
	}
}

func configPath(opts Options) (string, error) {
	if p := strings.TrimSpace(opts.ConfigPath); p != "" {
		return p, nil
	}
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}
	if cfgPath == "" {
		return "", fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
	}
	return cfgPath, nil
}
