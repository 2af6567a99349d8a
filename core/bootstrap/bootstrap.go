package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/grinbot/core/config"
	coredatabase "github.com/m3rciful/grinbot/core/database"
	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/logger"
	"github.com/m3rciful/grinbot/core/wallet"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, coreconfig.DatabaseConfig) error

	// Wallet overrides the grin wallet client built from Config.
	Wallet  engine.Wallet
	Modules Modules
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Config *coreconfig.Config
	// DB is nil when no journal database is configured.
	DB     *sqlx.DB
	Wallet engine.Wallet
	Engine *engine.Engine
}

// Close releases the database handle.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, the optional journal database, the wallet
// client, and the engine.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{Config: cfg}

	if cfg.Database.Enabled() {
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}

		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(ctx, cfg.Database); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		res.DB = db
	} else {
		logger.Info(ctx, "db", "journal", slog.String("status", "skip"))
	}

	res.Wallet = opts.Wallet
	if res.Wallet == nil {
		res.Wallet = wallet.New(wallet.Options{
			Dir:      cfg.Wallet.Dir,
			OwnerURL: cfg.Wallet.OwnerURL,
			Password: cfg.Wallet.Password,
			Binary:   cfg.Wallet.Binary,
			Timeout:  cfg.Wallet.Timeout(),
		}, nil)
	}

	observers := []engine.Observer{engine.LogObserver(logger.Component("engine"))}
	for _, p := range opts.Modules.Observers {
		if p == nil {
			continue
		}
		obs, err := p.Observer(ctx, res)
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("bootstrap: observer module failed: %w", err)
		}
		if obs != nil {
			observers = append(observers, obs)
		}
	}

	res.Engine = engine.New(engine.Options{
		Identity:  cfg.Bot.Username,
		Context:   engine.ExternalContext{Wallet: res.Wallet},
		Observers: observers,
	})
	logger.Info(ctx, "app", "engine.ready",
		slog.String("transport", cfg.Transport),
		slog.Int("observers", len(observers)),
	)
	return res, nil
}
