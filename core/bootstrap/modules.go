package bootstrap

import (
	"context"
	"log/slog"

	"github.com/m3rciful/grinbot/core/engine"
	"github.com/m3rciful/grinbot/core/journal"
	"github.com/m3rciful/grinbot/core/logger"
)

// ObserverProvider builds an engine observer from bootstrapped infrastructure.
// A nil observer with a nil error means the module is disabled.
type ObserverProvider interface {
	Observer(ctx context.Context, res *Result) (engine.Observer, error)
}

// ObserverProviderFunc adapts a bare function to the ObserverProvider interface.
type ObserverProviderFunc func(ctx context.Context, res *Result) (engine.Observer, error)

// Observer executes the underlying function.
func (f ObserverProviderFunc) Observer(ctx context.Context, res *Result) (engine.Observer, error) {
	return f(ctx, res)
}

// Modules groups optional bootstrapping hooks.
type Modules struct {
	Observers []ObserverProvider
}

// DefaultModules returns the modules every bot runs with.
func DefaultModules() Modules {
	return Modules{Observers: []ObserverProvider{JournalModule()}}
}

// JournalModule records wallet operations when a database is configured.
// The newest existing entry is logged so a restart can be matched to where
// the previous run stopped.
func JournalModule() ObserverProvider {
	return ObserverProviderFunc(func(ctx context.Context, res *Result) (engine.Observer, error) {
		if res == nil || res.DB == nil {
			return nil, nil
		}
		store := journal.NewStore(res.DB)
		last, ok, err := store.Last(ctx)
		switch {
		case err != nil:
			logger.Warn(ctx, "journal", "journal.last",
				slog.String("status", logger.StatusFail),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		case ok:
			logger.Info(ctx, "journal", "journal.last",
				slog.String("status", logger.StatusOK),
				slog.String("action", last.Action),
				slog.Int64("conversation_id", last.ConversationID),
				slog.String("transport", last.Transport),
				slog.String("last_rid", last.RID),
				slog.Time("at", last.CreatedAt),
			)
		default:
			logger.Info(ctx, "journal", "journal.last", slog.String("status", logger.StatusSkip), slog.Int("count", 0))
		}
		return journal.Observer(store, res.Config.Transport), nil
	})
}
