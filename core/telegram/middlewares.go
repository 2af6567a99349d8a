package telegram

import (
	coreconfig "github.com/m3rciful/grinbot/core/config"
	"github.com/m3rciful/grinbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// LimitedText is sent to a user whose update was dropped by the rate limit.
const LimitedText = "Too many requests, please wait a moment and try again."

// LimitedNotice tells the sender their update was throttled. Inline queries
// are left unanswered.
func LimitedNotice(c tele.Context) error {
	switch {
	case c.Callback() != nil:
		return c.Respond(&tele.CallbackResponse{Text: LimitedText})
	case c.Query() != nil:
		return nil
	case c.Chat() != nil:
		return c.Send(LimitedText)
	}
	return nil
}

// DefaultMiddlewares returns recover, the optional per-user rate limit and
// the update logger, in that order. A nil onLimited falls back to
// LimitedNotice.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	if onLimited == nil {
		onLimited = LimitedNotice
	}
	chain := []Middleware{{Name: "recover", Use: middleware.RecoverMiddleware}}

	if cfg != nil && cfg.RateLimit.Interval() > 0 {
		exclude := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, kind := range cfg.RateLimit.ExcludeUpdates {
			exclude[kind] = struct{}{}
		}
		chain = append(chain, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval:  cfg.RateLimit.Interval(),
				Exclude:   exclude,
				OnLimited: onLimited,
			}),
		})
	}

	return append(chain, Middleware{Name: "logger", Use: middleware.LoggerMiddleware})
}
