package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/grinbot/core/logger"
	tghelpers "github.com/m3rciful/grinbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	// Interval is the minimum spacing between updates from one user.
	Interval time.Duration
	// Exclude holds update kinds that bypass the limit: callback, message, inline_query.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// userLimiters hands out one token bucket per user.
type userLimiters struct {
	mu    sync.Mutex
	every rate.Limit
	users map[int64]*rate.Limiter
}

func (u *userLimiters) allow(userID int64) bool {
	u.mu.Lock()
	l, ok := u.users[userID]
	if !ok {
		if len(u.users) >= 4096 {
			clear(u.users)
		}
		l = rate.NewLimiter(u.every, 1)
		u.users[userID] = l
	}
	u.mu.Unlock()
	return l.Allow()
}

// RateLimitMiddleware drops updates arriving from the same user within
// Interval of the previous accepted one.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	limits := &userLimiters{
		every: rate.Every(opts.Interval),
		users: make(map[int64]*rate.Limiter),
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := updateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if limits.allow(user.ID) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("status", logger.StatusRateLimited),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
