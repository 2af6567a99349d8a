package logger

import (
	"log/slog"
	"strings"
)

// Status values understood by log consumers. Anything else is logged as is.
const (
	StatusOK          = "ok"
	StatusFail        = "fail"
	StatusSkip        = "skip"
	StatusRetry       = "retry"
	StatusRateLimited = "rate_limited"
	StatusCancelled   = "cancelled"
)

var knownStatus = map[string]struct{}{
	StatusOK:          {},
	StatusFail:        {},
	StatusSkip:        {},
	StatusRetry:       {},
	StatusRateLimited: {},
	StatusCancelled:   {},
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if _, ok := knownStatus[s]; ok {
		return s
	}
	return strings.TrimSpace(status)
}

// defaultKeyOrder puts correlation first, then what happened, then details.
// Unlisted keys follow in alphabetical order.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"transport",
	"update_id",
	"conversation_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"op",
	"action",
	"screen",
	"severity",
	"cb_key",
	"outcome",
	"duration_ms",
	"count",
	"username",
	"lang",
	"payload",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"slate_id",
	"room_id",
	"channel",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
}
