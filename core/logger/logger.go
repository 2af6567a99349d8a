// Package logger is the structured slog setup shared by every transport.
// Call sites log through Info/Warn/Error/Debug with a component and an event
// name; per-update correlation rides in the context.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/grinbot/core/buildinfo"
	coreconfig "github.com/m3rciful/grinbot/core/config"
)

const (
	defaultSampleNum = 1
	defaultSampleDen = 50
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	writer  *asyncWriter
	closers []io.Closer

	levelVar     slog.LevelVar
	debugSampler = newRatioSampler(defaultSampleNum, defaultSampleDen)
	trace        bool
	stacks       bool

	// L is the base logger. It stays nil until InitLogger runs, and every
	// helper in this package is a no-op until then.
	L *slog.Logger
)

// InitLogger configures the global logger from cfg. Only the first call
// has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		levelVar.Set(parseLevel(lc.Level))
		debugSampler.Set(sampleRatio(lc.DebugSample))
		trace = truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE"))
		stacks = trace || truthy(lc.Stacks)

		var sinks []sink
		sinks, closers, err = openSinks(lc)
		if err != nil {
			return
		}
		writer = newAsyncWriter(64*1024, sinks...)

		L = slog.New(newLineHandler(lineOptions{
			level:    &levelVar,
			writer:   writer,
			format:   selectFormat(lc),
			keyOrder: selectKeyOrder(lc.KeysOrder),
		}))
		slog.SetDefault(L)
		logStartup(cfg, lc)
	})
	return err
}

func logStartup(cfg *coreconfig.Config, lc coreconfig.LoggingConfig) {
	version, commit, built := buildinfo.Resolved()
	attrs := []slog.Attr{
		slog.String("go_version", runtime.Version()),
		slog.String("version", version),
		slog.String("build_commit", commit),
		slog.String("build_time", built),
		slog.String("cfg_profile", profile(lc)),
	}
	if cfg != nil {
		attrs = append(attrs, slog.String("transport", cfg.Transport))
	}
	Info(context.Background(), "app", "startup", attrs...)
}

// Shutdown flushes queued lines and closes log files. It is safe to call twice.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if writer != nil {
		errs = append(errs, writer.Flush(), writer.Close())
	}
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// openSinks returns the console sink, the full log file and the errors-only
// file, skipping whichever is not configured.
func openSinks(lc coreconfig.LoggingConfig) ([]sink, []io.Closer, error) {
	var sinks []sink
	switch strings.ToLower(strings.TrimSpace(lc.Console)) {
	case "off", "none":
	case "stderr":
		sinks = append(sinks, allLevels(os.Stderr))
	default:
		sinks = append(sinks, allLevels(os.Stdout))
	}

	dir := strings.TrimSpace(lc.Dir)
	if dir == "" {
		return sinks, nil, nil
	}
	var files []io.Closer
	open := func(name string) (*os.File, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logger: create log dir %s: %w", dir, err)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logger: open log file %s: %w", path, err)
		}
		files = append(files, f)
		return f, nil
	}
	if name := strings.TrimSpace(lc.BotFile); name != "" {
		f, err := open(name)
		if err != nil {
			return nil, files, err
		}
		sinks = append(sinks, allLevels(f))
	}
	if name := strings.TrimSpace(lc.ErrorsFile); name != "" {
		f, err := open(name)
		if err != nil {
			return nil, files, err
		}
		sinks = append(sinks, sink{w: f, min: slog.LevelError})
	}
	return sinks, files, nil
}

func selectFormat(lc coreconfig.LoggingConfig) logFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	switch profile(lc) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

func selectKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return defaultKeyOrder
	}
	return order
}

func profile(lc coreconfig.LoggingConfig) string {
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		return p
	}
	return "prod"
}

// sampleRatio defaults to 1/50; "all" or "0" logs every sampled event.
func sampleRatio(raw string) (int, int) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return defaultSampleNum, defaultSampleDen
	case "all", "0":
		return 0, 0
	}
	num, den := parseRatio(raw)
	if num <= 0 || den <= 0 {
		return defaultSampleNum, defaultSampleDen
	}
	return num, den
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// LogEvent logs attrs under an explicit event name. A nil logg falls back to
// the context logger, then L.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to name, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs under component. Before InitLogger it uses the context logger,
// if one was stored.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		if logg = FromContext(ctx); logg != nil && strings.TrimSpace(component) != "" {
			logg = logg.With("component", strings.TrimSpace(component))
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

// Debug logs a debug-level event.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. TRACE=1 disables sampling.
func ShouldSampleDebug() bool {
	return trace || debugSampler.Allow()
}

// StacksEnabled reports whether panic stacks are logged.
func StacksEnabled() bool {
	return stacks
}
