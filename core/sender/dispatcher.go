// Package sender delivers transport replies with bounded retries on
// transient network failures. Wallet calls never go through it.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/m3rciful/grinbot/core/logger"
	"github.com/m3rciful/grinbot/core/netutil"
)

var (
	ErrQueueClosed = errors.New("sender: dispatcher closed")
	ErrNilRun      = errors.New("sender: nil run function")
)

// secrets matches Telegram bot tokens and Matrix access tokens that transport
// errors tend to echo back inside URLs.
var secrets = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+|syt_[A-Za-z0-9_]+|access_token=[^&\s]+`)

const defaultMaxRetries = 3

type Options struct {
	// Component is the logger component, e.g. "tg.sender".
	Component string
	// MaxRetries defaults to 3; a negative value disables retries.
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds one send including its retries.
	MaxDuration time.Duration
	// Retryable defaults to netutil.ShouldRetry. Errors whose status is 429
	// or 5xx are retried as well.
	Retryable func(error) bool
	// StatusOf extracts an HTTP status from transport errors.
	StatusOf func(error) int
	// RetryAfter returns the wait the remote side asked for, 0 if none.
	RetryAfter func(error) time.Duration
}

func (o *Options) defaults() {
	if o.Component == "" {
		o.Component = "sender"
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = defaultMaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	if o.Retryable == nil {
		o.Retryable = netutil.ShouldRetry
	}
}

// Dispatcher runs outbound calls on the caller's goroutine so replies keep
// the order their updates were processed in.
type Dispatcher struct {
	opts     Options
	closed   atomic.Bool
	inflight sync.WaitGroup
	failures atomic.Uint64
}

func NewDispatcher(opts Options) *Dispatcher {
	opts.defaults()
	return &Dispatcher{opts: opts}
}

// Do calls run until it succeeds, fails with a non-retryable error or the
// retry budget is spent. run must be safe to repeat.
func (d *Dispatcher) Do(ctx context.Context, action, endpoint string, run func(context.Context) error) error {
	if run == nil {
		return ErrNilRun
	}
	if d.closed.Load() {
		return ErrQueueClosed
	}
	d.inflight.Add(1)
	defer d.inflight.Done()

	if ctx == nil {
		ctx = context.Background()
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	attrs := []slog.Attr{slog.String("op", action)}
	if endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", endpoint))
	}
	start := time.Now()
	attempts := 0

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.opts.RetryBackoff
	policy.RandomizationFactor = 0.2

	var last error
	_, err := backoff.Retry(sendCtx, func() (struct{}, error) {
		attempts++
		last = run(sendCtx)
		switch {
		case last == nil:
			return struct{}{}, nil
		case !d.retryable(last):
			return struct{}{}, backoff.Permanent(last)
		}
		if wait := d.retryAfter(last); wait > 0 {
			return struct{}{}, &backoff.RetryAfterError{Duration: wait}
		}
		return struct{}{}, last
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(d.opts.MaxRetries+1)),
		backoff.WithMaxElapsedTime(d.opts.MaxDuration),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug(ctx, d.opts.Component, "send.retry",
				append(attrs,
					slog.String("status", logger.StatusRetry),
					slog.Int("attempt", attempts),
					slog.Duration("backoff", next),
					slog.String("err", redact(err)),
				)...,
			)
		}),
	)

	if err == nil {
		logger.Debug(ctx, d.opts.Component, "send",
			append(attrs,
				slog.String("status", logger.StatusOK),
				slog.Int("attempts", attempts),
				slog.Duration("duration", time.Since(start)),
			)...,
		)
		return nil
	}

	var (
		perm  *backoff.PermanentError
		after *backoff.RetryAfterError
	)
	switch {
	case errors.As(err, &perm):
		err = perm.Unwrap()
	case errors.As(err, &after):
		err = last
	}
	d.failures.Add(1)
	logger.Error(ctx, d.opts.Component, "send",
		append(attrs,
			slog.String("status", logger.StatusFail),
			slog.String("err", redact(err)),
			slog.String("err_code", d.classify(err)),
			slog.Int("attempts", attempts),
			slog.Duration("duration", time.Since(start)),
		)...,
	)
	return err
}

// ErrorCount returns the number of sends that ultimately failed.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.failures.Load()
}

// Close rejects new sends and waits for in-flight ones.
func (d *Dispatcher) Close() {
	d.closed.Store(true)
	d.inflight.Wait()
}

func (d *Dispatcher) retryable(err error) bool {
	if d.opts.Retryable(err) {
		return true
	}
	status := d.status(err)
	return status == http.StatusTooManyRequests || status >= 500
}

func (d *Dispatcher) retryAfter(err error) time.Duration {
	if d.opts.RetryAfter == nil {
		return 0
	}
	return max(d.opts.RetryAfter(err), 0)
}

func (d *Dispatcher) status(err error) int {
	status := 0
	if d.opts.StatusOf != nil {
		status = d.opts.StatusOf(err)
	}
	if status == 0 {
		status = trailingStatus(err.Error())
	}
	return status
}

func (d *Dispatcher) classify(err error) string {
	var (
		dnsErr *net.DNSError
		netErr net.Error
		opErr  *net.OpError
		alert  tls.AlertError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &alert):
		return "tls"
	}

	status := d.status(err)
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// trailingStatus reads a "(NNN)" suffix, the shape telebot uses for API errors.
func trailingStatus(msg string) int {
	msg = strings.TrimSpace(msg)
	if !strings.HasSuffix(msg, ")") {
		return 0
	}
	open := strings.LastIndexByte(msg, '(')
	if open < 0 {
		return 0
	}
	code, err := strconv.Atoi(msg[open+1 : len(msg)-1])
	if err != nil {
		return 0
	}
	return code
}

func redact(err error) string {
	if err == nil {
		return ""
	}
	return secrets.ReplaceAllString(err.Error(), "<redacted>")
}
