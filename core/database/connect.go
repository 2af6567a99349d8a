// Package database connects to the optional journal database and applies
// the embedded schema migrations.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	coreconfig "github.com/m3rciful/grinbot/core/config"
	"github.com/m3rciful/grinbot/core/logger"
)

// readyTimeout bounds how long Connect waits for a starting database.
const readyTimeout = 30 * time.Second

// DSN builds a lib/pq key/value connection string.
func DSN(cfg coreconfig.DatabaseConfig) string {
	pairs := [][2]string{
		{"user", cfg.User},
		{"password", cfg.Password},
		{"host", cfg.Host},
		{"port", cfg.Port},
		{"dbname", cfg.Name},
		{"sslmode", cfg.SSLMode},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p[0]+"="+dsnValue(p[1]))
	}
	return strings.Join(parts, " ")
}

// dsnValue quotes values lib/pq would otherwise split or misread.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
	return "'" + v + "'"
}

// URL builds the postgres:// form golang-migrate expects.
func URL(cfg coreconfig.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

// Connect opens the pool and waits until the server answers a ping.
func Connect(ctx context.Context, cfg coreconfig.DatabaseConfig) (*sqlx.DB, error) {
	attrs := []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}
	start := time.Now()

	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	attempts, err := waitReady(ctx, db, readyTimeout)
	if err != nil {
		_ = db.Close()
		logger.Error(ctx, "db", "connect", append(attrs,
			slog.String("status", logger.StatusFail),
			slog.Int("attempts", attempts),
			slog.String("err", err.Error()),
		)...)
		return nil, fmt.Errorf("database: not ready: %w", err)
	}

	logger.Info(ctx, "db", "connect", append(attrs,
		slog.String("status", logger.StatusOK),
		slog.Int("attempts", attempts),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", time.Since(start)),
	)...)
	return db, nil
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// waitReady pings db with backoff until it answers or timeout passes.
func waitReady(ctx context.Context, db pinger, timeout time.Duration) (int, error) {
	attempts := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return struct{}{}, db.PingContext(pctx)
	}, backoff.WithBackOff(policy), backoff.WithMaxElapsedTime(timeout))
	return attempts, err
}
