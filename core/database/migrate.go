package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	coreconfig "github.com/m3rciful/grinbot/core/config"
	"github.com/m3rciful/grinbot/core/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// RunMigrations applies every embedded up migration not yet recorded in the
// database. Cancelling ctx stops after the migration in progress.
func RunMigrations(ctx context.Context, cfg coreconfig.DatabaseConfig) error {
	files := upMigrations(migrationsFS, migrationsDir)

	src, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return fmt.Errorf("database: embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, URL(cfg))
	if err != nil {
		logger.Error(ctx, "db.migrate", "init",
			slog.String("status", logger.StatusFail),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("database: init migrations: %w", err)
	}
	defer m.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info(ctx, "db.migrate", "summary",
			slog.String("status", logger.StatusSkip),
			slog.Uint64("version", uint64(from)),
			slog.Duration("duration", time.Since(start)),
		)
		return nil
	case err != nil:
		logger.Error(ctx, "db.migrate", "summary",
			slog.String("status", logger.StatusFail),
			slog.String("err", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return fmt.Errorf("database: migrate up: %w", err)
	}

	to, _, _ := m.Version()
	applied := appliedBetween(files, uint64(from), uint64(to))
	names, cut := logger.SummarizeStrings(applied, 6)
	logger.Info(ctx, "db.migrate", "summary",
		slog.String("status", logger.StatusOK),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.String("files", names),
		slog.Bool("files_truncated", cut),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// upMigrations lists the *.up.sql files in dir in version order.
func upMigrations(fsys fs.FS, dir string) []string {
	matches, err := fs.Glob(fsys, dir+"/*.up.sql")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimPrefix(m, dir+"/"))
	}
	slices.SortFunc(names, func(a, b string) int {
		if va, vb := versionOf(a), versionOf(b); va != vb {
			return int(va) - int(vb)
		}
		return strings.Compare(a, b)
	})
	return names
}

// versionOf reads the numeric prefix of a migration file name, 0 if absent.
func versionOf(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

func appliedBetween(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := versionOf(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
