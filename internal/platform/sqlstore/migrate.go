package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir = "migrations"

	// MigrationTableName is the table goose records applied versions in.
	MigrationTableName = "schema_migrations"
)

// Migration commands accepted by Migrate.
const (
	MigrateUp      = "up"
	MigrateDown    = "down"
	MigrateReset   = "reset"
	MigrateStatus  = "status"
	MigrateVersion = "version"
)

// goose keeps its configuration in package globals
var gooseMu sync.Mutex

// gooseLogger adapts the goose logger interface to slog
type gooseLogger struct {
	logger *slog.Logger
}

// Printf forwards goose progress messages at info level.
func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf logs at error level. It does not exit; the goose call returns the
// error to the caller instead.
func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Migrate runs a goose command against db using the embedded migrations.
func Migrate(ctx context.Context, db *DB, command string, logger *slog.Logger) error {
	logger = logger.With("component", "migrations", "command", command)

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{logger: logger})
	goose.SetTableName(MigrationTableName)
	if err := goose.SetDialect(db.Dialect.GooseDialect()); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	start := time.Now()
	var err error
	switch command {
	case MigrateUp:
		err = goose.UpContext(ctx, db.DB, migrationsDir)
	case MigrateDown:
		err = goose.DownContext(ctx, db.DB, migrationsDir)
	case MigrateReset:
		err = goose.ResetContext(ctx, db.DB, migrationsDir)
	case MigrateStatus:
		err = goose.StatusContext(ctx, db.DB, migrationsDir)
	case MigrateVersion:
		err = goose.VersionContext(ctx, db.DB, migrationsDir)
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
	if err != nil {
		logger.Error("migration failed", "error", err)
		return fmt.Errorf("migration %s failed: %w", command, err)
	}

	logger.Info("migration finished", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// SchemaVersion returns the highest applied migration version.
func SchemaVersion(ctx context.Context, db *DB) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetTableName(MigrationTableName)
	if err := goose.SetDialect(db.Dialect.GooseDialect()); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db.DB)
}
