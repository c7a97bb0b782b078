package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/store"
	_ "modernc.org/sqlite" // registers the sqlite driver
)

// DB is a connection pool together with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Ensure DB can be used wherever a DBTX is expected
var _ store.DBTX = (*DB)(nil)

// Open establishes a connection pool for cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(dialect.DriverName(), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	switch dialect {
	case SQLite:
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY
		// and keeps :memory: databases coherent
		sqlDB.SetMaxOpenConns(1)
	default:
		sqlDB.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 10))
		sqlDB.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 5))
		sqlDB.SetConnMaxLifetime(time.Duration(orDefault(cfg.ConnMaxLifetime, 5)) * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established", "driver", string(dialect))
	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Rebind rewrites a ? placeholder query for the DB's dialect.
func (db *DB) Rebind(query string) string {
	return db.Dialect.Rebind(query)
}

// millis converts t to the stored representation.
func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// nullMillis converts an optional time to the stored representation.
func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
