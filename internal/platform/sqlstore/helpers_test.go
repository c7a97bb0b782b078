package sqlstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/task"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestDB opens a migrated SQLite database in a temporary directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "codescope.db")
	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		URL:    "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
	}, discardLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(context.Background(), db, MigrateUp, discardLogger))
	return db
}

// newPendingTask creates and stores a pending task submitted at submitted.
func newPendingTask(t *testing.T, s *TaskStore, owner uuid.UUID, submitted time.Time) *task.Task {
	t.Helper()

	temp := 0.4
	tk := task.NewTask(owner, task.Input{
		RepositoryLocators: []string{"https://github.com/acme/widgets"},
		Options: task.Options{
			PromptProfile: task.DefaultPromptProfile,
			Model:         "gemini-2.5-flash",
			Temperature:   &temp,
			AnalysisType:  task.AnalysisTypeDeep,
			OutputFormat:  task.OutputFormatMarkdown,
		},
	}, submitted)
	require.NoError(t, s.Create(context.Background(), tk))
	return tk
}

// ms truncates t to the stored precision.
func ms(t time.Time) time.Time {
	return t.Truncate(time.Millisecond).UTC()
}
