package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInTransaction(t *testing.T) {
	fnErr := errors.New("insert rejected")

	tests := []struct {
		name    string
		expect  func(sqlmock.Sqlmock)
		fn      TxFn
		wantErr []string
		is      error
	}{
		{
			name: "commits on success",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectExec("INSERT INTO reports").WillReturnResult(sqlmock.NewResult(1, 1))
				m.ExpectCommit()
			},
			fn: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, "INSERT INTO reports (id) VALUES (?)", "r1")
				return err
			},
		},
		{
			name: "rolls back when fn fails",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectRollback()
			},
			fn: func(context.Context, *sql.Tx) error { return fnErr },
			is: fnErr,
		},
		{
			name:    "begin failure skips fn",
			expect:  func(m sqlmock.Sqlmock) { m.ExpectBegin().WillReturnError(errors.New("pool exhausted")) },
			fn:      func(context.Context, *sql.Tx) error { panic("fn must not run") },
			wantErr: []string{"begin transaction", "pool exhausted"},
		},
		{
			name: "commit failure",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectCommit().WillReturnError(errors.New("disk full"))
			},
			fn:      func(context.Context, *sql.Tx) error { return nil },
			wantErr: []string{"commit transaction", "disk full"},
		},
		{
			name: "rollback failure keeps fn error",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectRollback().WillReturnError(errors.New("connection lost"))
			},
			fn:      func(context.Context, *sql.Tx) error { return fnErr },
			wantErr: []string{"insert rejected", "rollback transaction", "connection lost"},
			is:      fnErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()
			tt.expect(mock)

			err = RunInTransaction(context.Background(), db, tt.fn)

			switch {
			case tt.is == nil && len(tt.wantErr) == 0:
				assert.NoError(t, err)
			case tt.is != nil:
				assert.ErrorIs(t, err, tt.is)
			}
			for _, s := range tt.wantErr {
				assert.ErrorContains(t, err, s)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRunInTransaction_PanicRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = RunInTransaction(context.Background(), db, func(context.Context, *sql.Tx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
