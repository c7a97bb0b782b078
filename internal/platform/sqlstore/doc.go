// Package sqlstore implements the task, user and report stores on
// database/sql. The same queries and migrations run on PostgreSQL (through the
// pgx stdlib driver) and on SQLite (through modernc.org/sqlite): statements are
// written with ? placeholders and rebound per dialect, timestamps are stored as
// Unix milliseconds and flags as 0/1 integers.
package sqlstore
