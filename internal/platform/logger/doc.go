// Package logger sets up the process-wide slog JSON logger and passes scoped
// loggers through context.Context. Request handlers store a logger carrying
// trace_id and user_id; workers store one carrying task_id and attempt.
package logger
