package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// LogEntry is one decoded JSON log line.
type LogEntry map[string]any

// Msg returns the entry's message.
func (e LogEntry) Msg() string {
	s, _ := e[slog.MessageKey].(string)
	return s
}

// TestLogBuffer collects JSON log output from concurrent goroutines.
type TestLogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *TestLogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *TestLogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Entries decodes every non-blank line written so far.
func (b *TestLogBuffer) Entries() ([]LogEntry, error) {
	var entries []LogEntry
	sc := bufio.NewScanner(strings.NewReader(b.String()))
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("log line %d: %w", n, err)
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

// Find returns the entries whose message equals msg.
func (b *TestLogBuffer) Find(msg string) []LogEntry {
	entries, _ := b.Entries()
	var found []LogEntry
	for _, e := range entries {
		if e.Msg() == msg {
			found = append(found, e)
		}
	}
	return found
}

// NewTestLogger returns a debug-level JSON logger and the buffer it writes to.
func NewTestLogger(t testing.TB) (*slog.Logger, *TestLogBuffer) {
	t.Helper()
	buf := &TestLogBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// AssertLogContains fails t unless the raw output contains content.
func AssertLogContains(t testing.TB, buf *TestLogBuffer, content string) {
	t.Helper()
	if logs := buf.String(); !strings.Contains(logs, content) {
		t.Errorf("log output does not contain %q:\n%s", content, logs)
	}
}
