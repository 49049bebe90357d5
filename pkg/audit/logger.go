package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// Logger defines the interface for audit logging implementations.
// Append-only; per-request ordering must be preserved but ordering
// across concurrent requests is not guaranteed (spec.md §4.7/§5).
type Logger interface {
	// Append records an audit entry. Implementations must be thread-safe.
	Append(entry Entry) error

	// Close releases any resources held by the logger.
	Close() error
}

// NoopLogger discards every entry. Used when audit logging is disabled.
type NoopLogger struct{}

func (l *NoopLogger) Append(_ Entry) error { return nil }
func (l *NoopLogger) Close() error         { return nil }

var _ Logger = (*NoopLogger)(nil)

// JSONLinesLogger writes audit entries as JSON lines to a writer backed
// by either a file or stdout.
type JSONLinesLogger struct {
	file     *os.File // nil when writing to stdout
	encoder  *json.Encoder
	sequence int64
	mu       sync.Mutex
}

// NewJSONLinesFileLogger creates a JSONLinesLogger that appends to path.
func NewJSONLinesFileLogger(path string) (*JSONLinesLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open log file: %w", err)
	}
	return &JSONLinesLogger{file: file, encoder: json.NewEncoder(file)}, nil
}

// NewJSONLinesStdoutLogger creates a JSONLinesLogger that writes to stdout.
func NewJSONLinesStdoutLogger() *JSONLinesLogger {
	return &JSONLinesLogger{encoder: json.NewEncoder(os.Stdout)}
}

func (l *JSONLinesLogger) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Sequence = atomic.AddInt64(&l.sequence, 1)
	if err := l.encoder.Encode(entry); err != nil {
		return fmt.Errorf("audit: failed to encode entry: %w", err)
	}
	return nil
}

func (l *JSONLinesLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	_ = l.file.Sync()
	err := l.file.Close()
	l.file = nil
	return err
}

var _ Logger = (*JSONLinesLogger)(nil)

// SQLiteLogger appends audit entries as rows in a single append-only
// table, using the pure-Go modernc.org/sqlite driver (no cgo toolchain
// dependency). This is audit persistence, not expectation persistence,
// so it does not conflict with the "no persistence of expectations"
// non-goal.
type SQLiteLogger struct {
	db       *sql.DB
	insert   *sql.Stmt
	sequence int64
	mu       sync.Mutex
}

// NewSQLiteLogger opens (creating if necessary) a SQLite database at
// path and prepares the audit_entries table.
func NewSQLiteLogger(path string) (*SQLiteLogger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open sqlite db: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS audit_entries (
		sequence   INTEGER PRIMARY KEY,
		timestamp  TEXT NOT NULL,
		trace_id   TEXT NOT NULL,
		kind       TEXT NOT NULL,
		event      TEXT NOT NULL,
		payload    TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: failed to create schema: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO audit_entries (sequence, timestamp, trace_id, kind, event, payload) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: failed to prepare insert: %w", err)
	}

	return &SQLiteLogger{db: db, insert: stmt}, nil
}

func (l *SQLiteLogger) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Sequence = atomic.AddInt64(&l.sequence, 1)
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal entry: %w", err)
	}

	_, err = l.insert.Exec(entry.Sequence, entry.Timestamp, entry.TraceID, string(entry.Kind), entry.Event, string(payload))
	if err != nil {
		return fmt.Errorf("audit: failed to insert entry: %w", err)
	}
	return nil
}

func (l *SQLiteLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.insert.Close()
	return l.db.Close()
}

var _ Logger = (*SQLiteLogger)(nil)

// NewLogger constructs the Logger named by config.Backend.
// Returns a NoopLogger if audit logging is disabled.
func NewLogger(config *Config) (Logger, error) {
	if config == nil || !config.Enabled {
		return &NoopLogger{}, nil
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Backend {
	case BackendSQLite:
		return NewSQLiteLogger(config.OutputFile)
	case BackendNone:
		return &NoopLogger{}, nil
	case BackendJSONLines, "":
		if config.OutputFile != "" {
			return NewJSONLinesFileLogger(config.OutputFile)
		}
		return NewJSONLinesStdoutLogger(), nil
	default:
		return nil, &ConfigError{Field: "backend", Message: "unknown backend " + string(config.Backend)}
	}
}
