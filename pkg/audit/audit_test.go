package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNoopLogger(t *testing.T) {
	t.Parallel()

	l := &NoopLogger{}
	if err := l.Append(*New(KindRequestOnly, EventExpectationNotMatched, "t1")); err != nil {
		t.Fatalf("NoopLogger.Append returned error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("NoopLogger.Close returned error: %v", err)
	}
}

func TestJSONLinesFileLogger(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	logger, err := NewJSONLinesFileLogger(path)
	if err != nil {
		t.Fatalf("NewJSONLinesFileLogger: %v", err)
	}

	entry := New(KindExpectationMatch, EventExpectationResponse, "trace-1").
		WithRequest(&RequestInfo{Method: "GET", Path: "/a"})
	if err := logger.Append(*entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := logger.Append(*entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var sequences []int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var got Entry
		if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		sequences = append(sequences, got.Sequence)
		if got.TraceID != "trace-1" {
			t.Errorf("TraceID = %q, want trace-1", got.TraceID)
		}
	}
	if len(sequences) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(sequences))
	}
	if sequences[0] != 1 || sequences[1] != 2 {
		t.Errorf("sequences = %v, want [1 2]", sequences)
	}
}

func TestSQLiteLogger(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "audit.db")

	logger, err := NewSQLiteLogger(path)
	if err != nil {
		t.Fatalf("NewSQLiteLogger: %v", err)
	}
	defer logger.Close()

	entry := New(KindRequestResponse, EventForwardedRequest, "trace-2").
		WithResponse(&ResponseInfo{StatusCode: 201})
	if err := logger.Append(*entry); err != nil {
		t.Fatalf("Append: %v", err)
	}

	row := logger.db.QueryRow(`SELECT trace_id, event FROM audit_entries WHERE sequence = 1`)
	var traceID, event string
	if err := row.Scan(&traceID, &event); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if traceID != "trace-2" || event != EventForwardedRequest {
		t.Errorf("got (%q, %q)", traceID, event)
	}
}

// capturingLogger records every entry appended to it, guarded by a mutex,
// so this package's tests can assert on the entries a Logger receives.
type capturingLogger struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *capturingLogger) Append(e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *capturingLogger) Close() error { return nil }

func (c *capturingLogger) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func TestMultiLogger(t *testing.T) {
	t.Parallel()

	a := &capturingLogger{}
	b := &capturingLogger{}
	m := NewMultiLogger(a, b)

	entry := New(KindRequestOnly, EventExpectationNotMatched, "trace-3")
	if err := m.Append(*entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(a.Entries()) != 1 || len(b.Entries()) != 1 {
		t.Fatalf("expected both loggers to receive the entry")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewLoggerDisabled(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if _, ok := logger.(*NoopLogger); !ok {
		t.Fatalf("expected NoopLogger, got %T", logger)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled skips validation", Config{Enabled: false, Backend: "bogus"}, false},
		{"valid jsonlines", Config{Enabled: true, Backend: BackendJSONLines}, false},
		{"sqlite requires output file", Config{Enabled: true, Backend: BackendSQLite}, true},
		{"unknown backend", Config{Enabled: true, Backend: "bogus"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
