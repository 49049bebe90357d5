package audit

import (
	"errors"
	"strings"
	"sync"
)

// MultiLogger fans out every appended entry to all configured Loggers.
type MultiLogger struct {
	loggers []Logger
	mu      sync.RWMutex
}

// NewMultiLogger creates a MultiLogger that appends to all provided loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	valid := make([]Logger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			valid = append(valid, l)
		}
	}
	return &MultiLogger{loggers: valid}
}

// Append writes an entry to all configured loggers. All loggers receive
// the entry even if some fail; errors are collected and returned together.
func (m *MultiLogger) Append(entry Entry) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, l := range m.loggers {
		if err := l.Append(entry); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

// Close closes all underlying loggers, even if some fail.
func (m *MultiLogger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

var _ Logger = (*MultiLogger)(nil)

// MultiError represents multiple errors from MultiLogger operations.
type MultiError struct {
	Errors []error
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	b.WriteString("multiple errors:")
	for _, err := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *MultiError) Unwrap() []error { return e.Errors }

func (e *MultiError) Is(target error) bool {
	for _, err := range e.Errors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
