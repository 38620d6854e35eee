/*
Package logging writes structured JSON log lines for the storefront services.

Each line is a models.LogEntry (or, for the tracker's audit trail, a
models.EventEntry) so the monitor can tail and parse the files.
*/
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tutaviendo/storefront/pkg/models"
)

// Logger manages concurrent and safe writing of JSON lines.
type Logger struct {
	service string
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
	now     func() time.Time
}

// NewLogger opens (or creates) filename in append mode.
func NewLogger(filename, service string) (*Logger, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open file %s: %w", filename, err)
	}
	l := NewWriterLogger(file, service)
	l.file = file
	return l, nil
}

// NewWriterLogger writes to w. Used for stdout logging and in tests.
func NewWriterLogger(w io.Writer, service string) *Logger {
	return &Logger{
		service: service,
		encoder: json.NewEncoder(w),
		now:     time.Now,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewWriterLogger(io.Discard, "")
}

// Log writes a structured entry.
func (l *Logger) Log(level models.LogLevel, message string, metadata map[string]interface{}) {
	l.write(models.LogEntry{
		Timestamp: l.now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Service:   l.service,
		Metadata:  metadata,
	})
}

// LogError is a shortcut to write an error entry.
func (l *Logger) LogError(message string, err error, metadata map[string]interface{}) {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	entry := models.LogEntry{
		Timestamp: l.now().UTC().Format(time.RFC3339),
		Level:     models.LogLevelERROR,
		Message:   message,
		Service:   l.service,
		Metadata:  metadata,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	l.write(entry)
}

// Write encodes an arbitrary record, e.g. an audit trail models.EventEntry.
func (l *Logger) Write(record any) {
	l.write(record)
}

func (l *Logger) write(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Log encoding error: %v\n", err)
	}
}

// Close closes the underlying file, if any.
func (l *Logger) Close() {
	if l != nil && l.file != nil {
		if err := l.file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing log file: %v\n", err)
		}
	}
}
