package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutaviendo/storefront/pkg/models"
)

func TestLogWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "storefront-api")
	l.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }

	l.Log(models.LogLevelINFO, "Server started", map[string]interface{}{"addr": ":8080"})

	var entry models.LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "2026-10-16T12:00:00Z", entry.Timestamp)
	assert.Equal(t, models.LogLevelINFO, entry.Level)
	assert.Equal(t, "Server started", entry.Message)
	assert.Equal(t, "storefront-api", entry.Service)
	assert.Equal(t, ":8080", entry.Metadata["addr"])
}

func TestLogErrorIncludesError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "tracker")

	l.LogError("Kafka message read error", errors.New("boom"), nil)
	l.LogError("no error value", nil, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry models.LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, models.LogLevelERROR, entry.Level)
	assert.Equal(t, "boom", entry.Error)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Empty(t, entry.Error)
}

func TestWriteRecord(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "tracker")

	l.Write(models.EventEntry{EventType: "message.received", Deserialized: true})

	assert.Contains(t, buf.String(), `"deserialized":true`)
}

func TestNewLoggerAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.log")

	l, err := NewLogger(path, "tracker")
	require.NoError(t, err)
	l.Log(models.LogLevelINFO, "first", nil)
	l.Close()

	l, err = NewLogger(path, "tracker")
	require.NoError(t, err)
	l.Log(models.LogLevelINFO, "second", nil)
	l.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestNewLoggerBadPath(t *testing.T) {
	_, err := NewLogger(filepath.Join(t.TempDir(), "missing", "x.log"), "tracker")
	assert.Error(t, err)
}

func TestNopAndNilClose(t *testing.T) {
	Nop().Log(models.LogLevelINFO, "ignored", nil)
	var l *Logger
	l.Close()
}
