/*
Package monitor is the terminal dashboard of the storefront pipeline.

It tails the tracker's log and audit trail like `tail -f` to show ingestion
health, and reads the tracker's analytics store to show per-store visits,
orders and revenue for a preset date range.
*/
package monitor

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tutaviendo/storefront/internal/config"
	"github.com/tutaviendo/storefront/pkg/models"
)

// HealthStatus is the level of a dashboard indicator.
type HealthStatus int

const (
	HealthGood HealthStatus = iota
	HealthWarning
	HealthCritical
)

// Local aliases
const (
	MaxRecentLogs           = config.MonitorMaxRecentLogs
	MaxRecentEvents         = config.MonitorMaxRecentEvents
	MaxHistorySize          = config.MonitorMaxHistorySize
	SuccessRateExcellent    = config.MonitorSuccessRateExcellent
	SuccessRateGood         = config.MonitorSuccessRateGood
	ThroughputNormal        = config.MonitorThroughputNormal
	ThroughputLow           = config.MonitorThroughputLow
	ErrorTimeoutCritical    = config.MonitorErrorTimeoutCritical
	ErrorTimeoutWarning     = config.MonitorErrorTimeoutWarning
	QualityThroughputHigh   = config.MonitorQualityThroughputHigh
	QualityThroughputMedium = config.MonitorQualityThroughputMedium
	QualityThroughputLow    = config.MonitorQualityThroughputLow
	QualityScoreExcellent   = config.MonitorQualityScoreExcellent
	QualityScoreGood        = config.MonitorQualityScoreGood
	QualityScoreMedium      = config.MonitorQualityScoreMedium
	FileCheckInterval       = config.MonitorFileCheckInterval
	FilePollInterval        = config.MonitorFilePollInterval
	MaxLogRowLength         = config.MonitorMaxLogRowLength
	MaxEventRowLength       = config.MonitorMaxEventRowLength
	TruncateSuffix          = config.MonitorTruncateSuffix
)

// periodicMetricsMessage is the tracker log line carrying its counters.
const periodicMetricsMessage = "Periodic system metrics"

// Metrics is the ingestion state shown by the dashboard.
type Metrics struct {
	mu                    sync.RWMutex
	StartTime             time.Time
	MessagesReceived      int64
	MessagesProcessed     int64
	MessagesFailed        int64
	DeadLettered          int64
	EventsStored          int64
	MessagesPerSecond     []float64
	RecentLogs            []models.LogEntry
	RecentEvents          []models.EventEntry
	LastUpdateTime        time.Time
	Uptime                time.Duration
	CurrentMessagesPerSec float64
	CurrentSuccessRate    float64
	ErrorCount            int64
	LastErrorTime         time.Time
}

// Monitor holds the dashboard state.
type Monitor struct {
	Metrics *Metrics
	Stats   *StatsView
}

// New creates a monitor. stats may be nil for a health-only dashboard.
func New(stats *StatsView) *Monitor {
	return &Monitor{
		Metrics: &Metrics{
			StartTime:         time.Now(),
			RecentLogs:        make([]models.LogEntry, 0, MaxRecentLogs),
			RecentEvents:      make([]models.EventEntry, 0, MaxRecentEvents),
			MessagesPerSecond: make([]float64, 0, MaxHistorySize),
		},
		Stats: stats,
	}
}

// WaitForFile blocks until filename can be opened.
func WaitForFile(filename string) *os.File {
	for {
		file, err := os.Open(filename)
		if err == nil {
			return file
		}
		time.Sleep(FileCheckInterval)
	}
}

func parseAndSendLogEntry(line string, logChan chan<- models.LogEntry) {
	var entry models.LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err == nil {
		select {
		case logChan <- entry:
		default:
		}
	}
}

func parseAndSendEventEntry(line string, eventChan chan<- models.EventEntry) {
	var entry models.EventEntry
	if err := json.Unmarshal([]byte(line), &entry); err == nil {
		select {
		case eventChan <- entry:
		default:
		}
	}
}

// readNewLines reads the complete lines written after currentPos and sends
// them to whichever channel is non-nil. A trailing partial line is left for
// the next call. It returns the offset after the last complete line.
func readNewLines(file *os.File, currentPos int64, logChan chan<- models.LogEntry, eventChan chan<- models.EventEntry) int64 {
	if _, err := file.Seek(currentPos, io.SeekStart); err != nil {
		return currentPos
	}

	reader := bufio.NewReader(file)
	pos := currentPos
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// io.EOF with a partial line: wait for the writer to finish it.
			return pos
		}
		pos += int64(len(line))

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case logChan != nil:
			parseAndSendLogEntry(line, logChan)
		case eventChan != nil:
			parseAndSendEventEntry(line, eventChan)
		}
	}
}

// MonitorFile follows filename until done is closed. Truncation or
// recreation of the file restarts reading from the beginning.
func MonitorFile(filename string, logChan chan<- models.LogEntry, eventChan chan<- models.EventEntry, done <-chan struct{}) {
	file := WaitForFile(filename)
	defer func() { file.Close() }()
	var currentPos int64

	for {
		select {
		case <-done:
			return
		default:
		}

		stat, err := os.Stat(filename)
		if err != nil {
			file.Close()
			time.Sleep(FileCheckInterval)
			file = WaitForFile(filename)
			currentPos = 0
			continue
		}

		if stat.Size() < currentPos {
			file.Close()
			file = WaitForFile(filename)
			currentPos = 0
		}

		if currentPos < stat.Size() {
			currentPos = readNewLines(file, currentPos, logChan, eventChan)
		} else {
			time.Sleep(FilePollInterval)
		}
	}
}

// ProcessLog handles a tracker.log entry.
func (m *Monitor) ProcessLog(entry models.LogEntry) {
	m.Metrics.mu.Lock()
	defer m.Metrics.mu.Unlock()

	m.Metrics.RecentLogs = append(m.Metrics.RecentLogs, entry)
	if len(m.Metrics.RecentLogs) > MaxRecentLogs {
		m.Metrics.RecentLogs = m.Metrics.RecentLogs[1:]
	}

	if entry.Level == models.LogLevelERROR {
		m.Metrics.ErrorCount++
		m.Metrics.LastErrorTime = time.Now()
	}

	if entry.Message == periodicMetricsMessage && entry.Metadata != nil {
		m.applyPeriodicMetrics(entry.Metadata)
	}

	m.Metrics.LastUpdateTime = time.Now()
}

// applyPeriodicMetrics copies the tracker's own counters, which win over the
// ones derived from the audit trail.
func (m *Monitor) applyPeriodicMetrics(meta map[string]interface{}) {
	counter := func(key string, dst *int64) {
		if v, ok := meta[key].(float64); ok {
			*dst = int64(v)
		}
	}
	counter("messages_received", &m.Metrics.MessagesReceived)
	counter("messages_processed", &m.Metrics.MessagesProcessed)
	counter("messages_failed", &m.Metrics.MessagesFailed)
	counter("dead_lettered", &m.Metrics.DeadLettered)
	counter("events_stored", &m.Metrics.EventsStored)

	if mpsStr, ok := meta["messages_per_second"].(string); ok {
		if mps, err := strconv.ParseFloat(mpsStr, 64); err == nil {
			m.Metrics.MessagesPerSecond = append(m.Metrics.MessagesPerSecond, mps)
			if len(m.Metrics.MessagesPerSecond) > MaxHistorySize {
				m.Metrics.MessagesPerSecond = m.Metrics.MessagesPerSecond[1:]
			}
			m.Metrics.CurrentMessagesPerSec = mps
		}
	}
	if srStr, ok := meta["success_rate_percent"].(string); ok {
		if sr, err := strconv.ParseFloat(srStr, 64); err == nil {
			m.Metrics.CurrentSuccessRate = sr
		}
	}
}

// ProcessEvent handles a tracker.events audit entry.
func (m *Monitor) ProcessEvent(entry models.EventEntry) {
	m.Metrics.mu.Lock()
	defer m.Metrics.mu.Unlock()

	m.Metrics.RecentEvents = append(m.Metrics.RecentEvents, entry)
	if len(m.Metrics.RecentEvents) > MaxRecentEvents {
		m.Metrics.RecentEvents = m.Metrics.RecentEvents[1:]
	}

	if entry.Deserialized {
		m.Metrics.MessagesProcessed++
	} else {
		m.Metrics.MessagesFailed++
		m.Metrics.ErrorCount++
		m.Metrics.LastErrorTime = time.Now()
	}
	m.Metrics.MessagesReceived++

	uptime := time.Since(m.Metrics.StartTime)
	if uptime.Seconds() > 0 {
		m.Metrics.CurrentMessagesPerSec = float64(m.Metrics.MessagesReceived) / uptime.Seconds()
	}
	if m.Metrics.MessagesReceived > 0 {
		m.Metrics.CurrentSuccessRate = float64(m.Metrics.MessagesProcessed) / float64(m.Metrics.MessagesReceived) * 100
	}

	m.Metrics.LastUpdateTime = time.Now()
}

// Run feeds log and audit entries into the monitor until done is closed.
func (m *Monitor) Run(logChan <-chan models.LogEntry, eventChan <-chan models.EventEntry, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case entry := <-logChan:
			m.ProcessLog(entry)
		case entry := <-eventChan:
			m.ProcessEvent(entry)
		}
	}
}
