/*
Package tracker consumes storefront analytics events from Kafka.

Every message is written to the audit trail, decoded, validated and ingested
into the tracker's own analytics store, the one the monitor reads. Messages
that cannot be decoded, validated or ingested go to the dead letter queue.
Health is reported as structured log lines: start, stop, errors and periodic
metrics.
*/
package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/tutaviendo/storefront/internal/analytics"
	"github.com/tutaviendo/storefront/internal/config"
	"github.com/tutaviendo/storefront/internal/currency"
	"github.com/tutaviendo/storefront/internal/logging"
	"github.com/tutaviendo/storefront/internal/retry"
	"github.com/tutaviendo/storefront/pkg/models"
)

// Audit trail event types.
const (
	AuditReceived        = "message.received"
	AuditDecodeError     = "message.received.deserialization_error"
	AuditValidationError = "message.received.validation_error"
)

// Config contains the tracker service configuration.
type Config struct {
	KafkaBroker     string        // Kafka broker address
	ConsumerGroup   string        // Kafka consumer group
	Topic           string        // Kafka topic to consume
	LogFile         string        // System log file
	EventsFile      string        // Audit trail file
	MetricsInterval time.Duration // Interval between periodic metrics
	ReadTimeout     time.Duration // Message read timeout
	MaxErrors       int           // Maximum consecutive errors
}

// NewConfig builds the tracker configuration from the application config.
func NewConfig(app *config.AppConfig) *Config {
	return &Config{
		KafkaBroker:     app.Kafka.Broker,
		ConsumerGroup:   app.Kafka.ConsumerGroup,
		Topic:           app.Kafka.Topic,
		LogFile:         app.Tracker.LogFile,
		EventsFile:      app.Tracker.EventsFile,
		MetricsInterval: app.GetMetricsInterval(),
		ReadTimeout:     app.GetReadTimeout(),
		MaxErrors:       app.Tracker.MaxConsecutiveErrors,
	}
}

// SystemMetrics collects consumer counters.
type SystemMetrics struct {
	mu                sync.RWMutex
	StartTime         time.Time
	MessagesReceived  int64
	MessagesProcessed int64
	MessagesFailed    int64
	Duplicates        int64
	Expired           int64
	DeadLettered      int64
	LastMessageTime   time.Time
}

// outcome of one message
type outcome int

const (
	outcomeIngested outcome = iota
	outcomeDuplicate
	outcomeExpired
	outcomeFailed
)

func (sm *SystemMetrics) record(o outcome) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.MessagesReceived++
	switch o {
	case outcomeIngested:
		sm.MessagesProcessed++
	case outcomeDuplicate:
		sm.MessagesProcessed++
		sm.Duplicates++
	case outcomeExpired:
		sm.MessagesProcessed++
		sm.Expired++
	case outcomeFailed:
		sm.MessagesFailed++
	}
	sm.LastMessageTime = time.Now()
}

func (sm *SystemMetrics) recordDeadLetter() {
	sm.mu.Lock()
	sm.DeadLettered++
	sm.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (sm *SystemMetrics) Snapshot() SystemMetrics {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return SystemMetrics{
		StartTime:         sm.StartTime,
		MessagesReceived:  sm.MessagesReceived,
		MessagesProcessed: sm.MessagesProcessed,
		MessagesFailed:    sm.MessagesFailed,
		Duplicates:        sm.Duplicates,
		Expired:           sm.Expired,
		DeadLettered:      sm.DeadLettered,
		LastMessageTime:   sm.LastMessageTime,
	}
}

// Tracker is the consumer service.
type Tracker struct {
	config      *Config
	logLogger   *logging.Logger
	eventLogger *logging.Logger
	metrics     *SystemMetrics
	consumer    KafkaConsumer
	store       *analytics.Store
	dlq         DeadLetterSender
	stopChan    chan struct{}
	stopOnce    sync.Once
	running     bool
	mu          sync.Mutex
}

// New creates a tracker that ingests into store and dead-letters into dlq.
// dlq may be nil.
func New(cfg *Config, store *analytics.Store, dlq DeadLetterSender) *Tracker {
	return &Tracker{
		config:   cfg,
		store:    store,
		dlq:      dlq,
		metrics:  &SystemMetrics{StartTime: time.Now()},
		stopChan: make(chan struct{}),
	}
}

// Initialize opens the log files and subscribes a Kafka consumer.
func (t *Tracker) Initialize() error {
	var err error

	t.logLogger, err = logging.NewLogger(t.config.LogFile, config.TrackerServiceName)
	if err != nil {
		return fmt.Errorf("unable to initialize system logger: %w", err)
	}

	t.eventLogger, err = logging.NewLogger(t.config.EventsFile, config.TrackerServiceName)
	if err != nil {
		t.logLogger.Close()
		return fmt.Errorf("unable to initialize event logger: %w", err)
	}

	t.logLogger.Log(models.LogLevelINFO, "Logging system initialized", map[string]interface{}{
		"log_file":    t.config.LogFile,
		"events_file": t.config.EventsFile,
	})

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": t.config.KafkaBroker,
		"group.id":          t.config.ConsumerGroup,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		t.logLogger.LogError("Error creating consumer", err, nil)
		t.Close()
		return fmt.Errorf("unable to create Kafka consumer: %w", err)
	}

	return t.attach(newKafkaConsumerWrapper(consumer))
}

// attach subscribes consumer to the configured topic.
func (t *Tracker) attach(consumer KafkaConsumer) error {
	t.consumer = consumer
	if err := consumer.SubscribeTopics([]string{t.config.Topic}, nil); err != nil {
		t.logLogger.LogError("Error subscribing to topic", err, map[string]interface{}{"topic": t.config.Topic})
		t.Close()
		return fmt.Errorf("unable to subscribe to topic: %w", err)
	}

	t.logLogger.Log(models.LogLevelINFO, "Consumer started and subscribed to topic '"+t.config.Topic+"'", map[string]interface{}{
		"events_loaded": t.store.Len(),
	})
	return nil
}

// Metrics returns a snapshot of the consumer counters.
func (t *Tracker) Metrics() SystemMetrics {
	return t.metrics.Snapshot()
}

// Run consumes messages until Stop is called or Kafka is unreachable.
func (t *Tracker) Run() {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()

	go t.logPeriodicMetrics()

	consecutiveErrors := 0

	for t.isRunning() {
		msg, err := t.consumer.ReadMessage(t.config.ReadTimeout)
		if err != nil {
			if t.handleKafkaError(err, &consecutiveErrors) {
				break
			}
			continue
		}

		consecutiveErrors = 0
		t.processMessage(msg)
	}

	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}

func (t *Tracker) isRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// handleKafkaError handles a read error and reports whether the tracker
// should stop. Timeouts are not errors.
func (t *Tracker) handleKafkaError(err error, consecutiveErrors *int) bool {
	var kafkaErr kafka.Error
	isKafkaErr := errors.As(err, &kafkaErr)

	if isKafkaErr && kafkaErr.Code() == kafka.ErrTimedOut {
		*consecutiveErrors = 0
		return false
	}

	errorMsg := err.Error()
	brokersDown := strings.Contains(errorMsg, "brokers are down") ||
		strings.Contains(errorMsg, "Connection refused") ||
		(isKafkaErr && kafkaErr.Code() == kafka.ErrAllBrokersDown)

	*consecutiveErrors++

	if brokersDown {
		if *consecutiveErrors >= t.config.MaxErrors {
			t.logLogger.Log(models.LogLevelINFO, "Kafka appears to be down, stopping consumer", map[string]interface{}{
				"consecutive_errors": *consecutiveErrors,
				"reason":             "brokers_unavailable",
			})
			return true
		}
		return false
	}

	t.logLogger.LogError("Kafka message read error", err, map[string]interface{}{
		"consecutive_errors": *consecutiveErrors,
	})
	if *consecutiveErrors >= t.config.MaxErrors {
		t.logLogger.LogError("Too many consecutive errors, stopping consumer", err, map[string]interface{}{
			"consecutive_errors": *consecutiveErrors,
		})
		return true
	}
	return false
}

// processMessage audits, decodes, validates and ingests one message.
func (t *Tracker) processMessage(msg *kafka.Message) {
	entry := models.EventEntry{
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		EventType:      AuditReceived,
		KafkaPartition: msg.TopicPartition.Partition,
		KafkaOffset:    int64(msg.TopicPartition.Offset),
		RawMessage:     string(msg.Value),
		MessageSize:    len(msg.Value),
		StoreID:        string(msg.Key),
	}
	if msg.TopicPartition.Topic != nil {
		entry.KafkaTopic = *msg.TopicPartition.Topic
	}

	var event models.AnalyticsEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		entry.EventType = AuditDecodeError
		entry.Error = err.Error()
		t.eventLogger.Write(entry)
		t.metrics.record(outcomeFailed)
		t.logLogger.LogError("Message deserialization error", err, map[string]interface{}{
			"kafka_offset": int64(msg.TopicPartition.Offset),
			"raw_message":  string(msg.Value),
		})
		t.deadLetter(msg, retry.ReasonDecode, err)
		return
	}

	if err := event.Validate(); err != nil {
		entry.EventType = AuditValidationError
		entry.Error = err.Error()
		t.eventLogger.Write(entry)
		t.metrics.record(outcomeFailed)
		t.logLogger.LogError("Message validation error", err, map[string]interface{}{
			"kafka_offset": int64(msg.TopicPartition.Offset),
			"event_id":     event.ID,
		})
		t.deadLetter(msg, retry.ReasonValidation, err)
		return
	}

	entry.Deserialized = true
	entry.StoreID = event.StoreID
	if full, err := json.Marshal(event); err == nil {
		entry.EventFull = full
	}
	t.eventLogger.Write(entry)

	err := t.store.Ingest(event)
	switch {
	case err == nil:
		t.metrics.record(outcomeIngested)
		displayEvent(&event)
	case errors.Is(err, analytics.ErrDuplicateEvent):
		t.metrics.record(outcomeDuplicate)
	case errors.Is(err, analytics.ErrExpiredEvent):
		t.metrics.record(outcomeExpired)
		t.logLogger.Log(models.LogLevelWARN, "Event older than retention skipped", map[string]interface{}{
			"event_id":  event.ID,
			"timestamp": event.Timestamp,
		})
	default:
		t.metrics.record(outcomeFailed)
		t.logLogger.LogError("Event ingestion error", err, map[string]interface{}{
			"event_id": event.ID,
		})
		t.deadLetter(msg, retry.ReasonIngest, err)
	}
}

func (t *Tracker) deadLetter(msg *kafka.Message, reason string, cause error) {
	if t.dlq == nil {
		return
	}
	if err := t.dlq.Send(msg, reason, 1, cause); err != nil {
		t.logLogger.LogError("Dead letter queue send error", err, map[string]interface{}{
			"reason":       reason,
			"kafka_offset": int64(msg.TopicPartition.Offset),
		})
		return
	}
	t.metrics.recordDeadLetter()
}

// logPeriodicMetrics writes the metrics line the monitor parses.
func (t *Tracker) logPeriodicMetrics() {
	ticker := time.NewTicker(t.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.logMetrics()
		}
	}
}

func (t *Tracker) logMetrics() {
	m := t.metrics.Snapshot()
	uptime := time.Since(m.StartTime)
	var successRate float64
	if m.MessagesReceived > 0 {
		successRate = float64(m.MessagesProcessed) / float64(m.MessagesReceived) * 100
	}
	var messagesPerSecond float64
	if uptime.Seconds() > 0 {
		messagesPerSecond = float64(m.MessagesReceived) / uptime.Seconds()
	}

	t.logLogger.Log(models.LogLevelINFO, "Periodic system metrics", map[string]interface{}{
		"uptime_seconds":       uptime.Seconds(),
		"messages_received":    m.MessagesReceived,
		"messages_processed":   m.MessagesProcessed,
		"messages_failed":      m.MessagesFailed,
		"duplicates":           m.Duplicates,
		"expired":              m.Expired,
		"dead_lettered":        m.DeadLettered,
		"events_stored":        t.store.Len(),
		"success_rate_percent": fmt.Sprintf("%.2f", successRate),
		"messages_per_second":  fmt.Sprintf("%.2f", messagesPerSecond),
	})
}

// Stop ends the consumption loop. Safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()

		close(t.stopChan)

		m := t.metrics.Snapshot()
		t.logLogger.Log(models.LogLevelINFO, "Consumer stopped properly", map[string]interface{}{
			"uptime_seconds":           time.Since(m.StartTime).Seconds(),
			"total_messages_received":  m.MessagesReceived,
			"total_messages_processed": m.MessagesProcessed,
			"total_messages_failed":    m.MessagesFailed,
		})
	})
}

// Close persists the store and releases the consumer and log files.
func (t *Tracker) Close() {
	if t.consumer != nil {
		if err := t.consumer.Close(); err != nil && t.logLogger != nil {
			t.logLogger.LogError("Error closing consumer", err, nil)
		}
	}
	if t.store != nil {
		t.store.Dispose()
		t.store.Save()
	}
	if t.logLogger != nil {
		t.logLogger.Close()
	}
	if t.eventLogger != nil {
		t.eventLogger.Close()
	}
}

// displayEvent prints an ingested event to the console.
func displayEvent(e *models.AnalyticsEvent) {
	fmt.Print(formatEvent(e))
}

func formatEvent(e *models.AnalyticsEvent) string {
	var b strings.Builder
	switch e.Type {
	case models.EventOrder:
		var data models.EventData
		if e.Data != nil {
			data = *e.Data
		}
		b.WriteString("\n" + strings.Repeat("=", 80) + "\n")
		fmt.Fprintf(&b, "📦 ORDER %s | store %s | %s\n", e.ID, e.StoreID, data.CustomerName)
		b.WriteString(strings.Repeat("-", 80) + "\n")
		for _, item := range data.Items {
			fmt.Fprintf(&b, "  - %s (x%d) @ %s\n", item.Name, item.Quantity, currency.Format(item.Price, data.Currency))
		}
		fmt.Fprintf(&b, "Total: %s\n", currency.Format(e.OrderValue(), data.Currency))
		b.WriteString(strings.Repeat("=", 80) + "\n")
	case models.EventProductView:
		product := ""
		if e.Data != nil {
			product = e.Data.ProductID
		}
		fmt.Fprintf(&b, "👀 %s viewed %s\n", e.StoreID, product)
	default:
		fmt.Fprintf(&b, "🚪 %s visit\n", e.StoreID)
	}
	return b.String()
}
