package retry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Reasons a message ends up in the dead letter queue.
const (
	ReasonDecode     = "decode"
	ReasonValidation = "validation"
	ReasonIngest     = "ingest"
)

// MessageProducer is the part of *kafka.Producer the DLQ uses.
type MessageProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// FailedMessage is the DLQ envelope around a message that could not be
// processed.
type FailedMessage struct {
	OriginalTopic     string          `json:"original_topic"`
	OriginalPartition int32           `json:"original_partition"`
	OriginalOffset    int64           `json:"original_offset"`
	OriginalTimestamp time.Time       `json:"original_timestamp"`
	StoreID           string          `json:"store_id,omitempty"`
	Reason            string          `json:"reason"`
	FailedAt          time.Time       `json:"failed_at"`
	Attempts          int             `json:"attempts"`
	LastError         string          `json:"last_error"`
	Payload           json.RawMessage `json:"payload"`
}

// DeadLetterQueue sends failed analytics messages to a dedicated topic.
type DeadLetterQueue struct {
	producer MessageProducer
	topic    string
	enabled  bool
	mu       sync.Mutex
	stats    DLQStats
}

// DLQStats counts DLQ deliveries, updated from delivery reports.
type DLQStats struct {
	MessagesSent  int64
	SendErrors    int64
	LastSentTime  time.Time
	LastErrorTime time.Time
}

// NewDeadLetterQueue creates a DLQ backed by its own Kafka producer. A
// disabled DLQ accepts and drops everything.
func NewDeadLetterQueue(broker, topic string, enabled bool) (*DeadLetterQueue, error) {
	if !enabled {
		return &DeadLetterQueue{enabled: false}, nil
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": broker,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
	}
	return NewDeadLetterQueueWithProducer(producer, topic), nil
}

// NewDeadLetterQueueWithProducer creates an enabled DLQ on top of producer.
func NewDeadLetterQueueWithProducer(producer MessageProducer, topic string) *DeadLetterQueue {
	dlq := &DeadLetterQueue{
		producer: producer,
		topic:    topic,
		enabled:  true,
	}
	go dlq.handleDeliveryReports()
	return dlq
}

// handleDeliveryReports updates the stats until the producer's event channel
// is closed.
func (d *DeadLetterQueue) handleDeliveryReports() {
	for e := range d.producer.Events() {
		ev, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		d.mu.Lock()
		if ev.TopicPartition.Error != nil {
			d.stats.SendErrors++
			d.stats.LastErrorTime = time.Now()
		} else {
			d.stats.MessagesSent++
			d.stats.LastSentTime = time.Now()
		}
		d.mu.Unlock()
	}
}

// Send wraps originalMsg in a FailedMessage and produces it to the DLQ topic.
func (d *DeadLetterQueue) Send(originalMsg *kafka.Message, reason string, attempts int, lastErr error) error {
	if !d.enabled {
		return nil
	}

	failedMsg := FailedMessage{
		OriginalPartition: originalMsg.TopicPartition.Partition,
		OriginalOffset:    int64(originalMsg.TopicPartition.Offset),
		OriginalTimestamp: originalMsg.Timestamp,
		StoreID:           string(originalMsg.Key),
		Reason:            reason,
		FailedAt:          time.Now().UTC(),
		Attempts:          attempts,
		Payload:           rawPayload(originalMsg.Value),
	}
	if originalMsg.TopicPartition.Topic != nil {
		failedMsg.OriginalTopic = *originalMsg.TopicPartition.Topic
	}
	if lastErr != nil {
		failedMsg.LastError = lastErr.Error()
	}

	payload, err := json.Marshal(failedMsg)
	if err != nil {
		return fmt.Errorf("failed to serialize DLQ message: %w", err)
	}

	err = d.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &d.topic, Partition: kafka.PartitionAny},
		Key:            originalMsg.Key,
		Value:          payload,
		Headers: []kafka.Header{
			{Key: "original-topic", Value: []byte(failedMsg.OriginalTopic)},
			{Key: "reason", Value: []byte(reason)},
			{Key: "error", Value: []byte(failedMsg.LastError)},
			{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
		},
	}, nil)
	if err != nil {
		d.mu.Lock()
		d.stats.SendErrors++
		d.stats.LastErrorTime = time.Now()
		d.mu.Unlock()
		return fmt.Errorf("failed to produce DLQ message: %w", err)
	}
	return nil
}

// rawPayload keeps valid JSON as is and quotes anything else, so the envelope
// always marshals.
func rawPayload(value []byte) json.RawMessage {
	if json.Valid(value) {
		return json.RawMessage(value)
	}
	quoted, _ := json.Marshal(string(value))
	return json.RawMessage(quoted)
}

// GetStats returns a snapshot of the DLQ statistics.
func (d *DeadLetterQueue) GetStats() DLQStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close flushes pending messages and closes the producer.
func (d *DeadLetterQueue) Close() {
	if d.producer != nil {
		d.producer.Flush(5000)
		d.producer.Close()
	}
}

// IsEnabled reports whether the DLQ is active.
func (d *DeadLetterQueue) IsEnabled() bool {
	return d.enabled
}
