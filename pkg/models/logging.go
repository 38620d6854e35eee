/*
Structured logging and audit trail records shared by the tracker, the API and
the monitor.
*/
package models

import "encoding/json"

// LogLevel defines severity levels for structured logs.
type LogLevel string

const (
	// LogLevelINFO is an informational entry.
	LogLevelINFO LogLevel = "INFO"
	// LogLevelWARN is a recovered, self-healing condition (content warnings,
	// dropped persistence cycles).
	LogLevelWARN LogLevel = "WARN"
	// LogLevelERROR is an error entry.
	LogLevelERROR LogLevel = "ERROR"
)

// LogEntry is one JSON line of a service log such as `tracker.log`.
// It follows the "Application Health Monitoring" model: start, stop, errors
// and periodic metrics, in a format the monitor can tail and parse.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`          // RFC3339 timestamp.
	Level     LogLevel               `json:"level"`              // Severity.
	Message   string                 `json:"message"`            // Main message.
	Service   string                 `json:"service"`            // Emitting service.
	Error     string                 `json:"error,omitempty"`    // Error message, if any.
	Metadata  map[string]interface{} `json:"metadata,omitempty"` // Context data.
}

// EventEntry is one JSON line of `tracker.events`, the audit trail of every
// analytics message consumed from Kafka, decodable or not.
type EventEntry struct {
	Timestamp      string          `json:"timestamp"`            // Reception time (RFC3339).
	EventType      string          `json:"event_type"`           // e.g. "message.received".
	KafkaTopic     string          `json:"kafka_topic"`          // Source topic.
	KafkaPartition int32           `json:"kafka_partition"`      // Source partition.
	KafkaOffset    int64           `json:"kafka_offset"`         // Offset within the partition.
	RawMessage     string          `json:"raw_message"`          // Raw payload.
	MessageSize    int             `json:"message_size"`         // Payload size in bytes.
	Deserialized   bool            `json:"deserialized"`         // Whether decoding and validation succeeded.
	StoreID        string          `json:"store_id,omitempty"`   // Store of the decoded event.
	Error          string          `json:"error,omitempty"`      // Decoding or validation error.
	EventFull      json.RawMessage `json:"event_full,omitempty"` // Decoded analytics event.
}
