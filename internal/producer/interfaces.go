package producer

import (
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/tutaviendo/storefront/pkg/models"
)

// KafkaProducer is the subset of *kafka.Producer used to publish events.
// Tests substitute a mock.
type KafkaProducer interface {
	// Produce sends a message asynchronously.
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error

	// Flush waits up to timeoutMs for outstanding deliveries and returns the
	// number of messages still queued.
	Flush(timeoutMs int) int

	Close()
}

// kafkaProducerWrapper adapts a real Kafka producer to KafkaProducer.
type kafkaProducerWrapper struct {
	producer *kafka.Producer
}

func newKafkaProducerWrapper(producer *kafka.Producer) KafkaProducer {
	return &kafkaProducerWrapper{producer: producer}
}

func (w *kafkaProducerWrapper) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	return w.producer.Produce(msg, deliveryChan)
}

func (w *kafkaProducerWrapper) Flush(timeoutMs int) int {
	return w.producer.Flush(timeoutMs)
}

func (w *kafkaProducerWrapper) Close() {
	w.producer.Close()
}

// Logger is the structured logger used by the producer services.
type Logger interface {
	Log(level models.LogLevel, message string, metadata map[string]interface{})
	LogError(message string, err error, metadata map[string]interface{})
}
