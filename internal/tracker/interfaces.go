package tracker

import (
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaConsumer is the part of *kafka.Consumer the tracker uses. Tests
// substitute a mock.
type KafkaConsumer interface {
	// SubscribeTopics subscribes the consumer to a set of topics.
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error

	// ReadMessage blocks until a message arrives or timeout expires. A
	// timeout is reported as a kafka.Error with code ErrTimedOut.
	ReadMessage(timeout time.Duration) (*kafka.Message, error)

	Close() error
}

type kafkaConsumerWrapper struct {
	consumer *kafka.Consumer
}

func newKafkaConsumerWrapper(consumer *kafka.Consumer) KafkaConsumer {
	return &kafkaConsumerWrapper{consumer: consumer}
}

func (w *kafkaConsumerWrapper) SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error {
	return w.consumer.SubscribeTopics(topics, rebalanceCb)
}

func (w *kafkaConsumerWrapper) ReadMessage(timeout time.Duration) (*kafka.Message, error) {
	return w.consumer.ReadMessage(timeout)
}

func (w *kafkaConsumerWrapper) Close() error {
	return w.consumer.Close()
}

// DeadLetterSender receives messages the tracker could not ingest.
// *retry.DeadLetterQueue implements it.
type DeadLetterSender interface {
	Send(originalMsg *kafka.Message, reason string, attempts int, lastErr error) error
}
