package tracker

import (
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/mock"
)

// MockKafkaConsumer is a mock for the KafkaConsumer interface.
type MockKafkaConsumer struct {
	mock.Mock
}

func (m *MockKafkaConsumer) SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error {
	args := m.Called(topics, rebalanceCb)
	return args.Error(0)
}

func (m *MockKafkaConsumer) ReadMessage(timeout time.Duration) (*kafka.Message, error) {
	args := m.Called(timeout)
	msg := args.Get(0)
	if msg == nil {
		return nil, args.Error(1)
	}
	return msg.(*kafka.Message), args.Error(1)
}

func (m *MockKafkaConsumer) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockDeadLetterSender is a mock for the DeadLetterSender interface.
type MockDeadLetterSender struct {
	mock.Mock
}

func (m *MockDeadLetterSender) Send(originalMsg *kafka.Message, reason string, attempts int, lastErr error) error {
	args := m.Called(originalMsg, reason, attempts, lastErr)
	return args.Error(0)
}
