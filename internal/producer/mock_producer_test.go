package producer

import (
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/mock"
)

// MockKafkaProducer is a mock for the KafkaProducer interface. Accepted
// messages get a delivery report on deliveryChan, carrying DeliveryErr.
type MockKafkaProducer struct {
	mock.Mock
	DeliveryErr error
}

func (m *MockKafkaProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	args := m.Called(msg, deliveryChan)
	if err := args.Error(0); err != nil {
		return err
	}
	if deliveryChan != nil {
		report := &kafka.Message{
			TopicPartition: kafka.TopicPartition{
				Topic: msg.TopicPartition.Topic,
				Error: m.DeliveryErr,
			},
			Key: msg.Key,
		}
		go func() { deliveryChan <- report }()
	}
	return nil
}

func (m *MockKafkaProducer) Flush(timeoutMs int) int {
	args := m.Called(timeoutMs)
	return args.Int(0)
}

func (m *MockKafkaProducer) Close() {
	m.Called()
}
