/*
Package producer publishes storefront analytics events to Kafka.

EventPublisher is the analytics.Sink of the API server: every event recorded
locally is forwarded, keyed by store id, to the storefront-events topic where
the tracker consumes it. Simulator drives demo traffic through a real
analytics store and composer, so the whole pipeline can run without a
browser.
*/
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/tutaviendo/storefront/internal/config"
	"github.com/tutaviendo/storefront/internal/retry"
	"github.com/tutaviendo/storefront/pkg/models"
)

// Message headers set on every published event.
const (
	HeaderEventType     = "event-type"
	HeaderCorrelationID = "correlation-id"
	HeaderSource        = "source"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("producer: publisher closed")

// Config contains the publisher configuration.
type Config struct {
	KafkaBroker  string       // Kafka broker address.
	Topic        string       // Kafka topic for publication.
	FlushTimeout int          // Timeout in ms for final flush.
	Source       string       // Value of the source header.
	Retry        retry.Config // Policy for transient Produce errors.
}

// NewConfig builds the publisher configuration from the application config.
func NewConfig(app *config.AppConfig) *Config {
	return &Config{
		KafkaBroker:  app.Kafka.Broker,
		Topic:        app.Kafka.Topic,
		FlushTimeout: app.Producer.FlushTimeoutMs,
		Source:       config.APIServiceName,
		Retry:        retry.FromAppConfig(app),
	}
}

// PublisherStats counts publications and delivery reports.
type PublisherStats struct {
	Published int64
	Delivered int64
	Failed    int64
	Retries   int64
}

// EventPublisher forwards analytics events to Kafka.
type EventPublisher struct {
	config       *Config
	producer     KafkaProducer
	deliveryChan chan kafka.Event
	logger       Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64
}

// NewEventPublisher creates a publisher on top of producer and starts the
// delivery report handler.
func NewEventPublisher(cfg *Config, producer KafkaProducer, logger Logger) *EventPublisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &EventPublisher{
		config:       cfg,
		producer:     producer,
		deliveryChan: make(chan kafka.Event, config.ProducerDeliveryChannelSize),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
	p.wg.Add(1)
	go p.handleDeliveryReports()
	return p
}

// Connect creates a Kafka producer for cfg and wraps it in an EventPublisher.
func Connect(cfg *Config, logger Logger) (*EventPublisher, error) {
	raw, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.KafkaBroker,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewEventPublisher(cfg, newKafkaProducerWrapper(raw), logger), nil
}

// handleDeliveryReports processes delivery reports until the publisher is
// closed.
func (p *EventPublisher) handleDeliveryReports() {
	defer p.wg.Done()
	for {
		select {
		case e := <-p.deliveryChan:
			m, ok := e.(*kafka.Message)
			if !ok {
				continue
			}
			if m.TopicPartition.Error != nil {
				p.failed.Add(1)
				p.logger.LogError("Event delivery failed", m.TopicPartition.Error, map[string]interface{}{
					"store_id": string(m.Key),
				})
			} else {
				p.delivered.Add(1)
			}
		case <-p.ctx.Done():
			return
		}
	}
}

// Publish implements analytics.Sink.
func (p *EventPublisher) Publish(event models.AnalyticsEvent) error {
	if p.closed.Load() {
		return ErrClosed
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("JSON marshaling error: %w", err)
	}

	topic := p.config.Topic
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.StoreID),
		Value:          value,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(event.Type)},
			{Key: HeaderCorrelationID, Value: []byte(uuid.NewString())},
			{Key: HeaderSource, Value: []byte(p.config.Source)},
		},
	}

	result := retry.DoWithCallback(p.ctx, p.config.Retry, func() error {
		return p.producer.Produce(msg, p.deliveryChan)
	}, func(attempt int, err error, nextDelay time.Duration) {
		p.retries.Add(1)
		p.logger.Log(models.LogLevelWARN, "Retrying event publication", map[string]interface{}{
			"event_id":   event.ID,
			"attempt":    attempt,
			"next_delay": nextDelay.String(),
			"error":      err.Error(),
		})
	})
	if result.Err != nil {
		return fmt.Errorf("error producing event %s after %d attempts: %w", event.ID, result.Attempts, result.Err)
	}

	p.published.Add(1)
	return nil
}

// Stats returns a snapshot of the publisher counters.
func (p *EventPublisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Delivered: p.delivered.Load(),
		Failed:    p.failed.Load(),
		Retries:   p.retries.Load(),
	}
}

// Close flushes pending messages and closes the producer. It blocks until
// messages are flushed or the flush timeout is reached.
func (p *EventPublisher) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	fmt.Println("⏳ Sending remaining events in queue...")
	remaining := p.producer.Flush(p.config.FlushTimeout)
	if remaining > 0 {
		fmt.Printf("⚠️  %d events could not be sent.\n", remaining)
	} else {
		fmt.Println("✅ All events sent successfully.")
	}

	p.cancel()
	p.wg.Wait()
	p.producer.Close()
}
