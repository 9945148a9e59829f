// Package kafka publishes audit events to a Kafka topic.
//
// Delivery is asynchronous and best-effort: Emit hands the record to the client
// buffer and returns. Failed deliveries are logged and counted, never surfaced
// to the business operation that produced the event.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "transferai/pkg/platform/audit"
)

var deliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "transferai_audit_kafka_delivery_failures_total",
	Help: "Audit events the Kafka client failed to deliver",
}, []string{"category"})

// Producer is the subset of *kgo.Client used by the publisher.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// Publisher writes audit events as JSON records keyed by account id.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// Dial connects a franz-go client to brokers.
func Dial(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return New(client, topic, opts...)
}

// New wraps an existing producer.
func New(producer Producer, topic string, opts ...Option) (*Publisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	p := &Publisher{
		producer: producer,
		topic:    topic,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.AccountID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(event.Category)},
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	// The promise runs on the client's goroutine after ctx may be gone.
	p.producer.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err == nil {
			return
		}
		deliveryFailures.WithLabelValues(string(event.Category)).Inc()
		p.logger.Warn("audit event delivery failed",
			"action", event.Action,
			"topic", r.Topic,
			"error", err,
		)
	})
	return nil
}

// Close flushes buffered records and closes the client.
func (p *Publisher) Close(ctx context.Context) error {
	err := p.producer.Flush(ctx)
	p.producer.Close()
	return err
}
