package queue

import (
	"context"
	"fmt"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

// KafkaMessageWriter is the part of kafka.Writer the publisher needs.
type KafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// KafkaPublisher writes each payload as one message. The key set with WithKey
// picks the partition, so notifications for one source message stay ordered.
type KafkaPublisher struct {
	writer  KafkaMessageWriter
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	w := &kgo.Writer{
		Addr:                   kgo.TCP(brokers...),
		Balancer:               &kgo.Hash{},
		RequiredAcks:           kgo.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaPublisherWithWriter(w), nil
}

func NewKafkaPublisherWithWriter(w KafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: 3 * time.Second}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.writer.WriteMessages(cctx, kgo.Message{
		Topic: topic,
		Key:   KeyFromContext(ctx),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
