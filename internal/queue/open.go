package queue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/config"
)

// Open builds the publisher selected by cfg.Driver. The returned close func
// is never nil.
func Open(ctx context.Context, cfg config.Notifier, awsRegion string, log *zap.Logger) (Publisher, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case "memory":
		q := NewInMemoryQueue(log)
		LogSink(q, cfg.Topic, log)
		return q, noop, nil
	case "amqp":
		p, err := NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	case "kafka":
		p, err := NewKafkaPublisher(cfg.KafkaBrokers)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	case "sqs":
		p, err := NewSQSPublisher(ctx, awsRegion, cfg.SQSQueueURL, cfg.SQSEndpoint, log)
		if err != nil {
			return nil, noop, err
		}
		return p, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown notifier driver %q", cfg.Driver)
}
