// Package queue publishes hot-lead notifications to a broker.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Publisher delivers an encoded payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Handler consumes one payload; a returned error triggers a retry.
type Handler func(ctx context.Context, payload []byte) error

// InMemoryQueue fans payloads out to in-process subscribers with retry.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	log      *zap.Logger
	wg       sync.WaitGroup

	MaxRetries int
	Backoff    time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		log:        log,
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// job wraps a message payload with retry info
type job struct {
	topic      string
	payload    []byte
	retryCount int
}

// Publish hands the payload to every subscriber of topic.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(handler, job{topic: topic, payload: append([]byte(nil), payload...)})
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler Handler, j job) {
	defer q.wg.Done()
	for {
		err := handler(context.Background(), j.payload)
		if err == nil {
			return
		}

		j.retryCount++
		q.log.Warn("job failed",
			zap.String("topic", j.topic),
			zap.Int("attempt", j.retryCount),
			zap.Int("max_retries", q.MaxRetries),
			zap.Error(err))

		if j.retryCount > q.MaxRetries {
			q.log.Error("job permanently failed", zap.String("topic", j.topic), zap.Error(err))
			return
		}
		time.Sleep(time.Duration(j.retryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
}

// Wait blocks until every published job has finished or given up.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// LogSink subscribes a handler that logs each payload, so the in-memory
// driver has a consumer when no broker is configured.
func LogSink(q *InMemoryQueue, topic string, log *zap.Logger) {
	q.Subscribe(topic, func(ctx context.Context, payload []byte) error {
		log.Info("notification", zap.String("topic", topic), zap.ByteString("payload", payload))
		return nil
	})
}
