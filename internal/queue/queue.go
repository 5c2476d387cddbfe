package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/vendor-outreach/internal/logger"
)

// TopicVendorStatusChanges carries model.StatusChanged events as JSON.
const TopicVendorStatusChanges = "vendor_status_changes"

type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue delivers to subscribers in-process with retry
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	wg         sync.WaitGroup
	MaxRetries int
	Backoff    time.Duration
	log        *logrus.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
		log:        logger.GetAppLogger(),
	}
}

// job wraps a message with retry info
type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish hands the message to every subscriber of the topic
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	// Deliveries outlive the publishing request.
	ctx = context.WithoutCancel(ctx)
	for _, h := range handlers {
		q.wg.Add(1)
		go func(h Handler) {
			defer q.wg.Done()
			q.process(ctx, h, job{topic: topic, body: body})
		}(h)
	}
	return nil
}

// process handles retries and errors
func (q *InMemoryQueue) process(ctx context.Context, h Handler, j job) {
	for {
		err := h(ctx, j.body)
		if err == nil {
			return // ACK
		}

		j.retryCount++
		fields := logrus.Fields{"topic": j.topic, "attempt": j.retryCount, "max_retries": q.MaxRetries}
		if j.retryCount > q.MaxRetries {
			q.log.WithFields(fields).WithError(err).Error("message permanently failed")
			return // No requeue
		}
		q.log.WithFields(fields).WithError(err).Warn("message handler failed, retrying")

		time.Sleep(time.Duration(j.retryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every in-flight delivery has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

var _ Queue = (*InMemoryQueue)(nil)
