package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/unclebandit/vendor-outreach/internal/logger"
)

const retryHeader = "x-retry-count"

// RabbitMQQueue publishes to and consumes from durable queues named after the topic.
type RabbitMQQueue struct {
	conn       *amqp.Connection
	pub        *amqp.Channel
	pubMu      sync.Mutex
	wg         sync.WaitGroup
	MaxRetries int
	log        *logrus.Logger
}

func NewRabbitMQQueue(url string) (*RabbitMQQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &RabbitMQQueue{conn: conn, pub: ch, MaxRetries: 3, log: logger.GetAppLogger()}, nil
}

func declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	return nil
}

func (q *RabbitMQQueue) Publish(ctx context.Context, topic string, body []byte) error {
	return q.publish(topic, body, 0)
}

func (q *RabbitMQQueue) publish(topic string, body []byte, retryCount int) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	if err := declare(q.pub, topic); err != nil {
		return err
	}
	return q.pub.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retryCount)},
		Body:         body,
	})
}

// Subscribe starts a consumer goroutine. It stops when the connection is closed.
func (q *RabbitMQQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := declare(ch, topic); err != nil {
		ch.Close()
		return err
	}
	msgs, err := ch.Consume(
		topic,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer ch.Close()
		for d := range msgs {
			q.deliver(topic, d, handler)
		}
	}()
	return nil
}

func (q *RabbitMQQueue) deliver(topic string, d amqp.Delivery, handler Handler) {
	err := handler(context.Background(), d.Body)
	if err == nil {
		d.Ack(false)
		return
	}

	retryCount := headerInt(d.Headers[retryHeader]) + 1
	fields := logrus.Fields{"topic": topic, "attempt": retryCount, "max_retries": q.MaxRetries}
	if retryCount > q.MaxRetries {
		q.log.WithFields(fields).WithError(err).Error("message permanently failed")
		d.Ack(false)
		return
	}
	q.log.WithFields(fields).WithError(err).Warn("message handler failed, requeueing")

	// Republish with the bumped counter; a plain Nack would lose it.
	if perr := q.publish(topic, d.Body, retryCount); perr != nil {
		q.log.WithFields(fields).WithError(perr).Error("requeue failed")
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

func headerInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int16:
		return int(n)
	}
	return 0
}

// Close shuts the connection down and waits for consumers to drain.
func (q *RabbitMQQueue) Close() error {
	err := q.conn.Close()
	q.wg.Wait()
	return err
}

var _ Queue = (*RabbitMQQueue)(nil)
