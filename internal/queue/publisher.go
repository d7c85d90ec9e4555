package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const notificationQueueName = "notification.created"

// Publisher pushes notification payloads onto the durable
// notification.created queue. Errors are logged and returned so
// callers can fall back to direct delivery without interrupting the
// main request flow.
type Publisher struct {
	url string
	log *logrus.Logger
}

// NewPublisher returns a Publisher that dials the broker at the given
// URL on each publish. The connection is short-lived on purpose: the
// publish path is rare enough that holding a channel open buys little
// and a stale connection would need its own recovery loop.
func NewPublisher(url string, log *logrus.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// PublishCreated publishes a NotificationCreated payload. The queue is
// declared durable and messages are marked persistent so they survive
// broker restarts.
func (p *Publisher) PublishCreated(ctx context.Context, ev NotificationCreated) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent).
	if _, err := ch.QueueDeclare(
		notificationQueueName, // name
		true,                  // durable
		false,                 // autoDelete
		false,                 // exclusive
		false,                 // noWait
		nil,                   // args
	); err != nil {
		p.log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: marshal payload failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",                    // default exchange
		notificationQueueName, // routing key = queue name
		false,                 // mandatory
		false,                 // immediate
		pub,
	); err != nil {
		p.log.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}

	return nil
}
