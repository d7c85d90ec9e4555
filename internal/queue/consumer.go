package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/eventure/ticketing/internal/model"
)

// Deliverer receives notifications decoded off the queue. Implemented
// by the channel broker; deliveries must not block.
type Deliverer interface {
	Send(n model.Notification)
}

// StartNotificationConsumer connects to RabbitMQ, declares the durable
// notification.created queue, and hands each decoded message to the
// deliverer. It runs a reconnect loop with capped backoff and never
// returns under normal operation; processing errors are logged and the
// offending message is rejected without requeue so the consumer keeps
// draining.
func StartNotificationConsumer(url string, deliver Deliverer, log *logrus.Logger) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.WithError(err).Warnf("notification-consumer: dial failed, retrying in %s", backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, deliver, log); err != nil {
			log.WithError(err).Warn("notification-consumer: consume loop ended, reconnecting")
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection, deliver Deliverer, log *logrus.Logger) error {
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("notification-consumer: set QoS failed")
	}

	if _, err := ch.QueueDeclare(notificationQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(notificationQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		var ev NotificationCreated
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			log.WithError(err).Warn("notification-consumer: unmarshal failed")
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		deliver.Send(ev.Notification())
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}
