package config

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

type Consumer struct {
	channel *amqp.Channel
	queue   string
}

func NewConsumer(queueName string) (*Consumer, error) {
	ch, err := RabbitMQ.Channel()
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return nil, err
	}

	// Settlement runs are heavy; take one message at a time.
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, err
	}

	return &Consumer{channel: ch, queue: q.Name}, nil
}

// Consume runs handler for each delivery until ctx is done. A handler error
// requeues the message unless requeue reports otherwise.
func (c *Consumer) Consume(ctx context.Context, handler func([]byte) error, requeue func(error) bool) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return err
	}

	log.Infof("Consumer is running on queue %s", c.queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := handler(msg.Body); err != nil {
				retry := requeue == nil || requeue(err)
				log.WithError(err).WithField("requeue", retry).Error("Handle msg failed")
				msg.Nack(false, retry)
				continue
			}
			msg.Ack(false)
		}
	}
}

func (c *Consumer) Close() error {
	return c.channel.Close()
}
