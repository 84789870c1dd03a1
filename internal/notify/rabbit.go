package notify

import (
	"context"

	"syntarex/internal/commission"
	"syntarex/pkg/metrics"

	log "github.com/sirupsen/logrus"
)

// Publisher is the part of config.Publisher the notifier needs.
type Publisher interface {
	Publish(queueName string, message interface{}) error
}

// QueueNotifier publishes settlement events to a RabbitMQ queue for the
// claim infrastructure.
type QueueNotifier struct {
	publisher Publisher
	queue     string
	metrics   *metrics.Metrics
}

func NewQueueNotifier(p Publisher, queue string, m *metrics.Metrics) *QueueNotifier {
	return &QueueNotifier{publisher: p, queue: queue, metrics: m}
}

func (n *QueueNotifier) Notify(_ context.Context, event commission.SettlementEvent) {
	err := n.publisher.Publish(n.queue, event)
	n.metrics.RecordEvent("rabbitmq", err)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"queue":      n.queue,
			"week_start": event.WeekStart,
			"event":      event.Type,
		}).Error("Failed to publish settlement event")
	}
}
