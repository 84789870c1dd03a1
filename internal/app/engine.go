package app

import (
	"context"

	"syntarex/internal/commission"
	"syntarex/internal/notify"
	"syntarex/internal/store"
	"syntarex/pkg/config"
	"syntarex/pkg/metrics"

	log "github.com/sirupsen/logrus"
)

// Components is what a process needs to run settlements.
type Components struct {
	Engine    *commission.Engine
	Store     *store.GormStore
	Publisher *config.Publisher
}

// Close releases the publisher channel, if any.
func (c *Components) Close() {
	if c.Publisher != nil {
		c.Publisher.Close()
	}
}

// NewEngine builds the settlement engine on config.DB. config.Redis, when
// connected, backs the week lock; config.RabbitMQ, when connected, receives
// the settlement events. extra notifiers are added to the fan-out.
func NewEngine(s *config.Settings, m *metrics.Metrics, extra ...commission.Notifier) (*Components, error) {
	c := &Components{Store: store.NewGormStore(config.DB)}
	if err := c.Store.EnsureDefaultSettings(context.Background()); err != nil {
		return nil, err
	}

	var locker commission.Locker = commission.NewLocalLocker()
	if config.Redis != nil {
		locker = commission.NewRedisLocker(config.Redis)
	}

	notifiers := commission.MultiNotifier(extra)
	if config.RabbitMQ != nil {
		p, err := config.NewPublisher()
		if err != nil {
			return nil, err
		}
		c.Publisher = p
		notifiers = append(notifiers, notify.NewQueueNotifier(p, config.SettlementEventQueue, m))
	}

	c.Engine = commission.NewEngine(c.Store,
		commission.WithLocker(locker),
		commission.WithNotifier(notifiers),
		commission.WithMetrics(m),
		commission.WithLogger(log.StandardLogger()),
		commission.WithWorkers(s.SettlementWorkers),
		commission.WithTimeout(s.SettlementTimeout),
		commission.WithLockTTL(s.WeekLockTTL),
	)
	return c, nil
}
