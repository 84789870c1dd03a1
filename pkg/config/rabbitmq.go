package config

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// Queue names.
const (
	SettlementRequestQueue = "commission_settlement"
	SettlementEventQueue   = "commission_settlement_finalized"
)

var RabbitMQ *amqp.Connection

// InitRabbitMQ RabbitMQ with retry logic
func InitRabbitMQ(s *Settings) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%s/",
		s.RabbitMQUser,
		s.RabbitMQPassword,
		s.RabbitMQHost,
		s.RabbitMQPort,
	)

	maxRetries := 10
	retryDelay := 3 * time.Second

	var conn *amqp.Connection
	var err error

	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			RabbitMQ = conn
			log.Infof("Successfully connected to RabbitMQ at %s", s.RabbitMQHost)
			return
		}

		if i < maxRetries-1 {
			log.Warnf("Failed to connect to RabbitMQ (attempt %d/%d): %v. Retrying in %v...", i+1, maxRetries, err, retryDelay)
			time.Sleep(retryDelay)
		}
	}

	log.Fatalf("Failed to connect to RabbitMQ after %d attempts: %v", maxRetries, err)
}
