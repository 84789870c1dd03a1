package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"syntarex/internal/app"
	"syntarex/internal/commission"
	"syntarex/pkg/config"
	"syntarex/pkg/metrics"

	log "github.com/sirupsen/logrus"
)

// SettlementMessage asks the worker to settle one week.
type SettlementMessage struct {
	WeekStart string `json:"weekStart"`
	Persist   bool   `json:"persist"`
	Finalize  bool   `json:"finalize"`
}

func main() {
	settings := config.LoadSettings()
	config.InitLogger(settings.LogLevel, settings.LogFormat, settings.LogFile)

	// Initialize database
	config.InitDB(settings)
	config.InitRedis(settings)

	// Initialize RabbitMQ
	config.InitRabbitMQ(settings)
	defer config.RabbitMQ.Close()

	components, err := app.NewEngine(settings, metrics.New(nil))
	if err != nil {
		log.Fatal("Failed to build settlement engine: ", err)
	}
	defer components.Close()

	msgConsumer, err := config.NewConsumer(config.SettlementRequestQueue)
	if err != nil {
		log.Fatal("Failed to create consumer: ", err)
	}
	defer msgConsumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Commission settlement worker started, waiting for messages...")
	handler := func(body []byte) error {
		return handleMessage(ctx, components.Engine, body)
	}
	if err := msgConsumer.Consume(ctx, handler, shouldRequeue); err != nil {
		log.Fatal("Failed to start consumer: ", err)
	}
}

func handleMessage(ctx context.Context, engine *commission.Engine, body []byte) error {
	var msg SettlementMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errMalformedMessage, err)
	}
	entry := log.WithFields(log.Fields{
		"week_start": msg.WeekStart,
		"persist":    msg.Persist,
		"finalize":   msg.Finalize,
	})
	entry.Info("Received settlement request")

	if msg.Finalize {
		calc, err := engine.Finalize(ctx, msg.WeekStart)
		if err != nil {
			return err
		}
		entry.WithFields(log.Fields{
			"commitment":    calc.Commitment,
			"already_final": calc.AlreadyFinal,
		}).Info("Week finalized")
		return nil
	}

	calc, err := engine.Calculate(ctx, msg.WeekStart, msg.Persist)
	if err != nil {
		return err
	}
	entry.WithFields(log.Fields{
		"total":       commission.FormatMoney(calc.Scale.Total),
		"settlements": len(calc.Settlements),
		"exclusions":  len(calc.Exclusions),
	}).Info("Week calculated")
	return nil
}

var errMalformedMessage = errors.New("malformed settlement message")

// shouldRequeue retries only failures a later attempt can fix.
func shouldRequeue(err error) bool {
	switch {
	case errors.Is(err, errMalformedMessage),
		errors.Is(err, commission.ErrInvalidWeek),
		errors.Is(err, commission.ErrWeekFinalized),
		errors.Is(err, commission.ErrPreviousWeekPending),
		errors.Is(err, commission.ErrLaterWeekFinalized),
		errors.Is(err, commission.ErrConfigMissing),
		errors.Is(err, commission.ErrInvalidConfig):
		return false
	}
	return true
}
