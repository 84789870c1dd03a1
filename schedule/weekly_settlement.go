package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"syntarex/internal/app"
	"syntarex/internal/commission"
	"syntarex/pkg/config"
	"syntarex/pkg/metrics"

	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"
)

// previousWeek is the last week that has fully closed at now.
func previousWeek(now time.Time) commission.Week {
	return commission.WeekOf(now).Prev()
}

// SettlePreviousWeek persists the week that just closed and, with finalize,
// commits it.
func SettlePreviousWeek(ctx context.Context, engine *commission.Engine, now time.Time, finalize bool) error {
	week := previousWeek(now)
	entry := logger.WithField("week_start", week.Key())

	calc, err := engine.Calculate(ctx, week.Key(), true)
	if errors.Is(err, commission.ErrWeekAlreadyProcessing) {
		entry.Warn("> Week is already being processed, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	entry.WithFields(logger.Fields{
		"total":      commission.FormatMoney(calc.Scale.Total),
		"from_store": calc.FromStore,
	}).Info("> Weekly settlement calculated")

	if !finalize || calc.Finalized {
		return nil
	}
	calc, err = engine.Finalize(ctx, week.Key())
	if err != nil {
		return err
	}
	entry.WithField("commitment", calc.Commitment).Info("> Weekly settlement finalized")
	return nil
}

// ghostExpirer is the part of the store the sweep needs.
type ghostExpirer interface {
	ExpireGhostCredits(ctx context.Context, now time.Time) (int64, error)
}

// SweepGhostCredits marks elapsed ghost volume credits as expired.
func SweepGhostCredits(ctx context.Context, s ghostExpirer, now time.Time) error {
	n, err := s.ExpireGhostCredits(ctx, now)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Infof("> Expired %d ghost volume credits", n)
	}
	return nil
}

func main() {
	settings := config.LoadSettings()
	logFile := settings.LogFile
	if logFile == "" {
		logFile = "logs/weekly_settlement.log"
	}
	config.InitLogger(settings.LogLevel, settings.LogFormat, logFile)
	logger.Info("> Initializing weekly settlement schedule")

	config.InitDB(settings)
	config.InitRedis(settings)
	if settings.RabbitMQEnabled() {
		config.InitRabbitMQ(settings)
		defer config.RabbitMQ.Close()
	}

	components, err := app.NewEngine(settings, metrics.New(nil))
	if err != nil {
		logger.Fatalf("> Failed to build settlement engine: %v", err)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	_, err = c.AddFunc(settings.SettlementCron, func() {
		if err := SettlePreviousWeek(ctx, components.Engine, time.Now(), settings.AutoFinalize); err != nil {
			logger.Errorf("> Weekly settlement failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("> Failed to add settlement job: %v", err)
	}

	_, err = c.AddFunc(settings.GhostSweepCron, func() {
		if err := SweepGhostCredits(ctx, components.Store, time.Now()); err != nil {
			logger.Errorf("> Ghost credit sweep failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("> Failed to add ghost sweep job: %v", err)
	}

	logger.Infof("> Schedule started: settlement %q, ghost sweep %q", settings.SettlementCron, settings.GhostSweepCron)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("> Schedule stopped")
}
