package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"syntarex/internal/commission"
	"syntarex/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workerEngine(t *testing.T) (*commission.Engine, *commission.MemoryStore) {
	t.Helper()
	settings := models.DefaultCommissionSettings()
	store := commission.NewMemoryStore()
	store.Settings = &settings
	store.Transactions = []models.SalesTransaction{{
		ID: 1, UserID: "alice", Amount: decimal.NewFromInt(500), Currency: "USD",
		WeekStart: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), IsEligible: true,
	}}
	store.Edges = []models.ReferralEdge{{ID: 1, SponsorID: "root", RefereeID: "alice", Level: 1, IsActive: true}}
	store.Packages = []models.UserPackage{{UserID: "root", CommissionUnlockLevel: 1, IsActive: true}}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return commission.NewEngine(store, commission.WithLogger(log)), store
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("dry run writes nothing", func(t *testing.T) {
		engine, store := workerEngine(t)
		require.NoError(t, handleMessage(ctx, engine, []byte(`{"weekStart":"2024-01-08"}`)))
		assert.Zero(t, store.Saves())
	})

	t.Run("persist", func(t *testing.T) {
		engine, store := workerEngine(t)
		require.NoError(t, handleMessage(ctx, engine, []byte(`{"weekStart":"2024-01-08","persist":true}`)))
		assert.Equal(t, 1, store.Saves())
	})

	t.Run("finalize twice", func(t *testing.T) {
		engine, store := workerEngine(t)
		body := []byte(`{"weekStart":"2024-01-08","finalize":true}`)
		require.NoError(t, handleMessage(ctx, engine, body))
		require.NoError(t, handleMessage(ctx, engine, body))
		assert.Equal(t, 1, store.Saves())
	})

	t.Run("malformed", func(t *testing.T) {
		engine, _ := workerEngine(t)
		err := handleMessage(ctx, engine, []byte(`{"weekStart":`))
		assert.True(t, errors.Is(err, errMalformedMessage))
		assert.False(t, shouldRequeue(err))
	})

	t.Run("invalid week", func(t *testing.T) {
		engine, _ := workerEngine(t)
		err := handleMessage(ctx, engine, []byte(`{"weekStart":"2024-01-10","finalize":true}`))
		assert.True(t, errors.Is(err, commission.ErrInvalidWeek))
		assert.False(t, shouldRequeue(err))
	})
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("lock: %w", commission.ErrWeekAlreadyProcessing), true},
		{fmt.Errorf("finalize: %w: %w", commission.ErrFinalizationFailed, context.DeadlineExceeded), true},
		{errors.New("connection refused"), true},
		{fmt.Errorf("save: %w", commission.ErrWeekFinalized), false},
		{fmt.Errorf("compute: %w", commission.ErrConfigMissing), false},
		{fmt.Errorf("compute: %w", commission.ErrInvalidConfig), false},
		{fmt.Errorf("2024-01-15: %w: 2024-01-08 is pending", commission.ErrPreviousWeekPending), false},
		{fmt.Errorf("2024-01-08: %w: 2024-01-15", commission.ErrLaterWeekFinalized), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shouldRequeue(tt.err), tt.err.Error())
	}
}
