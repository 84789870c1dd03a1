package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"syntarex/internal/commission"
	"syntarex/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T, opts ...commission.Option) (*commission.Engine, *commission.MemoryStore) {
	t.Helper()
	settings := models.DefaultCommissionSettings()
	store := commission.NewMemoryStore()
	store.Settings = &settings
	store.Transactions = []models.SalesTransaction{{
		ID:         1,
		UserID:     "alice",
		Amount:     decimal.NewFromInt(1000),
		Currency:   "USD",
		WeekStart:  time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		IsEligible: true,
	}}
	store.Edges = []models.ReferralEdge{{ID: 1, SponsorID: "root", RefereeID: "alice", Level: 1, IsActive: true}}
	store.Packages = []models.UserPackage{{UserID: "root", CommissionUnlockLevel: 1, IsActive: true}}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return commission.NewEngine(store, append([]commission.Option{commission.WithLogger(log)}, opts...)...), store
}

func TestPreviousWeek(t *testing.T) {
	tests := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2024, 1, 15, 0, 30, 0, 0, time.UTC), "2024-01-08"},
		{time.Date(2024, 1, 21, 23, 59, 59, 0, time.UTC), "2024-01-08"},
		{time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), "2023-12-25"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, previousWeek(tt.now).Key(), tt.now.String())
	}
}

func TestSettlePreviousWeek(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 0, 30, 0, 0, time.UTC)

	t.Run("persist only", func(t *testing.T) {
		engine, store := testEngine(t)
		require.NoError(t, SettlePreviousWeek(ctx, engine, now, false))
		assert.Equal(t, 1, store.Saves())

		calc, err := engine.Stored(ctx, "2024-01-08")
		require.NoError(t, err)
		assert.False(t, calc.Finalized)
		assert.Equal(t, "100.00", calc.Totals().Total)
	})

	t.Run("finalize", func(t *testing.T) {
		engine, store := testEngine(t)
		require.NoError(t, SettlePreviousWeek(ctx, engine, now, true))
		require.NoError(t, SettlePreviousWeek(ctx, engine, now, true))
		assert.Equal(t, 2, store.Saves())

		calc, err := engine.Stored(ctx, "2024-01-08")
		require.NoError(t, err)
		assert.True(t, calc.Finalized)
	})

	t.Run("busy week is skipped", func(t *testing.T) {
		locker := commission.NewLocalLocker()
		engine, store := testEngine(t, commission.WithLocker(locker))
		unlock, err := locker.TryLock(ctx, "commission:settlement:lock:2024-01-08", time.Minute)
		require.NoError(t, err)
		defer unlock()

		assert.NoError(t, SettlePreviousWeek(ctx, engine, now, true))
		assert.Zero(t, store.Saves())
	})

	t.Run("failures are returned", func(t *testing.T) {
		engine, store := testEngine(t)
		store.Settings = nil
		err := SettlePreviousWeek(ctx, engine, now, true)
		assert.True(t, errors.Is(err, commission.ErrConfigMissing))
	})
}

type fakeExpirer struct {
	n   int64
	err error
	at  time.Time
}

func (f *fakeExpirer) ExpireGhostCredits(_ context.Context, now time.Time) (int64, error) {
	f.at = now
	return f.n, f.err
}

func TestSweepGhostCredits(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 15, 0, 0, time.UTC)

	f := &fakeExpirer{n: 3}
	require.NoError(t, SweepGhostCredits(context.Background(), f, now))
	assert.Equal(t, now, f.at)

	f = &fakeExpirer{err: errors.New("db down")}
	assert.EqualError(t, SweepGhostCredits(context.Background(), f, now), "db down")
}
