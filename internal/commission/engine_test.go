package commission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"syntarex/internal/models"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC)

func newTestEngine(store Store, opts ...Option) *Engine {
	logger, _ := logtest.NewNullLogger()
	base := []Option{WithLogger(logger), WithClock(func() time.Time { return fixedNow })}
	return NewEngine(store, append(base, opts...)...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []SettlementEvent
}

func (r *recordingNotifier) Notify(_ context.Context, e SettlementEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func settlementTotals(calc *Calculation) map[string]string {
	out := make(map[string]string, len(calc.Settlements))
	for _, s := range calc.Settlements {
		out[s.UserID] = FormatMoney(s.Total)
	}
	return out
}

func TestCalculateDryRun(t *testing.T) {
	store, week := networkStore(t)
	engine := newTestEngine(store)

	calc, err := engine.Calculate(context.Background(), week.Key(), false)
	require.NoError(t, err)

	totals := calc.Totals()
	assert.Equal(t, "1400.00", totals.SV)
	assert.Equal(t, "210.00", totals.Direct)
	assert.Equal(t, "40.00", totals.Binary)
	assert.Equal(t, "4.00", totals.Override)
	assert.Equal(t, "254.00", totals.Total)
	assert.Equal(t, "1.00", totals.GlobalScaleFactor)

	assert.Equal(t, map[string]string{"root": "180.00", "top": "74.00"}, settlementTotals(calc))
	assert.Empty(t, calc.Exclusions)
	assert.False(t, calc.Persisted)
	assert.NotEmpty(t, calc.RunID)
	assert.Len(t, calc.Commitment, 64)
	assert.Zero(t, store.Saves())

	t.Run("rank changes are reported", func(t *testing.T) {
		view := calc.View()
		levels := make(map[string]int)
		for _, r := range view.RankChanges {
			levels[r.UserID] = r.Level
		}
		assert.Equal(t, map[string]int{"root": 2, "top": 1}, levels)
	})

	t.Run("every amount has two decimals", func(t *testing.T) {
		view := calc.View()
		for _, s := range view.Settlements {
			for _, v := range []string{s.Direct, s.Binary, s.Override, s.Total} {
				assert.Regexp(t, moneyPattern, v)
			}
		}
	})
}

func TestCalculateIsDeterministic(t *testing.T) {
	store, week := networkStore(t)
	engine := newTestEngine(store, WithWorkers(3))

	first, err := engine.Calculate(context.Background(), week.Key(), false)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.Calculate(context.Background(), week.Key(), false)
		require.NoError(t, err)
		assert.NotEqual(t, first.RunID, again.RunID)
		assert.Equal(t, first.Commitment, again.Commitment)
		assert.Equal(t, first.Settlements, again.Settlements)
		assert.Equal(t, first.Entries, again.Entries)
		assert.Equal(t, first.Volumes, again.Volumes)
	}
}

func TestCalculatePersist(t *testing.T) {
	store, week := networkStore(t)
	notifier := &recordingNotifier{}
	engine := newTestEngine(store, WithNotifier(notifier))
	ctx := context.Background()

	calc, err := engine.Calculate(ctx, week.Key(), true)
	require.NoError(t, err)
	assert.True(t, calc.Persisted)
	assert.False(t, calc.Finalized)
	assert.Equal(t, 1, store.Saves())
	assert.Equal(t, []string{EventCalculated}, notifier.types())

	stored, err := engine.Stored(ctx, week.Key())
	require.NoError(t, err)
	assert.True(t, stored.FromStore)
	assert.Equal(t, calc.Commitment, stored.Commitment)
	assert.Equal(t, calc.Totals(), stored.Totals())
	assert.Len(t, store.VolumeRows(week), 4)

	t.Run("a second persist replaces the pending rows", func(t *testing.T) {
		_, err := engine.Calculate(ctx, week.Key(), true)
		require.NoError(t, err)
		assert.Equal(t, 2, store.Saves())

		entries, total, err := engine.Entries(ctx, EntryQuery{Week: week})
		require.NoError(t, err)
		assert.Equal(t, int64(len(calc.Entries)), total)
		assert.Len(t, entries, len(calc.Entries))
	})

	t.Run("entries filter and page", func(t *testing.T) {
		entries, total, err := engine.Entries(ctx, EntryQuery{Week: week, Type: models.CommissionDirect, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Len(t, entries, 2)

		entries, total, err = engine.Entries(ctx, EntryQuery{Week: week, UserID: "top"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, entries, 3)
	})

	t.Run("pending week has no proof", func(t *testing.T) {
		_, err := engine.Proof(ctx, week.Key(), "root")
		assert.True(t, errors.Is(err, ErrWeekNotFinalized))
	})

	t.Run("node volumes are untouched until finalize", func(t *testing.T) {
		for _, n := range store.Nodes {
			assert.True(t, n.LeftVolume.IsZero(), n.UserID)
		}
		assert.Empty(t, store.RankHistory())
	})
}

func TestFinalizeIsIdempotent(t *testing.T) {
	store, week := networkStore(t)
	notifier := &recordingNotifier{}
	engine := newTestEngine(store, WithNotifier(notifier))
	ctx := context.Background()

	first, err := engine.Finalize(ctx, week.Key())
	require.NoError(t, err)
	assert.True(t, first.Finalized)
	require.NotNil(t, first.FinalizedAt)
	assert.Equal(t, fixedNow, *first.FinalizedAt)
	assert.False(t, first.AlreadyFinal)
	for _, s := range first.Settlements {
		assert.True(t, s.IsFinalized)
	}

	second, err := engine.Finalize(ctx, week.Key())
	require.NoError(t, err)
	assert.True(t, second.AlreadyFinal)
	assert.Equal(t, first.Commitment, second.Commitment)
	assert.Equal(t, first.Totals(), second.Totals())
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, 1, store.Saves())
	assert.Equal(t, []string{EventFinalized}, notifier.types())

	t.Run("calculate returns the stored result", func(t *testing.T) {
		calc, err := engine.Calculate(ctx, week.Key(), true)
		require.NoError(t, err)
		assert.True(t, calc.FromStore)
		assert.True(t, calc.Finalized)
		assert.False(t, calc.AlreadyFinal)
		assert.Equal(t, first.Commitment, calc.Commitment)
		assert.Equal(t, 1, store.Saves())
	})

	t.Run("ranks and node volumes are written", func(t *testing.T) {
		assert.Equal(t, 2, store.UserRanks["root"])
		assert.Equal(t, 1, store.UserRanks["top"])
		assert.Len(t, store.RankHistory(), 2)

		for _, n := range store.Nodes {
			switch n.UserID {
			case "root":
				assert.Equal(t, "1000.00", FormatMoney(n.LeftVolume))
				assert.Equal(t, "400.00", FormatMoney(n.RightVolume))
			case "top":
				assert.Equal(t, "1400.00", FormatMoney(n.LeftVolume))
			}
		}
	})

	t.Run("proof verifies against the commitment", func(t *testing.T) {
		proof, err := engine.Proof(ctx, week.Key(), "top")
		require.NoError(t, err)
		assert.Equal(t, first.Commitment, proof.Commitment)
		assert.True(t, VerifyProof(proof.LeafHash, proof.Proof, first.Commitment))

		_, err = engine.Proof(ctx, week.Key(), "alice")
		assert.True(t, errors.Is(err, ErrUserNotSettled))
		_, err = engine.Proof(ctx, week.Next().Key(), "top")
		assert.True(t, errors.Is(err, ErrWeekNotFound))
	})
}

func TestFinalizeFailureWritesNothing(t *testing.T) {
	store, week := networkStore(t)
	store.SaveErr = errors.New("connection reset")
	notifier := &recordingNotifier{}
	engine := newTestEngine(store, WithNotifier(notifier))
	ctx := context.Background()

	_, err := engine.Finalize(ctx, week.Key())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFinalizationFailed))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, []string{EventFailed}, notifier.types())

	_, err = engine.Stored(ctx, week.Key())
	assert.True(t, errors.Is(err, ErrWeekNotFound))
	assert.Zero(t, store.Saves())
	assert.Empty(t, store.UserRanks)

	store.SaveErr = nil
	calc, err := engine.Finalize(ctx, week.Key())
	require.NoError(t, err)
	assert.True(t, calc.Finalized)
}

func TestCalculateErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid week", func(t *testing.T) {
		store, _ := networkStore(t)
		_, err := newTestEngine(store).Calculate(ctx, "2024-01-09", false)
		assert.True(t, errors.Is(err, ErrInvalidWeek))
		_, err = newTestEngine(store).Finalize(ctx, "yesterday")
		assert.True(t, errors.Is(err, ErrInvalidWeek))
	})

	t.Run("missing settings", func(t *testing.T) {
		store, week := networkStore(t)
		store.Settings = nil
		engine := newTestEngine(store)

		_, err := engine.Calculate(ctx, week.Key(), false)
		assert.True(t, errors.Is(err, ErrConfigMissing))

		_, err = engine.Finalize(ctx, week.Key())
		assert.True(t, errors.Is(err, ErrConfigMissing))
		assert.False(t, errors.Is(err, ErrFinalizationFailed))
	})

	t.Run("invalid settings", func(t *testing.T) {
		store, week := networkStore(t)
		store.Settings.BinaryRate = d("1.5")
		_, err := newTestEngine(store).Calculate(ctx, week.Key(), false)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})
}

func TestWeekLock(t *testing.T) {
	ctx := context.Background()

	t.Run("held lock fails fast", func(t *testing.T) {
		store, week := networkStore(t)
		locker := NewLocalLocker()
		engine := newTestEngine(store, WithLocker(locker))

		unlock, err := locker.TryLock(ctx, weekLockKey(week), time.Minute)
		require.NoError(t, err)

		_, err = engine.Calculate(ctx, week.Key(), false)
		assert.True(t, errors.Is(err, ErrWeekAlreadyProcessing))
		_, err = engine.Finalize(ctx, week.Key())
		assert.True(t, errors.Is(err, ErrWeekAlreadyProcessing))

		// Other weeks are not blocked.
		_, err = engine.Calculate(ctx, week.Next().Key(), false)
		assert.NoError(t, err)

		unlock()
		_, err = engine.Calculate(ctx, week.Key(), false)
		assert.NoError(t, err)
	})

	t.Run("concurrent finalize", func(t *testing.T) {
		store, week := networkStore(t)
		blocking := &blockingStore{MemoryStore: store, entered: make(chan struct{}), release: make(chan struct{})}
		engine := newTestEngine(blocking)

		done := make(chan error, 1)
		go func() {
			_, err := engine.Finalize(ctx, week.Key())
			done <- err
		}()
		<-blocking.entered

		_, err := engine.Finalize(ctx, week.Key())
		assert.True(t, errors.Is(err, ErrWeekAlreadyProcessing))

		close(blocking.release)
		require.NoError(t, <-done)
		assert.Equal(t, 1, store.Saves())
	})
}

// blockingStore holds the first settings load until released.
type blockingStore struct {
	*MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) LoadSettings(ctx context.Context) (*models.CommissionSettings, []models.RankDefinition, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.MemoryStore.LoadSettings(ctx)
}

// slowStore never returns transactions before the context ends.
type slowStore struct {
	*MemoryStore
}

func (s slowStore) ListTransactions(ctx context.Context, _ Week) ([]models.SalesTransaction, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunTimeout(t *testing.T) {
	store, week := networkStore(t)
	engine := newTestEngine(slowStore{store}, WithTimeout(50*time.Millisecond))

	_, err := engine.Finalize(context.Background(), week.Key())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, errors.Is(err, ErrFinalizationFailed))
	assert.Zero(t, store.Saves())

	// The lock was released with the failed run.
	_, err = newTestEngine(store, WithLocker(engine.locker)).Calculate(context.Background(), week.Key(), false)
	assert.NoError(t, err)
}

func TestExclusions(t *testing.T) {
	t.Run("sponsor cycle excludes only the broken user", func(t *testing.T) {
		store, week := networkStore(t)
		store.Transactions = append(store.Transactions, sale(3, "zed", "100", week))
		store.Edges = append(store.Edges,
			sponsorEdge(10, "loop1", "zed"),
			sponsorEdge(11, "loop2", "loop1"),
			sponsorEdge(12, "loop1", "loop2"),
		)
		store.Packages = append(store.Packages, unlocked("loop1", 3), unlocked("loop2", 3))

		logger, hook := logtest.NewNullLogger()
		engine := NewEngine(store, WithLogger(logger))
		calc, err := engine.Calculate(context.Background(), week.Key(), false)
		require.NoError(t, err)

		require.Len(t, calc.Exclusions, 1)
		assert.Equal(t, "loop2", calc.Exclusions[0].UserID)
		assert.Equal(t, StageDirect, calc.Exclusions[0].Stage)
		assert.Contains(t, calc.Exclusions[0].Reason, ErrCycleDetected.Error())

		totals := settlementTotals(calc)
		assert.Equal(t, "10.00", totals["loop1"])
		assert.NotContains(t, totals, "loop2")
		assert.Equal(t, "180.00", totals["root"])

		var warned bool
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel && e.Data["user_id"] == "loop2" {
				warned = true
			}
		}
		assert.True(t, warned)
	})

	t.Run("corrupt placement freezes the user", func(t *testing.T) {
		store, week := networkStore(t)
		store.Nodes = append(store.Nodes, node("rogue", "root", ""))

		calc, err := newTestEngine(store).Calculate(context.Background(), week.Key(), false)
		require.NoError(t, err)

		require.Len(t, calc.Exclusions, 1)
		assert.Equal(t, "root", calc.Exclusions[0].UserID)
		assert.Equal(t, StageLedger, calc.Exclusions[0].Stage)

		for _, e := range calc.Entries {
			assert.NotEqual(t, "root", e.UserID)
			assert.NotEqual(t, "root", e.SourceUserID)
		}
		assert.Equal(t, map[string]string{"top": "70.00"}, settlementTotals(calc))

		var frozen []models.BinaryVolumeEntry
		for _, v := range calc.Volumes {
			if v.UserID == "root" {
				frozen = append(frozen, v)
			}
		}
		require.Len(t, frozen, 2)
		assert.Equal(t, "1000.00", FormatMoney(legRow(frozen, models.LegLeft).CarryOut))
		assert.Equal(t, "400.00", FormatMoney(legRow(frozen, models.LegRight).CarryOut))
		assert.True(t, legRow(frozen, models.LegLeft).PaidVolume.IsZero())

		for _, r := range calc.Ranks {
			if r.UserID == "root" {
				assert.False(t, r.Changed)
				assert.Equal(t, 0, r.Level)
			}
		}
	})
}

func TestCarryAcrossWeeks(t *testing.T) {
	store, week := networkStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Finalize(ctx, week.Key())
	require.NoError(t, err)

	next := week.Next()
	store.Transactions = append(store.Transactions, sale(3, "bob", "100", next))

	calc, err := engine.Calculate(ctx, next.Key(), false)
	require.NoError(t, err)

	var binaries []models.CommissionEntry
	for _, e := range calc.Entries {
		if e.Type == models.CommissionBinary {
			binaries = append(binaries, e)
		}
	}
	// Only this week's 100 on the right is newly matched against the
	// 600 carried on the left; last week's 400 is not paid again.
	require.Len(t, binaries, 1)
	assert.Equal(t, "root", binaries[0].UserID)
	assert.Equal(t, "10.00", FormatMoney(binaries[0].BaseAmount))

	for _, v := range calc.Volumes {
		if v.UserID == "root" && v.Leg == models.LegLeft {
			assert.Equal(t, "600.00", FormatMoney(v.CarryIn))
			assert.Equal(t, "500.00", FormatMoney(v.CarryOut))
		}
	}
}

func TestSales(t *testing.T) {
	store, week := networkStore(t)
	engine := newTestEngine(store)

	sales, err := engine.Sales(context.Background(), week.Key())
	require.NoError(t, err)
	view := sales.View()
	assert.Equal(t, "1400.00", view.SV)
	assert.Equal(t, 2, view.Transactions)
	assert.Equal(t, "1000.00", view.PerUser["alice"])
}

func volumeRow(rows []models.BinaryVolumeEntry, user string, leg models.Leg) models.BinaryVolumeEntry {
	for _, r := range rows {
		if r.UserID == user && r.Leg == leg {
			return r
		}
	}
	return models.BinaryVolumeEntry{}
}

func binaryBase(calc *Calculation, user string) string {
	for _, e := range calc.Entries {
		if e.Type == models.CommissionBinary && e.UserID == user {
			return FormatMoney(e.BaseAmount)
		}
	}
	return ""
}

func TestFinalizeOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("pending week blocks finalizing a later week", func(t *testing.T) {
		store, week := networkStore(t)
		engine := newTestEngine(store)
		next := week.Next()
		store.Transactions = append(store.Transactions, sale(3, "bob", "100", next))

		_, err := engine.Calculate(ctx, week.Key(), true)
		require.NoError(t, err)

		_, err = engine.Finalize(ctx, next.Key())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrPreviousWeekPending))
		assert.False(t, errors.Is(err, ErrFinalizationFailed))
		assert.Equal(t, 1, store.Saves())

		// The pending week changes before it is finalized.
		store.Transactions = append(store.Transactions, sale(4, "alice", "500", week))
		first, err := engine.Finalize(ctx, week.Key())
		require.NoError(t, err)
		carryOut := volumeRow(first.Volumes, "root", models.LegLeft).CarryOut
		assert.Equal(t, "1100.00", FormatMoney(carryOut))

		second, err := engine.Finalize(ctx, next.Key())
		require.NoError(t, err)
		left := volumeRow(second.Volumes, "root", models.LegLeft)
		assert.Equal(t, FormatMoney(carryOut), FormatMoney(left.CarryIn))
		assert.Equal(t, "1000.00", FormatMoney(left.CarryOut))
	})

	t.Run("carry survives a skipped week", func(t *testing.T) {
		store, week := networkStore(t)
		engine := newTestEngine(store)
		skipped := week.Next()
		later := skipped.Next()
		store.Transactions = append(store.Transactions, sale(3, "bob", "100", later))

		_, err := engine.Finalize(ctx, week.Key())
		require.NoError(t, err)

		calc, err := engine.Finalize(ctx, later.Key())
		require.NoError(t, err)
		left := volumeRow(calc.Volumes, "root", models.LegLeft)
		assert.Equal(t, "600.00", FormatMoney(left.CarryIn))
		assert.Equal(t, "500.00", FormatMoney(left.CarryOut))
		assert.Equal(t, 0, left.InactiveWeeks)
		assert.Equal(t, "10.00", binaryBase(calc, "root"))

		// Nothing may be written behind the finalized week.
		_, err = engine.Finalize(ctx, skipped.Key())
		assert.True(t, errors.Is(err, ErrLaterWeekFinalized))
		_, err = engine.Calculate(ctx, skipped.Key(), true)
		assert.True(t, errors.Is(err, ErrLaterWeekFinalized))
		_, err = engine.Calculate(ctx, skipped.Key(), false)
		assert.NoError(t, err)
		assert.Equal(t, 2, store.Saves())
	})

	t.Run("pending rows are not carried", func(t *testing.T) {
		store, week := networkStore(t)
		engine := newTestEngine(store)
		next := week.Next()
		store.Transactions = append(store.Transactions, sale(3, "bob", "100", next))

		_, err := engine.Calculate(ctx, week.Key(), true)
		require.NoError(t, err)

		calc, err := engine.Calculate(ctx, next.Key(), false)
		require.NoError(t, err)
		left := volumeRow(calc.Volumes, "root", models.LegLeft)
		assert.True(t, left.CarryIn.IsZero())
		assert.Equal(t, "", binaryBase(calc, "root"))
	})
}
