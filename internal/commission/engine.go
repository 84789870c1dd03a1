package commission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"syntarex/internal/models"
	"syntarex/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Run modes, used for logging and metrics.
const (
	ModeDryRun   = "dry_run"
	ModePersist  = "persist"
	ModeFinalize = "finalize"
)

const (
	defaultWorkers = 8
	defaultTimeout = 10 * time.Minute
	defaultLockTTL = 15 * time.Minute
)

// Exclusion is a user left out of a run for manual remediation.
type Exclusion struct {
	UserID string `json:"userId"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Calculation is the full outcome of computing one week.
type Calculation struct {
	RunID        string
	Week         Week
	Snapshot     *Snapshot
	Sales        SalesSummary
	Volumes      []models.BinaryVolumeEntry
	Ranks        []RankResult
	Entries      []models.CommissionEntry
	Forfeited    decimal.Decimal
	Scale        ScaleResult
	Settlements  []models.WeeklySettlement
	Commitment   string
	Exclusions   []Exclusion
	NodeVolumes  []NodeVolume
	Persisted    bool
	Finalized    bool
	FinalizedAt  *time.Time
	FromStore    bool
	AlreadyFinal bool
}

// Engine runs weekly settlements.
type Engine struct {
	store    Store
	locker   Locker
	notifier Notifier
	metrics  *metrics.Metrics
	log      *logrus.Logger
	workers  int
	timeout  time.Duration
	lockTTL  time.Duration
	now      func() time.Time
}

type Option func(*Engine)

func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithWorkers bounds the goroutines used by the per-user calculators.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTimeout bounds a whole run. Nothing is written when it expires.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		locker:   NewLocalLocker(),
		notifier: nopNotifier{},
		log:      logrus.StandardLogger(),
		workers:  defaultWorkers,
		timeout:  defaultTimeout,
		lockTTL:  defaultLockTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calculate computes the week. With persist the pending entries, settlements
// and ledger rows replace any earlier pending run of the week. A finalized
// week is never recomputed; its stored result is returned.
func (e *Engine) Calculate(ctx context.Context, weekStart string, persist bool) (*Calculation, error) {
	week, err := ParseWeek(weekStart)
	if err != nil {
		return nil, err
	}
	mode := ModeDryRun
	if persist {
		mode = ModePersist
	}

	started := e.now()
	calc, err := e.run(ctx, week, mode)
	e.metrics.RecordRun(mode, outcome(err), e.now().Sub(started))
	if err != nil {
		return nil, err
	}
	if persist && !calc.FromStore {
		e.notify(ctx, EventCalculated, calc)
	}
	return calc, nil
}

// Finalize computes the week and writes it as final in one transaction.
// Finalizing a finalized week returns the stored commitment and totals.
func (e *Engine) Finalize(ctx context.Context, weekStart string) (*Calculation, error) {
	week, err := ParseWeek(weekStart)
	if err != nil {
		return nil, err
	}

	started := e.now()
	calc, err := e.run(ctx, week, ModeFinalize)
	e.metrics.RecordRun(ModeFinalize, outcome(err), e.now().Sub(started))
	if err != nil {
		if errors.Is(err, ErrFinalizationFailed) {
			e.notifier.Notify(ctx, SettlementEvent{
				Type:      EventFailed,
				WeekStart: week.Key(),
				Error:     err.Error(),
				At:        e.now().UTC(),
			})
		}
		return nil, err
	}
	if !calc.AlreadyFinal {
		e.notify(ctx, EventFinalized, calc)
	}
	return calc, nil
}

func (e *Engine) run(ctx context.Context, week Week, mode string) (*Calculation, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	unlock, err := e.locker.TryLock(ctx, weekLockKey(week), e.lockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Finalized weeks short-circuit before anything is computed or written.
	stored, err := e.loadStored(ctx, week, true)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		stored.AlreadyFinal = mode == ModeFinalize
		return stored, nil
	}

	runID := uuid.NewString()
	log := e.log.WithFields(logrus.Fields{"run_id": runID, "week_start": week.Key(), "mode": mode})

	if mode == ModeFinalize {
		release, err := e.locker.TryLock(ctx, finalizeLockKey, e.lockTTL)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	if mode != ModeDryRun {
		if err := e.checkOrder(ctx, week, mode); err != nil {
			log.WithError(err).Warn("settlement run refused")
			return nil, err
		}
	}
	log.Info("settlement run started")

	calc, err := e.compute(ctx, week, runID, log)
	if err != nil {
		log.WithError(err).Error("settlement run failed")
		if mode == ModeFinalize && !errors.Is(err, ErrInvalidConfig) && !errors.Is(err, ErrConfigMissing) {
			return nil, fmt.Errorf("Finalize %s: %w: %w", week, ErrFinalizationFailed, err)
		}
		return nil, err
	}

	if mode == ModeDryRun {
		log.WithField("total", FormatMoney(calc.Scale.Total)).Info("settlement dry run complete")
		return calc, nil
	}

	if mode == ModeFinalize {
		calc.markFinalized(e.now().UTC())
	}
	if err := e.store.SaveWeek(ctx, calc.Batch()); err != nil {
		if errors.Is(err, ErrWeekFinalized) {
			log.Warn("week finalized by another run, returning stored result")
			stored, loadErr := e.loadStored(ctx, week, true)
			if loadErr != nil {
				return nil, loadErr
			}
			if stored != nil {
				stored.AlreadyFinal = mode == ModeFinalize
				return stored, nil
			}
		}
		log.WithError(err).Error("settlement write rolled back")
		if mode == ModeFinalize {
			return nil, fmt.Errorf("Finalize %s: %w: %w", week, ErrFinalizationFailed, err)
		}
		return nil, fmt.Errorf("Calculate %s: save: %w", week, err)
	}
	calc.Persisted = true

	log.WithFields(logrus.Fields{
		"settlements": len(calc.Settlements),
		"entries":     len(calc.Entries),
		"exclusions":  len(calc.Exclusions),
		"total":       FormatMoney(calc.Scale.Total),
		"commitment":  calc.Commitment,
	}).Info("settlement run persisted")
	return calc, nil
}

// checkOrder keeps carry-out of one finalized week equal to carry-in of the
// next finalized week. Nothing is written behind a finalized week, and a week
// is finalized only once every earlier persisted week is final. Weeks that
// were never persisted are skipped.
func (e *Engine) checkOrder(ctx context.Context, week Week, mode string) error {
	runs, err := e.store.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("check order %s: %w", week, err)
	}
	for _, r := range runs {
		other := WeekOf(r.WeekStart)
		switch {
		case other.Start.After(week.Start) && r.IsFinalized:
			return fmt.Errorf("%s: %w: %s", week, ErrLaterWeekFinalized, other)
		case mode == ModeFinalize && other.Start.Before(week.Start) && !r.IsFinalized:
			return fmt.Errorf("%s: %w: %s is pending", week, ErrPreviousWeekPending, other)
		}
	}
	return nil
}

// compute is the pure pipeline: inputs are read once, the per-user
// calculators run in parallel, and scaling waits for all of them.
func (e *Engine) compute(ctx context.Context, week Week, runID string, log *logrus.Entry) (*Calculation, error) {
	settings, rankDefs, err := e.store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute %s: load settings: %w", week, err)
	}
	snap, err := NewSnapshot(settings, rankDefs)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", week, err)
	}

	var (
		txs            []models.SalesTransaction
		edges          []models.ReferralEdge
		nodes          []models.BinaryNode
		credits        []models.GhostVolumeCredit
		history        []models.BinaryVolumeEntry
		carry          []models.BinaryVolumeEntry
		packages       []models.UserPackage
		userRanks      []models.UserRank
		personalBefore map[string]decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { txs, err = e.store.ListTransactions(gctx, week); return })
	g.Go(func() (err error) { edges, err = e.store.ListReferralEdges(gctx); return })
	g.Go(func() (err error) { nodes, err = e.store.ListBinaryNodes(gctx); return })
	g.Go(func() (err error) { credits, err = e.store.ListGhostCredits(gctx, week); return })
	g.Go(func() (err error) {
		from := week.Start.AddDate(0, 0, -7*snap.CarryAverageWeeks)
		history, err = e.store.ListFinalizedVolumes(gctx, from, week.Start)
		return
	})
	g.Go(func() (err error) { carry, err = e.store.LatestCarry(gctx, week.Start); return })
	g.Go(func() (err error) { packages, err = e.store.ListUserPackages(gctx); return })
	g.Go(func() (err error) { userRanks, err = e.store.ListUserRanks(gctx); return })
	g.Go(func() (err error) {
		personalBefore, err = e.store.PersonalSalesBefore(gctx, week.Start, snap.Currency)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compute %s: load inputs: %w", week, err)
	}

	calc := &Calculation{RunID: runID, Week: week, Snapshot: snap}
	calc.Sales = Aggregate(week, txs, snap.Currency)

	tree := newPlacementTree(nodes)
	graph := newSponsorGraph(edges)
	ledger := buildLedger(snap, week, calc.Sales, tree, credits, carry, history)

	ex := newExclusions()
	for _, ce := range ledger.errors {
		ex.add(ce, StageLedger)
	}

	stored := make(map[string]int, len(userRanks))
	for _, r := range userRanks {
		stored[r.UserID] = r.Level
	}
	ranks := evaluateRanks(snap, calc.Sales, ledger, tree, graph,
		rankInputs{personalBefore: personalBefore, packages: packages, stored: stored}, ex.users())
	levels := make(map[string]int, len(ranks))
	for id, r := range ranks {
		levels[id] = r.Level
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compute %s: %w", week, err)
	}

	direct, forfeited, directErrs, err := e.directStage(ctx, snap, week, calc.Sales.Eligible, graph, unlockLevels(packages))
	if err != nil {
		return nil, fmt.Errorf("compute %s: direct: %w", week, err)
	}
	calc.Forfeited = forfeited
	for _, err := range directErrs {
		ex.add(err, StageDirect)
	}

	users := ledger.sortedUsers()
	binaries, err := e.binaryStage(ctx, snap, users, levels, ex.users())
	if err != nil {
		return nil, fmt.Errorf("compute %s: binary: %w", week, err)
	}
	var binaryEntries []models.CommissionEntry
	for _, v := range users {
		if res, ok := binaries[v.UserID]; ok {
			if entry, ok := res.Entry(week); ok {
				binaryEntries = append(binaryEntries, entry)
			}
		}
	}

	overrides, overrideErrs, err := e.overrideStage(ctx, snap, week, binaryEntries, graph, levels)
	if err != nil {
		return nil, fmt.Errorf("compute %s: override: %w", week, err)
	}
	for _, err := range overrideErrs {
		ex.add(err, StageOverride)
	}

	// Barrier: every calculator has finished.
	excluded := ex.users()
	entries := make([]models.CommissionEntry, 0, len(direct)+len(binaryEntries)+len(overrides))
	for _, group := range [][]models.CommissionEntry{direct, binaryEntries, overrides} {
		for _, entry := range group {
			if excluded[entry.UserID] || (entry.SourceUserID != "" && excluded[entry.SourceUserID]) {
				continue
			}
			entries = append(entries, entry)
		}
	}
	sortEntries(entries)
	calc.Scale = ApplyCaps(snap, calc.Sales.SV, entries)
	calc.Entries = entries

	for _, v := range users {
		if excluded[v.UserID] {
			calc.Volumes = append(calc.Volumes, ledger.freeze(v)...)
			continue
		}
		if v.isEmpty() {
			continue
		}
		paid := v.WeakTotal()
		if res, ok := binaries[v.UserID]; ok {
			paid = res.PaidVolume
		}
		calc.Volumes = append(calc.Volumes, ledger.close(v, paid)...)
	}
	for _, v := range users {
		if v.Left.Posted.IsPositive() || v.Right.Posted.IsPositive() {
			calc.NodeVolumes = append(calc.NodeVolumes, NodeVolume{UserID: v.UserID, Left: v.Left.Posted, Right: v.Right.Posted})
		}
	}

	ids := make([]string, 0, len(ranks))
	for id := range ranks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := ranks[id]
		if excluded[id] && r.Changed {
			r.Level, r.Changed = r.PreviousLevel, false
			r.Name = ""
			if def := snap.Rank(r.Level); def != nil {
				r.Name = def.Name
			}
		}
		calc.Ranks = append(calc.Ranks, r)
	}

	calc.Settlements = BuildSettlements(week, entries)
	calc.Commitment = Commitment(week, calc.Settlements)
	calc.Exclusions = ex.list()

	for _, x := range calc.Exclusions {
		log.WithFields(logrus.Fields{"user_id": x.UserID, "stage": x.Stage, "reason": x.Reason}).
			Warn("user excluded from settlement run")
		e.metrics.RecordExclusion(x.Stage)
	}
	e.recordScale(calc)
	return calc, nil
}

func (e *Engine) directStage(ctx context.Context, snap *Snapshot, week Week, txs []models.SalesTransaction,
	graph *sponsorGraph, unlock map[string]int) ([]models.CommissionEntry, decimal.Decimal, []error, error) {
	results := make([][]models.CommissionEntry, len(txs))
	forfeits := make([]decimal.Decimal, len(txs))
	errs := make([]error, len(txs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range txs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sponsors, err := graph.chain(txs[i].UserID, MaxTiers)
			errs[i] = err
			results[i], forfeits[i] = DirectEntries(snap, week, txs[i], sponsors, unlock)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, zero, nil, err
	}

	var out []models.CommissionEntry
	for _, r := range results {
		out = append(out, r...)
	}
	return out, sumDecimals(forfeits...), compact(errs), nil
}

func (e *Engine) binaryStage(ctx context.Context, snap *Snapshot, users []*UserVolume,
	levels map[string]int, excluded map[string]bool) (map[string]BinaryResult, error) {
	results := make([]BinaryResult, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range users {
		if excluded[users[i].UserID] {
			continue
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = ComputeBinary(snap, users[i], levels[users[i].UserID])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]BinaryResult, len(users))
	for i, v := range users {
		if !excluded[v.UserID] {
			out[v.UserID] = results[i]
		}
	}
	return out, nil
}

func (e *Engine) overrideStage(ctx context.Context, snap *Snapshot, week Week, binaries []models.CommissionEntry,
	graph *sponsorGraph, levels map[string]int) ([]models.CommissionEntry, []error, error) {
	results := make([][]models.CommissionEntry, len(binaries))
	errs := make([]error, len(binaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range binaries {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			uplines, err := graph.chain(binaries[i].UserID, MaxTiers)
			errs[i] = err
			results[i] = OverrideEntries(snap, week, binaries[i], uplines, levels)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var out []models.CommissionEntry
	for _, r := range results {
		out = append(out, r...)
	}
	return out, compact(errs), nil
}

func (e *Engine) recordScale(calc *Calculation) {
	factors := map[string]float64{"global": calc.Scale.GlobalFactor.InexactFloat64()}
	payouts := map[string]float64{"total": calc.Scale.Total.InexactFloat64()}
	for _, t := range models.CommissionTypes {
		factors[string(t)] = calc.Scale.PoolFactors[t].InexactFloat64()
		payouts[string(t)] = calc.Scale.Scaled[t].InexactFloat64()
	}
	e.metrics.RecordScale(calc.Sales.SV.InexactFloat64(), factors, payouts)
}

func (e *Engine) notify(ctx context.Context, kind string, calc *Calculation) {
	e.notifier.Notify(ctx, SettlementEvent{
		Type:            kind,
		WeekStart:       calc.Week.Key(),
		RunID:           calc.RunID,
		Commitment:      calc.Commitment,
		Total:           FormatMoney(calc.Scale.Total),
		SettlementCount: len(calc.Settlements),
		ExclusionCount:  len(calc.Exclusions),
		At:              e.now().UTC(),
	})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrWeekAlreadyProcessing):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func compact(errs []error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

var typeOrder = map[models.CommissionType]int{
	models.CommissionDirect:   0,
	models.CommissionBinary:   1,
	models.CommissionOverride: 2,
}

// sortEntries puts entries in their canonical order so repeated runs over
// the same inputs produce identical output.
func sortEntries(entries []models.CommissionEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Type != b.Type {
			return typeOrder[a.Type] < typeOrder[b.Type]
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.SourceRef != b.SourceRef {
			return a.SourceRef < b.SourceRef
		}
		return a.Tier < b.Tier
	})
}

// exclusions keeps the first failure reported for each user.
type exclusions struct {
	byUser map[string]Exclusion
}

func newExclusions() *exclusions {
	return &exclusions{byUser: make(map[string]Exclusion)}
}

func (x *exclusions) add(err error, stage string) {
	var ce *ComputationError
	if !errors.As(err, &ce) {
		return
	}
	if _, seen := x.byUser[ce.UserID]; seen {
		return
	}
	if ce.Stage != "" {
		stage = ce.Stage
	}
	x.byUser[ce.UserID] = Exclusion{UserID: ce.UserID, Stage: stage, Reason: ce.Err.Error()}
}

func (x *exclusions) users() map[string]bool {
	out := make(map[string]bool, len(x.byUser))
	for id := range x.byUser {
		out[id] = true
	}
	return out
}

func (x *exclusions) list() []Exclusion {
	out := make([]Exclusion, 0, len(x.byUser))
	for _, e := range x.byUser {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
