package commission

import (
	"errors"
	"sort"
	"time"

	"syntarex/internal/models"

	"github.com/shopspring/decimal"
)

// LegState is one leg of a user's weekly volume.
// Total = CarryIn + Posted + Ghost.
type LegState struct {
	Posted  decimal.Decimal
	Ghost   decimal.Decimal
	CarryIn decimal.Decimal
	Total   decimal.Decimal
}

// UserVolume is a user's binary position for the week.
type UserVolume struct {
	UserID        string
	Left          LegState
	Right         LegState
	InactiveWeeks int
	// Matched weak-leg volume of prior weeks in the averaging window.
	priorWeak []decimal.Decimal
}

func (v *UserVolume) leg(l models.Leg) *LegState {
	if l == models.LegLeft {
		return &v.Left
	}
	return &v.Right
}

// WeakLeg is the leg with the smaller total; left wins ties.
func (v *UserVolume) WeakLeg() models.Leg {
	if v.Right.Total.LessThan(v.Left.Total) {
		return models.LegRight
	}
	return models.LegLeft
}

func (v *UserVolume) WeakTotal() decimal.Decimal {
	return v.leg(v.WeakLeg()).Total
}

func (v *UserVolume) isEmpty() bool {
	return v.Left.Total.IsZero() && v.Right.Total.IsZero()
}

// averageWeak is the mean matched volume over this week and the prior
// weeks that have ledger rows.
func (v *UserVolume) averageWeak() decimal.Decimal {
	total := v.WeakTotal()
	for _, w := range v.priorWeak {
		total = total.Add(w)
	}
	return total.Div(decimal.NewFromInt(int64(len(v.priorWeak) + 1)))
}

// volumeLedger builds the week's leg totals before commissions are computed
// and closes them into carry-forward rows afterwards.
type volumeLedger struct {
	snap   *Snapshot
	week   Week
	users  map[string]*UserVolume
	errors map[string]*ComputationError
}

func newVolumeLedger(snap *Snapshot, week Week) *volumeLedger {
	return &volumeLedger{
		snap:   snap,
		week:   week,
		users:  make(map[string]*UserVolume),
		errors: make(map[string]*ComputationError),
	}
}

func (l *volumeLedger) user(id string) *UserVolume {
	v, ok := l.users[id]
	if !ok {
		v = &UserVolume{UserID: id}
		l.users[id] = v
	}
	return v
}

func (l *volumeLedger) fail(err error) {
	var ce *ComputationError
	if !errors.As(err, &ce) {
		return
	}
	if _, seen := l.errors[ce.UserID]; !seen {
		l.errors[ce.UserID] = &ComputationError{UserID: ce.UserID, Stage: StageLedger, Err: ce.Err}
	}
}

// buildLedger posts every eligible sale up the placement tree, adds ghost
// credits and carry-in, and loads the averaging history. carry holds the
// newest finalized row per (user, leg); history the finalized rows of the
// averaging window.
func buildLedger(snap *Snapshot, week Week, sales SalesSummary, tree *placementTree,
	credits []models.GhostVolumeCredit, carry, history []models.BinaryVolumeEntry) *volumeLedger {
	l := newVolumeLedger(snap, week)

	userIDs := make([]string, 0, len(tree.corrupt))
	for id := range tree.corrupt {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)
	for _, id := range userIDs {
		l.fail(&ComputationError{UserID: id, Err: tree.corrupt[id]})
	}

	for _, tx := range sales.Eligible {
		links, err := tree.uplines(tx.UserID)
		if err != nil {
			l.fail(err)
		}
		for _, link := range links {
			leg := l.user(link.parent).leg(link.leg)
			leg.Posted = leg.Posted.Add(tx.Amount)
		}
	}

	for _, c := range credits {
		if !c.Leg.Valid() {
			l.fail(&ComputationError{UserID: c.UserID, Err: errors.New("ghost credit on unknown leg " + string(c.Leg))})
			continue
		}
		amount := ghostContribution(c, week, snap.GhostWindow, snap.GhostExpiryPolicy)
		if amount.IsZero() {
			continue
		}
		leg := l.user(c.UserID).leg(c.Leg)
		leg.Ghost = leg.Ghost.Add(amount)
	}

	prev := week.Prev()
	for _, e := range carry {
		start := WeekOf(e.WeekStart).Start
		if !start.Before(week.Start) {
			continue
		}
		v := l.user(e.UserID)
		v.leg(e.Leg).CarryIn = e.CarryOut
		// Weeks that were never settled count as inactive.
		streak := e.InactiveWeeks + int(prev.Start.Sub(start)/weekLength)
		if streak > v.InactiveWeeks {
			v.InactiveWeeks = streak
		}
	}

	weakByWeek := make(map[string]map[time.Time]decimal.Decimal)
	for _, e := range history {
		start := WeekOf(e.WeekStart).Start
		if !start.Before(week.Start) {
			continue
		}
		if weakByWeek[e.UserID] == nil {
			weakByWeek[e.UserID] = make(map[time.Time]decimal.Decimal)
		}
		weakByWeek[e.UserID][start] = e.MatchedVolume
	}

	window := week.Start.AddDate(0, 0, -7*(snap.CarryAverageWeeks-1))
	for id, v := range l.users {
		for start, matched := range weakByWeek[id] {
			if !start.Before(window) {
				v.priorWeak = append(v.priorWeak, matched)
			}
		}
		// InactiveWeeks holds the streak up to last week until here.
		if v.Left.Posted.IsPositive() || v.Right.Posted.IsPositive() || sales.PerUser[id].IsPositive() {
			v.InactiveWeeks = 0
		} else {
			v.InactiveWeeks++
		}
		for _, leg := range []*LegState{&v.Left, &v.Right} {
			leg.Total = leg.CarryIn.Add(leg.Posted).Add(leg.Ghost)
		}
	}
	return l
}

// ghostContribution is the part of a credit counted in the week.
//
// prorate: the credit counts in proportion to the time it is active inside
// the week, so a credit expiring mid-week contributes only its pre-expiry part.
// all_or_nothing: the credit counts in full when it is active through the
// end of the week, and not at all otherwise.
func ghostContribution(c models.GhostVolumeCredit, week Week, window time.Duration, policy string) decimal.Decimal {
	expires := c.ExpiresAt
	if expires.IsZero() {
		expires = c.StartsAt.Add(window)
	}
	if !c.Amount.IsPositive() || !expires.After(c.StartsAt) {
		return zero
	}

	if policy == models.GhostExpiryAllOrNothing {
		if c.StartsAt.Before(week.End) && !expires.Before(week.End) {
			return c.Amount
		}
		return zero
	}

	from := c.StartsAt
	if from.Before(week.Start) {
		from = week.Start
	}
	to := expires
	if to.After(week.End) {
		to = week.End
	}
	if !to.After(from) {
		return zero
	}
	active := decimal.NewFromInt(int64(to.Sub(from)))
	return floorMoney(c.Amount.Mul(active).Div(decimal.NewFromInt(int64(weekLength))))
}

// sortedUsers returns the ledger users in id order.
func (l *volumeLedger) sortedUsers() []*UserVolume {
	out := make([]*UserVolume, 0, len(l.users))
	for _, v := range l.users {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// close turns the week's totals into ledger rows. paidVolume is the part of
// the matched weak-leg volume actually paid; matched volume left unpaid by a
// cap stays on both legs. Ghost volume is never carried.
//
// A week is active when new volume is posted to either leg or the user buys
// personally; carry and ghost credits alone do not count. Carry is flushed
// once the user has been inactive for InactivityWeeks consecutive weeks.
func (l *volumeLedger) close(v *UserVolume, paidVolume decimal.Decimal) []models.BinaryVolumeEntry {
	matched := v.WeakTotal()
	if paidVolume.GreaterThan(matched) {
		paidVolume = matched
	}
	unpaid := matched.Sub(paidVolume)

	// No cap until the user has matched volume to average over.
	var carryCap decimal.Decimal
	avg := v.averageWeak()
	capped := l.snap.CarryMultiplier.IsPositive() && avg.IsPositive()
	if capped {
		carryCap = floorMoney(l.snap.CarryMultiplier.Mul(avg))
	}
	flush := v.InactiveWeeks >= l.snap.InactivityWeeks

	rows := make([]models.BinaryVolumeEntry, 0, 2)
	for _, legName := range []models.Leg{models.LegLeft, models.LegRight} {
		leg := v.leg(legName)
		carry := leg.Total.Sub(matched).Add(unpaid)
		carry = minDecimal(carry, leg.Total.Sub(leg.Ghost))
		if carry.IsNegative() {
			carry = zero
		}

		row := l.row(v, legName, matched, paidVolume)
		if capped && carry.GreaterThan(carryCap) {
			row.DiscardedVolume = carry.Sub(carryCap)
			carry = carryCap
		}
		if flush {
			row.FlushedVolume = carry
			carry = zero
		}
		row.CarryOut = carry
		rows = append(rows, row)
	}
	return rows
}

// freeze writes rows for a user excluded from the run: nothing is matched or
// paid, and the real volume is carried unchanged for the next run.
func (l *volumeLedger) freeze(v *UserVolume) []models.BinaryVolumeEntry {
	rows := make([]models.BinaryVolumeEntry, 0, 2)
	for _, legName := range []models.Leg{models.LegLeft, models.LegRight} {
		leg := v.leg(legName)
		row := l.row(v, legName, zero, zero)
		row.CarryOut = leg.CarryIn.Add(leg.Posted)
		rows = append(rows, row)
	}
	return rows
}

func (l *volumeLedger) row(v *UserVolume, legName models.Leg, matched, paid decimal.Decimal) models.BinaryVolumeEntry {
	leg := v.leg(legName)
	return models.BinaryVolumeEntry{
		UserID:          v.UserID,
		Leg:             legName,
		WeekStart:       l.week.Start,
		PostedVolume:    leg.Posted,
		GhostVolume:     leg.Ghost,
		CarryIn:         leg.CarryIn,
		Total:           leg.Total,
		MatchedVolume:   matched,
		PaidVolume:      paid,
		CarryOut:        zero,
		DiscardedVolume: zero,
		FlushedVolume:   zero,
		InactiveWeeks:   v.InactiveWeeks,
	}
}
