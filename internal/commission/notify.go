package commission

import (
	"context"
	"time"
)

// Event types published after a run.
const (
	EventCalculated = "calculated"
	EventFinalized  = "finalized"
	EventFailed     = "failed"
)

// SettlementEvent tells the admin console and claim infrastructure what a
// run produced.
type SettlementEvent struct {
	Type            string    `json:"type"`
	WeekStart       string    `json:"weekStart"`
	RunID           string    `json:"runId"`
	Commitment      string    `json:"commitment,omitempty"`
	Total           string    `json:"total,omitempty"`
	SettlementCount int       `json:"settlementCount"`
	ExclusionCount  int       `json:"exclusionCount"`
	Error           string    `json:"error,omitempty"`
	At              time.Time `json:"at"`
}

// Notifier delivers settlement events. Delivery is best effort and never
// affects the run.
type Notifier interface {
	Notify(ctx context.Context, event SettlementEvent)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, SettlementEvent) {}

// MultiNotifier fans an event out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event SettlementEvent) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}
