package commission

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidWeek           = errors.New("invalid week start")
	ErrConfigMissing         = errors.New("commission settings missing")
	ErrInvalidConfig         = errors.New("invalid commission settings")
	ErrWeekAlreadyProcessing = errors.New("week already processing")
	ErrWeekFinalized         = errors.New("week already finalized")
	ErrWeekNotFound          = errors.New("week not found")
	ErrWeekNotFinalized      = errors.New("week not finalized")
	ErrPreviousWeekPending   = errors.New("earlier week not finalized")
	ErrLaterWeekFinalized    = errors.New("later week already finalized")
	ErrFinalizationFailed    = errors.New("finalization failed")
	ErrCycleDetected         = errors.New("cycle detected")
	ErrMalformedNode         = errors.New("malformed node")
	ErrUserNotSettled        = errors.New("user has no settlement for week")
	ErrCommitmentMismatch    = errors.New("settlements do not match commitment")
)

// InvalidWeekError reports a week key that is not a settlement week boundary.
type InvalidWeekError struct {
	Value  string
	Reason string
}

func (e *InvalidWeekError) Error() string {
	return fmt.Sprintf("invalid week start %q: %s", e.Value, e.Reason)
}

func (e *InvalidWeekError) Is(target error) bool {
	return target == ErrInvalidWeek
}

// Computation stages reported on exclusions.
const (
	StageLedger   = "ledger"
	StageRank     = "rank"
	StageDirect   = "direct"
	StageBinary   = "binary"
	StageOverride = "override"
)

// ComputationError isolates a failure to one user.
type ComputationError struct {
	UserID string
	Stage  string
	Err    error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: user %s: %v", e.Stage, e.UserID, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}
