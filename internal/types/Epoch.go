package types

import "time"

// Epoch is a discrete time window produced by the external epoch clock.
type Epoch struct {
	ID        uint64    `json:"id"`
	StartTime time.Time `json:"start_time"`
}

// EpochSchedule resolves the start time of any epoch, past or future.
type EpochSchedule interface {
	EpochStartTime(id uint64) time.Time
}

// LpDenomValidator decides whether a denom was minted by the trusted pool collaborator.
type LpDenomValidator interface {
	ValidateLpDenom(denom string) error
}

// Env is the execution context of a single state transition.
type Env struct {
	Epoch    Epoch
	Now      time.Time
	Params   Params
	Schedule EpochSchedule
	LpDenoms LpDenomValidator
}

// NextEpoch is the epoch every weight write targets.
func (e Env) NextEpoch() uint64 {
	return e.Epoch.ID + 1
}
