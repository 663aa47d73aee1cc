// Package epoch provides the external epoch clock the engine consumes.
package epoch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/elys-network/lpfarm/internal/types"
)

// Clock produces monotonically increasing epochs. The engine never derives epochs itself.
type Clock interface {
	CurrentEpoch(ctx context.Context) (types.Epoch, error)
	EpochStartTime(id uint64) time.Time
	Now() time.Time
}

// Schedule maps fixed-length epochs onto wall-clock time. Epoch 1 starts at Genesis;
// before Genesis the current epoch is 0.
type Schedule struct {
	Genesis  time.Time
	Duration time.Duration
}

// NewSchedule validates and returns a schedule.
func NewSchedule(genesis time.Time, duration time.Duration) (Schedule, error) {
	if duration <= 0 {
		return Schedule{}, errors.New("epoch duration must be positive")
	}
	return Schedule{Genesis: genesis.UTC(), Duration: duration}, nil
}

// EpochAt returns the epoch containing t.
func (s Schedule) EpochAt(t time.Time) types.Epoch {
	if t.Before(s.Genesis) {
		return types.Epoch{ID: 0, StartTime: s.Genesis}
	}
	id := uint64(t.Sub(s.Genesis)/s.Duration) + 1
	return types.Epoch{ID: id, StartTime: s.EpochStartTime(id)}
}

// EpochStartTime returns when epoch id starts.
func (s Schedule) EpochStartTime(id uint64) time.Time {
	if id == 0 {
		return s.Genesis
	}
	return s.Genesis.Add(time.Duration(id-1) * s.Duration)
}

// SystemClock follows the wall clock.
type SystemClock struct {
	Schedule
}

// NewSystemClock returns a clock following the wall clock on the given schedule.
func NewSystemClock(schedule Schedule) *SystemClock {
	return &SystemClock{Schedule: schedule}
}

func (c *SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func (c *SystemClock) CurrentEpoch(ctx context.Context) (types.Epoch, error) {
	if err := ctx.Err(); err != nil {
		return types.Epoch{}, err
	}
	return c.EpochAt(c.Now()), nil
}

// ManualClock only moves when told to. Used by tests and replays.
type ManualClock struct {
	Schedule

	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at the start of epoch on the given schedule.
func NewManualClock(schedule Schedule, epoch uint64) *ManualClock {
	return &ManualClock{Schedule: schedule, now: schedule.EpochStartTime(epoch)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) CurrentEpoch(ctx context.Context) (types.Epoch, error) {
	if err := ctx.Err(); err != nil {
		return types.Epoch{}, err
	}
	return c.EpochAt(c.Now()), nil
}

// Set moves the clock to t. Moving backwards is ignored.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// AdvanceEpochs moves the clock to the start of the epoch n epochs after the current one.
func (c *ManualClock) AdvanceEpochs(n uint64) {
	current := c.EpochAt(c.Now())
	c.Set(c.EpochStartTime(current.ID + n))
}
