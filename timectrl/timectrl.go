package timectrl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTick is returned for a non-positive tick.
	ErrInvalidTick = errors.New("tick must be positive")
	// ErrInvalidDuration is returned for a negative duration.
	ErrInvalidDuration = errors.New("duration must not be negative")
)

// SimClock exposes the instants a simulation samples. The engine depends on
// this rather than on TimeController.
type SimClock interface {
	// Steps returns the number of sampled instants.
	Steps() int
	// TimeAt returns the i-th sampled instant.
	TimeAt(i int) time.Time
	// Each walks the instants in order.
	Each(ctx context.Context, fn func(i int, simTime time.Time) error) error
}

var _ SimClock = (*TimeController)(nil)

// TimeController walks simulation time from StartTime in increments of Tick
// over the closed interval [StartTime, StartTime+Duration]. The end instant
// is sampled when it falls exactly on a tick.
type TimeController struct {
	StartTime time.Time
	Tick      time.Duration
	Duration  time.Duration

	steps int
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick, duration time.Duration) (*TimeController, error) {
	if tick <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTick, tick)
	}
	if duration < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDuration, duration)
	}
	return &TimeController{
		StartTime: start,
		Tick:      tick,
		Duration:  duration,
		steps:     int(duration/tick) + 1,
	}, nil
}

// Steps returns floor(Duration/Tick) + 1. Implements SimClock.
func (tc *TimeController) Steps() int {
	return tc.steps
}

// TimeAt returns StartTime + i*Tick. Implements SimClock.
func (tc *TimeController) TimeAt(i int) time.Time {
	return tc.StartTime.Add(time.Duration(i) * tc.Tick)
}

// End returns the inclusive end of the interval.
func (tc *TimeController) End() time.Time {
	return tc.StartTime.Add(tc.Duration)
}

// Each invokes fn for every sampled instant in order, stopping at the first
// error or when ctx is done. Implements SimClock.
func (tc *TimeController) Each(ctx context.Context, fn func(i int, simTime time.Time) error) error {
	for i := 0; i < tc.steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(i, tc.TimeAt(i)); err != nil {
			return err
		}
	}
	return nil
}
