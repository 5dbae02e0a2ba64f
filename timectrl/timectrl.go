package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock reports the current observation epoch.
type Clock interface {
	Now() time.Time
}

// Mode describes how the TimeController advances observation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated steps by Tick as fast as listeners return.
	Accelerated
)

// TimeController steps through observation epochs and notifies registered
// listeners at each one. Listeners run on the controller goroutine, in
// registration order, so a slow listener delays the next epoch.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current epoch. Implements Clock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves the current epoch without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked at every epoch.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Start runs the controller in a separate goroutine. Listeners see StartTime
// and then every Tick up to and including StartTime+duration; a zero duration
// runs until ctx is cancelled. The returned channel is closed when the
// controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		listeners := append([]func(time.Time){}, tc.listeners...)
		tc.mu.Unlock()

		notify := func(t time.Time) {
			for _, fn := range listeners {
				fn(t)
			}
		}

		if ctx.Err() != nil {
			return
		}
		notify(simTime)
		if tc.Tick <= 0 {
			return
		}

		var ticks <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			ticks = ticker.C
		}

		for elapsed := tc.Tick; duration <= 0 || elapsed <= duration; elapsed += tc.Tick {
			if ticks != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticks:
				}
			} else if ctx.Err() != nil {
				return
			}

			simTime = simTime.Add(tc.Tick)
			tc.SetTime(simTime)
			notify(simTime)
		}
	}()
	return done
}

// Epochs lists the instants a controller started with the same arguments
// would visit for a bounded duration.
func Epochs(start time.Time, tick, duration time.Duration) []time.Time {
	out := []time.Time{start}
	if tick <= 0 || duration <= 0 {
		return out
	}
	for elapsed := tick; elapsed <= duration; elapsed += tick {
		out = append(out, start.Add(elapsed))
	}
	return out
}
