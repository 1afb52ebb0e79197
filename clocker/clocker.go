// Package clocker delivers wall-clock ticks aligned to interval
// boundaries and defines the swappable time source that the polling
// schedulers use.
package clocker

import (
	"sync"
	"time"
)

// NowFunc reports the current wall-clock time. Schedulers hold one of
// these instead of calling time.Now directly so that tests can move
// the clock by hand.
type NowFunc func() time.Time

// Ticker delivers ticks on C at instants aligned to the interval. A
// tick that nobody is receiving is dropped rather than queued, so a
// slow consumer never builds up a backlog of stale ticks.
type Ticker struct {
	C    <-chan time.Time
	stop chan struct{}
	once sync.Once
}

// NewTicker returns a running ticker with the given interval.
func NewTicker(interval time.Duration) *Ticker {
	c := make(chan time.Time)
	t := &Ticker{
		C:    c,
		stop: make(chan struct{}),
	}
	go t.run(interval, c)
	return t
}

func (t *Ticker) run(interval time.Duration, c chan<- time.Time) {
	timer := time.NewTimer(untilNextBoundary(interval))
	defer timer.Stop()

	for {
		select {
		case <-t.stop:
			return
		case now := <-timer.C:
			select {
			case c <- now:
			default:
			}
			timer.Reset(untilNextBoundary(interval))
		}
	}
}

// Stop ends tick delivery. It is safe to call more than once.
func (t *Ticker) Stop() {
	t.once.Do(func() { close(t.stop) })
}

// Tick is shorthand for NewTicker(interval).C, for callers that never
// need to stop the ticker.
func Tick(interval time.Duration) <-chan time.Time {
	return NewTicker(interval).C
}

// untilNextBoundary computes the wait until the next instant aligned
// to the interval. Rounding may land on a boundary that has already
// passed, in which case we step one interval forward.
func untilNextBoundary(interval time.Duration) time.Duration {
	now := time.Now()
	next := now.Round(interval)
	if !next.After(now) {
		next = next.Add(interval)
	}
	return next.Sub(now)
}
