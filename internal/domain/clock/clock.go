// Package clock abstracts wall time and recurring ticks so the sweep and the
// month-boundary check can be driven manually in tests.
package clock

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
)

// Clock provides the current time and recurring tickers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real returns a Clock backed by wall time. All times are UTC.
func Real() Clock { return realClock{q: quartz.NewReal()} }

type realClock struct{ q quartz.Clock }

func (r realClock) Now() time.Time { return r.q.Now().UTC() }

func (r realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: r.q.NewTicker(d)}
}

type realTicker struct{ t *quartz.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Fake is a manually advanced Clock. Unlike quartz.Mock it needs no
// testing.TB, so the simulator can drive it. Tickers fire during Advance,
// once per elapsed period, without blocking: a tick is dropped if the
// previous one has not been received, like time.Ticker.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t without firing tickers.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC()
}

// NewTicker registers a ticker that fires on Advance. Like time.NewTicker
// it panics if d is not positive.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		period: d,
		next:   f.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves the clock forward by d and fires due tickers in time order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	type fire struct {
		at time.Time
		t  *fakeTicker
	}
	var due []fire
	for _, t := range f.tickers {
		if t.stopped.Load() {
			continue
		}
		for !t.next.After(target) {
			due = append(due, fire{at: t.next, t: t})
			t.next = t.next.Add(t.period)
		}
	}
	f.now = target
	f.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, d := range due {
		select {
		case d.t.ch <- d.at:
		default:
		}
	}
}

type fakeTicker struct {
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

// Stop prevents further ticks. It is safe to call more than once.
func (t *fakeTicker) Stop() { t.stopped.Store(true) }
