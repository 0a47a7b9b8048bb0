package testutil

import (
	"sync"
	"time"
)

// ManualTickSource hands out tickers that only fire when the test calls Tick.
//
// Its NewTicker method matches engine.TickerFactory once wrapped:
//
//	src := testutil.NewManualTickSource()
//	eng, _ := engine.New(tbl, rungs, engine.WithTickerFactory(
//	    func(d time.Duration) engine.Ticker { return src.NewTicker(d) }))
//
// Thread-safety: All methods are safe for concurrent use.
type ManualTickSource struct {
	mu      sync.Mutex
	tickers []*ManualTicker
	now     time.Time
}

// NewManualTickSource creates a source whose ticks start at Epoch.
func NewManualTickSource() *ManualTickSource {
	return &ManualTickSource{now: Epoch}
}

// NewTicker registers a new manual ticker.
func (s *ManualTickSource) NewTicker(period time.Duration) *ManualTicker {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &ManualTicker{
		Period:  period,
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
	s.tickers = append(s.tickers, t)
	return t
}

// Created returns how many tickers were ever created.
func (s *ManualTickSource) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickers)
}

// Active returns the tickers that have not been stopped.
func (s *ManualTickSource) Active() []*ManualTicker {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ManualTicker
	for _, t := range s.tickers {
		if !t.Stopped() {
			out = append(out, t)
		}
	}
	return out
}

// Tick delivers one tick to every active ticker and returns how many
// received it. Each delivery blocks until the consumer takes the tick or
// stops the ticker.
func (s *ManualTickSource) Tick() int {
	s.mu.Lock()
	s.now = s.now.Add(time.Second)
	now := s.now
	s.mu.Unlock()

	n := 0
	for _, t := range s.Active() {
		if t.deliver(now) {
			n++
		}
	}
	return n
}

// ManualTicker is a ticker driven by ManualTickSource.
type ManualTicker struct {
	Period   time.Duration
	ch       chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
}

// C returns the tick channel.
func (t *ManualTicker) C() <-chan time.Time { return t.ch }

// Stop stops the ticker. Idempotent.
func (t *ManualTicker) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}

// Stopped reports whether Stop was called.
func (t *ManualTicker) Stopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// Tick delivers one tick to this ticker only.
func (t *ManualTicker) Tick() bool {
	return t.deliver(time.Now())
}

func (t *ManualTicker) deliver(now time.Time) bool {
	select {
	case <-t.stopped:
		return false
	default:
	}
	select {
	case t.ch <- now:
		return true
	case <-t.stopped:
		return false
	}
}
