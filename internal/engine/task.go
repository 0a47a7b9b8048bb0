package engine

import (
	"sync"
	"time"
)

// Ticker is the subset of time.Ticker the periodic tasks need.
// Tests substitute manual tickers (see testutil.ManualTickSource).
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker with the given period.
type TickerFactory func(period time.Duration) Ticker

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(period time.Duration) Ticker {
	return realTicker{time.NewTicker(period)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()              { r.t.Stop() }

// periodicTask runs fn on every tick until stopped.
//
// Contract:
//   - fn runs on the task goroutine, one call at a time
//   - Stop is idempotent and safe to call from any goroutine except fn itself
//   - once Stop returns, fn is not running and will never run again
type periodicTask struct {
	ticker   Ticker
	done     chan struct{} // closed by Stop
	finished chan struct{} // closed when the loop goroutine exits
	stopOnce sync.Once
}

func startTask(newTicker TickerFactory, period time.Duration, fn func()) *periodicTask {
	t := &periodicTask{
		ticker:   newTicker(period),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go t.loop(fn)
	return t
}

func (t *periodicTask) loop(fn func()) {
	defer close(t.finished)
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C():
			// A tick and Stop may be ready together; Stop wins.
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		}
	}
}

// Stop cancels the task and waits for the loop goroutine to exit.
func (t *periodicTask) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() {
		close(t.done)
		t.ticker.Stop()
	})
	<-t.finished
}
