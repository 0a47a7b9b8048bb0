package engine

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/plcsim/internal/iotable"
	"github.com/roach88/plcsim/internal/ladder"
	"github.com/roach88/plcsim/internal/program"
	"github.com/roach88/plcsim/internal/testutil"
)

// recorder collects observer notifications.
type recorder struct {
	mu       sync.Mutex
	statuses []StatusEvent
	faults   []FaultEvent
	scans    []ScanResult
}

func (r *recorder) StatusChanged(ev StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, ev)
}

func (r *recorder) FaultRecorded(ev FaultEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, ev)
}

func (r *recorder) ScanCompleted(res ScanResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans = append(r.scans, res)
}

func (r *recorder) Statuses() []StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatusEvent(nil), r.statuses...)
}

func (r *recorder) Faults() []FaultEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FaultEvent(nil), r.faults...)
}

func (r *recorder) ScanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scans)
}

type rig struct {
	eng   *Engine
	ticks *testutil.ManualTickSource
	obs   *recorder
}

// newRig builds an engine over the default training rig with manual
// tickers, a step clock and a seeded random source.
func newRig(t *testing.T, opts ...Option) *rig {
	t.Helper()
	p := program.Default()
	return newRigWith(t, p.Points, p.Rungs, opts...)
}

func newRigWith(t *testing.T, points []iotable.Def, rungs []ladder.Rung, opts ...Option) *rig {
	t.Helper()
	p := &program.Program{Name: "test", Points: points, Rungs: rungs}
	tbl, err := p.NewTable()
	require.NoError(t, err)

	r := &rig{ticks: testutil.NewManualTickSource(), obs: &recorder{}}
	base := []Option{
		WithTickerFactory(func(d time.Duration) Ticker { return r.ticks.NewTicker(d) }),
		WithNow(testutil.NewStepClock(time.Second).Now),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithSessionIDGenerator(NewFixedGenerator("session-1")),
		WithObserver(r.obs),
	}
	r.eng, err = New(tbl, rungs, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(r.eng.Close)
	return r
}

func (r *rig) set(t *testing.T, tag string, v any) {
	t.Helper()
	require.NoError(t, r.eng.SetValue(tag, v))
}

func (r *rig) digital(t *testing.T, tag string) bool {
	t.Helper()
	p, err := r.eng.Get(tag)
	require.NoError(t, err)
	return p.Digital
}

// tickScan delivers one scan tick and waits for the scan to finish.
func (r *rig) tickScan(t *testing.T) {
	t.Helper()
	before := r.eng.ScanCount()
	require.Equal(t, 1, r.ticks.Tick(), "exactly one active ticker")
	require.Eventually(t, func() bool { return r.eng.ScanCount() == before+1 },
		time.Second, time.Millisecond)
}
