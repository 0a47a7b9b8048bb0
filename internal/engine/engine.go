package engine

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roach88/plcsim/internal/iotable"
	"github.com/roach88/plcsim/internal/ladder"
)

// DefaultScanTime is the default scan period.
const DefaultScanTime = 10 * time.Millisecond

// RungState is the externally visible state of one rung.
type RungState struct {
	Rung   ladder.Rung
	Active bool // result of the last scan

	// Contacts holds the truth of each condition against the current I/O
	// table, in condition order, for per-contact display. Unknown tags
	// read false.
	Contacts []bool

	// Broken rungs reference tags that do not exist (or drive a point that
	// is not a digital output). They are never evaluated and stay inactive.
	Broken   bool
	Problems []string
}

// ScanResult summarises one scan.
type ScanResult struct {
	Seq         int64
	At          time.Time
	Active      []bool   // per rung, in program order
	ActiveRungs int      // number of active rungs
	FaultCount  int      // number of faulted I/O points after the scan
	Latched     []string // outputs that changed false -> true in this scan
	Errors      []error  // contained *RungError values
}

type rungSlot struct {
	rung     ladder.Rung
	active   bool
	broken   bool
	problems []string
}

// Engine is one PLC simulation session.
//
// Thread-safety model:
//   - every exported method is safe from any goroutine
//   - scan and fault-injection callbacks run on task goroutines and are
//     serialised with commands by mu
//   - Start/Stop/StartAutoInjection/StopAutoInjection are additionally
//     serialised by ctl so that at most one task of each kind exists
//
// INVARIANTS:
//   - the rung set and the I/O point set never change after New
//   - rung outputs are only ever set to true by a scan
type Engine struct {
	id        string
	table     *iotable.Table
	rungs     []rungSlot
	clock     *Clock
	logger    *slog.Logger
	now       func() time.Time
	newTicker TickerFactory
	scanTime  time.Duration
	rng       *rand.Rand
	history   *faultHistory
	observers []Observer

	historyLimit int
	resetOnStop  bool
	sessionGen   SessionIDGenerator

	// eval is ladder.Evaluate; tests replace it to exercise failure paths.
	eval func(iotable.View, ladder.Rung) (bool, error)

	ctl      sync.Mutex // control operations
	mu       sync.Mutex // event loop
	notifyMu sync.Mutex // observer dispatch

	status      Status
	scanTask    *periodicTask
	faultTask   *periodicTask
	faultPeriod time.Duration
	faultFilter SeverityFilter
	scanCount   int64
	last        ScanResult
}

// Option configures an Engine.
type Option func(*Engine)

// WithScanTime sets the scan period. Default: DefaultScanTime.
func WithScanTime(d time.Duration) Option {
	return func(e *Engine) { e.scanTime = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the logical clock, e.g. to resume a journaled session.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithNow sets the wall-clock source used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTickerFactory sets how periodic tasks obtain tickers.
// Default: NewRealTicker.
func WithTickerFactory(f TickerFactory) Option {
	return func(e *Engine) { e.newTicker = f }
}

// WithRand sets the random source used to pick fault targets.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithHistoryLimit caps the number of retained fault events.
// Default: DefaultHistoryLimit.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) { e.historyLimit = n }
}

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithSessionIDGenerator sets the session ID source. Default: UUIDv7Generator.
func WithSessionIDGenerator(g SessionIDGenerator) Option {
	return func(e *Engine) { e.sessionGen = g }
}

// WithResetOnStop makes Stop clear every output, the way a real PLC drops
// its outputs when it leaves RUN. Default: false (outputs keep their
// latched values across stop/start).
func WithResetOnStop(reset bool) Option {
	return func(e *Engine) { e.resetOnStop = reset }
}

// New creates a stopped engine over table with the given ladder program.
//
// The rungs slice is copied. Rungs that reference unknown tags, or whose
// output is not a digital output, are kept but marked broken: they are
// reported once here and stay inactive forever.
func New(table *iotable.Table, rungs []ladder.Rung, opts ...Option) (*Engine, error) {
	if table == nil {
		return nil, fmt.Errorf("engine: nil I/O table")
	}

	e := &Engine{
		table:        table,
		clock:        NewClock(),
		logger:       slog.Default(),
		now:          time.Now,
		newTicker:    NewRealTicker,
		scanTime:     DefaultScanTime,
		historyLimit: DefaultHistoryLimit,
		sessionGen:   UUIDv7Generator{},
		eval:         ladder.Evaluate,
		status:       StatusStopped,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scanTime <= 0 {
		return nil, fmt.Errorf("engine: scan time %v: %w", e.scanTime, ErrInvalidPeriod)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	e.history = newFaultHistory(e.historyLimit)
	e.id = e.sessionGen.Generate()
	e.logger = e.logger.With("session", e.id)

	e.rungs = make([]rungSlot, len(rungs))
	for i, r := range rungs {
		slot := rungSlot{rung: r.Clone()}
		for _, err := range ladder.Validate(table, r) {
			slot.broken = true
			slot.problems = append(slot.problems, err.Error())
			e.logger.Warn("rung disabled", "rung", r.Name, "index", i, "error", err)
		}
		e.rungs[i] = slot
	}

	e.logger.Debug("engine created",
		"points", table.Len(),
		"rungs", len(e.rungs),
		"scan_time", e.scanTime,
	)
	return e, nil
}

// ID returns the session identifier.
func (e *Engine) ID() string { return e.id }

// ScanTime returns the configured scan period.
func (e *Engine) ScanTime() time.Duration { return e.scanTime }

// Start puts the engine in RUN and starts the scan task.
//
// Calling Start while running replaces the scan task: the previous one is
// stopped first, so there is never more than one.
func (e *Engine) Start() {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	e.mu.Lock()
	prev := e.scanTask
	e.scanTask = nil
	e.mu.Unlock()
	if prev != nil {
		prev.Stop()
		e.logger.Debug("previous scan task stopped")
	}

	e.mu.Lock()
	var ev *StatusEvent
	if e.status != StatusRunning {
		ev = e.transitionLocked(StatusRunning)
	}
	e.scanTask = startTask(e.newTicker, e.scanTime, e.scanTick)
	e.mu.Unlock()

	e.logger.Info("plc started", "scan_time", e.scanTime)
	if ev != nil {
		e.dispatch(notification{status: ev})
	}
}

// Stop cancels the scan task and puts the engine in STOP.
//
// Stop is idempotent. Once it returns no further scan runs. Observers get
// a StatusEvent for the running -> stopped transition only.
func (e *Engine) Stop() {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	e.mu.Lock()
	task := e.scanTask
	e.scanTask = nil
	e.mu.Unlock()
	task.Stop()

	e.mu.Lock()
	if e.status == StatusStopped {
		e.mu.Unlock()
		return
	}
	if e.resetOnStop {
		e.resetOutputsLocked()
	}
	ev := e.transitionLocked(StatusStopped)
	scans := e.scanCount
	e.mu.Unlock()

	e.logger.Info("plc stopped", "scans", scans)
	e.dispatch(notification{status: ev})
}

// Close stops both periodic tasks.
func (e *Engine) Close() {
	e.StopAutoInjection()
	e.Stop()
}

// Status returns the scheduler state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// transitionLocked changes status and builds the event. Caller holds mu.
func (e *Engine) transitionLocked(to Status) *StatusEvent {
	ev := &StatusEvent{
		Seq:      e.clock.Next(),
		At:       e.now(),
		Status:   to,
		Previous: e.status,
		Snapshot: e.table.Snapshot(),
	}
	e.status = to
	return ev
}

func (e *Engine) scanTick() {
	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return
	}
	res := e.scanLocked()
	e.mu.Unlock()

	e.dispatch(notification{scan: &res})
}

// Scan performs one scan immediately, regardless of status.
// The periodic task calls the same code; Scan exists for stepping a
// stopped engine (harness scenarios, tests, single-step training mode).
func (e *Engine) Scan() ScanResult {
	e.mu.Lock()
	res := e.scanLocked()
	e.mu.Unlock()

	e.dispatch(notification{scan: &res})
	return res
}

func (e *Engine) scanLocked() ScanResult {
	snap := e.table.Snapshot()
	res := ScanResult{
		Seq:    e.clock.Next(),
		At:     e.now(),
		Active: make([]bool, len(e.rungs)),
	}

	for i := range e.rungs {
		slot := &e.rungs[i]
		active := false

		if !slot.broken {
			var err error
			active, err = e.evaluate(snap, slot.rung)
			if err != nil {
				res.Errors = append(res.Errors, &RungError{Rung: slot.rung.Name, Index: i, Err: err})
				e.logger.Warn("rung evaluation failed",
					"rung", slot.rung.Name,
					"index", i,
					"scan", res.Seq,
					"error", err,
				)
				active = false
			}
		}

		// Latch: active rungs assert their output; inactive rungs leave it alone.
		if active {
			if latched, err := e.assertOutput(slot.rung.Output); err != nil {
				res.Errors = append(res.Errors, &RungError{Rung: slot.rung.Name, Index: i, Err: err})
				e.logger.Error("assert output failed", "rung", slot.rung.Name, "output", slot.rung.Output, "error", err)
				active = false
			} else if latched {
				res.Latched = append(res.Latched, slot.rung.Output)
			}
		}

		slot.active = active
		res.Active[i] = active
		if active {
			res.ActiveRungs++
		}
	}

	res.FaultCount = e.table.FaultCount()
	e.scanCount++
	e.last = res

	if len(res.Latched) > 0 {
		e.logger.Debug("outputs latched", "scan", res.Seq, "outputs", res.Latched)
	}
	return res
}

// evaluate runs one rung, converting a panic into an EvaluationError.
func (e *Engine) evaluate(view iotable.View, r ladder.Rung) (active bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			active = false
			err = &ladder.EvaluationError{Rung: r.Name, Message: fmt.Sprintf("panic: %v", p)}
		}
	}()
	return e.eval(view, r)
}

// assertOutput sets a digital output true and reports whether it was false.
func (e *Engine) assertOutput(tag string) (bool, error) {
	p, err := e.table.Get(tag)
	if err != nil {
		return false, err
	}
	if err := e.table.SetValue(tag, true); err != nil {
		return false, err
	}
	return !p.Digital, nil
}

// ResetOutputs clears every output: digital outputs to false, analog
// outputs to 0. This is the explicit reset that releases latched outputs.
func (e *Engine) ResetOutputs() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetOutputsLocked()
	e.logger.Info("outputs reset")
}

func (e *Engine) resetOutputsLocked() {
	for _, p := range e.table.Snapshot().Points() {
		switch p.Kind {
		case iotable.DigitalOutput:
			_ = e.table.SetValue(p.Tag, false)
		case iotable.AnalogOutput:
			_ = e.table.SetValue(p.Tag, 0.0)
		}
	}
}

// Get returns a copy of one I/O point.
func (e *Engine) Get(tag string) (iotable.Point, error) {
	return e.table.Get(tag)
}

// SetValue writes a point value through the I/O table, enforcing kind.
func (e *Engine) SetValue(tag string, value any) error {
	if err := e.table.SetValue(tag, value); err != nil {
		return fmt.Errorf("set %s: %w", tag, err)
	}
	e.logger.Debug("value written", "tag", tag, "value", value)
	return nil
}

// SetFault sets a fault flag. A change is recorded in the fault history
// with OriginManual; setting the flag to its current state is a no-op.
func (e *Engine) SetFault(tag string, fault bool) error {
	e.mu.Lock()
	p, err := e.table.Get(tag)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("set fault %s: %w", tag, err)
	}
	if p.Fault == fault {
		e.mu.Unlock()
		return nil
	}
	if err := e.table.SetFault(tag, fault); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("set fault %s: %w", tag, err)
	}
	ev := e.recordFaultLocked(p, fault, OriginManual)
	e.mu.Unlock()

	e.dispatch(notification{fault: &ev})
	return nil
}

// Snapshot returns an immutable copy of the I/O table.
func (e *Engine) Snapshot() iotable.Snapshot {
	return e.table.Snapshot()
}

// Rungs returns the state of every rung in program order.
func (e *Engine) Rungs() []RungState {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.table.Snapshot()
	out := make([]RungState, len(e.rungs))
	for i, s := range e.rungs {
		contacts := make([]bool, len(s.rung.Conditions))
		for j, c := range s.rung.Conditions {
			contacts[j], _ = ladder.Truth(snap, c)
		}
		out[i] = RungState{
			Rung:     s.rung.Clone(),
			Active:   s.active,
			Contacts: contacts,
			Broken:   s.broken,
			Problems: append([]string(nil), s.problems...),
		}
	}
	return out
}

// ActiveRungs returns the number of rungs active in the last scan.
func (e *Engine) ActiveRungs() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, s := range e.rungs {
		if s.active {
			n++
		}
	}
	return n
}

// FaultCount returns the number of faulted I/O points.
func (e *Engine) FaultCount() int {
	return e.table.FaultCount()
}

// ScanCount returns the number of scans performed.
func (e *Engine) ScanCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanCount
}

// LastScan returns the result of the most recent scan.
func (e *Engine) LastScan() ScanResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}
