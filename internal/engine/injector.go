package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/plcsim/internal/iotable"
)

// DefaultFaultInterval is the default automatic injection period.
const DefaultFaultInterval = 30 * time.Second

// SeverityFilter selects which points automatic injection may hit.
// The zero value matches every point.
type SeverityFilter struct {
	// Kinds restricts candidates to these kinds. Empty means all kinds.
	Kinds []iotable.Kind
	// CriticalOnly restricts candidates to points declared critical.
	CriticalOnly bool
}

// AllPoints matches every I/O point.
func AllPoints() SeverityFilter { return SeverityFilter{} }

// DigitalInputsOnly matches digital inputs.
func DigitalInputsOnly() SeverityFilter {
	return SeverityFilter{Kinds: []iotable.Kind{iotable.DigitalInput}}
}

// CriticalOnly matches points declared critical, of any kind.
func CriticalOnly() SeverityFilter { return SeverityFilter{CriticalOnly: true} }

// ClassicPool matches digital inputs, digital outputs and analog inputs:
// the pool the classroom simulator has always drawn from.
func ClassicPool() SeverityFilter {
	return SeverityFilter{Kinds: []iotable.Kind{
		iotable.DigitalInput,
		iotable.DigitalOutput,
		iotable.AnalogInput,
	}}
}

// Match reports whether p is a candidate.
func (f SeverityFilter) Match(p iotable.Point) bool {
	if f.CriticalOnly && !p.Critical {
		return false
	}
	return len(f.Kinds) == 0 || slices.Contains(f.Kinds, p.Kind)
}

// String renders the filter for logs.
func (f SeverityFilter) String() string {
	kinds := "all"
	if len(f.Kinds) > 0 {
		kinds = fmt.Sprint(f.Kinds)
	}
	if f.CriticalOnly {
		return kinds + "+critical"
	}
	return kinds
}

// candidates returns matching tags in declaration order.
func (e *Engine) candidates(f SeverityFilter) []string {
	var tags []string
	for _, p := range e.table.Snapshot().Points() {
		if f.Match(p) {
			tags = append(tags, p.Tag)
		}
	}
	return tags
}

// ToggleFault flips one fault flag and records it in the fault history.
func (e *Engine) ToggleFault(tag string) (FaultEvent, error) {
	e.mu.Lock()
	ev, err := e.toggleLocked(tag, OriginManual)
	e.mu.Unlock()
	if err != nil {
		return FaultEvent{}, fmt.Errorf("toggle fault %s: %w", tag, err)
	}

	e.dispatch(notification{fault: &ev})
	return ev, nil
}

// InjectFault toggles the fault flag of one randomly chosen point matching
// filter, exactly as one automatic injection tick would.
func (e *Engine) InjectFault(filter SeverityFilter) (FaultEvent, error) {
	tags := e.candidates(filter)
	if len(tags) == 0 {
		return FaultEvent{}, ErrNoCandidates
	}

	e.mu.Lock()
	ev, err := e.injectLocked(tags)
	e.mu.Unlock()
	if err != nil {
		return FaultEvent{}, err
	}

	e.dispatch(notification{fault: &ev})
	return ev, nil
}

// StartAutoInjection starts toggling a random matching point's fault flag
// every period. A running injection task is stopped first.
// Values are never touched.
func (e *Engine) StartAutoInjection(period time.Duration, filter SeverityFilter) error {
	if period <= 0 {
		return fmt.Errorf("auto injection period %v: %w", period, ErrInvalidPeriod)
	}
	// The point set is fixed, so the candidate list can be computed once.
	tags := e.candidates(filter)
	if len(tags) == 0 {
		return fmt.Errorf("auto injection filter %s: %w", filter, ErrNoCandidates)
	}

	e.ctl.Lock()
	defer e.ctl.Unlock()

	e.mu.Lock()
	prev := e.faultTask
	e.faultTask = nil
	e.mu.Unlock()
	prev.Stop()

	e.mu.Lock()
	e.faultPeriod = period
	e.faultFilter = filter
	e.faultTask = startTask(e.newTicker, period, func() { e.injectTick(tags) })
	e.mu.Unlock()

	e.logger.Info("auto fault injection started",
		"period", period,
		"filter", filter.String(),
		"candidates", len(tags),
	)
	return nil
}

// StopAutoInjection cancels automatic injection. It is idempotent, and no
// injection runs after it returns.
func (e *Engine) StopAutoInjection() {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	e.mu.Lock()
	task := e.faultTask
	e.faultTask = nil
	e.mu.Unlock()
	if task == nil {
		return
	}
	task.Stop()
	e.logger.Info("auto fault injection stopped")
}

// AutoInjectionRunning reports whether the injection task is active.
func (e *Engine) AutoInjectionRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.faultTask != nil
}

// AutoInjectionSettings returns the period and filter of the last
// StartAutoInjection call.
func (e *Engine) AutoInjectionSettings() (time.Duration, SeverityFilter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.faultPeriod, e.faultFilter
}

// FaultHistory returns the retained fault events, oldest first.
func (e *Engine) FaultHistory() []FaultEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.list()
}

// FaultEventsTotal returns how many fault events were ever recorded,
// including those evicted from the bounded history.
func (e *Engine) FaultEventsTotal() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.total
}

func (e *Engine) injectTick(tags []string) {
	e.mu.Lock()
	ev, err := e.injectLocked(tags)
	e.mu.Unlock()
	if err != nil {
		e.logger.Error("auto fault injection failed", "error", err)
		return
	}
	e.dispatch(notification{fault: &ev})
}

func (e *Engine) injectLocked(tags []string) (FaultEvent, error) {
	tag := tags[e.rng.IntN(len(tags))]
	return e.toggleLocked(tag, OriginAuto)
}

func (e *Engine) toggleLocked(tag string, origin FaultOrigin) (FaultEvent, error) {
	on, err := e.table.ToggleFault(tag)
	if err != nil {
		return FaultEvent{}, err
	}
	p, err := e.table.Get(tag)
	if err != nil {
		return FaultEvent{}, err
	}
	return e.recordFaultLocked(p, on, origin), nil
}

func (e *Engine) recordFaultLocked(p iotable.Point, fault bool, origin FaultOrigin) FaultEvent {
	ev := FaultEvent{
		Seq:       e.clock.Next(),
		Timestamp: e.now(),
		Tag:       p.Tag,
		Kind:      p.Kind,
		Origin:    origin,
		Fault:     fault,
	}
	e.history.append(ev)
	e.logger.Info("fault flag changed",
		"tag", p.Tag,
		"fault", fault,
		"origin", string(origin),
		"seq", ev.Seq,
	)
	return ev
}
