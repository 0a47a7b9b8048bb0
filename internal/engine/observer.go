package engine

import (
	"time"

	"github.com/roach88/plcsim/internal/iotable"
)

// Status is the scheduler state.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
)

// StatusEvent is emitted on every stopped<->running transition.
// Collaborators that own display state (pump speed, flow) clear it when
// they see StatusStopped.
type StatusEvent struct {
	Seq      int64
	At       time.Time
	Status   Status
	Previous Status
	Snapshot iotable.Snapshot
}

// Observer receives engine notifications. Calls are serialised.
type Observer interface {
	StatusChanged(ev StatusEvent)
	FaultRecorded(ev FaultEvent)
	ScanCompleted(res ScanResult)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnStatus func(StatusEvent)
	OnFault  func(FaultEvent)
	OnScan   func(ScanResult)
}

func (o ObserverFuncs) StatusChanged(ev StatusEvent) {
	if o.OnStatus != nil {
		o.OnStatus(ev)
	}
}

func (o ObserverFuncs) FaultRecorded(ev FaultEvent) {
	if o.OnFault != nil {
		o.OnFault(ev)
	}
}

func (o ObserverFuncs) ScanCompleted(res ScanResult) {
	if o.OnScan != nil {
		o.OnScan(res)
	}
}

// notification is queued under the engine lock and dispatched after it is
// released.
type notification struct {
	status *StatusEvent
	fault  *FaultEvent
	scan   *ScanResult
}

func (e *Engine) dispatch(notes ...notification) {
	if len(e.observers) == 0 || len(notes) == 0 {
		return
	}
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	for _, n := range notes {
		for _, o := range e.observers {
			switch {
			case n.status != nil:
				o.StatusChanged(*n.status)
			case n.fault != nil:
				o.FaultRecorded(*n.fault)
			case n.scan != nil:
				o.ScanCompleted(*n.scan)
			}
		}
	}
}
