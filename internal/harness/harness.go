package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/roach88/plcsim/internal/engine"
	"github.com/roach88/plcsim/internal/iotable"
	"github.com/roach88/plcsim/internal/override"
	"github.com/roach88/plcsim/internal/program"
	"github.com/roach88/plcsim/internal/store"
	"github.com/roach88/plcsim/internal/testutil"
)

// Harness holds one scenario's engine and its collaborators.
type Harness struct {
	engine  *engine.Engine
	panel   *override.Panel
	store   *store.Store
	session string
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh engine and a fresh in-memory journal.
// Step failures that were not expected, and failed assertions, are
// reported in the result rather than as an error; the error return is
// reserved for scenarios that cannot run at all.
func Run(scenario *Scenario) (*Result, error) {
	prog := program.Default()
	if scenario.Program != "" {
		var err error
		if prog, err = program.Load(scenario.Program); err != nil {
			return nil, fmt.Errorf("failed to load program: %w", err)
		}
	}
	tbl, err := prog.NewTable()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := "scenario-" + scenario.Name
	ctx := context.Background()
	if err := st.WriteSession(ctx, store.Session{
		ID:        session,
		Program:   prog.Name,
		StartedAt: testutil.Epoch,
		ScanTime:  engine.DefaultScanTime,
	}); err != nil {
		return nil, err
	}

	// Scans only run on scan steps: these tickers never fire.
	ticks := testutil.NewManualTickSource()
	eng, err := engine.New(tbl, prog.CopyRungs(),
		engine.WithLogger(logger),
		engine.WithSessionIDGenerator(engine.NewFixedGenerator(session)),
		engine.WithNow(testutil.NewStepClock(time.Second).Now),
		engine.WithTickerFactory(func(d time.Duration) engine.Ticker { return ticks.NewTicker(d) }),
		engine.WithRand(rand.New(rand.NewPCG(scenario.Seed, scenario.Seed))),
		engine.WithObserver(store.NewJournal(st, session, logger)),
	)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	h := &Harness{
		engine:  eng,
		panel:   override.NewPanel(eng, override.WithLogger(logger)),
		store:   st,
		session: session,
		logger:  logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(i, step, result)
	}
	result.Final = h.finalState()

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step and appends its trace events.
func (h *Harness) executeStep(i int, step Step, result *Result) {
	op := step.op()
	ev := TraceEvent{Step: i, Op: op}
	var err error

	switch op {
	case "set":
		ev.Tag, ev.Value = step.Set.Tag, step.Set.Value
		err = h.panel.Force(step.Set.Tag, step.Set.Value)
	case "toggle":
		ev.Tag = step.Toggle
		var on bool
		if on, err = h.panel.ToggleInput(step.Toggle); err == nil {
			ev.Value = on
		}
	case "fault":
		ev.Tag = step.Fault.Tag
		ev.Fault = &step.Fault.On
		err = h.panel.SetFault(step.Fault.Tag, step.Fault.On)
	case "toggle_fault":
		ev.Tag = step.ToggleFault
		var fe engine.FaultEvent
		if fe, err = h.engine.ToggleFault(step.ToggleFault); err == nil {
			ev.Fault = &fe.Fault
			ev.Origin = string(fe.Origin)
		}
	case "inject":
		var fe engine.FaultEvent
		if fe, err = h.engine.InjectFault(step.Inject.filter()); err == nil {
			ev.Tag = fe.Tag
			ev.Fault = &fe.Fault
			ev.Origin = string(fe.Origin)
		}
	case "scan":
		for n := 0; n < step.Scan; n++ {
			res := h.engine.Scan()
			scan := TraceEvent{Step: i, Op: op, Active: res.Active, Latched: res.Latched}
			if len(res.Errors) > 0 {
				scan.Error = res.Errors[0].Error()
			}
			result.add(scan)
		}
		return
	case "start":
		h.engine.Start()
		ev.Status = string(h.engine.Status())
	case "stop":
		h.engine.Stop()
		ev.Status = string(h.engine.Status())
	case "reset":
		h.engine.ResetOutputs()
	case "release_all":
		ev.Value = h.panel.ReleaseAll()
	}

	if err != nil {
		ev.Error = err.Error()
	}
	result.add(ev)

	switch {
	case step.ExpectError != "" && err == nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got none", i, op, step.ExpectError))
	case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got %q", i, op, step.ExpectError, err))
	case step.ExpectError == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, op, err))
	}

	h.logger.Info("step completed", "step", i, "op", op, "error", err)
}

func (s *InjectStep) filter() engine.SeverityFilter {
	f := engine.SeverityFilter{CriticalOnly: s.Critical}
	for _, k := range s.Kinds {
		kind, _ := iotable.ParseKind(k) // validated on load
		f.Kinds = append(f.Kinds, kind)
	}
	return f
}

func (h *Harness) finalState() FinalState {
	fs := FinalState{
		Status:      string(h.engine.Status()),
		ActiveRungs: h.engine.ActiveRungs(),
		FaultCount:  h.engine.FaultCount(),
		Outputs:     map[string]bool{},
		Banner:      h.panel.Banner(),
	}
	for _, p := range h.engine.Snapshot().Points() {
		if p.Kind == iotable.DigitalOutput {
			fs.Outputs[p.Tag] = p.Digital
		}
	}
	return fs
}
