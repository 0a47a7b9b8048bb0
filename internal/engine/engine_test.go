package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plcsim/internal/iotable"
	"github.com/roach88/plcsim/internal/ladder"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	tbl, err := iotable.New([]iotable.Def{{Tag: "DI_0", Kind: iotable.DigitalInput}})
	require.NoError(t, err)
	_, err = New(tbl, nil, WithScanTime(0), WithSessionIDGenerator(NewFixedGenerator("x")))
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	e, err := New(tbl, nil, WithSessionIDGenerator(NewFixedGenerator("abc")))
	require.NoError(t, err)
	assert.Equal(t, "abc", e.ID())
	assert.Equal(t, DefaultScanTime, e.ScanTime())
	assert.Equal(t, StatusStopped, e.Status())
}

func TestScan_SystemStart(t *testing.T) {
	r := newRig(t)
	r.set(t, "DI_3", true)

	res := r.eng.Scan()
	assert.True(t, r.digital(t, "DO_0"), "pump latches on reset button")
	assert.Equal(t, []bool{true, false, false, false}, res.Active)
	assert.Equal(t, 1, res.ActiveRungs)
	assert.Equal(t, []string{"DO_0"}, res.Latched)
	assert.Empty(t, res.Errors)

	// Flow Control reads DO_0 from the scan snapshot, so it sees the pump
	// only on the next scan.
	assert.False(t, r.digital(t, "DO_1"))
	r.set(t, "AI_1", 60.0)
	res = r.eng.Scan()
	assert.True(t, res.Active[1])
	assert.True(t, r.digital(t, "DO_1"))
}

func TestScan_EStopKeepsLatch(t *testing.T) {
	r := newRig(t)
	r.set(t, "DI_3", true)
	r.eng.Scan()
	require.True(t, r.digital(t, "DO_0"))

	r.set(t, "DI_0", true)
	res := r.eng.Scan()

	assert.False(t, res.Active[0], "System Start drops out under E-stop")
	assert.True(t, r.digital(t, "DO_0"), "a scan never retracts an output")
	assert.Empty(t, res.Latched)
}

func TestScan_AlarmAndTemperature(t *testing.T) {
	r := newRig(t)
	r.set(t, "DI_2", false) // tank below low float
	r.set(t, "DI_0", true)
	r.set(t, "AI_0", 50.0)

	res := r.eng.Scan()
	assert.Equal(t, []bool{false, false, true, true}, res.Active)
	assert.True(t, r.digital(t, "DO_2"))
	assert.True(t, r.digital(t, "DO_4"))
	assert.ElementsMatch(t, []string{"DO_4", "DO_2"}, res.Latched)
}

func TestScan_ResetOutputsReleasesLatch(t *testing.T) {
	r := newRig(t)
	r.set(t, "DI_3", true)
	r.set(t, "AO_0", 80.0)
	r.eng.Scan()
	require.True(t, r.digital(t, "DO_0"))

	r.eng.ResetOutputs()
	assert.False(t, r.digital(t, "DO_0"))
	ao, err := r.eng.Get("AO_0")
	require.NoError(t, err)
	assert.Equal(t, 0.0, ao.Analog)

	di, err := r.eng.Get("DI_3")
	require.NoError(t, err)
	assert.True(t, di.Digital, "inputs are untouched")
}

func TestRungs_Contacts(t *testing.T) {
	r := newRig(t)
	r.set(t, "DI_3", true)

	states := r.eng.Rungs()
	require.Len(t, states, 4)
	assert.Equal(t, []bool{true, true, true}, states[0].Contacts)
	assert.False(t, states[0].Active, "contacts track the table before any scan")

	r.eng.Scan()
	r.set(t, "DI_0", true)
	states = r.eng.Rungs()
	assert.Equal(t, []bool{true, false, true}, states[0].Contacts)
	assert.True(t, states[0].Active, "Active reports the last scan")
	assert.Equal(t, []bool{true, false}, states[1].Contacts)
}

func TestScan_BrokenRungStaysInactive(t *testing.T) {
	points := []iotable.Def{
		{Tag: "DI_0", Kind: iotable.DigitalInput, Digital: true},
		{Tag: "DO_0", Kind: iotable.DigitalOutput},
		{Tag: "DO_1", Kind: iotable.DigitalOutput},
		{Tag: "AO_0", Kind: iotable.AnalogOutput},
	}
	rungs := []ladder.Rung{
		ladder.MustRung("dangling", "DO_0", "DI_0", "DI_99"),
		ladder.MustRung("healthy", "DO_1", "DI_0"),
		ladder.MustRung("analog out", "AO_0", "DI_0"),
	}
	r := newRigWith(t, points, rungs)

	res := r.eng.Scan()
	assert.Equal(t, []bool{false, true, false}, res.Active)
	assert.Empty(t, res.Errors, "broken rungs are reported at load, not per scan")
	assert.True(t, r.digital(t, "DO_1"))
	assert.False(t, r.digital(t, "DO_0"))

	states := r.eng.Rungs()
	require.Len(t, states, 3)
	assert.True(t, states[0].Broken)
	assert.Contains(t, states[0].Problems[0], "DI_99")
	assert.Equal(t, []bool{true, false}, states[0].Contacts, "unknown tags read open")
	assert.False(t, states[1].Broken)
	assert.True(t, states[2].Broken)
}

func TestScan_ContainsRungFailures(t *testing.T) {
	r := newRig(t)
	r.set(t, "DI_3", true)
	r.set(t, "AI_0", 75.0)

	boom := errors.New("boom")
	r.eng.eval = func(v iotable.View, rung ladder.Rung) (bool, error) {
		switch rung.Name {
		case "System Start":
			panic("corrupt rung")
		case "Flow Control":
			return false, boom
		}
		return ladder.Evaluate(v, rung)
	}

	res := r.eng.Scan()
	require.Len(t, res.Errors, 2)

	var re *RungError
	require.ErrorAs(t, res.Errors[0], &re)
	assert.Equal(t, 0, re.Index)
	assert.True(t, ladder.IsEvaluationError(res.Errors[0]))
	assert.Contains(t, res.Errors[0].Error(), "corrupt rung")
	assert.ErrorIs(t, res.Errors[1], boom)

	assert.Equal(t, []bool{false, false, true, false}, res.Active)
	assert.True(t, r.digital(t, "DO_4"), "later rungs still run")
	assert.False(t, r.digital(t, "DO_0"))
	assert.Equal(t, int64(1), r.eng.ScanCount())
}

func TestScan_Deterministic(t *testing.T) {
	run := func() []ScanResult {
		r := newRig(t)
		r.set(t, "DI_3", true)
		r.set(t, "AI_1", 55.0)
		var out []ScanResult
		for i := 0; i < 3; i++ {
			res := r.eng.Scan()
			res.At = time.Time{}
			out = append(out, res)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestScan_FaultsDoNotChangeLogic(t *testing.T) {
	r := newRig(t)
	r.set(t, "DI_3", true)
	require.NoError(t, r.eng.SetFault("DI_3", true))

	res := r.eng.Scan()
	assert.True(t, res.Active[0], "fault flags are advisory")
	assert.Equal(t, 1, res.FaultCount)
}

func TestStartStop(t *testing.T) {
	r := newRig(t)
	r.set(t, "DI_3", true)

	r.eng.Start()
	assert.Equal(t, StatusRunning, r.eng.Status())
	require.Len(t, r.ticks.Active(), 1)
	assert.Equal(t, DefaultScanTime, r.ticks.Active()[0].Period)

	r.tickScan(t)
	assert.True(t, r.digital(t, "DO_0"))
	r.tickScan(t)
	assert.Equal(t, int64(2), r.eng.ScanCount())

	r.eng.Stop()
	assert.Equal(t, StatusStopped, r.eng.Status())
	assert.Empty(t, r.ticks.Active())
	assert.Equal(t, 0, r.ticks.Tick(), "no ticks reach a stopped engine")
	assert.Equal(t, int64(2), r.eng.ScanCount())
	assert.True(t, r.digital(t, "DO_0"), "outputs survive stop by default")

	statuses := r.obs.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, StatusRunning, statuses[0].Status)
	assert.Equal(t, StatusStopped, statuses[0].Previous)
	assert.Equal(t, StatusStopped, statuses[1].Status)
	assert.Less(t, statuses[0].Seq, statuses[1].Seq)
}

func TestStart_TwiceKeepsOneTask(t *testing.T) {
	r := newRig(t)
	r.eng.Start()
	r.eng.Start()

	assert.Equal(t, 2, r.ticks.Created())
	assert.Len(t, r.ticks.Active(), 1, "the first scan task is stopped")
	r.tickScan(t)
	assert.Len(t, r.obs.Statuses(), 1, "only the stopped->running transition is reported")
}

func TestStop_Idempotent(t *testing.T) {
	r := newRig(t)
	r.eng.Stop()
	assert.Empty(t, r.obs.Statuses(), "stopping a stopped engine emits nothing")

	r.eng.Start()
	r.eng.Stop()
	r.eng.Stop()
	assert.Len(t, r.obs.Statuses(), 2)
}

func TestStop_ResetOnStop(t *testing.T) {
	r := newRig(t, WithResetOnStop(true))
	r.set(t, "DI_3", true)
	r.eng.Start()
	r.tickScan(t)
	require.True(t, r.digital(t, "DO_0"))

	r.eng.Stop()
	assert.False(t, r.digital(t, "DO_0"))

	statuses := r.obs.Statuses()
	require.Len(t, statuses, 2)
	p, ok := statuses[1].Snapshot.Lookup("DO_0")
	require.True(t, ok)
	assert.False(t, p.Digital, "stop event carries the post-reset table")
}

func TestScan_ManualWhileStopped(t *testing.T) {
	r := newRig(t)
	r.set(t, "DI_3", true)
	r.eng.Scan()
	assert.Equal(t, StatusStopped, r.eng.Status())
	assert.True(t, r.digital(t, "DO_0"))
	assert.Equal(t, 1, r.obs.ScanCount())
	assert.Equal(t, 1, r.eng.ActiveRungs())
	assert.Equal(t, int64(1), r.eng.LastScan().Seq)
}

func TestSetValue_Errors(t *testing.T) {
	r := newRig(t)

	err := r.eng.SetValue("DI_99", true)
	assert.True(t, iotable.IsUnknownTag(err))

	err = r.eng.SetValue("DI_0", 3.5)
	assert.True(t, iotable.IsTypeMismatch(err))

	err = r.eng.SetValue("AI_0", true)
	assert.True(t, iotable.IsTypeMismatch(err))
}

func TestSetFault_RecordsChangesOnly(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.eng.SetFault("DI_1", true))
	require.NoError(t, r.eng.SetFault("DI_1", true))
	require.NoError(t, r.eng.SetFault("DI_1", false))

	hist := r.eng.FaultHistory()
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Fault)
	assert.False(t, hist[1].Fault)
	assert.Equal(t, OriginManual, hist[0].Origin)
	assert.Equal(t, iotable.DigitalInput, hist[0].Kind)
	assert.Len(t, r.obs.Faults(), 2)

	assert.True(t, iotable.IsUnknownTag(r.eng.SetFault("DO_99", true)))
}
