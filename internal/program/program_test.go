package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plcsim/internal/iotable"
	"github.com/roach88/plcsim/internal/ladder"
)

func TestDefault_Shape(t *testing.T) {
	p := Default()
	assert.Equal(t, Stats{
		Name:           DefaultName,
		DigitalInputs:  8,
		DigitalOutputs: 6,
		AnalogInputs:   4,
		AnalogOutputs:  2,
		Critical:       6,
		Rungs:          4,
	}, p.Stats())

	problems, err := p.Check()
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestDefault_InitialValues(t *testing.T) {
	tbl, err := Default().NewTable()
	require.NoError(t, err)

	di2, err := tbl.Get("DI_2")
	require.NoError(t, err)
	assert.True(t, di2.Digital, "low float switch starts made")

	ai0, err := tbl.Get("AI_0")
	require.NoError(t, err)
	assert.Equal(t, 25.0, ai0.Analog)
	assert.Equal(t, "°C", ai0.Unit)

	assert.Equal(t, 0, tbl.FaultCount())
}

func TestDefault_FreshCopy(t *testing.T) {
	a := Default()
	a.Rungs[0].Conditions[0].Tag = "changed"
	a.Points[0].Name = "changed"

	b := Default()
	assert.Equal(t, "DI_3", b.Rungs[0].Conditions[0].Tag)
	assert.Equal(t, "Emergency Stop", b.Points[0].Name)
}

func TestCopyRungs(t *testing.T) {
	p := Default()
	rungs := p.CopyRungs()
	rungs[1].Output = "DO_5"
	assert.Equal(t, "DO_1", p.Rungs[1].Output)
}

func TestCheck(t *testing.T) {
	p := &Program{
		Name: "broken",
		Points: []iotable.Def{
			{Tag: "DI_0", Kind: iotable.DigitalInput},
			{Tag: "AO_0", Kind: iotable.AnalogOutput},
		},
		Rungs: []ladder.Rung{
			ladder.MustRung("dangling", "DO_9", "DI_0"),
			ladder.MustRung("analog out", "AO_0", "DI_0"),
		},
	}
	problems, err := p.Check()
	require.NoError(t, err)
	assert.Len(t, problems, 2)

	p.Points = append(p.Points, iotable.Def{Tag: "DI_0", Kind: iotable.DigitalInput})
	_, err = p.Check()
	assert.Error(t, err, "duplicate tags are fatal")
}
