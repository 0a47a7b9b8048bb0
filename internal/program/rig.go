package program

import (
	"github.com/roach88/plcsim/internal/iotable"
	"github.com/roach88/plcsim/internal/ladder"
)

// DefaultName is the name of the built-in program.
const DefaultName = "Tank Training Rig"

// Default returns the classroom tank rig: eight digital inputs, six
// digital outputs, four analog inputs, two analog outputs and four rungs.
// Every call returns a fresh copy.
func Default() *Program {
	return &Program{
		Name:        DefaultName,
		Description: "Pump, valve and float-switch tank used in the PLC I/O worksheet",
		Points: []iotable.Def{
			{Tag: "DI_0", Kind: iotable.DigitalInput, Name: "Emergency Stop", Description: "E-Stop Button", Critical: true},
			{Tag: "DI_1", Kind: iotable.DigitalInput, Name: "Float Switch High", Description: "High Level Float", Critical: true},
			{Tag: "DI_2", Kind: iotable.DigitalInput, Name: "Float Switch Low", Description: "Low Level Float", Critical: true, Digital: true},
			{Tag: "DI_3", Kind: iotable.DigitalInput, Name: "Reset Button", Description: "System Reset"},
			{Tag: "DI_4", Kind: iotable.DigitalInput, Name: "Flow Sensor", Description: "Flow Detection"},
			{Tag: "DI_5", Kind: iotable.DigitalInput, Name: "Proximity Switch", Description: "Lid Position"},
			{Tag: "DI_6", Kind: iotable.DigitalInput, Name: "Pump Run Feedback", Description: "Pump Status"},
			{Tag: "DI_7", Kind: iotable.DigitalInput, Name: "Valve Position", Description: "Valve Status"},

			{Tag: "DO_0", Kind: iotable.DigitalOutput, Name: "Pump Control", Description: "Pump Start/Stop", Critical: true},
			{Tag: "DO_1", Kind: iotable.DigitalOutput, Name: "Valve Control", Description: "Valve Open/Close"},
			{Tag: "DO_2", Kind: iotable.DigitalOutput, Name: "Alarm Horn", Description: "Audible Alarm", Critical: true},
			{Tag: "DO_3", Kind: iotable.DigitalOutput, Name: "Status Light", Description: "System Status"},
			{Tag: "DO_4", Kind: iotable.DigitalOutput, Name: "Cooling Fan", Description: "Temperature Control"},
			{Tag: "DO_5", Kind: iotable.DigitalOutput, Name: "Drain Valve", Description: "Tank Drain"},

			{Tag: "AI_0", Kind: iotable.AnalogInput, Name: "Temperature Sensor", Description: "Tank Temperature", Unit: "°C", Analog: 25.0},
			{Tag: "AI_1", Kind: iotable.AnalogInput, Name: "Flow Rate", Description: "Flow Measurement", Unit: "L/min", Analog: 0.0},
			{Tag: "AI_2", Kind: iotable.AnalogInput, Name: "Pressure Sensor", Description: "System Pressure", Unit: "bar", Analog: 1.2},
			{Tag: "AI_3", Kind: iotable.AnalogInput, Name: "Level Sensor", Description: "Tank Level", Unit: "%", Analog: 45.0, Critical: true},

			{Tag: "AO_0", Kind: iotable.AnalogOutput, Name: "Pump Speed", Description: "PWM Control", Unit: "%"},
			{Tag: "AO_1", Kind: iotable.AnalogOutput, Name: "Valve Position", Description: "Valve Control", Unit: "%"},
		},
		Rungs: []ladder.Rung{
			ladder.MustRung("System Start", "DO_0", "DI_3", "!DI_0", "DI_2"),
			ladder.MustRung("Flow Control", "DO_1", "DO_0", "AI_1"),
			ladder.MustRung("Temperature Control", "DO_4", "AI_0"),
			ladder.MustRung("Alarm System", "DO_2", "!DI_2", "DI_0"),
		},
	}
}
