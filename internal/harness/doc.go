// Package harness runs ladder-logic scenarios against a real engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: system_start
//	description: "Reset button latches the pump"
//	program: ../programs/training_rig.cue   # optional, default: built-in rig
//	seed: 1                                  # fault injection random seed
//	steps:
//	  - set: {tag: DI_3, value: true}
//	  - scan: 1
//	  - set: {tag: DI_0, value: 2.5}
//	    expect_error: type mismatch
//	assertions:
//	  - type: point
//	    tag: DO_0
//	    value: true
//	  - type: rung
//	    rung: System Start
//	    active: true
//
// # Steps
//
// Each step holds exactly one operation:
//
//   - set: force a value through the override panel
//   - toggle: flip a digital input through the override panel
//   - fault: set a fault flag
//   - toggle_fault: toggle a fault flag
//   - inject: one random fault injection with a severity filter
//   - scan: run N scans
//   - start, stop: change scheduler status (no scans run on their own)
//   - reset: clear every output
//   - release_all: clear the forcing marks
//
// # Assertion Types
//
//   - point: value and/or fault flag of one tag
//   - rung: active flag of a rung, by name
//   - fault_count: number of faulted points
//   - history_count: fault history length, optionally by origin
//   - forced_count: number of forced points
//   - journal_faults: fault events written to the session journal
//
// # Deterministic Testing
//
// Scans only happen on scan steps: the scan ticker never fires. Session
// IDs, wall-clock timestamps and the injection random source are fixed, so
// the trace of a scenario is identical across runs and can be compared
// against a golden file.
package harness
