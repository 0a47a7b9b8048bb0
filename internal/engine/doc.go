// Package engine implements the PLC scan engine for a training simulator.
//
// An Engine owns one I/O table, a fixed ladder program (rungs), and two
// independently cancellable periodic tasks:
//
//   - the scan cycle, which evaluates every rung and latches active outputs
//   - automatic fault injection, which toggles fault flags on random points
//
// ARCHITECTURE:
//
// Single event loop:
// Scan ticks, fault-injection ticks and engine commands are serialised
// behind one mutex, so a scan and a fault injection never interleave.
// Their relative order across ticks is not defined; callers must not
// assume a fault becomes visible in a particular scan.
//
// Scan:
// 1. Snapshot the I/O table
// 2. Evaluate every rung against the snapshot (ladder.Evaluate)
// 3. For each active rung, set its output to true
// 4. Cache each rung's active flag
// 5. Recompute active-rung and fault counters
//
// Outputs are latched: a rung that evaluates false never clears its
// output. Only a manual write or ResetOutputs does.
//
// Failures inside one rung (an EvaluationError or a panic) are logged and
// the rung is treated as inactive. The rest of the scan proceeds.
//
// Observers receive status, fault and scan notifications after the engine
// lock is released. Observers may query the engine but must not issue
// commands from inside a callback.
package engine
