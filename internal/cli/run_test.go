package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plcsim/internal/engine"
	"github.com/roach88/plcsim/internal/store"
)

// clearEnv keeps the developer's PLCSIM_* settings out of the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PLCSIM_DB", "PLCSIM_SCAN_TIME", "PLCSIM_FAULT_INTERVAL",
		"PLCSIM_HISTORY_LIMIT", "PLCSIM_LOG_FILE", "PLCSIM_LOG_JOURNAL", "PLCSIM_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func executeRun(t *testing.T, args ...string) (RunSummary, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	logs := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "json"})
	cmd.SetOut(out)
	cmd.SetErr(logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		return RunSummary{}, logs.String(), err
	}

	var resp struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp), out.String())
	require.Equal(t, "ok", resp.Status)
	return resp.Data, logs.String(), nil
}

func TestRunForcedStartLatchesPump(t *testing.T) {
	clearEnv(t)
	db := filepath.Join(t.TempDir(), "journal.db")

	summary, logs, err := executeRun(t,
		"--db", db,
		"--scan-time", "1ms",
		"--duration", "100ms",
		"--force", "DI_3=true",
		"--fault", "DI_1",
	)
	require.NoError(t, err, logs)

	assert.Equal(t, "Tank Training Rig", summary.Program)
	assert.NotEmpty(t, summary.SessionID)
	assert.Positive(t, summary.Scans)
	assert.Equal(t, 1, summary.Forced)
	assert.Equal(t, 1, summary.FaultCount)
	assert.Equal(t, 1, summary.FaultEvents)
	assert.Zero(t, summary.JournalFailures)
	assert.Contains(t, logs, "FORCING ACTIVE - 1 point currently forced")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sess, err := st.ReadSession(ctx, summary.SessionID)
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, sess.ScanTime)

	statuses, err := st.ReadStatusEvents(ctx, summary.SessionID)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, engine.StatusRunning, statuses[0].Status)
	assert.Equal(t, engine.StatusStopped, statuses[1].Status)

	// The pump output latched while running and is still set in the
	// stop snapshot.
	var pump bool
	for _, p := range statuses[1].Points {
		if p.Tag == "DO_0" {
			pump = p.Digital
		}
	}
	assert.True(t, pump)

	faults, err := st.ReadFaultEvents(ctx, summary.SessionID, "")
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, "DI_1", faults[0].Tag)
	assert.Equal(t, engine.OriginManual, faults[0].Origin)
}

func TestRunResetOnStop(t *testing.T) {
	clearEnv(t)
	db := filepath.Join(t.TempDir(), "journal.db")

	summary, logs, err := executeRun(t,
		"--db", db, "--scan-time", "1ms", "--duration", "50ms",
		"--force", "DI_3=true", "--reset-on-stop",
	)
	require.NoError(t, err, logs)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	statuses, err := st.ReadStatusEvents(context.Background(), summary.SessionID)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, p := range statuses[1].Points {
		if p.Tag == "DO_0" {
			assert.False(t, p.Digital)
		}
	}
}

func TestRunAutoFaults(t *testing.T) {
	clearEnv(t)
	db := filepath.Join(t.TempDir(), "journal.db")

	summary, logs, err := executeRun(t,
		"--db", db,
		"--scan-time", "5ms",
		"--fault-interval", "2ms",
		"--auto-faults",
		"--filter", "digital-inputs",
		"--duration", "200ms",
	)
	require.NoError(t, err, logs)
	assert.Positive(t, summary.FaultEvents)
	assert.Contains(t, logs, "auto fault injection started")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	faults, err := st.ReadFaultEvents(context.Background(), summary.SessionID, "")
	require.NoError(t, err)
	require.NotEmpty(t, faults)
	for _, ev := range faults {
		assert.Equal(t, engine.OriginAuto, ev.Origin)
		assert.Contains(t, ev.Tag, "DI_")
	}
}

func TestRunResumeContinuesSequence(t *testing.T) {
	clearEnv(t)
	db := filepath.Join(t.TempDir(), "journal.db")

	first, logs, err := executeRun(t, "--db", db, "--duration", "20ms", "--fault", "DI_1")
	require.NoError(t, err, logs)
	assert.False(t, first.Resumed)

	second, logs, err := executeRun(t, "--db", db, "--duration", "20ms", "--fault", "DI_2", "--resume", first.SessionID)
	require.NoError(t, err, logs)
	assert.True(t, second.Resumed)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Contains(t, logs, "resuming session")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sessions, err := st.ReadSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	statuses, err := st.ReadStatusEvents(ctx, first.SessionID)
	require.NoError(t, err)
	require.Len(t, statuses, 4)
	faults, err := st.ReadFaultEvents(ctx, first.SessionID, "")
	require.NoError(t, err)
	require.Len(t, faults, 2)
	assert.Equal(t, "DI_1", faults[0].Tag)
	assert.Equal(t, "DI_2", faults[1].Tag)

	seqs := map[int64]bool{}
	for _, ev := range statuses {
		seqs[ev.Seq] = true
	}
	for _, ev := range faults {
		seqs[ev.Seq] = true
	}
	assert.Len(t, seqs, 6, "no seq is reused across runs")
	assert.Greater(t, faults[1].Seq, statuses[1].Seq, "resumed events follow the first run")

	last, err := st.LastSeq(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), last)
}

func TestRunResumeRejectsUnknownOrMismatchedSession(t *testing.T) {
	clearEnv(t)
	db := filepath.Join(t.TempDir(), "journal.db")

	_, logs, err := executeRun(t, "--db", db, "--duration", "10ms", "--resume", "no-such-session")
	require.Error(t, err, logs)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "session no-such-session not found")

	first, logs, err := executeRun(t, "--db", db, "--duration", "10ms")
	require.NoError(t, err, logs)

	_, _, err = executeRun(t, "--db", db, "--duration", "10ms", "--resume", first.SessionID,
		writeProgram(t, brokenProgram))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `recorded with program "Tank Training Rig"`)
}

func TestRunSummaryReportsRungContacts(t *testing.T) {
	clearEnv(t)
	summary, logs, err := executeRun(t,
		"--db", filepath.Join(t.TempDir(), "journal.db"),
		"--scan-time", "1ms", "--duration", "50ms",
		"--force", "DI_3=true",
	)
	require.NoError(t, err, logs)

	require.Len(t, summary.Rungs, 4)
	start := summary.Rungs[0]
	assert.Equal(t, "System Start", start.Name)
	assert.Equal(t, "DO_0", start.Output)
	assert.True(t, start.Active)
	assert.Equal(t, []bool{true, true, true}, start.Contacts)
	assert.Len(t, summary.Rungs[1].Contacts, 2)
}

func TestRunProgramFile(t *testing.T) {
	clearEnv(t)
	summary, logs, err := executeRun(t,
		"--db", filepath.Join(t.TempDir(), "journal.db"),
		"--duration", "20ms",
		rigProgram,
	)
	require.NoError(t, err, logs)
	assert.Equal(t, "Tank Training Rig", summary.Program)
}

func TestRunBrokenRungsAreLogged(t *testing.T) {
	clearEnv(t)
	_, logs, err := executeRun(t,
		"--db", filepath.Join(t.TempDir(), "journal.db"),
		"--duration", "20ms",
		writeProgram(t, brokenProgram),
	)
	require.NoError(t, err)
	assert.Contains(t, logs, "rung disabled")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	clearEnv(t)
	out := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "journal.db")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	assert.Contains(t, out.String(), "Tank Training Rig")
}

func TestRunInvalidArguments(t *testing.T) {
	clearEnv(t)
	db := filepath.Join(t.TempDir(), "journal.db")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown filter", []string{"--filter", "everything"}},
		{"zero scan time", []string{"--scan-time", "0s"}},
		{"negative history limit", []string{"--history-limit", "-1"}},
		{"missing program", []string{"/nonexistent/program.cue"}},
		{"force syntax", []string{"--force", "DI_3"}},
		{"force type", []string{"--force", "DI_3=12.5"}},
		{"force unknown tag", []string{"--force", "DI_99=true"}},
		{"fault unknown tag", []string{"--fault", "XX"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", db, "--duration", "10ms"}, tt.args...)
			_, _, err := executeRun(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestRunEnvironmentConfig(t *testing.T) {
	clearEnv(t)
	db := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("PLCSIM_DB", db)
	t.Setenv("PLCSIM_SCAN_TIME", "2")

	summary, logs, err := executeRun(t, "--duration", "20ms")
	require.NoError(t, err, logs)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	sess, err := st.ReadSession(context.Background(), summary.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Millisecond, sess.ScanTime)
}

func TestParseForce(t *testing.T) {
	tag, v, err := parseForce("DI_3=true")
	require.NoError(t, err)
	assert.Equal(t, "DI_3", tag)
	assert.Equal(t, true, v)

	tag, v, err = parseForce(" AI_0 = 72.5 ")
	require.NoError(t, err)
	assert.Equal(t, "AI_0", tag)
	assert.Equal(t, 72.5, v)

	_, _, err = parseForce("=1")
	assert.Error(t, err)
	_, _, err = parseForce("AI_0=hot")
	assert.Error(t, err)
}
