package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plcsim/internal/testutil"
)

func TestPeriodicTask(t *testing.T) {
	src := testutil.NewManualTickSource()
	factory := func(d time.Duration) Ticker { return src.NewTicker(d) }

	var calls atomic.Int32
	task := startTask(factory, time.Second, func() { calls.Add(1) })

	require.Equal(t, 1, src.Tick())
	require.Equal(t, 1, src.Tick())
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	task.Stop()
	task.Stop()
	assert.Equal(t, 0, src.Tick())
	assert.Equal(t, int32(2), calls.Load())
}

func TestPeriodicTask_StopWaitsForCallback(t *testing.T) {
	src := testutil.NewManualTickSource()
	factory := func(d time.Duration) Ticker { return src.NewTicker(d) }

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	task := startTask(factory, time.Second, func() {
		close(entered)
		<-release
		finished.Store(true)
	})

	go src.Tick()
	<-entered

	stopped := make(chan struct{})
	go func() {
		task.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the callback was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-stopped
	assert.True(t, finished.Load())
}

func TestPeriodicTask_NilStop(t *testing.T) {
	var task *periodicTask
	assert.NotPanics(t, task.Stop)
}

func TestRealTicker(t *testing.T) {
	tk := NewRealTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker never fired")
	}
}
