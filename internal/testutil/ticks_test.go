package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualTickSource_DeliversToActiveTickers(t *testing.T) {
	src := NewManualTickSource()
	a := src.NewTicker(10 * time.Millisecond)
	b := src.NewTicker(time.Second)

	got := make(chan string, 4)
	go func() {
		for range a.C() {
			got <- "a"
		}
	}()
	go func() {
		for range b.C() {
			got <- "b"
		}
	}()

	assert.Equal(t, 2, src.Tick())
	assert.ElementsMatch(t, []string{<-got, <-got}, []string{"a", "b"})

	b.Stop()
	assert.Equal(t, 1, src.Tick())
	assert.Equal(t, "a", <-got)

	assert.Equal(t, 2, src.Created())
	require.Len(t, src.Active(), 1)
	assert.Equal(t, 10*time.Millisecond, src.Active()[0].Period)
}

func TestManualTicker_StopUnblocksDelivery(t *testing.T) {
	src := NewManualTickSource()
	tk := src.NewTicker(time.Second)

	done := make(chan bool)
	go func() { done <- tk.Tick() }()

	time.Sleep(10 * time.Millisecond)
	tk.Stop()
	tk.Stop() // idempotent

	select {
	case delivered := <-done:
		assert.False(t, delivered)
	case <-time.After(time.Second):
		t.Fatal("Tick did not unblock after Stop")
	}
	assert.True(t, tk.Stopped())
	assert.Equal(t, 0, src.Tick())
}
