package substitute

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchdog_DisarmBeforeTimeoutStaysRunning(t *testing.T) {
	done := make(chan struct{})
	var cancelled, escalated atomic.Bool
	w := armWatchdog(time.Hour, time.Hour, done, func() { cancelled.Store(true) }, func(time.Duration) { escalated.Store(true) })

	assert.True(t, w.disarm())
	assert.Equal(t, StateRunning, w.State())
	assert.False(t, cancelled.Load())
	assert.False(t, escalated.Load())

	select {
	case <-w.Expired():
		t.Fatal("disarmed watchdog expired")
	default:
	}
}

func TestWatchdog_TimeoutThenCancelled(t *testing.T) {
	done := make(chan struct{})
	var escalated atomic.Bool
	w := armWatchdog(10*time.Millisecond, time.Second, done, func() { close(done) }, func(time.Duration) { escalated.Store(true) })

	<-w.Expired()
	<-w.Resolved()
	assert.Equal(t, StateCancelled, w.State())
	assert.False(t, escalated.Load())
	assert.False(t, w.disarm())
}

func TestWatchdog_TimeoutThenEscalated(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	var cancels, escalations atomic.Int32
	var elapsed atomic.Int64
	w := armWatchdog(10*time.Millisecond, 30*time.Millisecond, done,
		func() { cancels.Add(1) },
		func(d time.Duration) {
			escalations.Add(1)
			elapsed.Store(int64(d))
		})

	select {
	case <-w.Resolved():
	case <-time.After(time.Second):
		t.Fatal("watchdog did not resolve")
	}
	require.Equal(t, StateEscalated, w.State())
	assert.Equal(t, int32(1), cancels.Load())
	assert.Equal(t, int32(1), escalations.Load())
	assert.GreaterOrEqual(t, time.Duration(elapsed.Load()), 40*time.Millisecond)
}

func TestWatchdog_AbandonKeepsTimersArmed(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	var cancels, escalations atomic.Int32
	var elapsed atomic.Int64
	w := armWatchdog(20*time.Millisecond, 20*time.Millisecond, done,
		func() { cancels.Add(1) },
		func(d time.Duration) {
			escalations.Add(1)
			elapsed.Store(int64(d))
		})

	w.abandon()
	assert.Equal(t, int32(1), cancels.Load())
	assert.Equal(t, StateRunning, w.State(), "abandon does not skip the primary timeout")

	select {
	case <-w.Resolved():
	case <-time.After(time.Second):
		t.Fatal("abandoned watchdog did not resolve")
	}
	assert.Equal(t, StateEscalated, w.State())
	assert.Equal(t, int32(1), escalations.Load())
	assert.GreaterOrEqual(t, time.Duration(elapsed.Load()), 40*time.Millisecond)
}

func TestWatchdog_AbandonedWorkerThatStopsIsCancelled(t *testing.T) {
	done := make(chan struct{})
	var once sync.Once
	var escalated atomic.Bool
	w := armWatchdog(20*time.Millisecond, time.Second, done,
		func() { once.Do(func() { close(done) }) },
		func(time.Duration) { escalated.Store(true) })

	w.abandon()
	select {
	case <-w.Resolved():
	case <-time.After(time.Second):
		t.Fatal("abandoned watchdog did not resolve")
	}
	assert.Equal(t, StateCancelled, w.State())
	assert.False(t, escalated.Load())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "escalated", StateEscalated.String())
	assert.Equal(t, "unknown", State(42).String())
}
