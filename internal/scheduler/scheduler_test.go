package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextSnapshotDelay(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"top of minute", base, 63 * time.Second},
		{"mid minute", base.Add(30 * time.Second), 33 * time.Second},
		{"before second 3 still waits for next minute", base.Add(time.Second), 62 * time.Second},
		{"late in minute", base.Add(59 * time.Second), 5 * time.Second},
		{"clamped to minimum", base.Add(59*time.Second + 500*time.Millisecond), 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextSnapshotDelay(tt.now, 3, 5*time.Second))
		})
	}
}

func TestTimers_SetFires(t *testing.T) {
	ts := NewTimers()
	fired := make(chan struct{})
	ts.Set("stocks", 10*time.Millisecond, func() { close(fired) })
	assert.True(t, ts.Pending("stocks"))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Eventually(t, func() bool { return !ts.Pending("stocks") }, time.Second, 5*time.Millisecond)
}

func TestTimers_SetReplaces(t *testing.T) {
	ts := NewTimers()
	var first, second int32
	ts.Set("stocks", 20*time.Millisecond, func() { atomic.AddInt32(&first, 1) })
	ts.Set("stocks", 40*time.Millisecond, func() { atomic.AddInt32(&second, 1) })

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&second) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&first), "replaced timer must not fire")
}

func TestTimers_Clear(t *testing.T) {
	ts := NewTimers()
	var n int32
	ts.Set("stocks", 20*time.Millisecond, func() { atomic.AddInt32(&n, 1) })
	assert.True(t, ts.Clear("stocks"))
	assert.False(t, ts.Clear("stocks"))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&n))
}

func TestTimers_StopAll(t *testing.T) {
	ts := NewTimers()
	var n int32
	for _, name := range []string{"a", "b", "c"} {
		ts.Set(name, 20*time.Millisecond, func() { atomic.AddInt32(&n, 1) })
	}
	ts.Stop()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&n))
	assert.False(t, ts.Pending("a"))
}

func TestCron_RejectsBadSpec(t *testing.T) {
	c := NewCron(nil)
	assert.Error(t, c.Add("refresh", "every minute", func() {}))
	require.NoError(t, c.Add("refresh", "@every 60s", func() {}))
	assert.Equal(t, 1, c.Len())
}

func TestCron_RunsUntilCancelled(t *testing.T) {
	c := NewCron(nil)
	var n int32
	require.NoError(t, c.Add("tick", "@every 1s", func() { atomic.AddInt32(&n, 1) }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&n) >= 1 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
