package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanderhaka/jarve-agency-sub002/internal/testutil"
)

type countingSweeper struct {
	runs atomic.Int32
	err  error
}

func (c *countingSweeper) Sweep(context.Context) (SweepResult, error) {
	n := c.runs.Add(1)
	return SweepResult{Checked: int(n)}, c.err
}

func TestScheduler_RunsImmediatelyAndOnTrigger(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewScheduler(sweeper, time.Hour, testutil.Logger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sweeper.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.Trigger()
	require.Eventually(t, func() bool { return sweeper.runs.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	status := s.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 2, status.RunCount)
	assert.Equal(t, 2, status.Result.Checked)
	assert.Empty(t, status.LastErr)
}

func TestScheduler_Ticks(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewScheduler(sweeper, 10*time.Millisecond, testutil.Logger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return sweeper.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_RecordsErrorsAndKeepsRunning(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("store locked")}
	s := NewScheduler(sweeper, 10*time.Millisecond, testutil.Logger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return sweeper.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.Status().LastErr == "store locked" }, time.Second, 5*time.Millisecond)
}

func TestScheduler_TriggerNeverBlocks(t *testing.T) {
	s := NewScheduler(&countingSweeper{}, 0, nil)
	for i := 0; i < 10; i++ {
		s.Trigger()
	}
	assert.Equal(t, DefaultInterval, s.interval)
}

func TestScheduler_StampsLastRunFromClock(t *testing.T) {
	clk := testutil.NewDeterministicClock()
	s := NewScheduler(&countingSweeper{}, time.Hour, testutil.Logger(t), WithSchedulerClock(clk))

	s.runOnce(context.Background())
	assert.Equal(t, testutil.Epoch, s.Status().LastRun)
	assert.Equal(t, 1, s.Status().RunCount)
}
