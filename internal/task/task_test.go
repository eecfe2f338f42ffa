package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averlon/keygate/logger"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	return NewManager(context.Background(), logger.GetLogger())
}

func TestManager_StartRunsUntilFalse(t *testing.T) {
	mgr := newTestManager(t)

	var runs atomic.Int32

	err := mgr.Start("counter", func() bool {
		return runs.Add(1) < 5
	})
	require.NoError(t, err)

	mgr.Wait()
	assert.Equal(t, int32(5), runs.Load())
	assert.Equal(t, 0, mgr.Count())
}

func TestManager_StopCancelsRunningTasks(t *testing.T) {
	mgr := newTestManager(t)

	started := make(chan struct{})

	var once atomic.Bool

	err := mgr.Start("forever", func() bool {
		if once.CompareAndSwap(false, true) {
			close(started)
		}

		time.Sleep(time.Millisecond)

		return true
	})
	require.NoError(t, err)

	<-started
	mgr.Stop()
	mgr.Wait()

	assert.Equal(t, 0, mgr.Count())
}

func TestManager_StartAfterStop(t *testing.T) {
	mgr := newTestManager(t)

	mgr.Stop()

	err := mgr.Start("late", func() bool { return false })
	require.Error(t, err)

	// Wait recreates the context so the manager can be reused.
	mgr.Wait()
	require.NoError(t, mgr.Start("again", func() bool { return false }))
	mgr.Wait()
}

func TestManager_StartInterval(t *testing.T) {
	mgr := newTestManager(t)

	var ticks atomic.Int32

	_, err := mgr.StartInterval("ticker", func() bool {
		return ticks.Add(1) < 3
	}, 10*time.Millisecond, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return ticks.Load() == 3
	}, 2*time.Second, 5*time.Millisecond)

	mgr.Wait()
}

func TestManager_StartIntervalRunNow(t *testing.T) {
	mgr := newTestManager(t)

	var ticks atomic.Int32

	_, err := mgr.StartInterval("once", func() bool {
		ticks.Add(1)

		return false
	}, time.Hour, true)
	require.NoError(t, err)

	assert.Equal(t, int32(1), ticks.Load(), "runNow executes before the first tick")
	mgr.Wait()
}

func TestManager_StartIntervalDuplicateName(t *testing.T) {
	mgr := newTestManager(t)

	_, err := mgr.StartInterval("dup", func() bool { return true }, time.Hour, false)
	require.NoError(t, err)

	_, err = mgr.StartInterval("dup", func() bool { return true }, time.Hour, false)
	require.Error(t, err)

	mgr.Stop()
	mgr.Wait()
}

func TestManager_StartIntervalInvalidInterval(t *testing.T) {
	mgr := newTestManager(t)

	_, err := mgr.StartInterval("bad", func() bool { return true }, 0, false)
	require.Error(t, err)
}

func TestManager_StopInterval(t *testing.T) {
	mgr := newTestManager(t)

	_, err := mgr.StartInterval("ticker", func() bool { return true }, time.Hour, false)
	require.NoError(t, err)

	require.NoError(t, mgr.StopInterval("ticker"))
	require.Error(t, mgr.StopInterval("ticker"), "second stop finds nothing")

	mgr.Stop()
	mgr.Wait()
}

func TestManager_PanicRecovery(t *testing.T) {
	mgr := newTestManager(t)

	err := mgr.Start("panicky", func() bool {
		panic("boom")
	})
	require.NoError(t, err)

	// The panic must be contained; Wait returns instead of crashing the
	// test binary.
	mgr.Wait()
	assert.Equal(t, 0, mgr.Count())
}

func TestManager_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mgr := NewManager(ctx, logger.GetLogger())

	err := mgr.Start("ctx-bound", func() bool {
		time.Sleep(time.Millisecond)

		return true
	})
	require.NoError(t, err)

	cancel()
	mgr.Wait()
	assert.Equal(t, 0, mgr.Count())
}
