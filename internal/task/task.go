// Package task manages the lifecycle of named goroutines used by the gate:
// the serial read pump, the heartbeat monitor interval, and event delivery.
//
// The Manager uses a context.Context to manage goroutine lifecycles. When
// the context is canceled, all running goroutines are signaled to stop, and
// Wait blocks until they have terminated. Task bodies run with panic
// protection so a misbehaving callback cannot take down the host process.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/averlon/keygate/logger"
)

// Func represents a function executed repeatedly by a managed goroutine.
// It should return true to continue running, or false to stop the goroutine.
type Func func() bool

// Manager manages named goroutines with shared cancellation.
type Manager struct {
	pctx    context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logger.Logger
	count   atomic.Int32
	tickers sync.Map     // map[string]*time.Ticker
	mu      sync.RWMutex // protects ctx and cancel
}

// NewManager creates a new Manager with the given context as the parent
// context and logger.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)
	return mgr
}

// getContext safely returns the current context.
func (mgr *Manager) getContext() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a new goroutine that invokes taskFunc in a loop until the
// function returns false or the manager is stopped.
func (mgr *Manager) Start(name string, taskFunc Func) error {
	mgr.logger.Debug("start task", "name", name)

	ctx := mgr.getContext()
	select {
	case <-ctx.Done():
		return fmt.Errorf("task manager already stopped")
	default:
	}

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug(fmt.Sprintf("%s task terminated", name), "task_count", mgr.Count())
		}()

		mgr.runLoop(name, taskFunc)
	}()

	return nil
}

// StartInterval starts a new goroutine that executes taskFunc at the given
// interval. If runNow is true, taskFunc is executed once before the first
// tick. The returned ticker can be used to adjust or stop the interval.
func (mgr *Manager) StartInterval(name string, taskFunc Func, interval time.Duration, runNow bool) (*time.Ticker, error) {
	mgr.logger.Debug("start interval task", "name", name, "interval", interval, "runNow", runNow)

	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval: %v", interval)
	}

	ticker := time.NewTicker(interval)

	if _, loaded := mgr.tickers.LoadOrStore(name, ticker); loaded {
		ticker.Stop()
		return nil, fmt.Errorf("interval task %s already exists", name)
	}

	cleanup := func() {
		ticker.Stop()
		mgr.tickers.Delete(name)
	}

	if runNow {
		if !mgr.callWithRecover(name, taskFunc) {
			cleanup()
			return ticker, nil
		}
	}

	err := mgr.Start(name, func() bool {
		ctx := mgr.getContext()
		select {
		case <-ctx.Done():
			cleanup()
			return false
		case <-ticker.C:
			if !mgr.callWithRecover(name, taskFunc) {
				cleanup()
				return false
			}
			return true
		}
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	return ticker, nil
}

// StopInterval stops the interval task with the given name.
func (mgr *Manager) StopInterval(name string) error {
	if val, ok := mgr.tickers.LoadAndDelete(name); ok {
		if ticker, ok := val.(*time.Ticker); ok {
			ticker.Stop()
			return nil
		}

		return fmt.Errorf("ticker %s is not a *time.Ticker", name)
	}

	return fmt.Errorf("ticker %s not found", name)
}

// Stop signals all running goroutines to terminate.
func (mgr *Manager) Stop() {
	mgr.tickers.Range(func(key, value any) bool {
		if ticker, ok := value.(*time.Ticker); ok {
			ticker.Stop()
		}

		return true
	})

	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for all goroutines to terminate, then recreates the internal
// context so the manager can be reused.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// Count returns the number of currently running goroutines.
func (mgr *Manager) Count() int {
	return int(mgr.count.Load())
}

// callWithRecover calls a task function with panic protection.
func (mgr *Manager) callWithRecover(name string, fn Func) bool {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	return fn()
}

// runLoop runs a task function in a loop with context cancellation.
func (mgr *Manager) runLoop(name string, taskFunc Func) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task loop", "name", name, "panic", r)
		}
	}()

	for {
		ctx := mgr.getContext()
		select {
		case <-ctx.Done():
			return
		default:
			if !taskFunc() {
				return
			}
		}
	}
}
