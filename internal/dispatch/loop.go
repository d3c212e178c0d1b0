package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/studio-automation/internal/pkg/distlock"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// PassFunc is one dispatch pass.
type PassFunc func(ctx context.Context) (Result, error)

// Loop runs a pass on a fixed interval. Each tick takes a distributed lock
// so only one process dispatches a channel at a time; a tick that cannot
// get the lock is skipped.
type Loop struct {
	name     string
	interval time.Duration
	pass     PassFunc
	locks    *distlock.Factory

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewLoop creates a Loop. locks may be nil for single-instance deployments.
func NewLoop(name string, interval time.Duration, locks *distlock.Factory, pass PassFunc) *Loop {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Loop{name: name, interval: interval, pass: pass, locks: locks}
}

// Start begins the polling loop.
func (l *Loop) Start() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("%s loop already running", l.name)
	}
	l.running = true
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.mu.Unlock()

	logger.Info("dispatch loop starting", "loop", l.name, "interval", l.interval.String())

	l.wg.Add(1)
	go l.run()
	return nil
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
	logger.Info("dispatch loop stopped", "loop", l.name)
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.Tick(l.ctx)
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.Tick(l.ctx)
		}
	}
}

// Tick runs one pass under the loop's lock. It reports whether the pass ran.
// The lock is refreshed while the pass runs; if it is lost anyway the pass
// context is cancelled so no new sends start.
func (l *Loop) Tick(ctx context.Context) bool {
	ttl := 2*l.interval + time.Minute
	lock := l.locks.New("dispatch:"+l.name, ttl)
	ran, err := distlock.RunHeld(ctx, lock, ttl, func(ctx context.Context) error {
		if _, err := l.pass(ctx); err != nil {
			return err
		}
		if cause := context.Cause(ctx); errors.Is(cause, distlock.ErrLockLost) {
			return cause
		}
		return nil
	})
	switch {
	case errors.Is(err, distlock.ErrLockLost):
		logger.Warn("dispatch lock lost, pass cut short", "loop", l.name, "error", err)
	case err != nil:
		logger.Error("dispatch pass failed", "loop", l.name, "error", err)
	case !ran:
		logger.Debug("dispatch tick skipped, lock held elsewhere", "loop", l.name)
	}
	return ran
}
