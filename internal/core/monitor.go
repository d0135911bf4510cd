package core

import (
	"context"
	"fmt"
	"time"
)

const (
	stopTimeout        = 2 * time.Second
	tickFailureBackoff = 100 * time.Millisecond
)

// Start spawns the monitor loop worker. Starting an already running
// controller is a no-op.
func (c *Controller) Start() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.running {
		c.logger.Debugf("Monitor loop already running")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(ctx)
	c.logger.Infof("Monitor loop started (tick %s)", c.tick)
	return nil
}

// Stop signals the monitor worker and waits up to stopTimeout for it to
// exit. It is safe to call more than once; if the worker fails to exit in
// time a warning is logged and Stop returns rather than hanging the caller.
func (c *Controller) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if !c.running {
		return
	}
	c.cancel()

	select {
	case <-c.done:
		c.logger.Infof("Monitor loop stopped")
	case <-time.After(stopTimeout):
		c.logger.Warnf("Monitor worker did not stop within %s", stopTimeout)
	}
	c.running = false
}

// run is the monitor loop worker. The cancellation context is checked once
// per tick; a failed tick is logged and the loop continues after a short
// backoff so one bad evaluation never halts future ticks.
func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.tickOnce(); err != nil {
				c.logger.Errorf("Monitor tick failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(tickFailureBackoff):
				}
			}
		}
	}
}

// tickOnce performs one monitor pass: relay health polling, a full
// stage/timer re-evaluation (catching time-based expiry and cascades the
// staging-interrupt path cannot see, such as a stage firing because its
// predecessor's timed deactivation ran this same tick), and a status
// snapshot. The snapshot is delivered to observers after the lock is
// released.
func (c *Controller) tickOnce() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in monitor tick: %v", r)
		}
	}()

	now := c.now()

	c.mu.Lock()
	c.checkRelayHealthLocked(now)
	c.evaluateLocked(triggerEdge{}, now)
	snap := c.snapshotLocked(now)
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	c.deliver(snap, observers)
	return nil
}
