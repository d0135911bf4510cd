package core

import "nitrous-service/internal/types"

// Input setters. Each setter updates the live input state under the shared
// lock and, when the change constitutes a release edge or a new gear
// selection, evaluates and applies every matching trigger synchronously
// within the same call. This is the low-latency staging-interrupt path; it
// does not wait for the next monitor tick.

// SetTransBrakeState records the trans-brake signal. The falling edge
// (engaged to released) is the staging interrupt for trans-brake-release
// triggers and fires them exactly once per release.
func (c *Controller) SetTransBrakeState(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.inputs.TransBrakeActive
	c.inputs.TransBrakeActive = active
	if !prev || active {
		return
	}

	now := c.now()
	c.lastInterrupt = now
	c.logger.Debugf("Trans-brake released, running staging interrupt")
	c.evaluateLocked(triggerEdge{brakeReleased: true}, now)
}

// SetClutchState records the clutch signal. The clutch is not part of the
// trigger vocabulary; it is tracked for status display.
func (c *Controller) SetClutchState(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs.ClutchActive = active
}

// SetShifterGear records the selected gear (types.GearNone for neutral).
// A new gear selection immediately evaluates shifter-input triggers.
func (c *Controller) SetShifterGear(gear int) {
	if gear < 0 {
		gear = types.GearNone
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.inputs.ShifterGear
	c.inputs.ShifterGear = gear
	if gear == prev || gear == types.GearNone {
		return
	}

	now := c.now()
	c.lastInterrupt = now
	c.logger.Debugf("Gear %d selected, running staging interrupt", gear)
	c.evaluateLocked(triggerEdge{gearSelected: true}, now)
}

// SetThrottlePedaling records the throttle-pedaling signal. When pedaling
// starts, active stages with start-over behavior have their activation
// start reset to now; hold stages keep their already-elapsed time counting
// toward expiry.
func (c *Controller) SetThrottlePedaling(pedaling bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.inputs.ThrottlePedaling
	c.inputs.ThrottlePedaling = pedaling
	if prev || !pedaling {
		return
	}

	now := c.now()
	for n := range c.activeStages {
		if c.stages[n].TimerBehavior == types.BehaviorStartOver {
			c.activeStages[n] = now
			c.logger.Debugf("Stage %d timer restarted on pedal", n)
		}
	}
}

// GetInputState returns a copy of the live input values.
func (c *Controller) GetInputState() types.InputState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs
}
