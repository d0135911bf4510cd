package core

import (
	"time"

	"nitrous-service/internal/types"
)

// triggerEdge carries the one-shot conditions that exist only at the moment
// an input setter runs: the trans-brake falling edge and a new gear
// selection. The periodic monitor loop always passes the zero value, so
// release-class triggers fire exactly once per edge and never on repeated
// polls of an unchanged input.
type triggerEdge struct {
	brakeReleased bool
	gearSelected  bool
}

type decision int

const (
	decisionNone decision = iota
	decisionActivate
	decisionDeactivate
)

// stageTriggerFires reports whether an inactive stage's start trigger is
// newly satisfied.
func stageTriggerFires(st *types.Stage, in types.InputState, edge triggerEdge, active map[int]time.Time) bool {
	switch st.StartTrigger {
	case types.TriggerTransBrakeRelease:
		return edge.brakeReleased
	case types.TriggerShifterInput:
		return edge.gearSelected && in.ShifterGear != types.GearNone && in.ShifterGear == st.ExpectedGear
	case types.TriggerStagePrevious:
		if st.Number <= 1 {
			return false
		}
		_, prevActive := active[st.Number-1]
		return prevActive
	default: // manual never auto-fires
		return false
	}
}

// stageTriggerHolds reports whether an Instant stage's start condition
// still holds. Manual stages are handled by the caller: they stay engaged
// until disabled or explicitly released.
func stageTriggerHolds(st *types.Stage, in types.InputState, active map[int]time.Time) bool {
	switch st.StartTrigger {
	case types.TriggerTransBrakeRelease:
		return !in.TransBrakeActive
	case types.TriggerShifterInput:
		return in.ShifterGear != types.GearNone && in.ShifterGear == st.ExpectedGear
	case types.TriggerStagePrevious:
		_, prevActive := active[st.Number-1]
		return prevActive
	default:
		return true
	}
}

// evaluateStage is the pure per-stage decision function. It never touches
// hardware; the caller applies the returned transition exactly once.
func evaluateStage(st *types.Stage, in types.InputState, edge triggerEdge, active map[int]time.Time, now time.Time) decision {
	startedAt, isActive := active[st.Number]

	if !st.Enabled || st.Mode == types.ModeOff {
		if isActive {
			return decisionDeactivate
		}
		return decisionNone
	}

	if isActive {
		switch st.Mode {
		case types.ModeTimed:
			if st.HoldOnPedal && in.ThrottlePedaling {
				// Expiry deferred while the driver is pedaling.
				return decisionNone
			}
			if now.Sub(startedAt) >= st.ActivationTime {
				return decisionDeactivate
			}
		case types.ModeInstant:
			if st.StartTrigger != types.TriggerManual && !stageTriggerHolds(st, in, active) {
				return decisionDeactivate
			}
		}
		return decisionNone
	}

	if stageTriggerFires(st, in, edge, active) {
		return decisionActivate
	}
	return decisionNone
}

// timerTriggerFires reports whether an inactive timer's start trigger is
// newly satisfied. A zero gear filter matches any selected gear. The
// stage-previous vocabulary cascades timer-to-timer: timer N starts when
// timer N-1 is running.
func timerTriggerFires(tm *types.Timer, in types.InputState, edge triggerEdge, activeTimers map[int]time.Time) bool {
	switch tm.StartTrigger {
	case types.TriggerTransBrakeRelease:
		return edge.brakeReleased
	case types.TriggerShifterInput:
		if !edge.gearSelected || in.ShifterGear == types.GearNone {
			return false
		}
		return tm.GearFilter == types.GearNone || tm.GearFilter == in.ShifterGear
	case types.TriggerStagePrevious:
		_, prevActive := activeTimers[tm.ID-1]
		return prevActive
	default:
		return false
	}
}

// evaluateTimer decides one timer's transition: expiry when the elapsed
// time reaches the configured duration, activation when the trigger is
// newly satisfied.
func evaluateTimer(tm *types.Timer, in types.InputState, edge triggerEdge, activeTimers map[int]time.Time, now time.Time) decision {
	startedAt, isActive := activeTimers[tm.ID]

	if !tm.Enabled {
		if isActive {
			return decisionDeactivate
		}
		return decisionNone
	}

	if isActive {
		if now.Sub(startedAt) >= tm.Duration {
			return decisionDeactivate
		}
		return decisionNone
	}

	if timerTriggerFires(tm, in, edge, activeTimers) {
		return decisionActivate
	}
	return decisionNone
}

// evaluateLocked runs one full evaluation pass over stages then timers,
// applying transitions as it goes. Stages are visited in ascending number
// order so a cascade fires in the same pass its predecessor activates in,
// and a cascade following a timed deactivation is caught one pass later.
// Caller must hold c.mu.
func (c *Controller) evaluateLocked(edge triggerEdge, now time.Time) {
	for _, n := range c.stageOrder {
		st := c.stages[n]
		switch evaluateStage(st, c.inputs, edge, c.activeStages, now) {
		case decisionActivate:
			if c.armed {
				c.activateStageLocked(st, now)
			}
		case decisionDeactivate:
			c.deactivateStageLocked(st)
		}
	}

	for _, id := range c.timerOrder {
		tm := c.timers[id]
		switch evaluateTimer(tm, c.inputs, edge, c.activeTimers, now) {
		case decisionActivate:
			if c.armed {
				c.activeTimers[id] = now
				c.logger.Debugf("Timer %d started", id)
			}
		case decisionDeactivate:
			delete(c.activeTimers, id)
			c.logger.Debugf("Timer %d expired", id)
		}
	}
}
