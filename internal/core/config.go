package core

import (
	"strconv"
	"time"

	"nitrous-service/internal/types"
)

// StageUpdate is a sparse set of stage fields to change. Nil fields keep
// their previous value.
type StageUpdate struct {
	Enabled        *bool
	Mode           *types.StageMode
	ActivationTime *time.Duration
	TimerBehavior  *types.TimerBehavior
	StartTrigger   *types.TriggerKind
	ExpectedGear   *int
	RelayChannel   *int
	ShotSizeHP     *float64
	HoldOnPedal    *bool
}

// TimerUpdate is a sparse set of timer fields to change.
type TimerUpdate struct {
	Enabled      *bool
	Duration     *time.Duration
	StartTrigger *types.TriggerKind
	GearFilter   *int
}

// UpdateStageConfig atomically replaces the supplied fields of one stage.
// On an unknown stage number or any invalid field value it returns a
// ConfigError and changes nothing. Disabling or re-triggering behavior
// takes effect on the next evaluation; a relay channel change on an engaged
// stage moves the energized output in the same call.
func (c *Controller) UpdateStageConfig(number int, u StageUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.stages[number]
	if !ok {
		return configErrorf("stage", number, "unknown stage")
	}

	updated := *st
	if u.Enabled != nil {
		updated.Enabled = *u.Enabled
	}
	if u.Mode != nil {
		updated.Mode = *u.Mode
	}
	if u.ActivationTime != nil {
		updated.ActivationTime = *u.ActivationTime
	}
	if u.TimerBehavior != nil {
		updated.TimerBehavior = *u.TimerBehavior
	}
	if u.StartTrigger != nil {
		updated.StartTrigger = *u.StartTrigger
	}
	if u.ExpectedGear != nil {
		updated.ExpectedGear = *u.ExpectedGear
	}
	if u.RelayChannel != nil {
		updated.RelayChannel = *u.RelayChannel
	}
	if u.ShotSizeHP != nil {
		updated.ShotSizeHP = *u.ShotSizeHP
	}
	if u.HoldOnPedal != nil {
		updated.HoldOnPedal = *u.HoldOnPedal
	}

	if err := validateStage(&updated); err != nil {
		return configErrorf("stage", number, "%v", err)
	}

	if _, active := c.activeStages[number]; active && updated.RelayChannel != st.RelayChannel {
		c.setRelayLocked(st.RelayChannel, false)
		c.setRelayLocked(updated.RelayChannel, true)
	}

	*st = updated
	c.logger.Debugf("Stage %d config updated", number)
	return nil
}

// UpdateTimerConfig atomically replaces the supplied fields of one timer.
func (c *Controller) UpdateTimerConfig(id int, u TimerUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tm, ok := c.timers[id]
	if !ok {
		return configErrorf("timer", id, "unknown timer")
	}

	updated := *tm
	if u.Enabled != nil {
		updated.Enabled = *u.Enabled
	}
	if u.Duration != nil {
		updated.Duration = *u.Duration
	}
	if u.StartTrigger != nil {
		updated.StartTrigger = *u.StartTrigger
	}
	if u.GearFilter != nil {
		updated.GearFilter = *u.GearFilter
	}

	if err := validateTimer(&updated); err != nil {
		return configErrorf("timer", id, "%v", err)
	}

	*tm = updated
	c.logger.Debugf("Timer %d config updated", id)
	return nil
}

// ApplyStageField translates one "<field> <value>" command-surface update
// into a sparse StageUpdate. Unknown fields and unparseable values come
// back as ConfigError.
func (c *Controller) ApplyStageField(number int, field, value string) error {
	var u StageUpdate
	switch field {
	case "enabled":
		on, ok := parseBoolField(value)
		if !ok {
			return configErrorf("stage", number, "invalid %s value %q", field, value)
		}
		u.Enabled = &on
	case "mode":
		m := types.StageMode(value)
		u.Mode = &m
	case "activation-time-ms":
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return configErrorf("stage", number, "invalid %s value %q", field, value)
		}
		d := time.Duration(ms) * time.Millisecond
		u.ActivationTime = &d
	case "timer-behavior":
		b := types.TimerBehavior(value)
		u.TimerBehavior = &b
	case "start-trigger":
		tr := types.TriggerKind(value)
		u.StartTrigger = &tr
	case "expected-gear":
		g, err := strconv.Atoi(value)
		if err != nil {
			return configErrorf("stage", number, "invalid %s value %q", field, value)
		}
		u.ExpectedGear = &g
	case "relay-channel":
		ch, err := strconv.Atoi(value)
		if err != nil {
			return configErrorf("stage", number, "invalid %s value %q", field, value)
		}
		u.RelayChannel = &ch
	case "shot-size-hp":
		hp, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return configErrorf("stage", number, "invalid %s value %q", field, value)
		}
		u.ShotSizeHP = &hp
	case "hold-on-pedal":
		on, ok := parseBoolField(value)
		if !ok {
			return configErrorf("stage", number, "invalid %s value %q", field, value)
		}
		u.HoldOnPedal = &on
	default:
		return configErrorf("stage", number, "unknown field %q", field)
	}
	return c.UpdateStageConfig(number, u)
}

// ApplyTimerField translates one "<field> <value>" command-surface update
// into a sparse TimerUpdate.
func (c *Controller) ApplyTimerField(id int, field, value string) error {
	var u TimerUpdate
	switch field {
	case "enabled":
		on, ok := parseBoolField(value)
		if !ok {
			return configErrorf("timer", id, "invalid %s value %q", field, value)
		}
		u.Enabled = &on
	case "duration-ms":
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return configErrorf("timer", id, "invalid %s value %q", field, value)
		}
		d := time.Duration(ms) * time.Millisecond
		u.Duration = &d
	case "start-trigger":
		tr := types.TriggerKind(value)
		u.StartTrigger = &tr
	case "gear-filter":
		g, err := strconv.Atoi(value)
		if err != nil {
			return configErrorf("timer", id, "invalid %s value %q", field, value)
		}
		u.GearFilter = &g
	default:
		return configErrorf("timer", id, "unknown field %q", field)
	}
	return c.UpdateTimerConfig(id, u)
}

func parseBoolField(value string) (bool, bool) {
	switch value {
	case "on", "true":
		return true, true
	case "off", "false":
		return false, true
	}
	return false, false
}
