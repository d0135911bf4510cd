package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nitrous-service/internal/logger"
	"nitrous-service/internal/types"
)

const (
	MinStages = 2
	MaxStages = 6
	MinTimers = 2
	MaxTimers = 10

	// DefaultTick is the monitor loop target period (best effort).
	DefaultTick = 10 * time.Millisecond
)

// Config is the fixed controller configuration. Stage, timer, relay and
// purge counts do not change for the lifetime of the controller; individual
// fields are mutated through the Update*Config calls.
type Config struct {
	Stages []types.Stage
	Timers []types.Timer
	Relays []types.Relay // optional per-channel overrides (MaxAmp, SplitSystem)
	Purges []types.PurgeChannel
	Tick   time.Duration // zero means DefaultTick
}

// Controller is the multi-stage nitrous injection control engine. One
// exclusive mutex guards the combined input state, active set, stage/timer
// configuration and relay/purge state; the staging-interrupt path in the
// input setters and the periodic monitor loop both run under it.
type Controller struct {
	logger *logger.Logger
	relays RelayIO

	mu           sync.Mutex
	stages       map[int]*types.Stage
	stageOrder   []int // ascending stage numbers, cascade evaluation order
	timers       map[int]*types.Timer
	timerOrder   []int
	relayBank    []types.Relay // indexed by channel
	purges       map[int]*types.PurgeChannel
	activePurges map[int]time.Time
	inputs       types.InputState
	activeStages map[int]time.Time
	activeTimers map[int]time.Time
	armed        bool
	lastInterrupt time.Time
	observers    []Observer

	now  func() time.Time
	tick time.Duration

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewController validates the configuration and builds a controller.
// Construction is fail-fast: a stage count outside 2-6 or a timer count
// outside 2-10 is rejected immediately, as is any invalid stage, timer or
// relay field, because the fixed-size relay/stage mapping assumed by the
// rest of the engine would otherwise be inconsistent.
func NewController(cfg Config, relays RelayIO, l *logger.Logger) (*Controller, error) {
	if n := len(cfg.Stages); n < MinStages || n > MaxStages {
		return nil, fmt.Errorf("stage count must be %d-%d, got %d", MinStages, MaxStages, n)
	}
	if n := len(cfg.Timers); n < MinTimers || n > MaxTimers {
		return nil, fmt.Errorf("timer count must be %d-%d, got %d", MinTimers, MaxTimers, n)
	}

	c := &Controller{
		logger:       l.WithTag("controller"),
		relays:       relays,
		stages:       make(map[int]*types.Stage, len(cfg.Stages)),
		timers:       make(map[int]*types.Timer, len(cfg.Timers)),
		relayBank:    make([]types.Relay, types.RelayChannelCount),
		purges:       make(map[int]*types.PurgeChannel, len(cfg.Purges)),
		activePurges: make(map[int]time.Time),
		activeStages: make(map[int]time.Time),
		activeTimers: make(map[int]time.Time),
		armed:        true,
		now:          time.Now,
		tick:         cfg.Tick,
	}
	if c.tick <= 0 {
		c.tick = DefaultTick
	}

	for i := range cfg.Stages {
		st := cfg.Stages[i]
		if _, dup := c.stages[st.Number]; dup {
			return nil, fmt.Errorf("duplicate stage number %d", st.Number)
		}
		if err := validateStage(&st); err != nil {
			return nil, err
		}
		c.stages[st.Number] = &st
		c.stageOrder = append(c.stageOrder, st.Number)
	}
	sort.Ints(c.stageOrder)
	for i, n := range c.stageOrder {
		if n != i+1 {
			return nil, fmt.Errorf("stage numbers must be contiguous 1..%d", len(c.stageOrder))
		}
	}

	for i := range cfg.Timers {
		tm := cfg.Timers[i]
		if _, dup := c.timers[tm.ID]; dup {
			return nil, fmt.Errorf("duplicate timer id %d", tm.ID)
		}
		if err := validateTimer(&tm); err != nil {
			return nil, err
		}
		c.timers[tm.ID] = &tm
		c.timerOrder = append(c.timerOrder, tm.ID)
	}
	sort.Ints(c.timerOrder)

	for ch := range c.relayBank {
		c.relayBank[ch] = types.Relay{
			ID:         ch + 1,
			Channel:    ch,
			Status:     types.RelayUnknown,
			FuseStatus: types.FuseUnknown,
		}
	}
	for _, r := range cfg.Relays {
		if r.Channel < 0 || r.Channel >= types.RelayChannelCount {
			return nil, fmt.Errorf("relay channel %d out of range", r.Channel)
		}
		c.relayBank[r.Channel].MaxAmp = r.MaxAmp
		c.relayBank[r.Channel].SplitSystem = r.SplitSystem
	}

	for i := range cfg.Purges {
		p := cfg.Purges[i]
		if _, dup := c.purges[p.ID]; dup {
			return nil, fmt.Errorf("duplicate purge id %d", p.ID)
		}
		p.FuseStatus = types.FuseUnknown
		c.purges[p.ID] = &p
	}

	return c, nil
}

func validateStage(st *types.Stage) error {
	if st.Number < 1 {
		return fmt.Errorf("stage number %d must be positive", st.Number)
	}
	if !validStageMode(st.Mode) {
		return fmt.Errorf("stage %d: invalid mode %q", st.Number, st.Mode)
	}
	if !validTrigger(st.StartTrigger) {
		return fmt.Errorf("stage %d: invalid start trigger %q", st.Number, st.StartTrigger)
	}
	if st.StartTrigger == types.TriggerStagePrevious && st.Number == 1 {
		return fmt.Errorf("stage 1 cannot use the stage-previous trigger")
	}
	if st.TimerBehavior != types.BehaviorStartOver && st.TimerBehavior != types.BehaviorHold {
		return fmt.Errorf("stage %d: invalid timer behavior %q", st.Number, st.TimerBehavior)
	}
	if st.ActivationTime < 0 {
		return fmt.Errorf("stage %d: negative activation time", st.Number)
	}
	if st.RelayChannel < 0 || st.RelayChannel >= types.RelayChannelCount {
		return fmt.Errorf("stage %d: relay channel %d out of range", st.Number, st.RelayChannel)
	}
	if st.ExpectedGear < 0 {
		return fmt.Errorf("stage %d: negative expected gear", st.Number)
	}
	return nil
}

func validateTimer(tm *types.Timer) error {
	if tm.ID < 1 {
		return fmt.Errorf("timer id %d must be positive", tm.ID)
	}
	if tm.Duration < 0 {
		return fmt.Errorf("timer %d: negative duration", tm.ID)
	}
	if !validTrigger(tm.StartTrigger) {
		return fmt.Errorf("timer %d: invalid start trigger %q", tm.ID, tm.StartTrigger)
	}
	if tm.GearFilter < 0 {
		return fmt.Errorf("timer %d: negative gear filter", tm.ID)
	}
	return nil
}

func validStageMode(m types.StageMode) bool {
	switch m {
	case types.ModeOff, types.ModeTimed, types.ModeInstant:
		return true
	}
	return false
}

func validTrigger(t types.TriggerKind) bool {
	switch t {
	case types.TriggerManual, types.TriggerTransBrakeRelease,
		types.TriggerShifterInput, types.TriggerStagePrevious:
		return true
	}
	return false
}

// SetArmed enables or disables the staging-interrupt path and monitor-loop
// activations. Disarming drops every engaged stage and de-energizes its
// relay; running timers are left to expire on their own.
func (c *Controller) SetArmed(armed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.armed == armed {
		return
	}
	c.armed = armed
	if armed {
		c.logger.Infof("Controller armed")
	} else {
		c.logger.Infof("Controller disarmed, dropping active stages")
		for _, n := range c.stageOrder {
			if _, active := c.activeStages[n]; active {
				c.deactivateStageLocked(c.stages[n])
			}
		}
	}
}

// ActivateStageManual engages a stage by explicit request. This is the only
// way a manual-trigger stage fires; it also works for other triggers as an
// operator override.
func (c *Controller) ActivateStageManual(number int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.stages[number]
	if !ok {
		return configErrorf("stage", number, "unknown stage")
	}
	if !st.Enabled || st.Mode == types.ModeOff {
		return configErrorf("stage", number, "stage is disabled")
	}
	if !c.armed {
		return fmt.Errorf("controller is disarmed")
	}
	if _, active := c.activeStages[number]; active {
		return nil
	}
	now := c.now()
	c.lastInterrupt = now
	c.activateStageLocked(st, now)
	// A manual activation can satisfy a following stage's cascade trigger.
	c.evaluateLocked(triggerEdge{}, now)
	return nil
}

// DeactivateStageManual disengages a stage by explicit request.
func (c *Controller) DeactivateStageManual(number int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.stages[number]
	if !ok {
		return configErrorf("stage", number, "unknown stage")
	}
	if _, active := c.activeStages[number]; !active {
		return nil
	}
	c.deactivateStageLocked(st)
	return nil
}

// StartTimerManual starts a timer countdown by explicit request.
func (c *Controller) StartTimerManual(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tm, ok := c.timers[id]
	if !ok {
		return configErrorf("timer", id, "unknown timer")
	}
	if !tm.Enabled {
		return configErrorf("timer", id, "timer is disabled")
	}
	if _, active := c.activeTimers[id]; active {
		return nil
	}
	c.activeTimers[id] = c.now()
	c.logger.Debugf("Timer %d started (manual)", id)
	return nil
}

// PurgeDuration returns the configured duration of a purge channel. The
// caller is responsible for scheduling DeactivatePurge; the engine keeps no
// background timing loop besides the monitor worker.
func (c *Controller) PurgeDuration(id int) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.purges[id]
	if !ok {
		return 0, false
	}
	return p.Duration, true
}

// activateStageLocked engages one stage and energizes its relay. Callers
// must hold c.mu and must only call this on an inactive stage, so each
// transition issues exactly one relay call.
func (c *Controller) activateStageLocked(st *types.Stage, now time.Time) {
	c.activeStages[st.Number] = now
	c.setRelayLocked(st.RelayChannel, true)
	c.logger.Infof("Stage %d active (relay %d, %.0f HP)", st.Number, st.RelayChannel, st.ShotSizeHP)
}

// deactivateStageLocked disengages one stage and de-energizes its relay.
func (c *Controller) deactivateStageLocked(st *types.Stage) {
	delete(c.activeStages, st.Number)
	c.setRelayLocked(st.RelayChannel, false)
	c.logger.Infof("Stage %d inactive (relay %d)", st.Number, st.RelayChannel)
}

// setRelayLocked writes one relay output. An out-of-range channel is a
// logged no-op, as is a hardware write failure; the active set is the
// authoritative record either way.
func (c *Controller) setRelayLocked(channel int, energized bool) {
	if channel < 0 || channel >= types.RelayChannelCount {
		c.logger.Warnf("Ignoring relay write to out-of-range channel %d", channel)
		return
	}
	if err := c.relays.SetRelay(channel, energized); err != nil {
		c.logger.Errorf("Failed to set relay %d=%v: %v", channel, energized, err)
		return
	}
	c.relayBank[channel].Energized = energized
}

// checkRelayHealthLocked polls relay and fuse fault feedback for every
// channel. Absent real hardware feedback an Unknown relay or fuse settles
// to Ok on its first check. Over-current is recorded and logged but no
// automatic cutoff is performed.
func (c *Controller) checkRelayHealthLocked(now time.Time) {
	for ch := range c.relayBank {
		h, err := c.relays.ReadHealth(ch)
		if err != nil {
			c.logger.Debugf("Health read failed for relay %d: %v", ch, err)
			continue
		}
		r := &c.relayBank[ch]
		switch {
		case h.Status != types.RelayUnknown:
			r.Status = h.Status
		case r.Status == types.RelayUnknown:
			r.Status = types.RelayOk
		}
		switch {
		case h.Fuse != types.FuseUnknown:
			r.FuseStatus = h.Fuse
		case r.FuseStatus == types.FuseUnknown:
			r.FuseStatus = types.FuseOk
		}
		r.CurrentAmp = h.CurrentAmp
		r.LastCheck = now
		if r.MaxAmp > 0 && r.CurrentAmp > r.MaxAmp {
			c.logger.Warnf("Relay %d over current: %.1fA > %.1fA", ch, r.CurrentAmp, r.MaxAmp)
		}
	}
	// Purge fuse state mirrors the bound relay channel.
	for _, p := range c.purges {
		if p.RelayChannel >= 0 && p.RelayChannel < types.RelayChannelCount {
			p.FuseStatus = c.relayBank[p.RelayChannel].FuseStatus
		}
	}
}

// Shutdown stops the monitor loop and de-energizes every engaged output.
func (c *Controller) Shutdown() {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.stageOrder {
		if _, active := c.activeStages[n]; active {
			c.deactivateStageLocked(c.stages[n])
		}
	}
	for id := range c.activePurges {
		p := c.purges[id]
		delete(c.activePurges, id)
		c.setRelayLocked(p.RelayChannel, false)
	}
	c.logger.Infof("Controller shut down")
}
