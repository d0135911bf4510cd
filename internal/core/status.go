package core

import (
	"sort"
	"time"

	"nitrous-service/internal/types"
)

// RegisterObserver adds a status listener. Observers are invoked once per
// monitor tick, after the controller lock has been released.
func (c *Controller) RegisterObserver(fn Observer) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// GetStatus builds a status snapshot on demand.
func (c *Controller) GetStatus() types.StatusSnapshot {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(now)
}

// snapshotLocked builds an immutable copy of the controller state.
// Caller must hold c.mu.
func (c *Controller) snapshotLocked(now time.Time) types.StatusSnapshot {
	snap := types.StatusSnapshot{
		Time:          now,
		Armed:         c.armed,
		LastInterrupt: c.lastInterrupt,
		Inputs:        c.inputs,
		Relays:        make([]types.Relay, len(c.relayBank)),
	}
	copy(snap.Relays, c.relayBank)

	for _, n := range c.stageOrder {
		since, active := c.activeStages[n]
		if !active {
			continue
		}
		st := c.stages[n]
		snap.ActiveStages = append(snap.ActiveStages, types.ActiveStage{
			Number:       n,
			RelayChannel: st.RelayChannel,
			Mode:         st.Mode,
			ShotSizeHP:   st.ShotSizeHP,
			Since:        since,
			PedalHeld:    st.Mode == types.ModeTimed && st.HoldOnPedal && c.inputs.ThrottlePedaling,
		})
	}

	for _, id := range c.timerOrder {
		since, active := c.activeTimers[id]
		if !active {
			continue
		}
		remaining := c.timers[id].Duration - now.Sub(since)
		if remaining < 0 {
			remaining = 0
		}
		snap.ActiveTimers = append(snap.ActiveTimers, types.ActiveTimer{
			ID:        id,
			Since:     since,
			Remaining: remaining,
		})
	}

	for _, p := range c.purges {
		_, active := c.activePurges[p.ID]
		snap.Purges = append(snap.Purges, types.PurgeStatus{
			ID:           p.ID,
			RelayChannel: p.RelayChannel,
			Enabled:      p.Enabled,
			Active:       active,
			Duration:     p.Duration,
			FuseStatus:   p.FuseStatus,
		})
	}
	sort.Slice(snap.Purges, func(i, j int) bool { return snap.Purges[i].ID < snap.Purges[j].ID })

	return snap
}

// deliver invokes every observer with the snapshot. A failing observer is
// logged and never prevents delivery to the rest or crashes the loop.
func (c *Controller) deliver(snap types.StatusSnapshot, observers []Observer) {
	for i, fn := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Errorf("Status observer %d panicked: %v", i, r)
				}
			}()
			fn(snap)
		}()
	}
}
