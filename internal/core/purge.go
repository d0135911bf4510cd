package core

import "nitrous-service/internal/types"

// ActivatePurge opens a purge channel's relay. It returns false, without
// touching hardware, when the id is unknown, the purge is disabled, its
// relay channel is out of range, or the purge is already running; otherwise
// it issues exactly one relay activation. The engine never schedules the
// matching deactivation itself - the caller stops the purge after the
// configured duration.
func (c *Controller) ActivatePurge(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.purges[id]
	if !ok {
		c.logger.Warnf("Purge %d: unknown purge channel", id)
		return false
	}
	if !p.Enabled {
		c.logger.Warnf("Purge %d: purge is disabled", id)
		return false
	}
	if p.RelayChannel < 0 || p.RelayChannel >= types.RelayChannelCount {
		c.logger.Warnf("Purge %d: relay channel %d out of range", id, p.RelayChannel)
		return false
	}
	if _, active := c.activePurges[id]; active {
		c.logger.Debugf("Purge %d already running", id)
		return false
	}

	if err := c.relays.SetRelay(p.RelayChannel, true); err != nil {
		c.logger.Errorf("Purge %d: failed to energize relay %d: %v", id, p.RelayChannel, err)
		return false
	}
	c.relayBank[p.RelayChannel].Energized = true
	c.activePurges[id] = c.now()
	c.logger.Infof("Purge %d started (relay %d)", id, p.RelayChannel)
	return true
}

// DeactivatePurge closes a running purge channel's relay. It returns false
// when the id is unknown or the purge is not running.
func (c *Controller) DeactivatePurge(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.purges[id]
	if !ok {
		c.logger.Warnf("Purge %d: unknown purge channel", id)
		return false
	}
	if _, active := c.activePurges[id]; !active {
		return false
	}

	delete(c.activePurges, id)
	c.setRelayLocked(p.RelayChannel, false)
	c.logger.Infof("Purge %d stopped (relay %d)", id, p.RelayChannel)
	return true
}
