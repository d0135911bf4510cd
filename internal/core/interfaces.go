package core

import (
	"nitrous-service/internal/hardware"
	"nitrous-service/internal/types"
)

// RelayIO defines the hardware binding for relay outputs and health
// feedback needed by the Controller. The production implementation is
// hardware.LinuxRelayIO; tests substitute a mock.
type RelayIO interface {
	Initialize() error
	Cleanup()

	// SetRelay energizes or de-energizes one relay channel (0-7).
	SetRelay(channel int, energized bool) error

	// ReadHealth reads the relay fault line, fuse fault line and current
	// draw for one channel. A binding without fault feedback reports
	// RelayUnknown/FuseUnknown.
	ReadHealth(channel int) (hardware.RelayHealth, error)
}

// Observer receives status snapshots from the monitor loop. Observers run
// outside the controller lock; a panic in one observer is isolated.
type Observer func(types.StatusSnapshot)
