package hardware

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"nitrous-service/internal/logger"
	"nitrous-service/internal/types"
)

// RelayHealth is one channel's feedback reading. A channel without routed
// fault lines reports Unknown status so the controller can settle it.
type RelayHealth struct {
	Status     types.RelayStatus
	Fuse       types.FuseStatus
	CurrentAmp float64
}

// LinuxRelayIO drives the relay bank through the Linux GPIO character
// device and reads fault feedback and current sense.
type LinuxRelayIO struct {
	logger    *logger.Logger
	mu        sync.Mutex
	chips     map[int]*gpiocdev.Chip
	outputs   [types.RelayChannelCount]*gpiocdev.Line
	faults    map[int]*gpiocdev.Line
	fuses     map[int]*gpiocdev.Line
	adcDevice string
}

func NewLinuxRelayIO(l *logger.Logger) *LinuxRelayIO {
	return &LinuxRelayIO{
		logger:    l.WithTag("relay-io"),
		chips:     make(map[int]*gpiocdev.Chip),
		faults:    make(map[int]*gpiocdev.Line),
		fuses:     make(map[int]*gpiocdev.Line),
		adcDevice: AdcDevice,
	}
}

func (io *LinuxRelayIO) chip(num int) (*gpiocdev.Chip, error) {
	if chip, ok := io.chips[num]; ok {
		return chip, nil
	}
	chip, err := gpiocdev.NewChip(fmt.Sprintf("gpiochip%d", num))
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %d: %w", num, err)
	}
	io.chips[num] = chip
	return chip, nil
}

// Initialize requests every relay output line de-energized and every
// routed fault/fuse sense line as input.
func (io *LinuxRelayIO) Initialize() error {
	io.mu.Lock()
	defer io.mu.Unlock()

	io.logger.Infof("Initializing relay bank IO")

	for ch, mapping := range RelayOutputs {
		chip, err := io.chip(mapping.Chip)
		if err != nil {
			return err
		}
		line, err := chip.RequestLine(mapping.Line,
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer("nitrous-service"))
		if err != nil {
			return fmt.Errorf("failed to request relay %d output line %d: %w", ch, mapping.Line, err)
		}
		io.outputs[ch] = line
		io.logger.Debugf("Configured relay %d: chip=%d, line=%d", ch, mapping.Chip, mapping.Line)
	}

	for ch, mapping := range RelayFaults {
		chip, err := io.chip(mapping.Chip)
		if err != nil {
			return err
		}
		line, err := chip.RequestLine(mapping.Line,
			gpiocdev.AsInput,
			gpiocdev.WithConsumer("nitrous-service"))
		if err != nil {
			return fmt.Errorf("failed to request relay %d fault line %d: %w", ch, mapping.Line, err)
		}
		io.faults[ch] = line
	}

	for ch, mapping := range FuseFaults {
		chip, err := io.chip(mapping.Chip)
		if err != nil {
			return err
		}
		line, err := chip.RequestLine(mapping.Line,
			gpiocdev.AsInput,
			gpiocdev.WithConsumer("nitrous-service"))
		if err != nil {
			return fmt.Errorf("failed to request relay %d fuse line %d: %w", ch, mapping.Line, err)
		}
		io.fuses[ch] = line
	}

	io.logger.Infof("Relay bank IO initialized (%d outputs)", len(RelayOutputs))
	return nil
}

// SetRelay energizes or de-energizes one relay channel.
func (io *LinuxRelayIO) SetRelay(channel int, energized bool) error {
	io.mu.Lock()
	defer io.mu.Unlock()

	if channel < 0 || channel >= types.RelayChannelCount {
		return fmt.Errorf("relay channel %d out of range", channel)
	}
	line := io.outputs[channel]
	if line == nil {
		return fmt.Errorf("relay channel %d not initialized", channel)
	}

	val := 0
	if energized {
		val = 1
	}
	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("failed to set relay %d=%v: %w", channel, energized, err)
	}
	io.logger.Debugf("Set relay %d=%v", channel, energized)
	return nil
}

// ReadHealth reads fault, fuse and current-sense feedback for one channel.
// Fault lines are active high. Channels without a routed line report
// Unknown and a current draw of zero.
func (io *LinuxRelayIO) ReadHealth(channel int) (RelayHealth, error) {
	io.mu.Lock()
	defer io.mu.Unlock()

	if channel < 0 || channel >= types.RelayChannelCount {
		return RelayHealth{}, fmt.Errorf("relay channel %d out of range", channel)
	}

	h := RelayHealth{
		Status: types.RelayUnknown,
		Fuse:   types.FuseUnknown,
	}

	if line, ok := io.faults[channel]; ok {
		v, err := line.Value()
		if err != nil {
			return h, fmt.Errorf("failed to read relay %d fault line: %w", channel, err)
		}
		if v != 0 {
			h.Status = types.RelayFailed
		} else {
			h.Status = types.RelayOk
		}
	}

	if line, ok := io.fuses[channel]; ok {
		v, err := line.Value()
		if err != nil {
			return h, fmt.Errorf("failed to read relay %d fuse line: %w", channel, err)
		}
		if v != 0 {
			h.Fuse = types.FuseBlown
		} else {
			h.Fuse = types.FuseOk
		}
	}

	if raw, err := ReadAdcValue(io.adcDevice, channel); err == nil {
		h.CurrentAmp = float64(raw) * AmpPerCount
	}

	return h, nil
}

// Cleanup de-energizes and releases every requested line.
func (io *LinuxRelayIO) Cleanup() {
	io.mu.Lock()
	defer io.mu.Unlock()

	io.logger.Infof("Cleaning up relay bank IO")

	for ch, line := range io.outputs {
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			io.logger.Warnf("Failed to de-energize relay %d during cleanup: %v", ch, err)
		}
		line.Close()
	}
	for _, line := range io.faults {
		line.Close()
	}
	for _, line := range io.fuses {
		line.Close()
	}
	for id, chip := range io.chips {
		chip.Close()
		io.logger.Debugf("Closed GPIO chip %d", id)
	}

	io.logger.Infof("Relay bank cleanup complete")
}
