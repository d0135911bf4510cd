package hardware

// AdcDevice is the IIO device exposing per-channel current sense.
const AdcDevice = "iio:device0"

// AmpPerCount converts a raw ADC reading to amps for the current-sense
// divider on the relay board.
const AmpPerCount = 0.0322

type LineMapping struct {
	Chip int
	Line int
}

// RelayOutputs maps relay channels 0-7 to GPIO output lines driving the
// solenoid relays.
var RelayOutputs = [8]LineMapping{
	{2, 0},
	{2, 1},
	{2, 2},
	{2, 3},
	{2, 4},
	{2, 5},
	{2, 6},
	{2, 7},
}

// RelayFaults maps relay channels to the relay driver fault feedback lines.
// Channels without a routed fault line are absent and report Unknown.
var RelayFaults = map[int]LineMapping{
	0: {4, 0},
	1: {4, 1},
	2: {4, 2},
	3: {4, 3},
}

// FuseFaults maps relay channels to the blown-fuse sense lines.
var FuseFaults = map[int]LineMapping{
	0: {4, 8},
	1: {4, 9},
	2: {4, 10},
	3: {4, 11},
}
