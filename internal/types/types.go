package types

import "time"

// RelayChannelCount is the size of the fixed relay bank.
const RelayChannelCount = 8

// GearNone means no gear is currently selected. A GearFilter of zero on a
// timer matches any selected gear.
const GearNone = 0

type StageMode string

const (
	ModeOff     StageMode = "off"
	ModeTimed   StageMode = "timed"
	ModeInstant StageMode = "instant"
)

type TimerBehavior string

const (
	BehaviorStartOver TimerBehavior = "start-over"
	BehaviorHold      TimerBehavior = "hold"
)

// TriggerKind is the closed set of start conditions for stages and timers.
type TriggerKind string

const (
	TriggerManual            TriggerKind = "manual"
	TriggerTransBrakeRelease TriggerKind = "trans-brake-release"
	TriggerShifterInput      TriggerKind = "shifter-input"
	TriggerStagePrevious     TriggerKind = "stage-previous"
)

type RelayStatus string

const (
	RelayUnknown RelayStatus = "unknown"
	RelayOk      RelayStatus = "ok"
	RelayFailed  RelayStatus = "failed"
)

type FuseStatus string

const (
	FuseUnknown FuseStatus = "unknown"
	FuseOk      FuseStatus = "ok"
	FuseBlown   FuseStatus = "blown"
)

// Stage is one independently triggered nitrous delivery channel mapped to a
// relay. Stage numbers are contiguous 1..N; the ordering matters for
// stage-previous cascade triggers.
type Stage struct {
	Number         int
	Enabled        bool
	Mode           StageMode
	ActivationTime time.Duration // Timed mode only
	TimerBehavior  TimerBehavior
	StartTrigger   TriggerKind
	ExpectedGear   int // shifter-input trigger only
	RelayChannel   int
	ShotSizeHP     float64
	HoldOnPedal    bool
}

// Timer is an independent countdown keyed to a trigger. Timers are not tied
// to a relay; they exist for status display and pedaling gating.
type Timer struct {
	ID           int
	Duration     time.Duration
	Enabled      bool
	StartTrigger TriggerKind
	GearFilter   int // GearNone matches any selected gear
}

// Relay is one entry of the fixed relay bank.
type Relay struct {
	ID          int
	Channel     int
	Energized   bool
	Status      RelayStatus
	FuseStatus  FuseStatus
	CurrentAmp  float64
	MaxAmp      float64
	SplitSystem bool
	LastCheck   time.Time
}

// PurgeChannel is a line-purge output bound to one relay channel.
type PurgeChannel struct {
	ID           int
	RelayChannel int
	Enabled      bool
	Duration     time.Duration
	FuseStatus   FuseStatus
}

// InputState holds the live vehicle signal values. It is the single source
// of truth for trigger evaluation.
type InputState struct {
	TransBrakeActive bool
	ClutchActive     bool
	ShifterGear      int // GearNone when no gear is selected
	ThrottlePedaling bool
}

// ActiveStage describes one currently engaged stage in a status snapshot.
type ActiveStage struct {
	Number       int
	RelayChannel int
	Mode         StageMode
	ShotSizeHP   float64
	Since        time.Time
	PedalHeld    bool // timed expiry currently deferred by hold-on-pedal
}

// ActiveTimer describes one running countdown in a status snapshot.
type ActiveTimer struct {
	ID        int
	Since     time.Time
	Remaining time.Duration
}

// PurgeStatus describes one purge channel in a status snapshot.
type PurgeStatus struct {
	ID           int
	RelayChannel int
	Enabled      bool
	Active       bool
	Duration     time.Duration
	FuseStatus   FuseStatus
}

// StatusSnapshot is an immutable point-in-time view of the controller.
// It is a value type, safe to use after the controller lock is released.
type StatusSnapshot struct {
	Time          time.Time
	Armed         bool
	LastInterrupt time.Time
	Inputs        InputState
	ActiveStages  []ActiveStage
	ActiveTimers  []ActiveTimer
	Relays        []Relay
	Purges        []PurgeStatus
}
