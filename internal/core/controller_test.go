package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"nitrous-service/internal/hardware"
	"nitrous-service/internal/logger"
	"nitrous-service/internal/types"
)

// Mock RelayIO

type relayCall struct {
	channel   int
	energized bool
}

type mockRelayIO struct {
	mu     sync.Mutex
	state  map[int]bool
	calls  []relayCall
	health map[int]hardware.RelayHealth
	setErr error
}

func newMockRelayIO() *mockRelayIO {
	return &mockRelayIO{
		state:  make(map[int]bool),
		health: make(map[int]hardware.RelayHealth),
	}
}

func (m *mockRelayIO) Initialize() error { return nil }
func (m *mockRelayIO) Cleanup()          {}

func (m *mockRelayIO) SetRelay(channel int, energized bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.state[channel] = energized
	m.calls = append(m.calls, relayCall{channel, energized})
	return nil
}

func (m *mockRelayIO) ReadHealth(channel int) (hardware.RelayHealth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.health[channel]; ok {
		return h, nil
	}
	return hardware.RelayHealth{Status: types.RelayUnknown, Fuse: types.FuseUnknown}, nil
}

func (m *mockRelayIO) energized(channel int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[channel]
}

// callCount counts relay calls matching channel and direction.
func (m *mockRelayIO) callCount(channel int, energized bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.channel == channel && c.energized == energized {
			n++
		}
	}
	return n
}

// Fake clock

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Test helpers

func testStage(number int, trigger types.TriggerKind, relay int) types.Stage {
	return types.Stage{
		Number:         number,
		Enabled:        true,
		Mode:           types.ModeTimed,
		ActivationTime: 500 * time.Millisecond,
		TimerBehavior:  types.BehaviorHold,
		StartTrigger:   trigger,
		RelayChannel:   relay,
		ShotSizeHP:     75,
	}
}

func testTimer(id int, trigger types.TriggerKind) types.Timer {
	return types.Timer{
		ID:           id,
		Enabled:      true,
		Duration:     time.Second,
		StartTrigger: trigger,
	}
}

func testConfig() Config {
	return Config{
		Stages: []types.Stage{
			testStage(1, types.TriggerTransBrakeRelease, 0),
			testStage(2, types.TriggerStagePrevious, 1),
		},
		Timers: []types.Timer{
			testTimer(1, types.TriggerTransBrakeRelease),
			testTimer(2, types.TriggerShifterInput),
		},
		Purges: []types.PurgeChannel{
			{ID: 1, Enabled: true, RelayChannel: 7, Duration: 3 * time.Second},
		},
	}
}

func newTestController(t *testing.T, cfg Config) (*Controller, *mockRelayIO, *fakeClock) {
	t.Helper()
	l := logger.NewLogger(nil, logger.LogLevelError)
	mockIO := newMockRelayIO()
	c, err := NewController(cfg, mockIO, l)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	clk := newFakeClock()
	c.now = clk.Now
	return c, mockIO, clk
}

// ===== Construction Tests =====

func TestNewControllerStageCountTooLow(t *testing.T) {
	cfg := testConfig()
	cfg.Stages = cfg.Stages[:1]
	_, err := NewController(cfg, newMockRelayIO(), logger.NewLogger(nil, logger.LogLevelError))
	if err == nil {
		t.Fatal("Expected error for 1 stage")
	}
}

func TestNewControllerStageCountTooHigh(t *testing.T) {
	cfg := testConfig()
	for n := 3; n <= 7; n++ {
		cfg.Stages = append(cfg.Stages, testStage(n, types.TriggerManual, n-1))
	}
	_, err := NewController(cfg, newMockRelayIO(), logger.NewLogger(nil, logger.LogLevelError))
	if err == nil {
		t.Fatal("Expected error for 7 stages")
	}
}

func TestNewControllerTimerCountTooLow(t *testing.T) {
	cfg := testConfig()
	cfg.Timers = cfg.Timers[:1]
	_, err := NewController(cfg, newMockRelayIO(), logger.NewLogger(nil, logger.LogLevelError))
	if err == nil {
		t.Fatal("Expected error for 1 timer")
	}
}

func TestNewControllerTimerCountTooHigh(t *testing.T) {
	cfg := testConfig()
	for id := 3; id <= 11; id++ {
		cfg.Timers = append(cfg.Timers, testTimer(id, types.TriggerManual))
	}
	_, err := NewController(cfg, newMockRelayIO(), logger.NewLogger(nil, logger.LogLevelError))
	if err == nil {
		t.Fatal("Expected error for 11 timers")
	}
}

func TestNewControllerNonContiguousStageNumbers(t *testing.T) {
	cfg := testConfig()
	cfg.Stages[1].Number = 3
	_, err := NewController(cfg, newMockRelayIO(), logger.NewLogger(nil, logger.LogLevelError))
	if err == nil {
		t.Fatal("Expected error for non-contiguous stage numbers")
	}
}

func TestNewControllerBadRelayChannel(t *testing.T) {
	cfg := testConfig()
	cfg.Stages[0].RelayChannel = 8
	_, err := NewController(cfg, newMockRelayIO(), logger.NewLogger(nil, logger.LogLevelError))
	if err == nil {
		t.Fatal("Expected error for relay channel 8")
	}
}

func TestNewControllerStageOneCascade(t *testing.T) {
	cfg := testConfig()
	cfg.Stages[0].StartTrigger = types.TriggerStagePrevious
	_, err := NewController(cfg, newMockRelayIO(), logger.NewLogger(nil, logger.LogLevelError))
	if err == nil {
		t.Fatal("Expected error for stage 1 with stage-previous trigger")
	}
}

// ===== Config Update Tests =====

func TestUpdateStageConfigUnknownStage(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())

	enabled := false
	err := c.UpdateStageConfig(9, StageUpdate{Enabled: &enabled})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	if !c.stages[1].Enabled || !c.stages[2].Enabled {
		t.Error("Unknown stage update must not change state")
	}
}

func TestUpdateStageConfigInvalidRelayChannel(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())

	bad := 12
	enabled := false
	err := c.UpdateStageConfig(1, StageUpdate{RelayChannel: &bad, Enabled: &enabled})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	// No partial write: the valid Enabled field must not have been applied.
	if !c.stages[1].Enabled {
		t.Error("Rejected update must not apply any field")
	}
	if c.stages[1].RelayChannel != 0 {
		t.Error("Relay channel changed by rejected update")
	}
}

func TestUpdateStageConfigSparse(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())

	activation := 2 * time.Second
	if err := c.UpdateStageConfig(1, StageUpdate{ActivationTime: &activation}); err != nil {
		t.Fatalf("UpdateStageConfig failed: %v", err)
	}
	st := c.stages[1]
	if st.ActivationTime != activation {
		t.Errorf("ActivationTime not updated: %v", st.ActivationTime)
	}
	if !st.Enabled || st.StartTrigger != types.TriggerTransBrakeRelease || st.RelayChannel != 0 {
		t.Error("Omitted fields must retain their previous values")
	}
}

func TestUpdateStageConfigRelayChannelWhileActive(t *testing.T) {
	c, mockIO, _ := newTestController(t, testConfig())

	c.SetTransBrakeState(true)
	c.SetTransBrakeState(false)
	if !mockIO.energized(0) {
		t.Fatal("Stage 1 relay not energized")
	}

	ch := 5
	if err := c.UpdateStageConfig(1, StageUpdate{RelayChannel: &ch}); err != nil {
		t.Fatalf("UpdateStageConfig failed: %v", err)
	}
	if mockIO.energized(0) {
		t.Error("Old relay channel still energized")
	}
	if !mockIO.energized(5) {
		t.Error("New relay channel not energized")
	}
}

func TestUpdateTimerConfigUnknownTimer(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())

	d := time.Second
	err := c.UpdateTimerConfig(42, TimerUpdate{Duration: &d})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
}

func TestUpdateTimerConfigInvalidTrigger(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())

	bad := types.TriggerKind("bogus")
	err := c.UpdateTimerConfig(1, TimerUpdate{StartTrigger: &bad})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	if c.timers[1].StartTrigger != types.TriggerTransBrakeRelease {
		t.Error("Trigger changed by rejected update")
	}
}

// ===== Manual Activation Tests =====

func TestActivateStageManualUnknown(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())

	err := c.ActivateStageManual(9)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
}

func TestActivateStageManualDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Stages[0].Enabled = false
	c, mockIO, _ := newTestController(t, cfg)

	err := c.ActivateStageManual(1)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	if len(mockIO.calls) != 0 {
		t.Error("Disabled stage activation must not touch relays")
	}
}

func TestActivateStageManual(t *testing.T) {
	c, mockIO, _ := newTestController(t, testConfig())

	if err := c.ActivateStageManual(1); err != nil {
		t.Fatalf("ActivateStageManual failed: %v", err)
	}
	if !mockIO.energized(0) {
		t.Error("Relay 0 not energized")
	}
	// The cascade stage follows in the same call.
	if !mockIO.energized(1) {
		t.Error("Cascade stage relay not energized after manual activation")
	}
	// Repeated activation is a no-op.
	if err := c.ActivateStageManual(1); err != nil {
		t.Fatalf("Repeated ActivateStageManual failed: %v", err)
	}
	if got := mockIO.callCount(0, true); got != 1 {
		t.Errorf("Expected exactly 1 activate call for relay 0, got %d", got)
	}
}

func TestDeactivateStageManual(t *testing.T) {
	c, mockIO, _ := newTestController(t, testConfig())

	if err := c.ActivateStageManual(1); err != nil {
		t.Fatalf("ActivateStageManual failed: %v", err)
	}
	if err := c.DeactivateStageManual(1); err != nil {
		t.Fatalf("DeactivateStageManual failed: %v", err)
	}
	if mockIO.energized(0) {
		t.Error("Relay 0 still energized")
	}
}

func TestStartTimerManual(t *testing.T) {
	c, _, _ := newTestController(t, testConfig())

	if err := c.StartTimerManual(2); err != nil {
		t.Fatalf("StartTimerManual failed: %v", err)
	}
	if _, active := c.activeTimers[2]; !active {
		t.Error("Timer 2 not running")
	}
	if err := c.StartTimerManual(42); err == nil {
		t.Error("Expected error for unknown timer")
	}
}

// ===== Arming Tests =====

func TestDisarmDropsActiveStages(t *testing.T) {
	c, mockIO, _ := newTestController(t, testConfig())

	c.SetTransBrakeState(true)
	c.SetTransBrakeState(false)
	if !mockIO.energized(0) || !mockIO.energized(1) {
		t.Fatal("Stages not active before disarm")
	}

	c.SetArmed(false)
	if mockIO.energized(0) || mockIO.energized(1) {
		t.Error("Relays still energized after disarm")
	}
	if len(c.activeStages) != 0 {
		t.Error("Active set not cleared by disarm")
	}
}

func TestDisarmedSuppressesTriggers(t *testing.T) {
	c, mockIO, _ := newTestController(t, testConfig())

	c.SetArmed(false)
	c.SetTransBrakeState(true)
	c.SetTransBrakeState(false)
	if len(mockIO.calls) != 0 {
		t.Error("Disarmed controller must not energize relays")
	}
	if err := c.ActivateStageManual(1); err == nil {
		t.Error("Expected error for manual activation while disarmed")
	}
}
