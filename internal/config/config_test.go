package config

import (
	"testing"
	"time"

	"nitrous-service/internal/types"
)

func TestParse(t *testing.T) {
	data := []byte(`
tick_ms: 10
stages:
  - number: 1
    enabled: true
    mode: timed
    activation_time_ms: 500
    timer_behavior: hold
    start_trigger: trans-brake-release
    relay_channel: 0
    shot_size_hp: 75
    hold_on_pedal: true
  - number: 2
    enabled: true
    mode: instant
    timer_behavior: start-over
    start_trigger: shifter-input
    expected_gear: 2
    relay_channel: 1
    shot_size_hp: 150
timers:
  - id: 1
    enabled: true
    duration_ms: 1000
    start_trigger: trans-brake-release
  - id: 2
    enabled: true
    duration_ms: 2500
    start_trigger: shifter-input
    gear_filter: 3
relays:
  - channel: 0
    max_amp: 12.5
    split_system: true
purges:
  - id: 1
    enabled: true
    relay_channel: 7
    duration_ms: 3000
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Tick != 10*time.Millisecond {
		t.Errorf("Tick = %v, want 10ms", cfg.Tick)
	}

	if len(cfg.Stages) != 2 {
		t.Fatalf("Expected 2 stages, got %d", len(cfg.Stages))
	}
	s1 := cfg.Stages[0]
	if s1.Number != 1 || s1.Mode != types.ModeTimed || s1.ActivationTime != 500*time.Millisecond {
		t.Errorf("Unexpected stage 1: %+v", s1)
	}
	if s1.StartTrigger != types.TriggerTransBrakeRelease || !s1.HoldOnPedal || s1.ShotSizeHP != 75 {
		t.Errorf("Unexpected stage 1: %+v", s1)
	}
	s2 := cfg.Stages[1]
	if s2.Mode != types.ModeInstant || s2.TimerBehavior != types.BehaviorStartOver || s2.ExpectedGear != 2 {
		t.Errorf("Unexpected stage 2: %+v", s2)
	}

	if len(cfg.Timers) != 2 {
		t.Fatalf("Expected 2 timers, got %d", len(cfg.Timers))
	}
	if cfg.Timers[1].Duration != 2500*time.Millisecond || cfg.Timers[1].GearFilter != 3 {
		t.Errorf("Unexpected timer 2: %+v", cfg.Timers[1])
	}

	if len(cfg.Relays) != 1 || cfg.Relays[0].MaxAmp != 12.5 || !cfg.Relays[0].SplitSystem {
		t.Errorf("Unexpected relay overrides: %+v", cfg.Relays)
	}

	if len(cfg.Purges) != 1 || cfg.Purges[0].Duration != 3*time.Second || cfg.Purges[0].RelayChannel != 7 {
		t.Errorf("Unexpected purges: %+v", cfg.Purges)
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("stages: [unclosed")); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestParseEmptyFile(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse failed on empty input: %v", err)
	}
	if len(cfg.Stages) != 0 || len(cfg.Timers) != 0 {
		t.Error("Empty input should produce an empty config")
	}
}
