// Package config loads the controller configuration file. The control
// engine itself never reads files; only the service entrypoint does.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"nitrous-service/internal/core"
	"nitrous-service/internal/types"
)

type Stage struct {
	Number           int     `yaml:"number"`
	Enabled          bool    `yaml:"enabled"`
	Mode             string  `yaml:"mode"`
	ActivationTimeMs int64   `yaml:"activation_time_ms"`
	TimerBehavior    string  `yaml:"timer_behavior"`
	StartTrigger     string  `yaml:"start_trigger"`
	ExpectedGear     int     `yaml:"expected_gear"`
	RelayChannel     int     `yaml:"relay_channel"`
	ShotSizeHP       float64 `yaml:"shot_size_hp"`
	HoldOnPedal      bool    `yaml:"hold_on_pedal"`
}

type Timer struct {
	ID           int    `yaml:"id"`
	Enabled      bool   `yaml:"enabled"`
	DurationMs   int64  `yaml:"duration_ms"`
	StartTrigger string `yaml:"start_trigger"`
	GearFilter   int    `yaml:"gear_filter"`
}

type Relay struct {
	Channel     int     `yaml:"channel"`
	MaxAmp      float64 `yaml:"max_amp"`
	SplitSystem bool    `yaml:"split_system"`
}

type Purge struct {
	ID           int   `yaml:"id"`
	Enabled      bool  `yaml:"enabled"`
	RelayChannel int   `yaml:"relay_channel"`
	DurationMs   int64 `yaml:"duration_ms"`
}

type File struct {
	TickMs int64   `yaml:"tick_ms"`
	Stages []Stage `yaml:"stages"`
	Timers []Timer `yaml:"timers"`
	Relays []Relay `yaml:"relays"`
	Purges []Purge `yaml:"purges"`
}

// Load reads a YAML configuration file and maps it to a core.Config.
// Semantic validation (counts, ranges, trigger names) happens in
// core.NewController.
func Load(path string) (core.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse maps raw YAML to a core.Config.
func Parse(data []byte) (core.Config, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return core.Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := core.Config{
		Tick: time.Duration(f.TickMs) * time.Millisecond,
	}

	for _, s := range f.Stages {
		cfg.Stages = append(cfg.Stages, types.Stage{
			Number:         s.Number,
			Enabled:        s.Enabled,
			Mode:           types.StageMode(s.Mode),
			ActivationTime: time.Duration(s.ActivationTimeMs) * time.Millisecond,
			TimerBehavior:  types.TimerBehavior(s.TimerBehavior),
			StartTrigger:   types.TriggerKind(s.StartTrigger),
			ExpectedGear:   s.ExpectedGear,
			RelayChannel:   s.RelayChannel,
			ShotSizeHP:     s.ShotSizeHP,
			HoldOnPedal:    s.HoldOnPedal,
		})
	}

	for _, t := range f.Timers {
		cfg.Timers = append(cfg.Timers, types.Timer{
			ID:           t.ID,
			Enabled:      t.Enabled,
			Duration:     time.Duration(t.DurationMs) * time.Millisecond,
			StartTrigger: types.TriggerKind(t.StartTrigger),
			GearFilter:   t.GearFilter,
		})
	}

	for _, r := range f.Relays {
		cfg.Relays = append(cfg.Relays, types.Relay{
			Channel:     r.Channel,
			MaxAmp:      r.MaxAmp,
			SplitSystem: r.SplitSystem,
		})
	}

	for _, p := range f.Purges {
		cfg.Purges = append(cfg.Purges, types.PurgeChannel{
			ID:           p.ID,
			Enabled:      p.Enabled,
			RelayChannel: p.RelayChannel,
			Duration:     time.Duration(p.DurationMs) * time.Millisecond,
		})
	}

	return cfg, nil
}
