package messaging

import (
	"testing"

	"nitrous-service/internal/logger"
	"nitrous-service/internal/types"
)

func TestParseOnOff(t *testing.T) {
	if on, err := parseOnOff("on"); err != nil || !on {
		t.Errorf("parseOnOff(on) = %v, %v", on, err)
	}
	if on, err := parseOnOff("off"); err != nil || on {
		t.Errorf("parseOnOff(off) = %v, %v", on, err)
	}
	if _, err := parseOnOff("maybe"); err == nil {
		t.Error("Expected error for invalid value")
	}
}

func TestParseIndexedCommand(t *testing.T) {
	verb, id, err := parseIndexedCommand("start 2")
	if err != nil || verb != "start" || id != 2 {
		t.Errorf("parseIndexedCommand(start 2) = %q, %d, %v", verb, id, err)
	}
	if _, _, err := parseIndexedCommand("start"); err == nil {
		t.Error("Expected error for missing id")
	}
	if _, _, err := parseIndexedCommand("start two"); err == nil {
		t.Error("Expected error for non-numeric id")
	}
	if _, _, err := parseIndexedCommand("start 1 extra"); err == nil {
		t.Error("Expected error for trailing tokens")
	}
}

func newTestClient(handlers Handlers) *RedisClient {
	return NewRedisClient("localhost", 6379, logger.NewLogger(nil, logger.LogLevelError), handlers)
}

func TestGearCommand(t *testing.T) {
	var got []int
	r := newTestClient(Handlers{Gear: func(g int) error {
		got = append(got, g)
		return nil
	}})

	if err := r.handleGearCommand("3"); err != nil {
		t.Fatalf("handleGearCommand(3) failed: %v", err)
	}
	if err := r.handleGearCommand("none"); err != nil {
		t.Fatalf("handleGearCommand(none) failed: %v", err)
	}
	if err := r.handleGearCommand("-1"); err == nil {
		t.Error("Expected error for negative gear")
	}
	if err := r.handleGearCommand("reverse"); err == nil {
		t.Error("Expected error for non-numeric gear")
	}
	if len(got) != 2 || got[0] != 3 || got[1] != types.GearNone {
		t.Errorf("Gear handler calls = %v, want [3 %d]", got, types.GearNone)
	}
}

func TestPurgeCommandRouting(t *testing.T) {
	var started, stopped []int
	r := newTestClient(Handlers{
		PurgeStart: func(id int) error { started = append(started, id); return nil },
		PurgeStop:  func(id int) error { stopped = append(stopped, id); return nil },
	})

	if err := r.handlePurgeCommand("start 1"); err != nil {
		t.Fatalf("handlePurgeCommand(start 1) failed: %v", err)
	}
	if err := r.handlePurgeCommand("stop 1"); err != nil {
		t.Fatalf("handlePurgeCommand(stop 1) failed: %v", err)
	}
	if err := r.handlePurgeCommand("open 1"); err == nil {
		t.Error("Expected error for unknown verb")
	}
	if len(started) != 1 || started[0] != 1 || len(stopped) != 1 || stopped[0] != 1 {
		t.Errorf("Purge routing: started=%v stopped=%v", started, stopped)
	}
}

func TestStageCommandRouting(t *testing.T) {
	var fired, released []int
	r := newTestClient(Handlers{
		StageFire:    func(n int) error { fired = append(fired, n); return nil },
		StageRelease: func(n int) error { released = append(released, n); return nil },
	})

	if err := r.handleStageCommand("fire 2"); err != nil {
		t.Fatalf("handleStageCommand(fire 2) failed: %v", err)
	}
	if err := r.handleStageCommand("release 2"); err != nil {
		t.Fatalf("handleStageCommand(release 2) failed: %v", err)
	}
	if err := r.handleStageCommand("launch 2"); err == nil {
		t.Error("Expected error for unknown verb")
	}
	if len(fired) != 1 || fired[0] != 2 || len(released) != 1 || released[0] != 2 {
		t.Errorf("Stage routing: fired=%v released=%v", fired, released)
	}
}

func TestTimerCommand(t *testing.T) {
	var started []int
	r := newTestClient(Handlers{TimerStart: func(id int) error {
		started = append(started, id)
		return nil
	}})

	if err := r.handleTimerCommand("start 4"); err != nil {
		t.Fatalf("handleTimerCommand(start 4) failed: %v", err)
	}
	if err := r.handleTimerCommand("stop 4"); err == nil {
		t.Error("Expected error for unsupported verb")
	}
	if len(started) != 1 || started[0] != 4 {
		t.Errorf("Timer routing: started=%v", started)
	}
}

func TestParseConfigCommand(t *testing.T) {
	id, field, value, err := parseConfigCommand("2 enabled off")
	if err != nil || id != 2 || field != "enabled" || value != "off" {
		t.Errorf("parseConfigCommand(2 enabled off) = %d, %q, %q, %v", id, field, value, err)
	}
	if _, _, _, err := parseConfigCommand("2 enabled"); err == nil {
		t.Error("Expected error for missing value")
	}
	if _, _, _, err := parseConfigCommand("two enabled off"); err == nil {
		t.Error("Expected error for non-numeric id")
	}
}

func TestStageConfigCommandRouting(t *testing.T) {
	type update struct {
		id           int
		field, value string
	}
	var got []update
	r := newTestClient(Handlers{StageConfig: func(id int, field, value string) error {
		got = append(got, update{id, field, value})
		return nil
	}})

	if err := r.handleStageConfigCommand("1 shot-size-hp 150"); err != nil {
		t.Fatalf("handleStageConfigCommand failed: %v", err)
	}
	if len(got) != 1 || got[0] != (update{1, "shot-size-hp", "150"}) {
		t.Errorf("Stage config routing: %v", got)
	}
	if err := r.handleStageConfigCommand("garbage"); err == nil {
		t.Error("Expected error for malformed payload")
	}
}

func TestNilHandlersAreIgnored(t *testing.T) {
	r := newTestClient(Handlers{})

	if err := r.handleTransBrakeCommand("on"); err != nil {
		t.Errorf("Nil trans-brake handler should be a no-op, got %v", err)
	}
	if err := r.handleStageCommand("fire 1"); err != nil {
		t.Errorf("Nil stage handler should be a no-op, got %v", err)
	}
}
