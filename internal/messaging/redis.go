package messaging

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"nitrous-service/internal/logger"
	"nitrous-service/internal/types"
)

// Handlers routes inbound Redis commands into the controller. Vehicle
// signal commands feed the input setters; the rest are operator commands.
type Handlers struct {
	TransBrake   func(bool) error
	Clutch       func(bool) error
	Gear         func(int) error // types.GearNone for "none"
	Pedal        func(bool) error
	Arm          func(bool) error
	PurgeStart   func(int) error
	PurgeStop    func(int) error
	StageFire    func(int) error
	StageRelease func(int) error
	TimerStart   func(int) error
	StageConfig  func(id int, field, value string) error
	TimerConfig  func(id int, field, value string) error
}

// DefaultPublishInterval throttles status publishing: the monitor loop
// ticks at 100 Hz but Redis does not need every snapshot.
const DefaultPublishInterval = 100 * time.Millisecond

type RedisClient struct {
	client          *redis.Client
	handlers        Handlers
	logger          *logger.Logger
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	publishInterval time.Duration
	lastPublish     time.Time // touched only by the monitor goroutine
}

func NewRedisClient(host string, port int, l *logger.Logger, handlers Handlers) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		handlers:        handlers,
		logger:          l.WithTag("redis"),
		ctx:             ctx,
		cancel:          cancel,
		publishInterval: DefaultPublishInterval,
	}
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the list-command listeners for LPUSH commands.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	r.wg.Add(10)
	go r.listCommandListener("nitrous:trans-brake", r.handleTransBrakeCommand)
	go r.listCommandListener("nitrous:clutch", r.handleClutchCommand)
	go r.listCommandListener("nitrous:gear", r.handleGearCommand)
	go r.listCommandListener("nitrous:pedal", r.handlePedalCommand)
	go r.listCommandListener("nitrous:arm", r.handleArmCommand)
	go r.listCommandListener("nitrous:purge", r.handlePurgeCommand)
	go r.listCommandListener("nitrous:stage", r.handleStageCommand)
	go r.listCommandListener("nitrous:timer", r.handleTimerCommand)
	go r.listCommandListener("nitrous:stage-config", r.handleStageConfigCommand)
	go r.listCommandListener("nitrous:timer-config", r.handleTimerConfigCommand)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Debugf("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debugf("Context cancelled, exiting %s listener", key)
			return
		default:
			// Use BRPOP with a short timeout to allow periodic context
			// cancellation checks
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if err == context.Canceled {
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				continue
			}
			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

// parseOnOff maps "on"/"off" command payloads to a bool.
func parseOnOff(value string) (bool, error) {
	switch value {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid on/off value: %q", value)
	}
}

// parseIndexedCommand splits payloads of the form "<verb> <id>".
func parseIndexedCommand(value string) (string, int, error) {
	parts := strings.Fields(value)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("invalid command format: %q", value)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid id in command %q: %w", value, err)
	}
	return parts[0], id, nil
}

func (r *RedisClient) handleTransBrakeCommand(value string) error {
	if r.handlers.TransBrake == nil {
		return nil
	}
	on, err := parseOnOff(value)
	if err != nil {
		return err
	}
	return r.handlers.TransBrake(on)
}

func (r *RedisClient) handleClutchCommand(value string) error {
	if r.handlers.Clutch == nil {
		return nil
	}
	on, err := parseOnOff(value)
	if err != nil {
		return err
	}
	return r.handlers.Clutch(on)
}

func (r *RedisClient) handleGearCommand(value string) error {
	if r.handlers.Gear == nil {
		return nil
	}
	if value == "none" {
		return r.handlers.Gear(types.GearNone)
	}
	gear, err := strconv.Atoi(value)
	if err != nil || gear < 0 {
		return fmt.Errorf("invalid gear value: %q", value)
	}
	return r.handlers.Gear(gear)
}

func (r *RedisClient) handlePedalCommand(value string) error {
	if r.handlers.Pedal == nil {
		return nil
	}
	on, err := parseOnOff(value)
	if err != nil {
		return err
	}
	return r.handlers.Pedal(on)
}

func (r *RedisClient) handleArmCommand(value string) error {
	if r.handlers.Arm == nil {
		return nil
	}
	on, err := parseOnOff(value)
	if err != nil {
		return err
	}
	return r.handlers.Arm(on)
}

func (r *RedisClient) handlePurgeCommand(value string) error {
	verb, id, err := parseIndexedCommand(value)
	if err != nil {
		return err
	}
	switch verb {
	case "start":
		if r.handlers.PurgeStart == nil {
			return nil
		}
		return r.handlers.PurgeStart(id)
	case "stop":
		if r.handlers.PurgeStop == nil {
			return nil
		}
		return r.handlers.PurgeStop(id)
	default:
		return fmt.Errorf("invalid purge command: %q", value)
	}
}

func (r *RedisClient) handleStageCommand(value string) error {
	verb, id, err := parseIndexedCommand(value)
	if err != nil {
		return err
	}
	switch verb {
	case "fire":
		if r.handlers.StageFire == nil {
			return nil
		}
		return r.handlers.StageFire(id)
	case "release":
		if r.handlers.StageRelease == nil {
			return nil
		}
		return r.handlers.StageRelease(id)
	default:
		return fmt.Errorf("invalid stage command: %q", value)
	}
}

func (r *RedisClient) handleTimerCommand(value string) error {
	verb, id, err := parseIndexedCommand(value)
	if err != nil {
		return err
	}
	if verb != "start" {
		return fmt.Errorf("invalid timer command: %q", value)
	}
	if r.handlers.TimerStart == nil {
		return nil
	}
	return r.handlers.TimerStart(id)
}

// parseConfigCommand splits payloads of the form "<id> <field> <value>".
func parseConfigCommand(value string) (int, string, string, error) {
	parts := strings.Fields(value)
	if len(parts) != 3 {
		return 0, "", "", fmt.Errorf("invalid config command format: %q", value)
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", "", fmt.Errorf("invalid id in config command %q: %w", value, err)
	}
	return id, parts[1], parts[2], nil
}

func (r *RedisClient) handleStageConfigCommand(value string) error {
	if r.handlers.StageConfig == nil {
		return nil
	}
	id, field, val, err := parseConfigCommand(value)
	if err != nil {
		return err
	}
	return r.handlers.StageConfig(id, field, val)
}

func (r *RedisClient) handleTimerConfigCommand(value string) error {
	if r.handlers.TimerConfig == nil {
		return nil
	}
	id, field, val, err := parseConfigCommand(value)
	if err != nil {
		return err
	}
	return r.handlers.TimerConfig(id, field, val)
}

// PublishStatus writes a status snapshot to the "nitrous" hash and notifies
// subscribers. It is intended to run as a controller observer on the
// monitor goroutine, and throttles itself to the publish interval.
func (r *RedisClient) PublishStatus(snap types.StatusSnapshot) {
	if snap.Time.Sub(r.lastPublish) < r.publishInterval {
		return
	}
	r.lastPublish = snap.Time

	ctx, cancel := context.WithTimeout(r.ctx, time.Second)
	defer cancel()

	activeStages := make([]string, len(snap.ActiveStages))
	for i, s := range snap.ActiveStages {
		activeStages[i] = strconv.Itoa(s.Number)
	}
	activeTimers := make([]string, len(snap.ActiveTimers))
	for i, t := range snap.ActiveTimers {
		activeTimers[i] = strconv.Itoa(t.ID)
	}
	relayStates := make([]string, len(snap.Relays))
	for i, relay := range snap.Relays {
		if relay.Energized {
			relayStates[i] = "1"
		} else {
			relayStates[i] = "0"
		}
	}

	fields := map[string]interface{}{
		"armed":          strconv.FormatBool(snap.Armed),
		"active-stages":  strings.Join(activeStages, ","),
		"active-timers":  strings.Join(activeTimers, ","),
		"relays":         strings.Join(relayStates, ","),
		"trans-brake":    strconv.FormatBool(snap.Inputs.TransBrakeActive),
		"clutch":         strconv.FormatBool(snap.Inputs.ClutchActive),
		"gear":           strconv.Itoa(snap.Inputs.ShifterGear),
		"pedaling":       strconv.FormatBool(snap.Inputs.ThrottlePedaling),
		"last-interrupt": snap.LastInterrupt.Format(time.RFC3339Nano),
	}

	if err := r.client.HSet(ctx, "nitrous", fields).Err(); err != nil {
		r.logger.Warnf("Failed to publish status hash: %v", err)
		return
	}
	if err := r.client.Publish(ctx, "nitrous", "status").Err(); err != nil {
		r.logger.Warnf("Failed to publish status notification: %v", err)
	}
}

func (r *RedisClient) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.client.Close()
}
