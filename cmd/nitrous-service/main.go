package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"nitrous-service/internal/config"
	"nitrous-service/internal/core"
	"nitrous-service/internal/hardware"
	"nitrous-service/internal/logger"
	"nitrous-service/internal/messaging"
)

func main() {
	var serviceLogLevel int
	var redisHost string
	var redisPort int
	var configPath string
	var priority int
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	flag.StringVar(&redisHost, "redis-host", "127.0.0.1", "Redis host")
	flag.IntVar(&redisPort, "redis-port", 6379, "Redis port")
	flag.StringVar(&configPath, "config", "/etc/nitrous/controller.yaml", "Controller configuration file")
	flag.IntVar(&priority, "priority", -10, "Process nice value for the control loop (0 to leave unchanged)")

	flag.Parse()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	l := logger.NewLogger(stdLogger, logger.LogLevel(serviceLogLevel))

	l.Infof("Starting nitrous controller service...")

	if priority != 0 {
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, priority); err != nil {
			l.Warnf("Failed to set process priority %d: %v", priority, err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		l.Fatalf("Failed to load configuration: %v", err)
	}

	relayIO := hardware.NewLinuxRelayIO(l)
	if err := relayIO.Initialize(); err != nil {
		l.Fatalf("Failed to initialize relay IO: %v", err)
	}

	controller, err := core.NewController(cfg, relayIO, l)
	if err != nil {
		relayIO.Cleanup()
		l.Fatalf("Failed to build controller: %v", err)
	}

	redis := messaging.NewRedisClient(redisHost, redisPort, l, messaging.Handlers{
		TransBrake: func(on bool) error { controller.SetTransBrakeState(on); return nil },
		Clutch:     func(on bool) error { controller.SetClutchState(on); return nil },
		Gear:       func(gear int) error { controller.SetShifterGear(gear); return nil },
		Pedal:      func(on bool) error { controller.SetThrottlePedaling(on); return nil },
		Arm:        func(on bool) error { controller.SetArmed(on); return nil },
		PurgeStart: func(id int) error {
			if !controller.ActivatePurge(id) {
				return fmt.Errorf("purge %d not activated", id)
			}
			// The engine does not self-schedule purge deactivation; stop it
			// here after the configured duration.
			if d, ok := controller.PurgeDuration(id); ok && d > 0 {
				time.AfterFunc(d, func() { controller.DeactivatePurge(id) })
			}
			return nil
		},
		PurgeStop: func(id int) error {
			controller.DeactivatePurge(id)
			return nil
		},
		StageFire:    controller.ActivateStageManual,
		StageRelease: controller.DeactivateStageManual,
		TimerStart:   controller.StartTimerManual,
		StageConfig:  controller.ApplyStageField,
		TimerConfig:  controller.ApplyTimerField,
	})

	if err := redis.Connect(); err != nil {
		relayIO.Cleanup()
		l.Fatalf("Failed to connect to Redis: %v", err)
	}

	controller.RegisterObserver(redis.PublishStatus)

	if err := controller.Start(); err != nil {
		l.Fatalf("Failed to start controller: %v", err)
	}
	if err := redis.StartListening(); err != nil {
		l.Fatalf("Failed to start Redis listeners: %v", err)
	}

	l.Infof("Service started successfully (%d stages, %d timers)", len(cfg.Stages), len(cfg.Timers))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)

	if err := redis.Close(); err != nil {
		l.Warnf("Error closing Redis client: %v", err)
	}
	controller.Shutdown()
	relayIO.Cleanup()
	l.Infof("Shutdown complete")
}
