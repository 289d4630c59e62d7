// Package config loads the simulator and bridge settings from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AMR-Platform/Interface/internal/bridge"
	"github.com/AMR-Platform/Interface/internal/kinematics"
	"github.com/AMR-Platform/Interface/internal/mirror"
	"github.com/AMR-Platform/Interface/internal/nav"
	"github.com/AMR-Platform/Interface/internal/observability"
	"github.com/AMR-Platform/Interface/internal/perception"
	"github.com/AMR-Platform/Interface/internal/relay"
	"github.com/AMR-Platform/Interface/internal/sim"
	"github.com/AMR-Platform/Interface/internal/world"
	"github.com/AMR-Platform/Interface/logging"
)

// Environment variables that override file values.
const (
	EnvTickRate = "AMRSIM_TICK_RATE"
	EnvSeed     = "AMRSIM_SEED"
	EnvListen   = "AMRSIM_LISTEN"
	EnvPprof    = "AMRSIM_ENABLE_PPROF"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Listen          string        `yaml:"listen"`
	TickRate        int           `yaml:"tickRate"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	World     world.Layout    `yaml:"world"`
	Robot     RobotConfig     `yaml:"robot"`
	Follower  nav.Config      `yaml:"follower"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Hub       HubConfig       `yaml:"hub"`
	Logging   logging.Config  `yaml:"logging"`
	Relay     RelayConfig     `yaml:"relay"`
	Bridge    bridge.Config   `yaml:"bridge"`
	Mirror    mirror.Config   `yaml:"mirror"`

	Observability observability.Config `yaml:"observability"`
}

// RobotConfig describes the simulated body, drive and sensor.
type RobotConfig struct {
	StartX       float64 `yaml:"startX"`
	StartY       float64 `yaml:"startY"`
	StartYaw     float64 `yaml:"startYaw"`
	BodyRadius   float64 `yaml:"bodyRadius"`
	WheelRadius  float64 `yaml:"wheelRadius"`
	TrackWidth   float64 `yaml:"trackWidth"`
	BatteryStart float64 `yaml:"batteryStart"`
	BatteryDrain float64 `yaml:"batteryDrain"`
	LidarBeams   int     `yaml:"lidarBeams"`
	LidarRange   float64 `yaml:"lidarRange"`
}

type SchedulerConfig struct {
	CommandCapacity int `yaml:"commandCapacity"`
	WarningStep     int `yaml:"warningStep"`
}

type HubConfig struct {
	OutboundBuffer int           `yaml:"outboundBuffer"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
}

type RelayConfig struct {
	Enabled      bool `yaml:"enabled"`
	relay.Config `yaml:",inline"`
}

func Defaults() *Config {
	engine := sim.DefaultConfig()
	relayCfg := relay.DefaultConfig()
	relayCfg.Address = "127.0.0.1:5005"
	return &Config{
		Listen:          ":8080",
		TickRate:        engine.TickRate,
		ShutdownTimeout: 5 * time.Second,
		World:           world.DefaultLayout(),
		Robot: RobotConfig{
			StartX:       engine.StartPose.X,
			StartY:       engine.StartPose.Y,
			StartYaw:     engine.StartPose.Yaw,
			BodyRadius:   engine.BodyRadius,
			WheelRadius:  engine.Drive.WheelRadius,
			TrackWidth:   engine.Drive.TrackWidth,
			BatteryStart: engine.BatteryStart,
			BatteryDrain: engine.BatteryDrain,
			LidarBeams:   engine.Lidar.Beams,
			LidarRange:   engine.Lidar.MaxRange,
		},
		Follower:  nav.DefaultConfig(),
		Scheduler: SchedulerConfig{CommandCapacity: 256},
		Hub: HubConfig{
			OutboundBuffer: 4,
			WriteTimeout:   2 * time.Second,
		},
		Logging: logging.DefaultConfig(),
		Relay:   RelayConfig{Config: relayCfg},
		Bridge:  bridge.DefaultConfig(),
		Mirror:  mirror.DefaultConfig(),
	}
}

// Load reads path over Defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays the AMRSIM_* variables found through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if raw := getenv(EnvTickRate); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvTickRate, raw, err)
		}
		c.TickRate = value
	}
	if raw := getenv(EnvSeed); raw != "" {
		c.World.Seed = raw
	}
	if raw := getenv(EnvListen); raw != "" {
		c.Listen = raw
	}
	if raw := getenv(EnvPprof); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvPprof, raw, err)
		}
		c.Observability.EnablePprof = value
	}
	return nil
}

// Validate reports every problem found, joined and wrapped in ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.TickRate <= 0 || c.TickRate > 1000 {
		errs = append(errs, fmt.Errorf("tickRate must be in 1..1000, got %d", c.TickRate))
	}
	if err := c.World.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Robot.BodyRadius < 0 {
		errs = append(errs, fmt.Errorf("robot.bodyRadius must not be negative, got %v", c.Robot.BodyRadius))
	}
	if c.Robot.BatteryDrain < 0 {
		errs = append(errs, fmt.Errorf("robot.batteryDrain must not be negative, got %v", c.Robot.BatteryDrain))
	}
	if c.Robot.WheelRadius <= 0 || c.Robot.TrackWidth <= 0 {
		errs = append(errs, errors.New("robot.wheelRadius and robot.trackWidth must be positive"))
	}
	if c.Robot.LidarBeams <= 0 || c.Robot.LidarRange <= 0 {
		errs = append(errs, errors.New("robot.lidarBeams and robot.lidarRange must be positive"))
	}
	if c.Follower.Lookahead < 1 {
		errs = append(errs, fmt.Errorf("follower.lookahead must be at least 1, got %d", c.Follower.Lookahead))
	}
	if c.Follower.ProximityThreshold <= 0 {
		errs = append(errs, errors.New("follower.proximityThreshold must be positive"))
	}
	if c.Relay.Enabled && c.Relay.Address == "" {
		errs = append(errs, errors.New("relay.address is required when the relay is enabled"))
	}
	if err := c.Mirror.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// Engine translates the file settings into the engine configuration.
func (c *Config) Engine() sim.Config {
	engine := sim.DefaultConfig()
	engine.TickRate = c.TickRate
	engine.Follower = c.Follower
	engine.BodyRadius = c.Robot.BodyRadius
	engine.StartPose = kinematics.Pose{X: c.Robot.StartX, Y: c.Robot.StartY, Yaw: kinematics.WrapAngle(c.Robot.StartYaw)}
	engine.Drive = kinematics.Drive{WheelRadius: c.Robot.WheelRadius, TrackWidth: c.Robot.TrackWidth}
	engine.BatteryStart = c.Robot.BatteryStart
	engine.BatteryDrain = c.Robot.BatteryDrain
	engine.Lidar = perception.DefaultLidar()
	engine.Lidar.Beams = c.Robot.LidarBeams
	engine.Lidar.MaxRange = c.Robot.LidarRange
	return engine
}
