package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/supervisor"
)

const (
	DefaultLink1         = kinematics.DefaultLink1
	DefaultLink2         = kinematics.DefaultLink2
	DefaultKillTimeout   = 2 * time.Second
	DefaultShutdownGrace = 3 * time.Second
	DefaultDataDir       = ".armsim"
	DefaultLogLevel      = "info"
)

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Arm      ArmConfig    `yaml:"arm"`
	Solver   SolverConfig `yaml:"solver"`
	Targets  TargetConfig `yaml:"targets"`
	DataDir  string       `yaml:"data_dir"`
	LogLevel string       `yaml:"log_level"`
}

type ArmConfig struct {
	Link1            float64 `yaml:"link1"`
	Link2            float64 `yaml:"link2"`
	ClampGroundPlane bool    `yaml:"clamp_ground_plane"`
	ReachEpsilon     float64 `yaml:"reach_epsilon"`
}

type SolverConfig struct {
	Path          string        `yaml:"path"`
	Args          []string      `yaml:"args"`
	KillTimeout   time.Duration `yaml:"kill_timeout"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

type TargetConfig struct {
	MinRadius float64 `yaml:"min_radius"`
	MaxRadius float64 `yaml:"max_radius"`
	MinHeight float64 `yaml:"min_height"`
	MaxHeight float64 `yaml:"max_height"`
}

func DefaultConfig() *Config {
	bounds := kinematics.DefaultCylinderBounds()
	return &Config{
		Arm: ArmConfig{
			Link1: DefaultLink1,
			Link2: DefaultLink2,
		},
		Solver: SolverConfig{
			Path:          supervisor.DefaultSolverPath(),
			KillTimeout:   DefaultKillTimeout,
			ShutdownGrace: DefaultShutdownGrace,
		},
		Targets: TargetConfig{
			MinRadius: bounds.MinRadius,
			MaxRadius: bounds.MaxRadius,
			MinHeight: bounds.MinHeight,
			MaxHeight: bounds.MaxHeight,
		},
		DataDir:  DefaultDataDir,
		LogLevel: DefaultLogLevel,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	switch {
	case c.Arm.Link1 <= 0 || c.Arm.Link2 <= 0:
		return fmt.Errorf("%w: link lengths must be positive (got %g, %g)", ErrInvalid, c.Arm.Link1, c.Arm.Link2)
	case c.Arm.ReachEpsilon < 0:
		return fmt.Errorf("%w: reach_epsilon must not be negative", ErrInvalid)
	case c.Arm.ReachEpsilon >= c.Arm.Link1+c.Arm.Link2:
		return fmt.Errorf("%w: reach_epsilon %g swallows the whole reach", ErrInvalid, c.Arm.ReachEpsilon)
	case c.Solver.Path == "":
		return fmt.Errorf("%w: solver path is empty", ErrInvalid)
	case c.Solver.KillTimeout <= 0 || c.Solver.ShutdownGrace < 0:
		return fmt.Errorf("%w: solver timeouts must be positive", ErrInvalid)
	case c.Targets.MinRadius < 0 || c.Targets.MaxRadius < c.Targets.MinRadius:
		return fmt.Errorf("%w: target radius range [%g, %g]", ErrInvalid, c.Targets.MinRadius, c.Targets.MaxRadius)
	case c.Targets.MaxHeight < c.Targets.MinHeight:
		return fmt.Errorf("%w: target height range [%g, %g]", ErrInvalid, c.Targets.MinHeight, c.Targets.MaxHeight)
	}
	return nil
}

func (c *Config) GetArm() *kinematics.Arm {
	return &kinematics.Arm{
		Link1:        c.Arm.Link1,
		Link2:        c.Arm.Link2,
		ClampGround:  c.Arm.ClampGroundPlane,
		ReachEpsilon: c.Arm.ReachEpsilon,
	}
}

func (c *Config) GetTargetBounds() kinematics.CylinderBounds {
	return kinematics.CylinderBounds{
		MinRadius: c.Targets.MinRadius,
		MaxRadius: c.Targets.MaxRadius,
		MinHeight: c.Targets.MinHeight,
		MaxHeight: c.Targets.MaxHeight,
	}
}

func (c *Config) GetSupervisorConfig() supervisor.Config {
	return supervisor.Config{
		KillTimeout:   c.Solver.KillTimeout,
		ShutdownGrace: c.Solver.ShutdownGrace,
	}
}

func (c *Config) GetLauncher() *supervisor.ExecLauncher {
	return &supervisor.ExecLauncher{
		Path:      c.Solver.Path,
		ExtraArgs: c.Solver.Args,
		WaitDelay: c.Solver.KillTimeout,
	}
}
