package config

import "sort"

// Presets capture the deployment variants of the arm. Solver and target
// settings are taken from DefaultConfig.
var Presets = map[string]*Config{
	"viewer": {
		Arm: ArmConfig{Link1: 10, Link2: 10, ClampGroundPlane: false, ReachEpsilon: 0},
	},
	"grounded": {
		Arm: ArmConfig{Link1: 10, Link2: 10, ClampGroundPlane: true, ReachEpsilon: 1e-6},
	},
	"unit": {
		Arm:     ArmConfig{Link1: 1, Link2: 1, ClampGroundPlane: false, ReachEpsilon: 0},
		Targets: TargetConfig{MinRadius: 0.25, MaxRadius: 1.8, MinHeight: 0, MaxHeight: 1.5},
	},
}

// GetPreset returns a full configuration for the named preset, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Arm = p.Arm
	if p.Targets != (TargetConfig{}) {
		cfg.Targets = p.Targets
	}
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
