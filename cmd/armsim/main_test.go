package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/san-kum/armsim/internal/config"
	"github.com/san-kum/armsim/internal/kinematics"
)

func TestParseTarget(t *testing.T) {
	got, err := parseTarget([]string{"15", "-2.5", "1e1"})
	if err != nil {
		t.Fatal(err)
	}
	if got != (kinematics.Vec3{X: 15, Y: -2.5, Z: 10}) {
		t.Errorf("unexpected target %v", got)
	}

	for _, bad := range [][]string{{"x", "0", "0"}, {"NaN", "0", "0"}, {"0", "Inf", "0"}} {
		if _, err := parseTarget(bad); err == nil {
			t.Errorf("expected error for %v", bad)
		}
	}
}

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	f := cmd.Flags()
	f.StringVar(&dataDir, "data", config.DefaultDataDir, "")
	f.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "")
	f.StringVar(&solverPath, "solver", "", "")
	return cmd
}

func TestResolveConfig(t *testing.T) {
	t.Cleanup(func() { preset, configFile = "", "" })

	cmd := newTestCmd()
	if err := cmd.Flags().Parse([]string{"--solver", "/opt/solver", "--data", "runs"}); err != nil {
		t.Fatal(err)
	}
	preset = "unit"

	cfg, err := resolveConfig(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Arm.Link1 != 1 || cfg.Solver.Path != "/opt/solver" || cfg.DataDir != "runs" {
		t.Errorf("flags and preset not layered: %+v", cfg)
	}

	preset = "nope"
	if _, err := resolveConfig(newTestCmd()); err == nil {
		t.Error("expected unknown preset error")
	}
}
