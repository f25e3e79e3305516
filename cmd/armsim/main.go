package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/armsim/internal/config"
	"github.com/san-kum/armsim/internal/log"
)

// cfg is resolved once per invocation before any command runs.
var cfg *config.Config

var (
	configFile string
	preset     string
	dataDir    string
	logLevel   string
	solverPath string

	// fk
	degrees bool
	// random
	count     int
	seed      int64
	reachable bool
	// track
	trackFor time.Duration
	record   bool
	// serve
	addr string
	// plot, export
	plotHeight int
	plotWidth  int
	exportSVG  bool
	svgWidth   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "armsim",
		Short:         "supervise a 2-link arm trajectory solver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			cfg = resolved
			log.Init(cfg.LogLevel)
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "use preset configuration")
	pf.StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	pf.StringVar(&solverPath, "solver", "", "solver executable (default ./main)")

	ikCmd := &cobra.Command{
		Use:   "ik x y z",
		Short: "solve joint angles for a target",
		Args:  cobra.ExactArgs(3),
		RunE:  runIK,
	}

	fkCmd := &cobra.Command{
		Use:   "fk base shoulder elbow",
		Short: "compute the end effector for joint angles (radians)",
		Args:  cobra.ExactArgs(3),
		RunE:  runFK,
	}
	fkCmd.Flags().BoolVar(&degrees, "deg", false, "angles are in degrees")

	randomCmd := &cobra.Command{
		Use:   "random",
		Short: "sample random targets",
		Args:  cobra.NoArgs,
		RunE:  runRandom,
	}
	randomCmd.Flags().IntVarP(&count, "count", "n", 1, "number of targets")
	randomCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 uses the clock)")
	randomCmd.Flags().BoolVar(&reachable, "reachable", false, "sample joint space instead of the target cylinder")

	trackCmd := &cobra.Command{
		Use:   "track x y z",
		Short: "run the solver headless and stream its stats",
		Args:  cobra.ExactArgs(3),
		RunE:  runTrack,
	}
	trackCmd.Flags().DurationVar(&trackFor, "for", 0, "stop after this long (0 runs until interrupted)")
	trackCmd.Flags().BoolVar(&record, "record", false, "save the run to the data directory")

	liveCmd := &cobra.Command{
		Use:   "live [x y z]",
		Short: "interactive terminal tracker",
		Args:  cobra.RangeArgs(0, 3),
		RunE:  runLive,
	}
	liveCmd.Flags().Int64Var(&seed, "seed", 0, "random seed for new targets (0 uses the clock)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the supervisor over http and websockets",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run]",
		Short: "plot fitness of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")

	exportCmd := &cobra.Command{
		Use:   "export [run]",
		Short: "export a recorded run as json or a side view svg",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().BoolVar(&exportSVG, "svg", false, "write a side view svg instead of json")
	exportCmd.Flags().IntVar(&svgWidth, "width", 800, "svg width in pixels")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Printf("  %-10s links %g/%g  clamp=%v  eps=%g\n",
					name, p.Arm.Link1, p.Arm.Link2, p.Arm.ClampGroundPlane, p.Arm.ReachEpsilon)
			}
		},
	}

	initCmd := &cobra.Command{
		Use:   "init-config [file]",
		Short: "write the effective configuration to a yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}

	rootCmd.AddCommand(ikCmd, fkCmd, randomCmd, trackCmd, liveCmd, serveCmd, listCmd, plotCmd, exportCmd, presetsCmd, initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// resolveConfig layers defaults, then the preset, then the config file,
// then any flag given explicitly on the command line.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("data") || configFile == "" {
		cfg.DataDir = dataDir
	}
	if flags.Changed("log-level") || configFile == "" {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("solver") {
		cfg.Solver.Path = solverPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
