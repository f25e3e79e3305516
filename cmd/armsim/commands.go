package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/armsim/internal/export"
	"github.com/san-kum/armsim/internal/feed"
	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/log"
	"github.com/san-kum/armsim/internal/server"
	"github.com/san-kum/armsim/internal/storage"
	"github.com/san-kum/armsim/internal/supervisor"
	"github.com/san-kum/armsim/internal/viz"
)

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %q must be finite", a)
		}
		out[i] = v
	}
	return out, nil
}

func parseTarget(args []string) (kinematics.Vec3, error) {
	v, err := parseFloats(args)
	if err != nil {
		return kinematics.Vec3{}, err
	}
	return kinematics.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func newRNG() *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(seed))
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }

func printPose(arm *kinematics.Arm, target kinematics.Vec3) {
	q := arm.Inverse(target)
	fmt.Printf("target:    %s  (reachable: %v)\n", target, arm.Reachable(target))
	fmt.Printf("base:      %8.3f rad  %8.2f°\n", q.Base, deg(q.Base))
	fmt.Printf("shoulder:  %8.3f rad  %8.2f°\n", q.Shoulder, deg(q.Shoulder))
	fmt.Printf("elbow:     %8.3f rad  %8.2f°\n", q.Elbow, deg(q.Elbow))
	if q.Degenerate {
		fmt.Println("pose is degenerate (target at the base)")
	}
	fmt.Printf("reached:   %s  (error %.4f)\n", arm.Forward(q), arm.Forward(q).Dist(target))
}

func runIK(cmd *cobra.Command, args []string) error {
	target, err := parseTarget(args)
	if err != nil {
		return err
	}
	printPose(cfg.GetArm(), target)
	return nil
}

func runFK(cmd *cobra.Command, args []string) error {
	v, err := parseFloats(args)
	if err != nil {
		return err
	}
	if degrees {
		for i := range v {
			v[i] *= math.Pi / 180
		}
	}
	arm := cfg.GetArm()
	q := kinematics.JointAngles{Base: v[0], Shoulder: v[1], Elbow: v[2]}
	fmt.Printf("elbow:     %s\n", arm.Elbow(q))
	fmt.Printf("effector:  %s\n", arm.Forward(q))
	return nil
}

func runRandom(cmd *cobra.Command, args []string) error {
	if count < 1 {
		return fmt.Errorf("count must be positive")
	}
	arm := cfg.GetArm()
	bounds := cfg.GetTargetBounds()
	rng := newRNG()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "X\tY\tZ\tREACHABLE")
	for i := 0; i < count; i++ {
		var p kinematics.Vec3
		if reachable {
			p = arm.RandomTarget(rng)
		} else {
			p = kinematics.RandomCylinderTarget(rng, bounds)
		}
		fmt.Fprintf(w, "%.3f\t%.3f\t%.3f\t%v\n", p.X, p.Y, p.Z, arm.Reachable(p))
	}
	return w.Flush()
}

// startSupervisor builds a supervisor from the resolved config and starts it.
// The returned stop func closes it and logs any shutdown error.
func startSupervisor(ctx context.Context) (*supervisor.Supervisor, func()) {
	sup := supervisor.New(cfg.GetSupervisorConfig(), cfg.GetLauncher(), log.L())
	sup.Start(ctx)
	return sup, func() {
		if err := sup.Close(); err != nil {
			log.Warn("supervisor shutdown", "err", err)
		}
	}
}

func runTrack(cmd *cobra.Command, args []string) error {
	target, err := parseTarget(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if trackFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, trackFor)
		defer cancel()
	}

	sup, closeSup := startSupervisor(context.Background())
	defer closeSup()

	recCtx, stopRec := context.WithCancel(ctx)
	defer stopRec()
	var recDone chan *storage.Recording
	if record {
		recDone = make(chan *storage.Recording, 1)
		rec := storage.NewRecorder(sup, target)
		go func() { recDone <- rec.Run(recCtx) }()
	}

	if err := sup.Submit(target); err != nil {
		return err
	}
	fmt.Printf("tracking %s with %s\n\n", target, cfg.Solver.Path)

	launchErr := follow(ctx, sup)
	closeSup()
	stopRec()

	if recDone != nil {
		rec := <-recDone
		if err := saveRecording(rec); err != nil {
			return err
		}
	}
	return launchErr
}

// follow prints stats and status changes until ctx is done or the run ends.
func follow(ctx context.Context, sup *supervisor.Supervisor) error {
	var cursor feed.Cursor
	var statusV uint64
	for {
		changed := sup.Stats().Changed()
		statusCh := sup.Status().Changed()

		items, reset, next := sup.Stats().Since(cursor)
		cursor = next
		if reset {
			fmt.Printf("%-6s %12s %12s %6s\n", "GEN", "BEST", "AVG", "STEPS")
		}
		for _, s := range items {
			fmt.Printf("%-6d %12.4f %12.4f %6d\n", s.Generation, s.Best, s.Avg, s.Steps)
		}

		if st, v := sup.Status().Load(); v > statusV {
			statusV = v
			if st.Err != nil {
				return st.Err
			}
			// Idle after a run was accepted means the solver exited on its own
			if st.Phase == supervisor.Idle && st.RunID != "" {
				fmt.Println("\nsolver exited")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		case <-statusCh:
		}
	}
}

func saveRecording(rec *storage.Recording) error {
	store := storage.New(cfg.DataDir)
	if err := store.Init(); err != nil {
		return err
	}
	id, err := store.Save(rec, cfg.GetArm())
	if errors.Is(err, storage.ErrEmptyRecording) {
		fmt.Println("nothing to record")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("saved: %s (%d generations, %d frames)\n", id, len(rec.Stats), rec.Frames)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 3 {
		return fmt.Errorf("expected no target or x y z")
	}

	arm := cfg.GetArm()
	rng := newRNG()
	target := kinematics.RandomCylinderTarget(rng, cfg.GetTargetBounds())
	if len(args) == 3 {
		t, err := parseTarget(args)
		if err != nil {
			return err
		}
		target = t
	}

	// the tracker owns the terminal, keep logs out of it
	log.Init("error")

	sup, closeSup := startSupervisor(context.Background())
	defer closeSup()

	m := viz.NewTracker(sup, arm, cfg.GetTargetBounds(), target, rng.Int63())
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup, closeSup := startSupervisor(context.Background())
	defer closeSup()

	srv := server.New(sup, cfg.GetArm(), log.L())
	fmt.Printf("serving on %s\n", addr)
	return srv.ListenAndServe(ctx, addr)
}

func listRuns(cmd *cobra.Command, args []string) error {
	store := storage.New(cfg.DataDir)
	runs, err := store.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTARGET\tGENERATIONS\tBEST\tERROR\tFRAMES\tTIME")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%.4f\t%d\t%s\n",
			r.ID, r.Target, r.Generations, r.BestFitness, r.Metrics["target_error"], r.Frames,
			r.Timestamp.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	store := storage.New(cfg.DataDir)
	meta, err := store.Load(args[0])
	if err != nil {
		return err
	}
	stats, err := store.LoadStats(args[0])
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		return fmt.Errorf("run %s has no stats", args[0])
	}

	best := make([]float64, len(stats))
	avg := make([]float64, len(stats))
	for i, s := range stats {
		best[i] = s.Best
		avg[i] = s.Avg
	}

	fmt.Println(asciigraph.PlotMany([][]float64{best, avg},
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Gray),
		asciigraph.Caption(fmt.Sprintf("fitness for %s (green best, gray avg)", meta.Target))))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	store := storage.New(cfg.DataDir)
	if !exportSVG {
		return store.Export(os.Stdout, args[0])
	}

	meta, err := store.Load(args[0])
	if err != nil {
		return err
	}
	path, err := store.LoadPath(args[0])
	if err != nil {
		return err
	}
	scene := export.Scene{Arm: cfg.GetArm(), Target: meta.Target, Path: path, Obstacle: meta.Obstacle}
	return export.PathSVG(os.Stdout, scene, svgWidth, svgWidth*4/5)
}
