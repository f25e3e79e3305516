// Command armsolver is a path planner that speaks the solver line protocol.
// It takes the target as three positional arguments and writes an obstacle
// record, then stats every generation and the best path every --every
// generations, until it is killed or --generations is reached.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/protocol"
)

var (
	every       int
	generations int
	waypoints   int
	population  int
	delay       time.Duration
	link1       float64
	link2       float64
	seed        int64
	noObstacle  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "armsolver [x y z]",
		Short:         "plan an arm path and stream it in the solver line protocol",
		Args:          cobra.MaximumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          solve,
	}

	f := rootCmd.Flags()
	f.IntVar(&every, "every", 10, "emit the best path every n generations")
	f.IntVar(&generations, "generations", 0, "stop after n generations (0 runs until killed)")
	f.IntVar(&waypoints, "waypoints", 30, "waypoints per path")
	f.IntVar(&population, "population", 40, "population size")
	f.DurationVar(&delay, "delay", 20*time.Millisecond, "pause between generations")
	f.Float64Var(&link1, "link1", kinematics.DefaultLink1, "upper arm length")
	f.Float64Var(&link2, "link2", kinematics.DefaultLink2, "forearm length")
	f.Int64Var(&seed, "seed", 0, "random seed (0 uses the clock)")
	f.BoolVar(&noObstacle, "no-obstacle", false, "plan without an obstacle")

	target, rest := splitTarget(os.Args[1:])
	rootCmd.SetArgs(append(rest, target...))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "armsolver:", err)
		os.Exit(1)
	}
}

func solve(cmd *cobra.Command, args []string) error {
	if every < 1 || waypoints < 2 || population < 2 {
		return fmt.Errorf("every must be >= 1, waypoints and population >= 2")
	}

	target := kinematics.Vec3{X: 20}
	if len(args) == 3 {
		target = kinematics.Vec3{X: atof(args[0]), Y: atof(args[1]), Z: atof(args[2])}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	arm := kinematics.NewArm(link1, link2)

	enc := protocol.NewEncoder(os.Stdout)

	var obstacle *protocol.Obstacle
	if !noObstacle {
		ob := DefaultObstacle(arm, target)
		obstacle = &ob
		if err := enc.Obstacle(ob); err != nil {
			return err
		}
	}

	p := NewPlanner(arm, target, obstacle, waypoints, population, rand.New(rand.NewSource(seed)))
	return run(ctx, p, enc)
}

func run(ctx context.Context, p *Planner, enc *protocol.Encoder) error {
	for gen := 0; generations == 0 || gen < generations; gen++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		stats := p.Step()
		if gen%every == 0 {
			if err := enc.WritePath(p.Best()); err != nil {
				return err
			}
		}
		if err := enc.Stats(stats); err != nil {
			return err
		}
		if err := enc.Flush(); err != nil {
			return err
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
		}
	}
	return nil
}

// splitTarget moves trailing numeric coordinates behind a "--" so negative
// values are not taken for flags.
func splitTarget(args []string) (target, rest []string) {
	if len(args) < 3 {
		return nil, args
	}
	tail := args[len(args)-3:]
	for _, a := range tail {
		if _, err := strconv.ParseFloat(a, 64); err != nil {
			return nil, args
		}
	}
	rest = append([]string(nil), args[:len(args)-3]...)
	if n := len(rest); n > 0 && rest[n-1] == "--" {
		rest = rest[:n-1]
	}
	return append([]string{"--"}, tail...), rest
}

// atof parses the longest numeric prefix of s and yields 0 when there is
// none, so a malformed coordinate never aborts the planner.
func atof(s string) float64 {
	s = strings.TrimSpace(s)
	for end := len(s); end > 0; end-- {
		if v, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return v
		}
	}
	return 0
}
