package supervisor_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/log"
	"github.com/san-kum/armsim/internal/protocol"
	"github.com/san-kum/armsim/internal/supervisor"
)

const echoSolver = `echo "OBSTACLE 1 2 3 0.5"
echo START_PATH
echo "0 0 20"
echo "$1 $2 $3"
echo END_PATH
echo "STATS 1 4.5 9 2"
echo "progress" >&2
exec sleep 30
`

const stubbornSolver = `trap '' TERM
echo START_PATH
echo "$1 $2 $3"
echo END_PATH
while :; do sleep 0.05; done
`

var _ = Describe("ExecLauncher", func() {
	var sh string

	writeScript := func(body string) string {
		path := filepath.Join(GinkgoT().TempDir(), "solver.sh")
		Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		if runtime.GOOS == "windows" {
			Skip("needs a POSIX shell")
		}
		var err error
		sh, err = exec.LookPath("sh")
		if err != nil {
			Skip("sh not found")
		}
	})

	It("formats targets as plain decimals", func() {
		Expect(supervisor.TargetArgs(kinematics.Vec3{X: 15, Y: -0.25, Z: 1e-7})).
			To(Equal([]string{"15", "-0.25", "0.0000001"}))
	})

	It("reports a missing binary as ErrSolverNotFound", func() {
		l := &supervisor.ExecLauncher{Path: filepath.Join(GinkgoT().TempDir(), "main")}
		_, err := l.Launch(context.Background(), kinematics.Vec3{})
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, supervisor.ErrSolverNotFound)).To(BeTrue())
	})

	It("does not start with a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		l := &supervisor.ExecLauncher{Path: sh, ExtraArgs: []string{"-c", "exit 0"}}
		_, err := l.Launch(ctx, kinematics.Vec3{})
		Expect(err).To(MatchError(context.Canceled))
	})

	It("passes the target to the solver and streams its output", func() {
		l := &supervisor.ExecLauncher{Path: sh, ExtraArgs: []string{writeScript(echoSolver)}}
		sup := supervisor.New(supervisor.Config{KillTimeout: time.Second, ShutdownGrace: time.Second}, l, log.New(GinkgoWriter, "debug"))
		sup.Start(context.Background())
		DeferCleanup(sup.Close)

		target := kinematics.Vec3{X: 15, Y: 0, Z: 5}
		Expect(sup.Submit(target)).To(Succeed())

		Eventually(sup.Trajectories().Version, 5*time.Second).Should(BeEquivalentTo(1))
		traj, _ := sup.Trajectories().Load()
		Expect(traj.Samples).To(Equal([]kinematics.Vec3{{X: 0, Y: 0, Z: 20}, target}))

		Eventually(sup.Stats().Len).Should(Equal(1))
		Expect(sup.Stats().Snapshot()[0]).To(Equal(protocol.Stats{Generation: 1, Best: 4.5, Avg: 9, Steps: 2}))

		ob, _ := sup.Obstacles().Load()
		Expect(ob.Radius).To(Equal(0.5))
		Expect(sup.Alive()).To(Equal(1))

		began := time.Now()
		Expect(sup.Close()).To(Succeed())
		Expect(time.Since(began)).To(BeNumerically("<", time.Second))
		Expect(sup.Alive()).To(BeZero())
	})

	It("kills a solver that ignores SIGTERM", func() {
		l := &supervisor.ExecLauncher{Path: sh, ExtraArgs: []string{writeScript(stubbornSolver)}}
		sup := supervisor.New(supervisor.Config{KillTimeout: time.Second, ShutdownGrace: 200 * time.Millisecond}, l, log.New(GinkgoWriter, "debug"))
		sup.Start(context.Background())

		Expect(sup.Submit(kinematics.Vec3{X: 1, Y: 2, Z: 3})).To(Succeed())
		Eventually(sup.Trajectories().Version, 5*time.Second).Should(BeEquivalentTo(1))

		began := time.Now()
		Expect(sup.Close()).To(Succeed())
		Expect(time.Since(began)).To(BeNumerically("<", 2*time.Second))
		Expect(sup.Alive()).To(BeZero())
	})

	It("replaces a running solver process", func() {
		l := &supervisor.ExecLauncher{Path: sh, ExtraArgs: []string{writeScript(echoSolver)}}
		sup := supervisor.New(supervisor.Config{KillTimeout: time.Second}, l, log.New(GinkgoWriter, "debug"))
		sup.Start(context.Background())
		DeferCleanup(sup.Close)

		Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
		Eventually(sup.Trajectories().Version, 5*time.Second).Should(BeEquivalentTo(1))

		Expect(sup.Submit(kinematics.Vec3{X: 2})).To(Succeed())
		Eventually(func() float64 {
			traj, _ := sup.Trajectories().Load()
			return traj.Target.X
		}, 5*time.Second).Should(Equal(2.0))
		Expect(sup.Alive()).To(Equal(1))
	})
})
