package supervisor_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/armsim/internal/feed"
	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/log"
	"github.com/san-kum/armsim/internal/protocol"
	"github.com/san-kum/armsim/internal/supervisor"
)

var _ = Describe("Supervisor", func() {
	var (
		launcher *fakeLauncher
		sup      *supervisor.Supervisor
		cfg      supervisor.Config
	)

	status := func() supervisor.Status {
		st, _ := sup.Status().Load()
		return st
	}
	phase := func() supervisor.Phase { return status().Phase }

	start := func() {
		sup = supervisor.New(cfg, launcher, log.New(GinkgoWriter, "debug"))
		sup.Start(context.Background())
		DeferCleanup(sup.Close)
	}

	BeforeEach(func() {
		launcher = &fakeLauncher{}
		cfg = supervisor.Config{KillTimeout: time.Second, ShutdownGrace: 100 * time.Millisecond}
	})

	Describe("streaming", func() {
		BeforeEach(start)

		It("starts idle with nothing published", func() {
			Expect(phase()).To(Equal(supervisor.Idle))
			Expect(sup.Trajectories().Version()).To(BeZero())
			Expect(sup.Alive()).To(BeZero())
		})

		It("publishes a completed path for the submitted target", func() {
			target := kinematics.Vec3{X: 15, Y: 0, Z: 5}
			Expect(sup.Submit(target)).To(Succeed())
			Eventually(launcher.Count).Should(Equal(1))
			Eventually(phase).Should(Equal(supervisor.Streaming))

			p := launcher.Last()
			Expect(p.target).To(Equal(target))
			Expect(p.Emit("START_PATH", "0 0 20", "7.5 0 12.5", "15 0 5", "END_PATH")).To(Succeed())

			Eventually(sup.Trajectories().Version).Should(BeEquivalentTo(1))
			traj, _ := sup.Trajectories().Load()
			Expect(traj.RunID).To(Equal(status().RunID))
			Expect(traj.Target).To(Equal(target))
			Expect(traj.Frame).To(Equal(1))
			Expect(traj.Samples).To(Equal([]kinematics.Vec3{{X: 0, Y: 0, Z: 20}, {X: 7.5, Y: 0, Z: 12.5}, {X: 15, Y: 0, Z: 5}}))
		})

		It("keeps only the newest path", func() {
			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(launcher.Count).Should(Equal(1))

			p := launcher.Last()
			Expect(p.Emit("START_PATH", "1 1 1", "END_PATH", "START_PATH", "2 2 2", "3 3 3", "END_PATH")).To(Succeed())

			Eventually(sup.Trajectories().Version).Should(BeEquivalentTo(2))
			traj, _ := sup.Trajectories().Load()
			Expect(traj.Frame).To(Equal(2))
			Expect(traj.Samples).To(HaveLen(2))
		})

		It("appends stats in order", func() {
			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(launcher.Count).Should(Equal(1))

			p := launcher.Last()
			Expect(p.Emit("STATS 1 10.5 20 30", "STATS 2 9.5 19 31", "STATS 3 8.5 18 32")).To(Succeed())

			Eventually(sup.Stats().Len).Should(Equal(3))
			Expect(sup.Stats().Snapshot()).To(Equal([]protocol.Stats{
				{Generation: 1, Best: 10.5, Avg: 20, Steps: 30},
				{Generation: 2, Best: 9.5, Avg: 19, Steps: 31},
				{Generation: 3, Best: 8.5, Avg: 18, Steps: 32},
			}))
		})

		It("publishes obstacles", func() {
			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(launcher.Count).Should(Equal(1))
			Expect(launcher.Last().Emit("OBSTACLE 5 5 5 2.5")).To(Succeed())

			Eventually(sup.Obstacles().Version).Should(BeEquivalentTo(1))
			ob, _ := sup.Obstacles().Load()
			Expect(ob).To(Equal(protocol.Obstacle{Center: kinematics.Vec3{X: 5, Y: 5, Z: 5}, Radius: 2.5}))
		})

		It("goes idle when the solver exits on its own", func() {
			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(phase).Should(Equal(supervisor.Streaming))
			runID := status().RunID

			launcher.Last().Exit()

			Eventually(phase).Should(Equal(supervisor.Idle))
			Expect(status().RunID).To(Equal(runID))
			Expect(status().Err).NotTo(HaveOccurred())
			Eventually(sup.Alive).Should(BeZero())
		})
	})

	Describe("solver stderr", func() {
		It("logs the last stderr lines of a solver that exits on its own", func() {
			launcher.stderr = "warning: one\nfinal words\n"
			var logs syncBuffer
			sup = supervisor.New(cfg, launcher, log.New(&logs, "debug"))
			sup.Start(context.Background())
			DeferCleanup(sup.Close)

			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(phase).Should(Equal(supervisor.Streaming))
			launcher.Last().Exit()

			Eventually(phase).Should(Equal(supervisor.Idle))
			Eventually(sup.Alive).Should(BeZero())
			Expect(logs.String()).To(ContainSubstring("warning: one"))
			Expect(logs.String()).To(ContainSubstring("final words"))
		})
	})

	Describe("preemption", func() {
		BeforeEach(start)

		It("kills the running solver before starting the next", func() {
			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(launcher.Count).Should(Equal(1))
			Expect(sup.Submit(kinematics.Vec3{X: 2})).To(Succeed())
			Eventually(launcher.Count).Should(Equal(2))

			Expect(launcher.Proc(0).killed.Load()).To(BeTrue())
			Expect(launcher.Proc(1).killed.Load()).To(BeFalse())
			Expect(launcher.maxAlive.Load()).To(BeEquivalentTo(1))
			Eventually(sup.Alive).Should(Equal(1))
		})

		It("never has more than one solver alive", func() {
			for i := 0; i < 20; i++ {
				Expect(sup.Submit(kinematics.Vec3{X: float64(i)})).To(Succeed())
				time.Sleep(time.Millisecond)
				Expect(sup.Alive()).To(BeNumerically("<=", 1))
			}
			Eventually(func() float64 {
				p := launcher.Last()
				if p == nil {
					return -1
				}
				return p.target.X
			}).Should(Equal(19.0))
			Expect(launcher.maxAlive.Load()).To(BeEquivalentTo(1))
		})

		It("drops a partial frame of the superseded run", func() {
			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(launcher.Count).Should(Equal(1))
			Expect(launcher.Proc(0).Emit("START_PATH", "1 1 1", "2 2 2")).To(Succeed())

			Expect(sup.Submit(kinematics.Vec3{X: 2})).To(Succeed())
			Eventually(launcher.Count).Should(Equal(2))
			Eventually(phase).Should(Equal(supervisor.Streaming))

			second := launcher.Proc(1)
			Expect(second.Emit("3 3 3", "END_PATH")).To(Succeed())
			Consistently(sup.Trajectories().Version, 100*time.Millisecond).Should(BeZero())

			Expect(second.Emit("START_PATH", "4 4 4", "END_PATH")).To(Succeed())
			Eventually(sup.Trajectories().Version).Should(BeEquivalentTo(1))
			traj, _ := sup.Trajectories().Load()
			Expect(traj.Samples).To(Equal([]kinematics.Vec3{{X: 4, Y: 4, Z: 4}}))
			Expect(traj.Target.X).To(Equal(2.0))
		})

		It("never publishes output of a killed solver", func() {
			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(launcher.Count).Should(Equal(1))
			first := launcher.Proc(0)

			Expect(sup.Submit(kinematics.Vec3{X: 2})).To(Succeed())
			Eventually(launcher.Count).Should(Equal(2))

			Expect(first.Emit("START_PATH", "1 1 1", "END_PATH")).NotTo(Succeed())
			Consistently(sup.Trajectories().Version, 100*time.Millisecond).Should(BeZero())
		})

		It("resets stats on every accepted target", func() {
			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(launcher.Count).Should(Equal(1))
			Expect(launcher.Last().Emit("STATS 1 1 1 1", "STATS 2 1 1 1")).To(Succeed())
			Eventually(sup.Stats().Len).Should(Equal(2))
			epoch := sup.Stats().Epoch()

			Expect(sup.Submit(kinematics.Vec3{X: 2})).To(Succeed())
			Eventually(sup.Stats().Epoch).Should(Equal(epoch + 1))
			Expect(sup.Stats().Len()).To(BeZero())

			items, reset, _ := sup.Stats().Since(feed.Cursor{Epoch: epoch, Next: 2})
			Expect(reset).To(BeTrue())
			Expect(items).To(BeEmpty())
		})
	})

	Describe("coalescing", func() {
		BeforeEach(func() {
			launcher.delay = 20 * time.Millisecond
			start()
		})

		It("starts only the newest of a burst", func() {
			for i := 0; i < 50; i++ {
				Expect(sup.Submit(kinematics.Vec3{X: float64(i)})).To(Succeed())
			}

			Eventually(func() float64 {
				st := status()
				if st.Phase != supervisor.Streaming {
					return -1
				}
				return st.Target.X
			}).Should(Equal(49.0))
			Consistently(launcher.Count, 100*time.Millisecond).Should(BeNumerically("<", 10))
			Expect(launcher.maxAlive.Load()).To(BeEquivalentTo(1))
		})
	})

	Describe("launch failure", func() {
		BeforeEach(start)

		It("reports the failure once and accepts the next target", func() {
			launcher.FailNext(fmt.Errorf("%w: ./main", supervisor.ErrSolverNotFound))
			target := kinematics.Vec3{X: 3, Y: 4, Z: 5}
			Expect(sup.Submit(target)).To(Succeed())

			Eventually(func() bool { return status().Err != nil }).Should(BeTrue())
			st := status()
			Expect(st.Phase).To(Equal(supervisor.Idle))
			Expect(errors.Is(st.Err, supervisor.ErrSolverNotFound)).To(BeTrue())

			var lerr *supervisor.LaunchError
			Expect(errors.As(st.Err, &lerr)).To(BeTrue())
			Expect(lerr.Target).To(Equal(target))
			Expect(lerr.RunID).To(Equal(st.RunID))

			version := sup.Status().Version()
			Consistently(sup.Status().Version, 100*time.Millisecond).Should(Equal(version))
			Expect(launcher.Count()).To(BeZero())

			Expect(sup.Submit(target)).To(Succeed())
			Eventually(phase).Should(Equal(supervisor.Streaming))
			Expect(status().Err).NotTo(HaveOccurred())
		})
	})

	Describe("shutdown", func() {
		It("closes without being started", func() {
			sup = supervisor.New(cfg, launcher, log.Discard())
			Expect(sup.Close()).To(Succeed())
			Expect(sup.Close()).To(Succeed())
			Expect(sup.Submit(kinematics.Vec3{})).To(MatchError(supervisor.ErrClosed))
			Eventually(sup.Done()).Should(BeClosed())
		})

		It("terminates a cooperative solver gracefully", func() {
			start()
			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(phase).Should(Equal(supervisor.Streaming))
			p := launcher.Last()

			Expect(sup.Close()).To(Succeed())
			Expect(p.terminated.Load()).To(BeTrue())
			Expect(p.killed.Load()).To(BeFalse())
			Expect(sup.Alive()).To(BeZero())
			Expect(phase()).To(Equal(supervisor.Stopped))
		})

		It("kills a solver that ignores terminate within a bounded time", func() {
			launcher.ignoreTerm = true
			start()
			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(phase).Should(Equal(supervisor.Streaming))
			p := launcher.Last()

			began := time.Now()
			Expect(sup.Close()).To(Succeed())
			Expect(time.Since(began)).To(BeNumerically("<", time.Second))
			Expect(p.terminated.Load()).To(BeTrue())
			Expect(p.killed.Load()).To(BeTrue())
			Expect(sup.Alive()).To(BeZero())
		})

		It("is idempotent", func() {
			start()
			Expect(sup.Close()).To(Succeed())
			Expect(sup.Close()).To(Succeed())
			Expect(sup.Submit(kinematics.Vec3{})).To(MatchError(supervisor.ErrClosed))
		})

		It("stops when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			sup = supervisor.New(cfg, launcher, log.Discard())
			sup.Start(ctx)
			Expect(sup.Submit(kinematics.Vec3{X: 1})).To(Succeed())
			Eventually(phase).Should(Equal(supervisor.Streaming))

			cancel()
			Eventually(sup.Done()).Should(BeClosed())
			Expect(sup.Alive()).To(BeZero())
			Expect(sup.Submit(kinematics.Vec3{})).To(MatchError(supervisor.ErrClosed))
		})
	})
})
