// Package supervisor runs an external path solver for the newest target and
// republishes its decoded output.
//
// At most one solver process is alive at a time. Every accepted target kills
// the running process, waits for it, resets the stats feed and starts a new
// one with the target coordinates as arguments. A single worker goroutine
// owns that lifecycle and is the only writer of every output feed:
//
//   - [Supervisor.Trajectories]: the latest complete path (last write wins)
//   - [Supervisor.Stats]: ordered progress records, reset per target
//   - [Supervisor.Obstacles]: obstacles announced by the solver
//   - [Supervisor.Status]: run phase and launch failures
//
// # Example
//
//	sup := supervisor.New(supervisor.DefaultConfig(), &supervisor.ExecLauncher{Path: "./main"}, logger)
//	sup.Start(ctx)
//	defer sup.Close()
//	sup.Submit(kinematics.Vec3{X: 15, Y: 0, Z: 5})
//
// # Cancellation
//
// Submit never blocks. Rapid submits coalesce: only the newest pending
// target is started. Output of a superseded process is never decoded.
package supervisor
