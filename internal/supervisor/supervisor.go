package supervisor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/armsim/internal/feed"
	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/log"
	"github.com/san-kum/armsim/internal/protocol"
)

const (
	DefaultKillTimeout   = 2 * time.Second
	DefaultShutdownGrace = 3 * time.Second

	lineBuffer = 64
)

type Config struct {
	// KillTimeout bounds each wait for a killed solver to be reaped.
	KillTimeout time.Duration
	// ShutdownGrace is how long Close waits after a graceful terminate
	// before it kills. Zero kills immediately.
	ShutdownGrace time.Duration
}

func DefaultConfig() Config {
	return Config{KillTimeout: DefaultKillTimeout, ShutdownGrace: DefaultShutdownGrace}
}

// Phase is the lifecycle position of the supervisor.
type Phase int

const (
	Idle Phase = iota
	Spawning
	Streaming
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Spawning:
		return "spawning"
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Status describes the current run. Err is set when the last launch failed.
type Status struct {
	Phase  Phase
	RunID  string
	Target kinematics.Vec3
	Err    error
}

// Trajectory is a complete path produced by the run RunID. Frame counts the
// paths of that run, starting at 1.
type Trajectory struct {
	RunID   string
	Target  kinematics.Vec3
	Frame   int
	Samples []kinematics.Vec3
}

type Supervisor struct {
	cfg      Config
	launcher Launcher
	logger   *slog.Logger

	cmds   chan kinematics.Vec3
	quit   chan struct{}
	exited chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	alive     atomic.Int32

	trajectories *feed.Latest[Trajectory]
	stats        *feed.Log[protocol.Stats]
	obstacles    *feed.Latest[protocol.Obstacle]
	status       *feed.Latest[Status]

	// owned by the worker goroutine
	ctx context.Context
	cur *run
}

func New(cfg Config, launcher Launcher, logger *slog.Logger) *Supervisor {
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = DefaultKillTimeout
	}
	if cfg.ShutdownGrace < 0 {
		cfg.ShutdownGrace = 0
	}
	if logger == nil {
		logger = log.L()
	}

	s := &Supervisor{
		cfg:          cfg,
		launcher:     launcher,
		logger:       logger.With("component", "supervisor"),
		cmds:         make(chan kinematics.Vec3, 1),
		quit:         make(chan struct{}),
		exited:       make(chan struct{}),
		trajectories: feed.NewLatest[Trajectory](),
		stats:        feed.NewLog[protocol.Stats](),
		obstacles:    feed.NewLatest[protocol.Obstacle](),
		status:       feed.NewLatest[Status](),
	}
	s.status.Store(Status{Phase: Idle})
	return s
}

func (s *Supervisor) Trajectories() *feed.Latest[Trajectory]     { return s.trajectories }
func (s *Supervisor) Stats() *feed.Log[protocol.Stats]           { return s.stats }
func (s *Supervisor) Obstacles() *feed.Latest[protocol.Obstacle] { return s.obstacles }
func (s *Supervisor) Status() *feed.Latest[Status]               { return s.status }

// Alive reports how many solver processes have been started and not yet
// reaped.
func (s *Supervisor) Alive() int {
	return int(s.alive.Load())
}

// Done is closed once the worker has stopped and the last solver is gone.
func (s *Supervisor) Done() <-chan struct{} {
	return s.exited
}

// Start runs the worker until ctx is cancelled or Close is called. Calls
// after the first are no-ops.
func (s *Supervisor) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.loop(ctx)
	})
}

// Submit requests a solver run for target. It never blocks; a target that
// has not been picked up yet is replaced.
func (s *Supervisor) Submit(target kinematics.Vec3) error {
	if s.closed.Load() {
		return ErrClosed
	}
	for {
		select {
		case s.cmds <- target:
			return nil
		default:
		}
		select {
		case <-s.cmds:
		default:
		}
	}
}

// Close stops the worker and the running solver. It is safe to call more
// than once and returns after at most ShutdownGrace plus two KillTimeouts.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.quit)
	})
	// never started: nothing to wait for, and Start becomes a no-op
	s.startOnce.Do(func() { close(s.exited) })
	<-s.exited
	return nil
}

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.exited)
	defer s.shutdown()
	s.ctx = ctx

	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		// a pending target supersedes output of the current run
		select {
		case target := <-s.cmds:
			s.begin(target)
			continue
		default:
		}

		var lines <-chan string
		if s.cur != nil {
			lines = s.cur.lines
		}

		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case target := <-s.cmds:
			s.begin(target)
		case line, ok := <-lines:
			if !ok {
				s.finish()
				continue
			}
			s.handle(line)
		}
	}
}

func (s *Supervisor) begin(target kinematics.Vec3) {
	s.stopRun(0)
	s.stats.Reset()

	id := uuid.NewString()
	logger := s.logger.With("run", id)
	s.status.Store(Status{Phase: Spawning, RunID: id, Target: target})

	proc, err := s.launcher.Launch(s.ctx, target)
	if err != nil {
		lerr := &LaunchError{RunID: id, Target: target, Err: err}
		logger.Error("solver launch failed", "target", target.String(), "err", err)
		s.status.Store(Status{Phase: Idle, RunID: id, Target: target, Err: lerr})
		return
	}
	s.alive.Add(1)

	r := &run{
		id:      id,
		target:  target,
		proc:    proc,
		dec:     protocol.NewDecoder(),
		lines:   make(chan string, lineBuffer),
		stop:    make(chan struct{}),
		drained: make(chan struct{}),
		reaped:  make(chan struct{}),
		alive:   &s.alive,
		log:     logger,
	}
	go r.read(proc.Stdout())
	if stderr := proc.Stderr(); stderr != nil {
		go r.drain(stderr)
	} else {
		close(r.drained)
	}
	s.cur = r

	logger.Info("solver started", "pid", proc.Pid(), "target", target.String())
	s.status.Store(Status{Phase: Streaming, RunID: id, Target: target})
}

func (s *Supervisor) handle(line string) {
	r := s.cur
	ev, ok := r.dec.Decode(line)
	if !ok {
		return
	}

	switch e := ev.(type) {
	case *protocol.PathEvent:
		r.frames++
		s.trajectories.Store(Trajectory{RunID: r.id, Target: r.target, Frame: r.frames, Samples: e.Samples})
	case *protocol.StatsEvent:
		s.stats.Append(e.Stats)
	case *protocol.ObstacleEvent:
		s.obstacles.Store(e.Obstacle)
	}
}

// finish handles a solver that closed its stdout on its own.
func (s *Supervisor) finish() {
	r := s.cur
	s.cur = nil
	r.dec.Finish()

	// Wait closes the stderr pipe, so let the last diagnostics through first
	if !waitFor(r.drained, s.cfg.KillTimeout) {
		r.log.Warn("solver stderr still open after stdout closed")
	}
	exited := waitFor(r.reap(), s.cfg.KillTimeout)
	if !exited {
		r.log.Warn("solver closed stdout but kept running, killing")
		if err := r.proc.Kill(); err != nil {
			r.log.Warn("kill failed", "err", err)
		}
		exited = waitFor(r.reap(), s.cfg.KillTimeout)
	}
	if exited {
		r.log.Info("solver exited", "frames", r.frames, "err", r.err)
	} else {
		r.log.Error("solver not reaped", "timeout", s.cfg.KillTimeout)
	}
	s.status.Store(Status{Phase: Idle, RunID: r.id, Target: r.target})
}

// stopRun ends the current run. With a positive grace the solver is asked
// to terminate before it is killed.
func (s *Supervisor) stopRun(grace time.Duration) {
	r := s.cur
	if r == nil {
		return
	}
	s.cur = nil
	close(r.stop)
	r.dec.Finish()

	if grace > 0 {
		if err := r.proc.Terminate(); err != nil {
			r.log.Debug("terminate failed", "err", err)
		}
		if waitFor(r.reap(), grace) {
			r.log.Debug("solver terminated")
			return
		}
		r.log.Warn("solver ignored terminate, killing", "grace", grace)
	}

	if err := r.proc.Kill(); err != nil {
		r.log.Warn("kill failed", "err", err)
	}
	if !waitFor(r.reap(), s.cfg.KillTimeout) {
		r.log.Error("solver not reaped after kill", "timeout", s.cfg.KillTimeout)
		return
	}
	r.log.Debug("solver killed")
}

func (s *Supervisor) shutdown() {
	s.closed.Store(true)
	s.stopRun(s.cfg.ShutdownGrace)
	s.status.Store(Status{Phase: Stopped})
	s.logger.Debug("supervisor stopped")
}

type run struct {
	id     string
	target kinematics.Vec3
	proc   Process
	dec    *protocol.Decoder
	frames int

	lines chan string
	stop  chan struct{}

	drained  chan struct{} // closed when stderr hit EOF
	reapOnce sync.Once
	reaped   chan struct{}
	err      error // valid once reaped is closed
	alive    *atomic.Int32

	log *slog.Logger
}

func (r *run) read(stdout io.Reader) {
	defer close(r.lines)

	sc := protocol.NewScanner(stdout)
	for sc.Scan() {
		select {
		case r.lines <- sc.Text():
		case <-r.stop:
			return
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case <-r.stop:
		default:
			r.log.Debug("solver stdout closed", "err", err)
		}
	}
}

func (r *run) drain(stderr io.Reader) {
	defer close(r.drained)
	sc := protocol.NewScanner(stderr)
	for sc.Scan() {
		r.log.Debug("solver stderr", "line", sc.Text())
	}
}

// reap starts the single Wait on the process and returns a channel closed
// when it has returned.
func (r *run) reap() <-chan struct{} {
	r.reapOnce.Do(func() {
		go func() {
			r.err = r.proc.Wait()
			r.alive.Add(-1)
			close(r.reaped)
		}()
	})
	return r.reaped
}

func waitFor(ch <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
