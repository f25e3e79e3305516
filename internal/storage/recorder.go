package storage

import (
	"context"

	"github.com/san-kum/armsim/internal/feed"
	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/protocol"
	"github.com/san-kum/armsim/internal/supervisor"
)

// Source is the subset of a supervisor a Recorder reads from.
type Source interface {
	Trajectories() *feed.Latest[supervisor.Trajectory]
	Stats() *feed.Log[protocol.Stats]
	Obstacles() *feed.Latest[protocol.Obstacle]
}

// Recording is the captured output of the most recent run.
type Recording struct {
	RunID    string
	Target   kinematics.Vec3
	Stats    []protocol.Stats
	Path     []kinematics.Vec3
	Frames   int
	Obstacle *protocol.Obstacle
}

// Recorder follows a Source and keeps the output of its newest run. A stats
// reset or a path from another run starts the recording over.
type Recorder struct {
	src    Source
	cursor feed.Cursor
	trajV  uint64
	obsV   uint64
	rec    Recording
}

func NewRecorder(src Source, target kinematics.Vec3) *Recorder {
	return &Recorder{src: src, rec: Recording{Target: target}}
}

// Poll drains whatever the source published since the last call.
func (r *Recorder) Poll() {
	items, reset, next := r.src.Stats().Since(r.cursor)
	if reset {
		r.rec.Stats = nil
	}
	r.rec.Stats = append(r.rec.Stats, items...)
	r.cursor = next

	if traj, v := r.src.Trajectories().Load(); v > r.trajV {
		r.trajV = v
		if traj.RunID != r.rec.RunID {
			r.rec.RunID = traj.RunID
			r.rec.Target = traj.Target
		}
		r.rec.Path = traj.Samples
		r.rec.Frames = traj.Frame
	}

	if ob, v := r.src.Obstacles().Load(); v > r.obsV {
		r.obsV = v
		r.rec.Obstacle = &ob
	}
}

// Run polls on every change until ctx is done and returns the recording.
func (r *Recorder) Run(ctx context.Context) *Recording {
	for {
		// take the channels first so a publish during Poll still wakes us
		stats := r.src.Stats().Changed()
		traj := r.src.Trajectories().Changed()
		obs := r.src.Obstacles().Changed()
		r.Poll()

		select {
		case <-ctx.Done():
			r.Poll()
			return r.Recording()
		case <-stats:
		case <-traj:
		case <-obs:
		}
	}
}

// Recording returns a copy of what has been captured so far.
func (r *Recorder) Recording() *Recording {
	rec := r.rec
	rec.Stats = append([]protocol.Stats(nil), r.rec.Stats...)
	rec.Path = append([]kinematics.Vec3(nil), r.rec.Path...)
	return &rec
}
