package server

import (
	"github.com/san-kum/armsim/internal/feed"
	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/protocol"
	"github.com/san-kum/armsim/internal/supervisor"
)

const (
	EventReset      = "reset"
	EventStats      = "stats"
	EventTrajectory = "trajectory"
	EventObstacle   = "obstacle"
	EventStatus     = "status"
	EventTarget     = "target"
)

// Event is one websocket message. Exactly one payload field is set, except
// for reset which only carries the new epoch.
type Event struct {
	Type       string             `json:"type"`
	Epoch      uint64             `json:"epoch,omitempty"`
	Stats      *protocol.Stats    `json:"stats,omitempty"`
	Trajectory *TrajectoryView    `json:"trajectory,omitempty"`
	Obstacle   *protocol.Obstacle `json:"obstacle,omitempty"`
	Status     *StatusView        `json:"status,omitempty"`
	Target     *TargetView        `json:"target,omitempty"`
}

type TrajectoryView struct {
	RunID   string            `json:"run_id"`
	Target  kinematics.Vec3   `json:"target"`
	Frame   int               `json:"frame"`
	Samples []kinematics.Vec3 `json:"samples"`
}

type StatusView struct {
	Phase  string          `json:"phase"`
	RunID  string          `json:"run_id,omitempty"`
	Target kinematics.Vec3 `json:"target"`
	Error  string          `json:"error,omitempty"`
}

type TargetView struct {
	Target    kinematics.Vec3        `json:"target"`
	Joints    kinematics.JointAngles `json:"joints"`
	Reachable bool                   `json:"reachable"`
}

func trajectoryView(t supervisor.Trajectory) *TrajectoryView {
	return &TrajectoryView{RunID: t.RunID, Target: t.Target, Frame: t.Frame, Samples: t.Samples}
}

func statusView(st supervisor.Status) *StatusView {
	v := &StatusView{Phase: st.Phase.String(), RunID: st.RunID, Target: st.Target}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	return v
}

// follower tracks what one consumer has already seen of the feeds.
type follower struct {
	cursor  feed.Cursor
	statusV uint64
	trajV   uint64
	obsV    uint64
}

// collect returns the events published since the previous call. Stats
// arrive in order, preceded by a reset when the log started a new epoch.
func (f *follower) collect(src Source) []Event {
	var events []Event

	if st, v := src.Status().Load(); v > f.statusV {
		f.statusV = v
		events = append(events, Event{Type: EventStatus, Status: statusView(st)})
	}

	items, reset, next := src.Stats().Since(f.cursor)
	f.cursor = next
	if reset {
		events = append(events, Event{Type: EventReset, Epoch: next.Epoch})
	}
	for i := range items {
		events = append(events, Event{Type: EventStats, Epoch: next.Epoch, Stats: &items[i]})
	}

	if ob, v := src.Obstacles().Load(); v > f.obsV {
		f.obsV = v
		events = append(events, Event{Type: EventObstacle, Obstacle: &ob})
	}
	if traj, v := src.Trajectories().Load(); v > f.trajV {
		f.trajV = v
		events = append(events, Event{Type: EventTrajectory, Trajectory: trajectoryView(traj)})
	}
	return events
}
