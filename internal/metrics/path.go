package metrics

import (
	"math"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/protocol"
)

// Metric accumulates a figure of merit over the samples of one path.
type Metric interface {
	Name() string
	Observe(p kinematics.Vec3)
	Value() float64
	Reset()
}

type PathLength struct {
	last    kinematics.Vec3
	length  float64
	samples int
}

func NewPathLength() *PathLength { return &PathLength{} }

func (m *PathLength) Name() string { return "path_length" }

func (m *PathLength) Observe(p kinematics.Vec3) {
	if m.samples > 0 {
		m.length += p.Dist(m.last)
	}
	m.last = p
	m.samples++
}

func (m *PathLength) Value() float64 { return m.length }

func (m *PathLength) Reset() {
	m.length = 0
	m.samples = 0
}

// TargetError is the distance from the last observed sample to the target.
type TargetError struct {
	target  kinematics.Vec3
	last    kinematics.Vec3
	samples int
}

func NewTargetError(target kinematics.Vec3) *TargetError {
	return &TargetError{target: target}
}

func (m *TargetError) Name() string { return "target_error" }

func (m *TargetError) Observe(p kinematics.Vec3) {
	m.last = p
	m.samples++
}

func (m *TargetError) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.last.Dist(m.target)
}

func (m *TargetError) Reset() { m.samples = 0 }

// Clearance is the smallest signed distance between a sample and the
// obstacle surface. Negative values mean the path went through it.
type Clearance struct {
	obstacle protocol.Obstacle
	min      float64
	samples  int
}

func NewClearance(obstacle protocol.Obstacle) *Clearance {
	return &Clearance{obstacle: obstacle, min: math.Inf(1)}
}

func (m *Clearance) Name() string { return "clearance" }

func (m *Clearance) Observe(p kinematics.Vec3) {
	m.min = math.Min(m.min, p.Dist(m.obstacle.Center)-m.obstacle.Radius)
	m.samples++
}

func (m *Clearance) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.min
}

func (m *Clearance) Reset() {
	m.min = math.Inf(1)
	m.samples = 0
}

// ForRun returns the metrics that apply to a run toward target. Clearance
// is only included when the solver reported an obstacle.
func ForRun(target kinematics.Vec3, obstacle *protocol.Obstacle) []Metric {
	ms := []Metric{NewPathLength(), NewTargetError(target)}
	if obstacle != nil {
		ms = append(ms, NewClearance(*obstacle))
	}
	return ms
}

// Evaluate feeds path through every metric and returns the values by name.
func Evaluate(path []kinematics.Vec3, ms ...Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for _, p := range path {
			m.Observe(p)
		}
		out[m.Name()] = m.Value()
	}
	return out
}
