package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/protocol"
)

var square = []kinematics.Vec3{
	{X: 0, Y: 0, Z: 0},
	{X: 3, Y: 0, Z: 0},
	{X: 3, Y: 4, Z: 0},
}

func TestPathLength(t *testing.T) {
	m := NewPathLength()
	for _, p := range square {
		m.Observe(p)
	}
	if m.Value() != 7 {
		t.Errorf("expected length 7, got %f", m.Value())
	}

	m.Reset()
	m.Observe(kinematics.Vec3{X: 100})
	if m.Value() != 0 {
		t.Errorf("expected zero length after reset, got %f", m.Value())
	}
}

func TestTargetError(t *testing.T) {
	m := NewTargetError(kinematics.Vec3{X: 3, Y: 4, Z: 2})
	if m.Value() != 0 {
		t.Error("expected zero error before any sample")
	}
	for _, p := range square {
		m.Observe(p)
	}
	if math.Abs(m.Value()-2) > 1e-12 {
		t.Errorf("expected error 2, got %f", m.Value())
	}
}

func TestClearance(t *testing.T) {
	m := NewClearance(protocol.Obstacle{Center: kinematics.Vec3{X: 3, Y: 2}, Radius: 1})
	for _, p := range square {
		m.Observe(p)
	}
	if math.Abs(m.Value()-1) > 1e-12 {
		t.Errorf("expected clearance 1, got %f", m.Value())
	}

	m.Observe(kinematics.Vec3{X: 3, Y: 2})
	if m.Value() != -1 {
		t.Errorf("expected clearance -1 inside the obstacle, got %f", m.Value())
	}

	m.Reset()
	if m.Value() != 0 {
		t.Errorf("expected zero after reset, got %f", m.Value())
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		obstacle *protocol.Obstacle
		want     int
	}{
		{"no obstacle", nil, 2},
		{"with obstacle", &protocol.Obstacle{Center: kinematics.Vec3{Z: 10}, Radius: 1}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := ForRun(kinematics.Vec3{X: 3, Y: 4}, tt.obstacle)
			got := Evaluate(square, ms...)
			if len(got) != tt.want {
				t.Fatalf("expected %d metrics, got %v", tt.want, got)
			}
			if got["path_length"] != 7 || got["target_error"] != 0 {
				t.Errorf("unexpected values %v", got)
			}

			// evaluating again must not accumulate
			again := Evaluate(square, ms...)
			if again["path_length"] != 7 {
				t.Errorf("metrics not reset between evaluations: %v", again)
			}
		})
	}
}
