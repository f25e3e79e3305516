package protocol

import (
	"bufio"
	"io"
	"strconv"

	"github.com/san-kum/armsim/internal/kinematics"
)

// Encoder writes records in the solver wire format. Call Flush after a batch
// so a reading supervisor sees complete lines promptly.
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) StartPath() error {
	return e.line(tokenStartPath)
}

func (e *Encoder) Sample(p kinematics.Vec3) error {
	return e.line(formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z))
}

func (e *Encoder) EndPath() error {
	return e.line(tokenEndPath)
}

// WritePath writes a complete frame.
func (e *Encoder) WritePath(samples []kinematics.Vec3) error {
	if err := e.StartPath(); err != nil {
		return err
	}
	for _, p := range samples {
		if err := e.Sample(p); err != nil {
			return err
		}
	}
	return e.EndPath()
}

func (e *Encoder) Stats(s Stats) error {
	return e.line(tokenStats,
		strconv.Itoa(s.Generation),
		formatFloat(s.Best),
		formatFloat(s.Avg),
		strconv.Itoa(s.Steps),
	)
}

func (e *Encoder) Obstacle(o Obstacle) error {
	return e.line(tokenObstacle,
		formatFloat(o.Center.X),
		formatFloat(o.Center.Y),
		formatFloat(o.Center.Z),
		formatFloat(o.Radius),
	)
}

func (e *Encoder) Flush() error {
	return e.w.Flush()
}

func (e *Encoder) line(fields ...string) error {
	for i, f := range fields {
		if i > 0 {
			if err := e.w.WriteByte(' '); err != nil {
				return err
			}
		}
		if _, err := e.w.WriteString(f); err != nil {
			return err
		}
	}
	return e.w.WriteByte('\n')
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
