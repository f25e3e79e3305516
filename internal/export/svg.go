// Package export renders recorded runs into files for sharing.
package export

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/protocol"
)

var ErrEmptyPath = errors.New("export: path has fewer than two samples")

// Scene is what a side view shows. Points are projected onto the
// (radial distance, height) plane, so the base rotation is folded away.
type Scene struct {
	Arm      *kinematics.Arm
	Target   kinematics.Vec3
	Path     []kinematics.Vec3
	Obstacle *protocol.Obstacle
}

type point struct{ X, Y float64 }

func side(p kinematics.Vec3) point {
	return point{X: math.Hypot(p.X, p.Y), Y: p.Z}
}

// PathSVG writes the side view of s as an SVG document. The arm is drawn
// in its IK pose for the last path sample.
func PathSVG(w io.Writer, s Scene, width, height int) error {
	if len(s.Path) < 2 {
		return ErrEmptyPath
	}

	reach := s.Arm.Link1 + s.Arm.Link2
	minX, maxX := -0.15*reach, 1.15*reach
	minY, maxY := -0.5*reach, 1.15*reach
	project := func(p point) (float64, float64) {
		x := (p.X - minX) / (maxX - minX) * float64(width)
		y := float64(height) - (p.Y-minY)/(maxY-minY)*float64(height)
		return x, y
	}
	scale := float64(width) / (maxX - minX)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	gx0, gy := project(point{X: minX, Y: 0})
	gx1, _ := project(point{X: maxX, Y: 0})
	fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#444" stroke-width="1"/>
`, gx0, gy, gx1, gy)

	if s.Obstacle != nil {
		cx, cy := project(side(s.Obstacle.Center))
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="%.1f" fill="#ff5555" fill-opacity="0.35"/>
`, cx, cy, s.Obstacle.Radius*scale)
	}

	sb.WriteString(`<path fill="none" stroke="#00ff00" stroke-width="1.5" d="`)
	for i, p := range s.Path {
		x, y := project(side(p))
		if i == 0 {
			fmt.Fprintf(&sb, "M%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString("\"/>\n")

	q := s.Arm.Inverse(s.Path[len(s.Path)-1])
	bx, by := project(point{})
	ex, ey := project(side(s.Arm.Elbow(q)))
	tx, ty := project(side(s.Arm.Forward(q)))
	fmt.Fprintf(&sb, `<polyline fill="none" stroke="#8be9fd" stroke-width="3" points="%.1f,%.1f %.1f,%.1f %.1f,%.1f"/>
`, bx, by, ex, ey, tx, ty)

	cx, cy := project(side(s.Target))
	fmt.Fprintf(&sb, `<path stroke="#f1fa8c" stroke-width="2" d="M%.1f,%.1f L%.1f,%.1f M%.1f,%.1f L%.1f,%.1f"/>
`, cx-5, cy-5, cx+5, cy+5, cx-5, cy+5, cx+5, cy-5)

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
