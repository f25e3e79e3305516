package viz

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/armsim/internal/feed"
	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/protocol"
	"github.com/san-kum/armsim/internal/supervisor"
)

const (
	width           = 64
	height          = 24
	historyCapacity = 600
	frameRate       = 30
)

// Source is what the tracker reads from and submits to; a
// *supervisor.Supervisor satisfies it.
type Source interface {
	Trajectories() *feed.Latest[supervisor.Trajectory]
	Stats() *feed.Log[protocol.Stats]
	Obstacles() *feed.Latest[protocol.Obstacle]
	Status() *feed.Latest[supervisor.Status]
	Submit(target kinematics.Vec3) error
}

type TickMsg time.Time

// Tracker is a bubbletea model that follows a solver run. It polls the
// feeds once per frame and never blocks the render loop.
type Tracker struct {
	src    Source
	arm    *kinematics.Arm
	bounds kinematics.CylinderBounds
	rng    *rand.Rand

	target   kinematics.Vec3
	status   supervisor.Status
	traj     supervisor.Trajectory
	obstacle *protocol.Obstacle
	cursor   feed.Cursor
	last     *protocol.Stats
	best     []float64
	avg      []float64
	err      error

	trajV, obsV uint64
	frame       int
	canvas      *Canvas
	view        Viewport
}

func NewTracker(src Source, arm *kinematics.Arm, bounds kinematics.CylinderBounds, target kinematics.Vec3, seed int64) Tracker {
	reach := arm.Link1 + arm.Link2
	return Tracker{
		src:    src,
		arm:    arm,
		bounds: bounds,
		rng:    rand.New(rand.NewSource(seed)),
		target: target,
		best:   make([]float64, 0, historyCapacity),
		avg:    make([]float64, 0, historyCapacity),
		canvas: NewCanvas(width, height),
		view: Viewport{
			MinX: -0.15 * reach, MaxX: 1.15 * reach,
			MinY: -0.5 * reach, MaxY: 1.15 * reach,
		},
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Init submits the initial target and starts the frame clock.
func (m Tracker) Init() tea.Cmd {
	target := m.target
	src := m.src
	return tea.Batch(func() tea.Msg {
		if err := src.Submit(target); err != nil {
			return submitErrMsg{err}
		}
		return nil
	}, tick())
}

type submitErrMsg struct{ err error }

func (m Tracker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "n":
			m.target = kinematics.RandomCylinderTarget(m.rng, m.bounds)
			m.submit()
		case "r":
			m.submit()
		}
	case submitErrMsg:
		m.err = msg.err
	case TickMsg:
		m.frame++
		m.poll()
		return m, tick()
	}
	return m, nil
}

func (m *Tracker) submit() {
	m.err = m.src.Submit(m.target)
}

// poll drains the feeds into the model.
func (m *Tracker) poll() {
	m.status, _ = m.src.Status().Load()

	items, reset, next := m.src.Stats().Since(m.cursor)
	m.cursor = next
	if reset {
		m.best, m.avg, m.last = m.best[:0], m.avg[:0], nil
	}
	for i := range items {
		m.best = appendCapped(m.best, items[i].Best)
		m.avg = appendCapped(m.avg, items[i].Avg)
		m.last = &items[i]
	}

	if traj, v := m.src.Trajectories().Load(); v > m.trajV {
		m.trajV, m.traj = v, traj
	}
	if ob, v := m.src.Obstacles().Load(); v > m.obsV {
		m.obsV, m.obstacle = v, &ob
	}
}

func appendCapped(s []float64, v float64) []float64 {
	if len(s) == historyCapacity {
		copy(s, s[1:])
		s = s[:len(s)-1]
	}
	return append(s, v)
}

// radial flattens a world point onto the arm's vertical plane.
func radial(p kinematics.Vec3) (float64, float64) {
	return math.Hypot(p.X, p.Y), p.Z
}

func (m *Tracker) draw() {
	c, v := m.canvas, m.view
	c.Clear()

	// ground
	gx0, gy := v.Project(c, v.MinX, 0)
	gx1, _ := v.Project(c, v.MaxX, 0)
	for x := gx0; x <= gx1; x += 4 {
		c.Set(x, gy)
	}

	if m.obstacle != nil {
		r, z := radial(m.obstacle.Center)
		ox, oy := v.Project(c, r, z)
		c.DrawCircle(ox, oy, v.Scale(c, m.obstacle.Radius))
	}

	tr, tz := radial(m.target)
	tx, ty := v.Project(c, tr, tz)
	c.DrawCross(tx, ty, 2)

	samples := m.traj.Samples
	for i := 1; i < len(samples); i++ {
		r0, z0 := radial(samples[i-1])
		r1, z1 := radial(samples[i])
		x0, y0 := v.Project(c, r0, z0)
		x1, y1 := v.Project(c, r1, z1)
		c.DrawLine(x0, y0, x1, y1)
	}

	// the arm holds the pose of the newest path's final sample
	pose := m.target
	if n := len(samples); n > 0 {
		pose = samples[n-1]
	}
	q := m.arm.Inverse(pose)
	bx, by := v.Project(c, 0, 0)
	er, ez := radial(m.arm.Elbow(q))
	ex, ey := v.Project(c, er, ez)
	hr, hz := radial(m.arm.Forward(q))
	hx, hy := v.Project(c, hr, hz)
	c.DrawLine(bx, by, ex, ey)
	c.DrawLine(ex, ey, hx, hy)
	c.DrawCircle(ex, ey, 1)
}

func (m Tracker) View() string {
	m.draw()
	canvasView := canvasStyle.Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(headerStyle.Render("ARM TRACKER") + "\n")
	s.WriteString(PhaseBadge(m.status.Phase, m.frame) + "\n\n")

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Target", m.target.String())
	q := m.arm.Inverse(m.target)
	row("Joints", fmt.Sprintf("%.1f° %.1f° %.1f°", deg(q.Base), deg(q.Shoulder), deg(q.Elbow)))
	if id := m.status.RunID; id != "" {
		row("Run", id[:min(len(id), 8)])
	}
	if m.last != nil {
		row("Generation", fmt.Sprintf("%d", m.last.Generation))
		row("Best", fmt.Sprintf("%.3f", m.last.Best))
		row("Avg", fmt.Sprintf("%.3f", m.last.Avg))
		row("Steps", fmt.Sprintf("%d", m.last.Steps))
	}
	if len(m.traj.Samples) > 0 {
		row("Path", fmt.Sprintf("%d samples (frame %d)", len(m.traj.Samples), m.traj.Frame))
	}

	if len(m.best) > 1 {
		chart := asciigraph.Plot(m.best, asciigraph.Height(5), asciigraph.Width(36), asciigraph.Caption("Best fitness"))
		s.WriteString(graphStyle.Render(chart) + "\n")
		s.WriteString(labelStyle.Render("Avg trend") + Sparkline(m.avg, 32) + "\n")
	}

	if err := m.status.Err; err != nil {
		s.WriteString("\n" + errorStyle.Render(err.Error()) + "\n")
	}
	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
	}

	s.WriteString(helpStyle.Render("N:New target  R:Resubmit  Q:Quit"))
	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, panelStyle.Render(s.String()))
}

func deg(rad float64) float64 {
	return rad * 180 / math.Pi
}
