package protocol

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/armsim/internal/kinematics"
)

const (
	tokenStartPath = "START_PATH"
	tokenEndPath   = "END_PATH"
	tokenStats     = "STATS"
	tokenObstacle  = "OBSTACLE"
)

// Stats is one progress record of a solver run.
type Stats struct {
	Generation int     `json:"generation"`
	Best       float64 `json:"best"`
	Avg        float64 `json:"avg"`
	Steps      int     `json:"steps"`
}

// Obstacle is a sphere the solver plans around.
type Obstacle struct {
	Center kinematics.Vec3 `json:"center"`
	Radius float64         `json:"radius"`
}

// Event is one decoded record: a *PathEvent, *StatsEvent or *ObstacleEvent.
type Event interface {
	event()
}

// PathEvent carries a completed, non-empty path frame.
type PathEvent struct {
	Samples []kinematics.Vec3
}

type StatsEvent struct {
	Stats Stats
}

type ObstacleEvent struct {
	Obstacle Obstacle
}

func (*PathEvent) event()     {}
func (*StatsEvent) event()    {}
func (*ObstacleEvent) event() {}

// State is the framing state of a Decoder.
type State int

const (
	Idle State = iota
	InPath
)

func (s State) String() string {
	if s == InPath {
		return "in_path"
	}
	return "idle"
}

// Decoder turns solver lines into events. It is not safe for concurrent use.
type Decoder struct {
	state   State
	samples []kinematics.Vec3
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) State() State { return d.state }

// Pending returns the number of samples buffered in the open frame.
func (d *Decoder) Pending() int { return len(d.samples) }

// Decode consumes one line. It returns an event when the line completes one.
func (d *Decoder) Decode(line string) (Event, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, false
	}

	switch fields[0] {
	case tokenStartPath:
		if len(fields) != 1 {
			return nil, false
		}
		d.samples = nil
		d.state = InPath
		return nil, false

	case tokenEndPath:
		if len(fields) != 1 {
			return nil, false
		}
		wasOpen := d.state == InPath
		samples := d.samples
		d.samples = nil
		d.state = Idle
		if !wasOpen || len(samples) == 0 {
			return nil, false
		}
		return &PathEvent{Samples: samples}, true

	case tokenStats:
		st, ok := parseStats(fields[1:])
		if !ok {
			return nil, false
		}
		return &StatsEvent{Stats: st}, true

	case tokenObstacle:
		ob, ok := parseObstacle(fields[1:])
		if !ok {
			return nil, false
		}
		return &ObstacleEvent{Obstacle: ob}, true
	}

	if d.state != InPath || len(fields) != 3 {
		return nil, false
	}
	p, ok := parseVec3(fields)
	if !ok {
		return nil, false
	}
	d.samples = append(d.samples, p)
	return nil, false
}

// Finish marks the end of input. A frame left open is discarded.
func (d *Decoder) Finish() {
	d.samples = nil
	d.state = Idle
}

// Scan decodes every line of r and hands events to fn. It returns the read
// error, if any; a clean end of input returns nil.
func Scan(r io.Reader, fn func(Event)) error {
	dec := NewDecoder()
	defer dec.Finish()

	sc := NewScanner(r)
	for sc.Scan() {
		if ev, ok := dec.Decode(sc.Text()); ok {
			fn(ev)
		}
	}
	return sc.Err()
}

// NewScanner returns a line scanner sized for long solver lines.
func NewScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return sc
}

func parseStats(fields []string) (Stats, bool) {
	if len(fields) != 4 {
		return Stats{}, false
	}
	gen, err := strconv.Atoi(fields[0])
	if err != nil {
		return Stats{}, false
	}
	best, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Stats{}, false
	}
	avg, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Stats{}, false
	}
	steps, err := strconv.Atoi(fields[3])
	if err != nil {
		return Stats{}, false
	}
	if !isFinite(best) || !isFinite(avg) {
		return Stats{}, false
	}
	return Stats{Generation: gen, Best: best, Avg: avg, Steps: steps}, true
}

func parseObstacle(fields []string) (Obstacle, bool) {
	if len(fields) != 4 {
		return Obstacle{}, false
	}
	c, ok := parseVec3(fields[:3])
	if !ok {
		return Obstacle{}, false
	}
	r, err := strconv.ParseFloat(fields[3], 64)
	if err != nil || !isFinite(r) || r < 0 {
		return Obstacle{}, false
	}
	return Obstacle{Center: c, Radius: r}, true
}

func parseVec3(fields []string) (kinematics.Vec3, bool) {
	var v [3]float64
	for i := range v {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return kinematics.Vec3{}, false
		}
		v[i] = f
	}
	p := kinematics.Vec3{X: v[0], Y: v[1], Z: v[2]}
	// NaN and Inf parse as floats but are not positions
	return p, p.IsFinite()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
