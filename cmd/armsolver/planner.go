package main

import (
	"math"
	"math/rand"
	"sort"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/protocol"
)

// restPose is where every path starts: upper arm vertical, forearm level.
var restPose = kinematics.JointAngles{Base: 0, Shoulder: math.Pi / 2, Elbow: -math.Pi / 2}

const (
	missWeight     = 10.0
	obstacleWeight = 50.0
	mutationFloor  = 0.002
	mutationCeil   = 0.5
)

type individual struct {
	genes []kinematics.JointAngles
	cost  float64
}

// Planner evolves a joint-space path from restPose to the IK pose of the
// target. Cost is the cartesian path length plus a penalty for missing the
// target and for entering the obstacle.
type Planner struct {
	arm      *kinematics.Arm
	target   kinematics.Vec3
	goal     kinematics.JointAngles
	obstacle *protocol.Obstacle
	rng      *rand.Rand

	pop        []individual
	best       individual
	sigma      float64
	generation int
}

func NewPlanner(arm *kinematics.Arm, target kinematics.Vec3, obstacle *protocol.Obstacle, waypoints, population int, rng *rand.Rand) *Planner {
	p := &Planner{
		arm:      arm,
		target:   target,
		goal:     arm.Inverse(target),
		obstacle: obstacle,
		rng:      rng,
		sigma:    0.1,
	}
	for i := 0; i < population; i++ {
		ind := individual{genes: p.interpolate(waypoints)}
		if i > 0 {
			p.mutate(ind.genes, 0.2)
		}
		ind.cost = p.cost(ind.genes)
		p.pop = append(p.pop, ind)
	}
	p.best = clone(p.pop[0])
	for _, ind := range p.pop {
		if ind.cost < p.best.cost {
			p.best = clone(ind)
		}
	}
	return p
}

// DefaultObstacle places a ball halfway between the rest effector and the
// target, lifted so a straight path would clip it.
func DefaultObstacle(arm *kinematics.Arm, target kinematics.Vec3) protocol.Obstacle {
	start := arm.Forward(restPose)
	mid := kinematics.Vec3{
		X: (start.X + target.X) / 2,
		Y: (start.Y + target.Y) / 2,
		Z: (start.Z+target.Z)/2 + 0.05*arm.Reach(),
	}
	return protocol.Obstacle{Center: mid, Radius: 0.1 * arm.Reach()}
}

func (p *Planner) interpolate(n int) []kinematics.JointAngles {
	genes := make([]kinematics.JointAngles, n)
	for i := range genes {
		t := float64(i) / float64(max(n-1, 1))
		genes[i] = kinematics.JointAngles{
			Base:     restPose.Base + t*angleDiff(p.goal.Base, restPose.Base),
			Shoulder: restPose.Shoulder + t*(p.goal.Shoulder-restPose.Shoulder),
			Elbow:    restPose.Elbow + t*(p.goal.Elbow-restPose.Elbow),
		}
	}
	return genes
}

// mutate perturbs every waypoint but the first.
func (p *Planner) mutate(genes []kinematics.JointAngles, sigma float64) {
	for i := 1; i < len(genes); i++ {
		g := &genes[i]
		g.Base += p.rng.NormFloat64() * sigma
		g.Shoulder = clamp(g.Shoulder+p.rng.NormFloat64()*sigma, kinematics.MinShoulder, kinematics.MaxShoulder)
		g.Elbow = clamp(g.Elbow+p.rng.NormFloat64()*sigma, kinematics.MinElbow, kinematics.MaxElbow)
	}
}

func (p *Planner) cost(genes []kinematics.JointAngles) float64 {
	path := p.path(genes)
	var length, penalty float64
	for i, pt := range path {
		if i > 0 {
			length += pt.Dist(path[i-1])
		}
		if p.obstacle != nil {
			if d := pt.Dist(p.obstacle.Center); d < p.obstacle.Radius {
				penalty += obstacleWeight * (p.obstacle.Radius - d)
			}
		}
	}
	return length + missWeight*path[len(path)-1].Dist(p.target) + penalty
}

func (p *Planner) path(genes []kinematics.JointAngles) []kinematics.Vec3 {
	out := make([]kinematics.Vec3, len(genes))
	for i, g := range genes {
		out[i] = p.arm.Forward(g)
	}
	return out
}

// Step runs one generation: the better half survives and refills the
// population with mutated copies. The step size grows while the best cost
// improves and shrinks while it stalls.
func (p *Planner) Step() protocol.Stats {
	sort.Slice(p.pop, func(i, j int) bool { return p.pop[i].cost < p.pop[j].cost })
	keep := max(len(p.pop)/2, 1)
	for i := keep; i < len(p.pop); i++ {
		child := clone(p.pop[p.rng.Intn(keep)])
		p.mutate(child.genes, p.sigma)
		child.cost = p.cost(child.genes)
		p.pop[i] = child
	}

	var sum float64
	improved := false
	for _, ind := range p.pop {
		sum += ind.cost
		if ind.cost < p.best.cost {
			p.best = clone(ind)
			improved = true
		}
	}
	if improved {
		p.sigma = math.Min(p.sigma*1.2, mutationCeil)
	} else {
		p.sigma = math.Max(p.sigma*0.9, mutationFloor)
	}

	p.generation++
	return protocol.Stats{
		Generation: p.generation,
		Best:       fitness(p.best.cost),
		Avg:        fitness(sum / float64(len(p.pop))),
		Steps:      len(p.best.genes),
	}
}

// Best returns the effector path of the best individual so far.
func (p *Planner) Best() []kinematics.Vec3 {
	return p.path(p.best.genes)
}

// fitness maps a cost onto a score where higher is better.
func fitness(cost float64) float64 {
	return 1000 / (1 + cost)
}

func clone(ind individual) individual {
	return individual{genes: append([]kinematics.JointAngles(nil), ind.genes...), cost: ind.cost}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// angleDiff returns a-b wrapped into [-pi, pi].
func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d - math.Pi
}
