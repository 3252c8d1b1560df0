package layout

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sudorandom/flowscope/pkg/graph"
)

// Point is a position in layout space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Input is everything one layout run needs. It is copied when the run starts.
type Input struct {
	Nodes []graph.Node
	Links []graph.Link
	// Initial seeds positions by node id; other nodes are placed randomly in the canvas.
	Initial map[string]Point
	// Pinned nodes stay where they are put, and keep the layout warm until unpinned.
	Pinned map[string]Point
	// Alpha is the starting energy. Zero means 1 (a cold start); reheating after a drag uses DragAlpha.
	Alpha float64
}

// DragAlpha is the energy a layout is held at while a node is dragged.
const DragAlpha = 0.3

type simNode struct {
	id     string
	degree int
	x, y   float64
	vx, vy float64
	radius float64
	pinned bool
	fx, fy float64
}

// Simulation is the single threaded physics state. It is owned by one goroutine;
// Engine wraps it for background use.
type Simulation struct {
	cfg   Config
	rng   *rand.Rand
	nodes []simNode
	links []simLink
	index map[string]int

	alpha, alphaTarget, alphaDecay float64
	ticks                          int

	// SkippedLinks counts links whose endpoints are not in the node set.
	SkippedLinks int

	scratchX, scratchY []float64
}

var errNonFinite = errors.New("simulation produced a non-finite position")

// NewSimulation prepares a simulation without running it.
func NewSimulation(cfg Config, in Input) *Simulation {
	cfg = cfg.Normalize()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Simulation{
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(seed)),
		index:      make(map[string]int, len(in.Nodes)),
		alpha:      in.Alpha,
		alphaDecay: cfg.alphaDecay(),
		scratchX:   make([]float64, len(in.Nodes)),
		scratchY:   make([]float64, len(in.Nodes)),
	}
	if s.alpha <= 0 || s.alpha > 1 {
		s.alpha = 1
	}

	maxDeg := 0
	for _, n := range in.Nodes {
		maxDeg = max(maxDeg, n.Degree)
	}
	s.nodes = make([]simNode, 0, len(in.Nodes))
	for _, n := range in.Nodes {
		if _, dup := s.index[n.ID]; dup {
			continue
		}
		sn := simNode{
			id:     n.ID,
			degree: n.Degree,
			radius: NodeRadius(n.Degree, maxDeg, cfg.MinRadius, cfg.MaxRadius) + cfg.CollisionPadding,
		}
		if p, ok := in.Initial[n.ID]; ok && finite(p.X, p.Y) {
			sn.x, sn.y = p.X, p.Y
		} else {
			sn.x = s.rng.Float64() * cfg.Width
			sn.y = s.rng.Float64() * cfg.Height
		}
		s.index[n.ID] = len(s.nodes)
		s.nodes = append(s.nodes, sn)
	}
	for id, p := range in.Pinned {
		if s.Pin(id, p.X, p.Y) {
			s.SetAlphaTarget(DragAlpha)
		}
	}

	count := make([]int, len(s.nodes))
	for _, l := range in.Links {
		si, ok1 := s.index[l.Source]
		ti, ok2 := s.index[l.Target]
		if !ok1 || !ok2 {
			s.SkippedLinks++
			continue
		}
		count[si]++
		count[ti]++
		s.links = append(s.links, simLink{source: si, target: ti})
	}
	for i := range s.links {
		l := &s.links[i]
		l.strength = 1 / float64(max(1, min(count[l.source], count[l.target])))
		l.bias = float64(count[l.source]) / float64(count[l.source]+count[l.target])
	}
	return s
}

// NodeRadius maps a degree linearly from [0, maxDegree] onto [minR, maxR].
func NodeRadius(degree, maxDegree int, minR, maxR float64) float64 {
	if maxDegree <= 0 {
		return minR
	}
	t := float64(degree) / float64(maxDegree)
	return minR + math.Max(0, math.Min(1, t))*(maxR-minR)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s *Simulation) Alpha() float64 { return s.alpha }

func (s *Simulation) Ticks() int { return s.ticks }

// Converged reports whether alpha has cooled below AlphaMin with nothing holding it warm.
func (s *Simulation) Converged() bool {
	return s.alpha < s.cfg.AlphaMin && s.alphaTarget < s.cfg.AlphaMin
}

// SetAlphaTarget keeps the simulation warm while a node is dragged.
func (s *Simulation) SetAlphaTarget(t float64) {
	s.alphaTarget = math.Max(0, math.Min(1, t))
}

// Reheat raises alpha so a converged layout starts moving again.
func (s *Simulation) Reheat(alpha float64) {
	s.alpha = math.Max(s.alpha, alpha)
}

// Pin fixes a node in place. It still pushes and pulls its neighbours.
func (s *Simulation) Pin(id string, x, y float64) bool {
	i, ok := s.index[id]
	if !ok || !finite(x, y) {
		return false
	}
	n := &s.nodes[i]
	n.pinned, n.fx, n.fy = true, x, y
	n.x, n.y, n.vx, n.vy = x, y, 0, 0
	return true
}

func (s *Simulation) Unpin(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.nodes[i].pinned = false
	return true
}

// Tick advances the simulation by one step.
func (s *Simulation) Tick() error {
	s.alpha += (s.alphaTarget - s.alpha) * s.alphaDecay
	s.applyLinks(s.alpha)
	s.applyManyBody(s.alpha)
	s.applyCollide()
	s.applyCenter()

	keep := 1 - s.cfg.VelocityDecay
	for i := range s.nodes {
		n := &s.nodes[i]
		if n.pinned {
			n.x, n.y, n.vx, n.vy = n.fx, n.fy, 0, 0
			continue
		}
		n.vx *= keep
		n.vy *= keep
		n.x += n.vx
		n.y += n.vy
		if !finite(n.x, n.y) {
			return errNonFinite
		}
	}
	s.ticks++
	return nil
}

// Positions returns a fresh copy of every node position.
func (s *Simulation) Positions() []NodePosition {
	out := make([]NodePosition, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = NodePosition{ID: n.id, X: n.x, Y: n.y, Degree: n.degree, Pinned: n.pinned}
	}
	return out
}

// Progress estimates completion from the cooling schedule, in [0, 99].
// It reaches 100 only in a terminal snapshot.
func (s *Simulation) Progress(startAlpha float64) int {
	p := int(100 * float64(s.ticks) / float64(s.cfg.expectedTicks(startAlpha)))
	return max(0, min(99, p))
}
