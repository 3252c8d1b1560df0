package layout

import "math"

// Forces follow the usual d3-force formulation: link springs with degree based
// bias, Barnes-Hut many-body repulsion, a centring shift and radius collision.

type simLink struct {
	source, target int
	strength, bias float64
}

func (s *Simulation) jiggle() float64 {
	return (s.rng.Float64() - 0.5) * 1e-6
}

func (s *Simulation) applyLinks(alpha float64) {
	for _, l := range s.links {
		src, tgt := &s.nodes[l.source], &s.nodes[l.target]
		x := tgt.x + tgt.vx - src.x - src.vx
		y := tgt.y + tgt.vy - src.y - src.vy
		if x == 0 {
			x = s.jiggle()
		}
		if y == 0 {
			y = s.jiggle()
		}
		d := math.Sqrt(x*x + y*y)
		d = (d - s.cfg.LinkDistance) / d * alpha * l.strength
		x *= d
		y *= d
		tgt.vx -= x * l.bias
		tgt.vy -= y * l.bias
		src.vx += x * (1 - l.bias)
		src.vy += y * (1 - l.bias)
	}
}

const distanceMin2 = 1.0

func (s *Simulation) applyManyBody(alpha float64) {
	n := len(s.nodes)
	if n < 2 {
		return
	}
	xs, ys := s.scratchX[:n], s.scratchY[:n]
	for i := range s.nodes {
		xs[i], ys[i] = s.nodes[i].x, s.nodes[i].y
	}
	root := buildQuadtree(xs, ys)
	theta2 := s.cfg.Theta * s.cfg.Theta
	for i := range s.nodes {
		s.repel(i, root, xs, ys, theta2, alpha)
	}
}

func (s *Simulation) repel(i int, q *quad, xs, ys []float64, theta2, alpha float64) {
	node := &s.nodes[i]
	charge := s.cfg.Charge
	if q.leaf() {
		for _, j := range q.points {
			if j == i {
				continue
			}
			x, y := xs[j]-xs[i], ys[j]-ys[i]
			if x == 0 {
				x = s.jiggle()
			}
			if y == 0 {
				y = s.jiggle()
			}
			l := x*x + y*y
			if l < distanceMin2 {
				l = math.Sqrt(distanceMin2 * l)
			}
			w := charge * alpha / l
			node.vx += x * w
			node.vy += y * w
		}
		return
	}

	x, y := q.cx-xs[i], q.cy-ys[i]
	w := q.x1 - q.x0
	l := x*x + y*y
	if w*w/theta2 < l {
		if l < distanceMin2 {
			l = math.Sqrt(distanceMin2 * l)
		}
		f := charge * float64(q.count) * alpha / l
		node.vx += x * f
		node.vy += y * f
		return
	}
	for _, c := range q.children {
		if c != nil {
			s.repel(i, c, xs, ys, theta2, alpha)
		}
	}
}

func (s *Simulation) applyCenter() {
	n := len(s.nodes)
	if n == 0 {
		return
	}
	var sx, sy float64
	for i := range s.nodes {
		sx += s.nodes[i].x
		sy += s.nodes[i].y
	}
	sx = sx/float64(n) - s.cfg.Width/2
	sy = sy/float64(n) - s.cfg.Height/2
	for i := range s.nodes {
		s.nodes[i].x -= sx
		s.nodes[i].y -= sy
	}
}

type cellKey struct{ x, y int }

// applyCollide pushes apart nodes whose collision circles overlap, using a grid
// sized so only neighbouring cells need checking.
func (s *Simulation) applyCollide() {
	n := len(s.nodes)
	if n < 2 {
		return
	}
	cell := 2 * (s.cfg.MaxRadius + s.cfg.CollisionPadding)
	grid := make(map[cellKey][]int, n)
	for i := range s.nodes {
		nd := &s.nodes[i]
		k := cellKey{int(math.Floor((nd.x + nd.vx) / cell)), int(math.Floor((nd.y + nd.vy) / cell))}
		grid[k] = append(grid[k], i)
	}

	for i := range s.nodes {
		a := &s.nodes[i]
		ri := a.radius
		xi, yi := a.x+a.vx, a.y+a.vy
		kx, ky := int(math.Floor(xi/cell)), int(math.Floor(yi/cell))
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, j := range grid[cellKey{kx + dx, ky + dy}] {
					if j <= i {
						continue
					}
					b := &s.nodes[j]
					rj := b.radius
					r := ri + rj
					x := xi - b.x - b.vx
					y := yi - b.y - b.vy
					l := x*x + y*y
					if l >= r*r {
						continue
					}
					if x == 0 {
						x = s.jiggle()
						l += x * x
					}
					if y == 0 {
						y = s.jiggle()
						l += y * y
					}
					l = math.Sqrt(l)
					l = (r - l) / l
					x *= l
					y *= l
					share := rj * rj / (ri*ri + rj*rj)
					a.vx += x * share
					a.vy += y * share
					b.vx -= x * (1 - share)
					b.vy -= y * (1 - share)
				}
			}
		}
	}
}
