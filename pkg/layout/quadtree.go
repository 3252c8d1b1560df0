package layout

// quad is a Barnes-Hut cell. Leaves hold point indices; internal cells hold the
// aggregate charge and its centre.
type quad struct {
	x0, y0, x1, y1 float64
	cx, cy         float64
	count          int
	children       [4]*quad
	points         []int
}

const maxQuadDepth = 24

func buildQuadtree(xs, ys []float64) *quad {
	if len(xs) == 0 {
		return nil
	}
	x0, y0, x1, y1 := xs[0], ys[0], xs[0], ys[0]
	for i := range xs {
		x0, x1 = min(x0, xs[i]), max(x1, xs[i])
		y0, y1 = min(y0, ys[i]), max(y1, ys[i])
	}
	// Square cells keep the opening criterion isotropic.
	size := max(x1-x0, y1-y0, 1)
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	return subdivide(xs, ys, idx, x0, y0, x0+size, y0+size, 0)
}

func subdivide(xs, ys []float64, idx []int, x0, y0, x1, y1 float64, depth int) *quad {
	q := &quad{x0: x0, y0: y0, x1: x1, y1: y1, count: len(idx)}
	for _, i := range idx {
		q.cx += xs[i]
		q.cy += ys[i]
	}
	q.cx /= float64(len(idx))
	q.cy /= float64(len(idx))

	if len(idx) == 1 || depth >= maxQuadDepth {
		q.points = idx
		return q
	}

	mx, my := (x0+x1)/2, (y0+y1)/2
	var parts [4][]int
	for _, i := range idx {
		c := 0
		if xs[i] >= mx {
			c |= 1
		}
		if ys[i] >= my {
			c |= 2
		}
		parts[c] = append(parts[c], i)
	}
	for c, part := range parts {
		if len(part) == 0 {
			continue
		}
		cx0, cx1 := x0, mx
		if c&1 != 0 {
			cx0, cx1 = mx, x1
		}
		cy0, cy1 := y0, my
		if c&2 != 0 {
			cy0, cy1 = my, y1
		}
		q.children[c] = subdivide(xs, ys, part, cx0, cy0, cx1, cy1, depth+1)
	}
	return q
}

func (q *quad) leaf() bool {
	return q.points != nil
}
