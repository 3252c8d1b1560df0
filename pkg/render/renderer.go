package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/sudorandom/flowscope/pkg/graph"
	"github.com/sudorandom/flowscope/pkg/layout"
)

// LinkColorMode selects what a link's stroke color encodes.
type LinkColorMode int

const (
	// ColorByLabel gives every label its own registry color.
	ColorByLabel LinkColorMode = iota
	// ColorByPriority draws high priority links red and the rest grey.
	ColorByPriority
)

func (m LinkColorMode) String() string {
	if m == ColorByPriority {
		return "priority"
	}
	return "label"
}

func (m LinkColorMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts "label" or "priority".
func (m *LinkColorMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "label", "":
		*m = ColorByLabel
	case "priority":
		*m = ColorByPriority
	default:
		return fmt.Errorf("unknown link color mode %q", b)
	}
	return nil
}

type Options struct {
	// HoverRadius is how close (in world units) the cursor must be for a node label to appear.
	HoverRadius float64 `yaml:"hover_radius"`
	// LinkHoverRadius is the same for link labels.
	LinkHoverRadius float64 `yaml:"link_hover_radius"`
	// LabelDegree: nodes with a higher degree are always labelled.
	LabelDegree int           `yaml:"label_degree"`
	MinRadius   float64       `yaml:"min_radius"`
	MaxRadius   float64       `yaml:"max_radius"`
	FontSize    float64       `yaml:"font_size"`
	LinkColors  LinkColorMode `yaml:"link_colors"`
}

func DefaultOptions() Options {
	return Options{
		HoverRadius:     20,
		LinkHoverRadius: 10,
		LabelDegree:     10,
		MinRadius:       4,
		MaxRadius:       12,
		FontSize:        12,
		LinkColors:      ColorByLabel,
	}
}

func (o Options) normalize() Options {
	d := DefaultOptions()
	if o.HoverRadius <= 0 {
		o.HoverRadius = d.HoverRadius
	}
	if o.LinkHoverRadius <= 0 {
		o.LinkHoverRadius = d.LinkHoverRadius
	}
	if o.LabelDegree <= 0 {
		o.LabelDegree = d.LabelDegree
	}
	if o.MinRadius <= 0 {
		o.MinRadius = d.MinRadius
	}
	if o.MaxRadius < o.MinRadius {
		o.MaxRadius = max(d.MaxRadius, o.MinRadius)
	}
	if o.FontSize <= 0 {
		o.FontSize = d.FontSize
	}
	return o
}

// Frame is what one draw call shows: positions from a snapshot and the links between them.
type Frame struct {
	Nodes []layout.NodePosition
	Links []graph.Link
}

// Cursor is the pointer position in screen pixels. Inside is false when the
// pointer is off the surface.
type Cursor struct {
	X, Y   float64
	Inside bool
}

type Stats struct {
	Nodes        int
	Links        int
	Segments     int
	SkippedLinks int
	Labels       int
	HoveredNode  string
	HoveredLinks []string
}

// Renderer draws frames. It holds no per-frame state; every call redraws from scratch.
type Renderer struct {
	opts   Options
	colors *ColorRegistry
}

func NewRenderer(opts Options, colors *ColorRegistry) *Renderer {
	if colors == nil {
		colors = NewColorRegistry(nil)
	}
	return &Renderer{opts: opts.normalize(), colors: colors}
}

func (r *Renderer) Options() Options { return r.opts }

func (r *Renderer) Colors() *ColorRegistry { return r.colors }

func (r *Renderer) linkColor(l graph.Link) color.RGBA {
	if r.opts.LinkColors == ColorByPriority {
		if l.IsHighPriority() {
			return ColorHighLink
		}
		return ColorLink
	}
	return r.colors.Color(l.Label)
}

// LinkWidth maps packet bytes to a stroke width in world units.
func LinkWidth(l graph.Link) float64 {
	w := math.Max(1.5, math.Min(6, float64(l.Weight)/1000))
	if l.IsHighPriority() {
		w++
	}
	return w
}

// NodeRadius is the drawn radius for a degree.
func (r *Renderer) NodeRadius(degree int) float64 {
	return BucketRadius(degree, r.opts.MinRadius, r.opts.MaxRadius)
}

// Render clears dst and draws f through vt. Links are drawn first, then nodes and
// always-on labels in world space, then hover labels in screen space so they stay
// legible at any zoom. Links with an endpoint missing from the frame are skipped.
func (r *Renderer) Render(dst Surface, f Frame, vt ViewTransform, cur Cursor) Stats {
	dst.Clear(ColorBackground)
	var st Stats
	if len(f.Nodes) == 0 {
		st.SkippedLinks = len(f.Links)
		return st
	}

	vt = vt.Normalize()
	world := InWorld(dst, vt)
	wx, wy := vt.Invert(cur.X, cur.Y)

	pos := make(map[string]layout.NodePosition, len(f.Nodes))
	for _, n := range f.Nodes {
		pos[n.ID] = n
	}

	var hoveredLinks []string
	seenLabel := make(map[string]bool)
	for _, p := range graph.Pairs(f.Links) {
		a, okA := pos[p.Source]
		b, okB := pos[p.Target]
		if !okA || !okB {
			st.SkippedLinks += len(p.Links)
			continue
		}
		k := float64(len(p.Links))
		for i, l := range p.Links {
			t0, t1 := float64(i)/k, float64(i+1)/k
			x0, y0 := a.X+(b.X-a.X)*t0, a.Y+(b.Y-a.Y)*t0
			x1, y1 := a.X+(b.X-a.X)*t1, a.Y+(b.Y-a.Y)*t1
			world.StrokeLine(x0, y0, x1, y1, LinkWidth(l), r.linkColor(l))
			st.Segments++

			if cur.Inside && !seenLabel[l.Label] && SegmentDistance(wx, wy, x0, y0, x1, y1) <= r.opts.LinkHoverRadius {
				seenLabel[l.Label] = true
				hoveredLinks = append(hoveredLinks, l.Label)
			}
		}
		st.Links += len(p.Links)
	}

	hovered := -1
	hoverDist := math.Inf(1)
	for i, n := range f.Nodes {
		radius := r.NodeRadius(n.Degree)
		world.FillCircle(n.X, n.Y, radius, DegreeColors[DegreeBucket(n.Degree)])
		st.Nodes++

		if n.Degree > r.opts.LabelDegree {
			world.Text(n.ID, n.X+radius+2, n.Y-r.opts.FontSize/2, r.opts.FontSize, ColorText)
			st.Labels++
			continue
		}
		if cur.Inside {
			if d := math.Hypot(n.X-wx, n.Y-wy); d <= r.opts.HoverRadius && d < hoverDist {
				hovered, hoverDist = i, d
			}
		}
	}

	// Screen space overlays.
	if hovered >= 0 {
		n := f.Nodes[hovered]
		sx, sy := vt.Apply(n.X+r.NodeRadius(n.Degree), n.Y)
		r.drawBoxedLabel(dst, n.ID, sx+4, sy-r.opts.FontSize/2)
		st.HoveredNode = n.ID
		st.Labels++
	}
	for i, label := range hoveredLinks {
		r.drawBoxedLabel(dst, label, cur.X+12, cur.Y+float64(i)*18)
		st.Labels++
	}
	st.HoveredLinks = hoveredLinks
	return st
}

func (r *Renderer) drawBoxedLabel(dst Surface, s string, x, y float64) {
	w, h := dst.MeasureText(s, r.opts.FontSize)
	dst.FillRect(x-2, y-1, w+4, h+2, ColorLabelBox)
	dst.Text(s, x, y, r.opts.FontSize, ColorText)
}

// HitTest returns the node drawn under the screen position (sx, sy), preferring the nearest.
func (r *Renderer) HitTest(nodes []layout.NodePosition, vt ViewTransform, sx, sy float64) (string, bool) {
	wx, wy := vt.Invert(sx, sy)
	best, bestDist := "", math.Inf(1)
	for _, n := range nodes {
		d := math.Hypot(n.X-wx, n.Y-wy)
		if d <= r.NodeRadius(n.Degree)+2 && d < bestDist {
			best, bestDist = n.ID, d
		}
	}
	return best, best != ""
}

// SegmentDistance is the distance from (px, py) to the segment (x0, y0)-(x1, y1).
func SegmentDistance(px, py, x0, y0, x1, y1 float64) float64 {
	dx, dy := x1-x0, y1-y0
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(px-x0, py-y0)
	}
	t := ((px-x0)*dx + (py-y0)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-(x0+t*dx), py-(y0+t*dy))
}

// Bounds returns the world rectangle covering every node.
func Bounds(nodes []layout.NodePosition) (minX, minY, maxX, maxY float64) {
	if len(nodes) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, n := range nodes {
		minX, maxX = math.Min(minX, n.X), math.Max(maxX, n.X)
		minY, maxY = math.Min(minY, n.Y), math.Max(maxY, n.Y)
	}
	return minX, minY, maxX, maxY
}
