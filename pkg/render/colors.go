package render

import (
	"image/color"
	"math"
	"math/rand"
	"sync"
)

var (
	ColorBackground = color.RGBA{255, 255, 255, 255}
	ColorText       = color.RGBA{33, 37, 41, 255}
	ColorLink       = color.RGBA{153, 153, 153, 255}
	ColorHighLink   = color.RGBA{220, 38, 38, 255}
	ColorLabelBox   = color.RGBA{255, 255, 255, 230}
	ColorAxis       = color.RGBA{60, 60, 60, 255}
	ColorBrush      = color.RGBA{0, 115, 230, 60}
)

// DegreeThresholds split nodes into visually distinct cohorts.
var DegreeThresholds = [4]int{5, 10, 20, 50}

// DegreeColors has one fill per cohort, light to dark.
var DegreeColors = [5]color.RGBA{
	{0xb3, 0xd9, 0xff, 0xff},
	{0x66, 0xb3, 0xff, 0xff},
	{0x00, 0x73, 0xe6, 0xff},
	{0x00, 0x40, 0x80, 0xff},
	{0x00, 0x26, 0x4d, 0xff},
}

// DegreeBucket returns the cohort index (0-4) for a degree.
func DegreeBucket(degree int) int {
	for i, t := range DegreeThresholds {
		if degree < t {
			return i
		}
	}
	return len(DegreeThresholds)
}

// BucketRadius spreads cohorts evenly between minR and maxR.
func BucketRadius(degree int, minR, maxR float64) float64 {
	return minR + float64(DegreeBucket(degree))*(maxR-minR)/float64(len(DegreeThresholds))
}

// Palette yields colors for labels that have none yet.
type Palette interface {
	Next() color.RGBA
}

// HuePalette picks fully saturated random hues at least MinDistance degrees from
// every hue already handed out. When the wheel is too crowded it settles for the
// candidate furthest from its neighbours.
type HuePalette struct {
	MinDistance float64
	Attempts    int
	rng         *rand.Rand
	used        []float64
}

func NewHuePalette(seed int64) *HuePalette {
	return &HuePalette{MinDistance: 30, Attempts: 64, rng: rand.New(rand.NewSource(seed))}
}

func hueDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	return math.Min(d, 360-d)
}

func (p *HuePalette) Next() color.RGBA {
	best, bestDist := 0.0, -1.0
	for i := 0; i < max(1, p.Attempts); i++ {
		h := p.rng.Float64() * 360
		nearest := 360.0
		for _, u := range p.used {
			nearest = math.Min(nearest, hueDistance(h, u))
		}
		if nearest > bestDist {
			best, bestDist = h, nearest
		}
		if nearest >= p.MinDistance {
			break
		}
	}
	p.used = append(p.used, best)
	return HSL(best, 1, 0.5)
}

// FixedPalette cycles through a fixed list, for deterministic output.
type FixedPalette struct {
	Colors []color.RGBA
	next   int
}

func (p *FixedPalette) Next() color.RGBA {
	if len(p.Colors) == 0 {
		return ColorLink
	}
	c := p.Colors[p.next%len(p.Colors)]
	p.next++
	return c
}

// ColorRegistry assigns each label a stable color for the lifetime of one view.
type ColorRegistry struct {
	mu      sync.Mutex
	palette Palette
	colors  map[string]color.RGBA
	order   []string
}

func NewColorRegistry(p Palette) *ColorRegistry {
	if p == nil {
		p = NewHuePalette(1)
	}
	return &ColorRegistry{palette: p, colors: make(map[string]color.RGBA)}
}

// Color returns the label's color, assigning the next palette color on first use.
func (r *ColorRegistry) Color(label string) color.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.colors[label]; ok {
		return c
	}
	c := r.palette.Next()
	r.colors[label] = c
	r.order = append(r.order, label)
	return c
}

// Set pins a label to a color.
func (r *ColorRegistry) Set(label string, c color.RGBA) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.colors[label]; !ok {
		r.order = append(r.order, label)
	}
	r.colors[label] = c
}

// LegendEntry pairs a label with its color.
type LegendEntry struct {
	Label string
	Color color.RGBA
}

// Legend lists assigned colors in assignment order.
func (r *ColorRegistry) Legend() []LegendEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LegendEntry, len(r.order))
	for i, l := range r.order {
		out[i] = LegendEntry{Label: l, Color: r.colors[l]}
	}
	return out
}

// HSL converts hue (degrees), saturation and lightness (0-1) to RGB.
func HSL(h, s, l float64) color.RGBA {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return color.RGBA{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
		A: 255,
	}
}
