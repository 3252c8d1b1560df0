package parcoords

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

const (
	// DefaultOpacity is used for every line while no brush is active.
	DefaultOpacity = 0.3
	// SelectedOpacity and DimmedOpacity apply to lines inside and outside the brushes.
	SelectedOpacity = 1.0
	DimmedOpacity   = 0.1

	maxTicks = 20
)

var ErrUnknownAxis = errors.New("unknown axis")

// Axis is one vertical axis. Time axes use TimeScale, everything else Points.
type Axis struct {
	Name   string
	X      float64
	IsTime bool
	Time   TimeScale
	Points PointScale
}

func (a *Axis) positions(e *Entity) []float64 {
	if a.IsTime {
		return []float64{a.Time.Position(e.Time)}
	}
	vals := e.Value(a.Name)
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if y, ok := a.Points.Position(v); ok {
			out = append(out, y)
		}
	}
	return out
}

// Tick is an axis annotation.
type Tick struct {
	Y    float64
	Text string
}

// Ticks returns labels for the axis: five evenly spaced instants on a time
// axis, otherwise the domain values, thinned to at most 20.
func (a *Axis) Ticks() []Tick {
	if a.IsTime {
		layout := "15:04:05"
		if a.Time.Max.Sub(a.Time.Min) >= 24*time.Hour {
			layout = "01-02 15:04"
		}
		if !a.Time.Max.After(a.Time.Min) {
			return []Tick{{Y: a.Time.Position(a.Time.Min), Text: a.Time.Min.Format(layout)}}
		}
		ticks := make([]Tick, 5)
		for i := range ticks {
			y := pointScale(i, len(ticks), a.Time.R0, a.Time.R1)
			ticks[i] = Tick{Y: y, Text: a.Time.Invert(y).Format(layout)}
		}
		return ticks
	}
	n := len(a.Points.Domain)
	every := max(1, int(math.Ceil(float64(n)/maxTicks)))
	var ticks []Tick
	for i := 0; i < n; i += every {
		ticks = append(ticks, Tick{Y: pointScale(i, n, a.Points.R0, a.Points.R1), Text: a.Points.Domain[i]})
	}
	return ticks
}

// Segment joins an entity's value on axis From to one of its values on axis From+1.
type Segment struct {
	From           int
	X0, Y0, X1, Y1 float64
}

// Line is everything drawn for one entity.
type Line struct {
	Entity   int
	Width    float64
	Segments []Segment
	// Positions holds the entity's y positions on each axis.
	Positions [][]float64
}

// Brush selects the y range [Y0, Y1] (either order) on an axis.
type Brush struct {
	Axis string  `json:"axis"`
	Y0   float64 `json:"y0"`
	Y1   float64 `json:"y1"`
}

func (b Brush) contains(y float64) bool {
	lo, hi := math.Min(b.Y0, b.Y1), math.Max(b.Y0, b.Y1)
	return y >= lo && y <= hi
}

// Stats summarizes the size of a plot.
type Stats struct {
	Lines    int
	Segments int
	// MaxFanOut is the largest number of segments drawn for one entity.
	MaxFanOut int
}

// Plot is a laid-out parallel-coordinates chart plus its brush state.
type Plot struct {
	Width, Height float64
	BaseWidth     float64
	Axes          []*Axis
	Entities      []Entity
	Lines         []Line

	brushes []Brush
	stats   Stats
}

// Layout places one axis per dimension, evenly spaced across width, and one
// line per entity. Coordinates run from (0, 0) at the top left to (width,
// height); the lowest value of each axis is at the bottom.
func Layout(entities []Entity, dims []string, width, height float64) *Plot {
	p := &Plot{Width: width, Height: height, BaseWidth: 1, Entities: entities}
	for i, d := range dims {
		a := &Axis{Name: d, X: pointScale(i, len(dims), 0, width), IsTime: IsTimeDimension(d)}
		if a.IsTime {
			a.Time = timeScale(entities, height)
		} else {
			var values []string
			for j := range entities {
				values = append(values, entities[j].Value(d)...)
			}
			a.Points = newPointScale(values, height, 0)
		}
		p.Axes = append(p.Axes, a)
	}

	p.Lines = make([]Line, len(entities))
	for i := range entities {
		e := &entities[i]
		l := Line{Entity: i, Width: StrokeWidth(p.BaseWidth, e.Count), Positions: make([][]float64, len(p.Axes))}
		for j, a := range p.Axes {
			l.Positions[j] = a.positions(e)
		}
		for j := 0; j+1 < len(p.Axes); j++ {
			x0, x1 := p.Axes[j].X, p.Axes[j+1].X
			for _, y0 := range l.Positions[j] {
				for _, y1 := range l.Positions[j+1] {
					l.Segments = append(l.Segments, Segment{From: j, X0: x0, Y0: y0, X1: x1, Y1: y1})
				}
			}
		}
		p.stats.Segments += len(l.Segments)
		p.stats.MaxFanOut = max(p.stats.MaxFanOut, len(l.Segments))
		p.Lines[i] = l
	}
	p.stats.Lines = len(p.Lines)
	return p
}

func timeScale(entities []Entity, height float64) TimeScale {
	s := TimeScale{R0: height, R1: 0}
	for i, e := range entities {
		if i == 0 || e.Time.Before(s.Min) {
			s.Min = e.Time
		}
		if i == 0 || e.Time.After(s.Max) {
			s.Max = e.Time
		}
	}
	return s
}

func (p *Plot) Stats() Stats { return p.stats }

// SetBaseWidth rescales every line's stroke width from a new base.
func (p *Plot) SetBaseWidth(base float64) {
	if base <= 0 {
		base = 1
	}
	p.BaseWidth = base
	for i := range p.Lines {
		p.Lines[i].Width = StrokeWidth(base, p.Entities[p.Lines[i].Entity].Count)
	}
}

// Axis returns the index of the named axis.
func (p *Plot) Axis(name string) (int, bool) {
	for i, a := range p.Axes {
		if strings.EqualFold(a.Name, name) {
			return i, true
		}
	}
	return 0, false
}

// AxisAt returns the axis closest to x, if it is within tolerance.
func (p *Plot) AxisAt(x, tolerance float64) (int, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, a := range p.Axes {
		if d := math.Abs(a.X - x); d <= tolerance && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, best >= 0
}

// SetBrush replaces the brush on an axis.
func (p *Plot) SetBrush(axis string, y0, y1 float64) error {
	i, ok := p.Axis(axis)
	if !ok {
		return fmt.Errorf("brush %q: %w", axis, ErrUnknownAxis)
	}
	p.ClearBrush(axis)
	p.brushes = append(p.brushes, Brush{Axis: p.Axes[i].Name, Y0: y0, Y1: y1})
	return nil
}

// BrushValues brushes an ordinal axis from value lo to value hi inclusive.
func (p *Plot) BrushValues(axis, lo, hi string) error {
	i, ok := p.Axis(axis)
	if !ok {
		return fmt.Errorf("brush %q: %w", axis, ErrUnknownAxis)
	}
	a := p.Axes[i]
	y0, ok0 := a.Points.Position(lo)
	y1, ok1 := a.Points.Position(hi)
	if a.IsTime || !ok0 || !ok1 {
		return fmt.Errorf("brush %q: values %q-%q not on axis", axis, lo, hi)
	}
	pad := math.Abs(a.Points.Step()) / 4
	if pad == 0 {
		pad = 1
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return p.SetBrush(axis, y0-pad, y1+pad)
}

func (p *Plot) ClearBrush(axis string) {
	p.brushes = slices.DeleteFunc(p.brushes, func(b Brush) bool { return strings.EqualFold(b.Axis, axis) })
}

func (p *Plot) ClearBrushes() { p.brushes = nil }

func (p *Plot) Brushes() []Brush { return append([]Brush(nil), p.brushes...) }

// Selected reports whether a line satisfies every active brush. A multivalued
// entity satisfies a brush when any of its values on that axis does.
func (p *Plot) Selected(line int) bool {
	l := p.Lines[line]
	for _, b := range p.brushes {
		i, ok := p.Axis(b.Axis)
		if !ok {
			continue
		}
		hit := false
		for _, y := range l.Positions[i] {
			if b.contains(y) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// Opacity is the opacity a line is drawn with under the current brushes.
func (p *Plot) Opacity(line int) float64 {
	if len(p.brushes) == 0 {
		return DefaultOpacity
	}
	if p.Selected(line) {
		return SelectedOpacity
	}
	return DimmedOpacity
}

// SelectedEntities lists the entities passing every brush.
func (p *Plot) SelectedEntities() []*Entity {
	var out []*Entity
	for i := range p.Lines {
		if p.Selected(i) {
			out = append(out, &p.Entities[p.Lines[i].Entity])
		}
	}
	return out
}
