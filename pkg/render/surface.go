// Package render draws layout snapshots and parallel-coordinates plots onto 2D surfaces.
package render

import (
	"image/color"
)

// Surface is the minimal drawing API the renderers need. Coordinates are in
// surface pixels; Text positions the top-left corner of the string.
type Surface interface {
	Size() (w, h int)
	Clear(c color.Color)
	StrokeLine(x0, y0, x1, y1, width float64, c color.Color)
	FillCircle(cx, cy, r float64, c color.Color)
	FillRect(x, y, w, h float64, c color.Color)
	Text(s string, x, y, size float64, c color.Color)
	MeasureText(s string, size float64) (w, h float64)
}

// transformed draws world coordinates onto an underlying screen surface.
type transformed struct {
	Surface
	vt ViewTransform
}

// InWorld returns a Surface that maps world coordinates through vt before drawing on s.
// Widths, radii and text sizes scale with the zoom level.
func InWorld(s Surface, vt ViewTransform) Surface {
	return transformed{Surface: s, vt: vt.Normalize()}
}

func (t transformed) StrokeLine(x0, y0, x1, y1, width float64, c color.Color) {
	sx0, sy0 := t.vt.Apply(x0, y0)
	sx1, sy1 := t.vt.Apply(x1, y1)
	t.Surface.StrokeLine(sx0, sy0, sx1, sy1, width*t.vt.Scale, c)
}

func (t transformed) FillCircle(cx, cy, r float64, c color.Color) {
	sx, sy := t.vt.Apply(cx, cy)
	t.Surface.FillCircle(sx, sy, r*t.vt.Scale, c)
}

func (t transformed) FillRect(x, y, w, h float64, c color.Color) {
	sx, sy := t.vt.Apply(x, y)
	t.Surface.FillRect(sx, sy, w*t.vt.Scale, h*t.vt.Scale, c)
}

func (t transformed) Text(s string, x, y, size float64, c color.Color) {
	sx, sy := t.vt.Apply(x, y)
	t.Surface.Text(s, sx, sy, size*t.vt.Scale, c)
}

func (t transformed) MeasureText(s string, size float64) (float64, float64) {
	w, h := t.Surface.MeasureText(s, size*t.vt.Scale)
	return w / t.vt.Scale, h / t.vt.Scale
}

// WithAlpha scales the alpha of c by a, which is clamped to [0, 1].
func WithAlpha(c color.Color, a float64) color.RGBA {
	a = max(0, min(1, a))
	r, g, b, al := c.RGBA()
	return color.RGBA{
		R: uint8(float64(r>>8) * a),
		G: uint8(float64(g>>8) * a),
		B: uint8(float64(b>>8) * a),
		A: uint8(float64(al>>8) * a),
	}
}
