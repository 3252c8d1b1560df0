package render

import (
	"image/color"
	"unicode/utf8"
)

// Op is one recorded drawing call.
type Op struct {
	Kind     string // clear, line, circle, rect, text
	X0, Y0   float64
	X1, Y1   float64
	Width, R float64
	Text     string
	Size     float64
	Color    color.RGBA
}

// Recorder is a Surface that remembers what was drawn. Clear forgets earlier
// operations, like a real surface would.
type Recorder struct {
	W, H int
	Ops  []Op
}

func NewRecorder(w, h int) *Recorder {
	return &Recorder{W: w, H: h}
}

func rgba(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

func (r *Recorder) Size() (int, int) { return r.W, r.H }

func (r *Recorder) Clear(c color.Color) {
	r.Ops = append(r.Ops[:0], Op{Kind: "clear", Color: rgba(c)})
}

func (r *Recorder) StrokeLine(x0, y0, x1, y1, width float64, c color.Color) {
	r.Ops = append(r.Ops, Op{Kind: "line", X0: x0, Y0: y0, X1: x1, Y1: y1, Width: width, Color: rgba(c)})
}

func (r *Recorder) FillCircle(cx, cy, radius float64, c color.Color) {
	r.Ops = append(r.Ops, Op{Kind: "circle", X0: cx, Y0: cy, R: radius, Color: rgba(c)})
}

func (r *Recorder) FillRect(x, y, w, h float64, c color.Color) {
	r.Ops = append(r.Ops, Op{Kind: "rect", X0: x, Y0: y, X1: x + w, Y1: y + h, Color: rgba(c)})
}

func (r *Recorder) Text(s string, x, y, size float64, c color.Color) {
	r.Ops = append(r.Ops, Op{Kind: "text", X0: x, Y0: y, Text: s, Size: size, Color: rgba(c)})
}

// MeasureText approximates a monospaced face.
func (r *Recorder) MeasureText(s string, size float64) (float64, float64) {
	return float64(utf8.RuneCountInString(s)) * size * 0.6, size
}

// Count returns how many operations of a kind were recorded.
func (r *Recorder) Count(kind string) int {
	n := 0
	for _, op := range r.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Texts returns every drawn string in order.
func (r *Recorder) Texts() []string {
	var out []string
	for _, op := range r.Ops {
		if op.Kind == "text" {
			out = append(out, op.Text)
		}
	}
	return out
}
