package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Format selects the headless output encoding.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// ChartSurface renders through a go-chart renderer, producing PNG or SVG without a window.
type ChartSurface struct {
	r      chart.Renderer
	w, h   int
	format Format
}

// NewChartSurface creates a w x h headless surface in the given format.
func NewChartSurface(format Format, w, h int) (*ChartSurface, error) {
	var provider chart.RendererProvider
	switch format {
	case FormatPNG:
		provider = chart.PNG
	case FormatSVG:
		provider = chart.SVG
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	r, err := provider(w, h)
	if err != nil {
		return nil, fmt.Errorf("create %s renderer: %w", format, err)
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	r.SetFont(font)
	return &ChartSurface{r: r, w: w, h: h, format: format}, nil
}

func NewPNGSurface(w, h int) (*ChartSurface, error) { return NewChartSurface(FormatPNG, w, h) }

func NewSVGSurface(w, h int) (*ChartSurface, error) { return NewChartSurface(FormatSVG, w, h) }

func drawingColor(c color.Color) drawing.Color {
	r, g, b, a := c.RGBA()
	if a == 0 {
		return drawing.ColorTransparent
	}
	// go-chart expects straight alpha.
	return drawing.Color{
		R: uint8(r * 0xff / a),
		G: uint8(g * 0xff / a),
		B: uint8(b * 0xff / a),
		A: uint8(a >> 8),
	}
}

func px(v float64) int {
	return int(math.Round(v))
}

func (s *ChartSurface) Format() Format { return s.format }

func (s *ChartSurface) Size() (int, int) { return s.w, s.h }

func (s *ChartSurface) Clear(c color.Color) {
	s.FillRect(0, 0, float64(s.w), float64(s.h), c)
}

func (s *ChartSurface) StrokeLine(x0, y0, x1, y1, width float64, c color.Color) {
	s.r.ResetStyle()
	s.r.SetStrokeColor(drawingColor(c))
	s.r.SetStrokeWidth(width)
	s.r.MoveTo(px(x0), px(y0))
	s.r.LineTo(px(x1), px(y1))
	s.r.Stroke()
}

func (s *ChartSurface) FillCircle(cx, cy, r float64, c color.Color) {
	s.r.ResetStyle()
	s.r.SetFillColor(drawingColor(c))
	s.r.SetStrokeColor(drawing.ColorTransparent)
	s.r.SetStrokeWidth(0)
	s.r.Circle(r, px(cx), px(cy))
	s.r.Fill()
}

func (s *ChartSurface) FillRect(x, y, w, h float64, c color.Color) {
	s.r.ResetStyle()
	s.r.SetFillColor(drawingColor(c))
	s.r.SetStrokeColor(drawing.ColorTransparent)
	s.r.MoveTo(px(x), px(y))
	s.r.LineTo(px(x+w), px(y))
	s.r.LineTo(px(x+w), px(y+h))
	s.r.LineTo(px(x), px(y+h))
	s.r.LineTo(px(x), px(y))
	s.r.Close()
	s.r.Fill()
}

func (s *ChartSurface) Text(str string, x, y, size float64, c color.Color) {
	s.r.ResetStyle()
	s.r.SetFontSize(size)
	s.r.SetFontColor(drawingColor(c))
	// go-chart positions text by its baseline.
	s.r.Text(str, px(x), px(y+size))
}

func (s *ChartSurface) MeasureText(str string, size float64) (float64, float64) {
	s.r.SetFontSize(size)
	box := s.r.MeasureText(str)
	return float64(box.Width()), float64(box.Height())
}

// Save encodes everything drawn so far.
func (s *ChartSurface) Save(w io.Writer) error {
	return s.r.Save(w)
}
