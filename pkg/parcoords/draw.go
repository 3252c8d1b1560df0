package parcoords

import (
	"github.com/sudorandom/flowscope/pkg/render"
)

const (
	fontSize   = 11
	brushWidth = 16
)

// Draw renders the plot onto s through vt: dimmed lines first, selected lines
// on top, then axes, ticks, titles and brush rectangles. Lines are colored by
// entity category through colors.
func Draw(s render.Surface, p *Plot, colors *render.ColorRegistry, vt render.ViewTransform) {
	s.Clear(render.ColorBackground)
	if colors == nil {
		colors = render.NewColorRegistry(nil)
	}
	world := render.InWorld(s, vt)

	drawLines := func(selected bool) {
		for i, l := range p.Lines {
			if p.Selected(i) != selected {
				continue
			}
			c := render.WithAlpha(colors.Color(p.Entities[l.Entity].Color()), p.Opacity(i))
			for _, seg := range l.Segments {
				world.StrokeLine(seg.X0, seg.Y0, seg.X1, seg.Y1, l.Width, c)
			}
			if len(p.Axes) == 1 {
				for _, y := range l.Positions[0] {
					world.FillCircle(p.Axes[0].X, y, l.Width+1, c)
				}
			}
		}
	}
	drawLines(false)
	drawLines(true)

	for _, b := range p.brushes {
		i, ok := p.Axis(b.Axis)
		if !ok {
			continue
		}
		x := p.Axes[i].X
		y0, y1 := min(b.Y0, b.Y1), max(b.Y0, b.Y1)
		world.FillRect(x-brushWidth/2, y0, brushWidth, y1-y0, render.ColorBrush)
	}

	for _, a := range p.Axes {
		world.StrokeLine(a.X, 0, a.X, p.Height, 1, render.ColorAxis)
		for _, t := range a.Ticks() {
			world.StrokeLine(a.X-3, t.Y, a.X, t.Y, 1, render.ColorAxis)
			w, h := world.MeasureText(t.Text, fontSize)
			world.Text(t.Text, a.X-6-w, t.Y-h/2, fontSize, render.ColorText)
		}
		w, _ := world.MeasureText(a.Name, fontSize+1)
		world.Text(a.Name, a.X-w/2, -fontSize-10, fontSize+1, render.ColorText)
	}
}
