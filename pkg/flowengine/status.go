package flowengine

import (
	"fmt"
	"image/color"

	"github.com/sudorandom/flowscope/pkg/layout"
	"github.com/sudorandom/flowscope/pkg/render"
)

var (
	colorPanel  = color.RGBA{255, 255, 255, 220}
	colorBorder = color.RGBA{206, 212, 218, 255}
	colorAccent = color.RGBA{0, 115, 230, 255}
	colorTrack  = color.RGBA{233, 236, 239, 255}
)

// maxLegend caps the legend; labels past it are summarized in one line.
const maxLegend = 12

// Overlay is the screen-space status drawn over either view.
type Overlay struct {
	Title    string
	Mode     Mode
	Progress int
	Done     bool
	Reason   layout.Reason
	Nodes    int
	Links    int
	Issues   int
	// Lines and Selected describe the parallel-coordinates view.
	Lines    int
	Selected int
	Legend   []render.LegendEntry
}

// StatusLine is the one-line summary shown under the title.
func (o Overlay) StatusLine() string {
	if o.Mode == ModePlot {
		return fmt.Sprintf("%d of %d lines selected", o.Selected, o.Lines)
	}
	s := fmt.Sprintf("%d nodes, %d links", o.Nodes, o.Links)
	if o.Issues > 0 {
		s += fmt.Sprintf(", %d skipped", o.Issues)
	}
	switch {
	case !o.Done:
		s += fmt.Sprintf(" | layout %d%%", o.Progress)
	case o.Reason == layout.TimedOut:
		s += " | layout stopped early"
	case o.Reason == layout.Failed:
		s += " | layout failed"
	}
	return s
}

// DrawOverlay draws the title panel, a progress bar while the layout runs, and
// the label legend in the bottom-left corner.
func DrawOverlay(s render.Surface, o Overlay, fontSize float64) {
	w, h := s.Size()
	margin := 16.0
	if w > 2000 {
		margin, fontSize = 32.0, fontSize*2
	}

	// Title panel.
	status := o.StatusLine()
	tw, th := s.MeasureText(o.Title, fontSize*1.2)
	sw, _ := s.MeasureText(status, fontSize)
	boxW := max(tw, sw) + 30
	boxH := th + fontSize + 24
	s.FillRect(margin-10, margin-10, boxW, boxH, colorPanel)
	s.FillRect(margin-10, margin-10, 4, boxH, colorAccent)
	s.Text(o.Title, margin+5, margin-2, fontSize*1.2, render.ColorText)
	s.Text(status, margin+5, margin+th+4, fontSize, render.WithAlpha(render.ColorText, 0.7))

	if o.Mode == ModeGraph && !o.Done {
		barW := float64(w) - 2*margin
		y := float64(h) - margin - 4
		s.FillRect(margin, y, barW, 4, colorTrack)
		s.FillRect(margin, y, barW*float64(o.Progress)/100, 4, colorAccent)
	}

	drawLegend(s, o.Legend, margin, float64(h)-margin-12, fontSize)
}

func drawLegend(s render.Surface, entries []render.LegendEntry, x, bottom, fontSize float64) {
	if len(entries) == 0 {
		return
	}
	more := 0
	if len(entries) > maxLegend {
		more = len(entries) - maxLegend
		entries = entries[:maxLegend]
	}
	spacing, swatch := fontSize*1.6, fontSize
	rows := len(entries)
	if more > 0 {
		rows++
	}
	top := bottom - float64(rows)*spacing

	boxW := 0.0
	for _, e := range entries {
		lw, _ := s.MeasureText(e.Label, fontSize)
		boxW = max(boxW, lw)
	}
	boxW += swatch + 30
	s.FillRect(x-10, top-10, boxW, float64(rows)*spacing+14, colorPanel)
	s.FillRect(x-10, top-10, 4, float64(rows)*spacing+14, colorBorder)

	for i, e := range entries {
		y := top + float64(i)*spacing
		s.FillRect(x, y, swatch, swatch, e.Color)
		s.Text(e.Label, x+swatch+8, y, fontSize, render.ColorText)
	}
	if more > 0 {
		s.Text(fmt.Sprintf("+%d more", more), x, top+float64(len(entries))*spacing, fontSize, render.WithAlpha(render.ColorText, 0.6))
	}
}
