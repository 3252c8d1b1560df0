package flowengine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/categories"
	"github.com/sudorandom/flowscope/pkg/layout"
	"github.com/sudorandom/flowscope/pkg/parcoords"
	"github.com/sudorandom/flowscope/pkg/render"
)

// Mode selects which view the engine draws.
type Mode int

const (
	ModeGraph Mode = iota
	ModePlot
)

func (m Mode) String() string {
	if m == ModePlot {
		return "plot"
	}
	return "graph"
}

const (
	plotMarginX      = 60
	plotMarginTop    = 110
	plotMarginBottom = 60
	// axisTolerance is how far (in plot units) from an axis a right-drag still starts a brush on it.
	axisTolerance = 12
	// clickExtent is the brush height below which a right-drag counts as a click and clears the brush.
	clickExtent = 3
)

type dragKind int

const (
	dragNone dragKind = iota
	dragPan
	dragNode
	dragBrush
)

type drag struct {
	kind         dragKind
	lastX, lastY float64
	node         string
	axis         string
	y0           float64
}

type EngineOptions struct {
	Width, Height int
	Title         string
	Render        render.Options
	Plot          PlotOptions
	Categories    parcoords.Categorizer
	// Watch highlights the addresses of records matching its terms in the plot.
	Watch *categories.Watchlist
	// CaptureDir receives the files written by the capture key. Empty means the working directory.
	CaptureDir string
	// Navigate is called with -1 or +1 when the analyst pages to the previous
	// or next window. It runs on its own goroutine and normally ends in Show.
	Navigate func(step int)
}

// Engine is the interactive viewer. It implements ebiten.Game: Update reads
// input and drains the current run's snapshot mailbox, Draw redraws the
// active view from scratch.
type Engine struct {
	Width, Height int

	pipeline   *Pipeline
	renderer   *render.Renderer
	plotColors *render.ColorRegistry
	opts       EngineOptions
	log        *zap.SugaredLogger

	mu           sync.Mutex
	pending      *Result
	pendingTitle string

	title   string
	result  *Result
	snap    layout.Snapshot
	hasSnap bool
	plot    *parcoords.Plot

	mode     Mode
	view     render.ViewTransform
	plotView render.ViewTransform
	moved    bool
	cursor   render.Cursor
	drag     drag

	surface *render.EbitenSurface
}

func NewEngine(p *Pipeline, opts EngineOptions, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 900
	}
	e := &Engine{
		Width:      opts.Width,
		Height:     opts.Height,
		pipeline:   p,
		renderer:   render.NewRenderer(opts.Render, nil),
		plotColors: render.NewColorRegistry(render.NewHuePalette(2)),
		opts:       opts,
		log:        log,
		title:      opts.Title,
		view:       render.Identity(),
		plotView:   render.ViewTransform{Scale: 1, TranslateX: plotMarginX, TranslateY: plotMarginTop},
	}
	if opts.Render.LinkColors == render.ColorByPriority {
		colors := e.renderer.Colors()
		colors.Set("High priority", render.ColorHighLink)
		colors.Set("Other", render.ColorLink)
	}
	return e
}

// Show replaces the displayed result. It is safe to call from any goroutine;
// the switch happens on the next Update, and snapshots of the previous run are
// no longer drawn after it.
func (e *Engine) Show(res *Result, title string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending, e.pendingTitle = res, title
}

func (e *Engine) Mode() Mode { return e.mode }

func (e *Engine) View() render.ViewTransform { return e.view }

// Snapshot returns the latest positions drawn for the current run.
func (e *Engine) Snapshot() (layout.Snapshot, bool) { return e.snap, e.hasSnap }

func (e *Engine) Update() error {
	e.adoptPending()
	e.drainSnapshots()
	e.readInput()
	return nil
}

func (e *Engine) Draw(screen *ebiten.Image) {
	if e.surface == nil {
		e.surface = render.NewEbitenSurface(screen)
	} else {
		e.surface.Reset(screen)
	}
	e.drawTo(e.surface, e.cursor)
}

func (e *Engine) Layout(w, h int) (int, int) { return e.Width, e.Height }

func (e *Engine) drawTo(s render.Surface, cur render.Cursor) {
	if e.mode == ModePlot && e.ensurePlot() {
		parcoords.Draw(s, e.plot, e.plotColors, e.plotView)
	} else {
		e.renderer.Render(s, e.frame(), e.view, cur)
	}
	DrawOverlay(s, e.overlay(), e.renderer.Options().FontSize)
}

func (e *Engine) frame() render.Frame {
	f := render.Frame{Nodes: e.snap.Nodes}
	if e.result != nil {
		f.Links = e.result.Graph.Links
	}
	return f
}

func (e *Engine) overlay() Overlay {
	o := Overlay{Title: e.title, Mode: e.mode, Progress: e.snap.Progress, Done: e.snap.Done, Reason: e.snap.Reason}
	if e.result != nil {
		o.Nodes, o.Links, o.Issues = len(e.result.Graph.Nodes), len(e.result.Graph.Links), len(e.result.Issues)
	} else {
		o.Done = true
	}
	if e.mode == ModePlot && e.plot != nil {
		o.Lines = len(e.plot.Lines)
		o.Selected = len(e.plot.SelectedEntities())
		o.Legend = e.plotColors.Legend()
	} else {
		o.Legend = e.renderer.Colors().Legend()
	}
	return o
}

func (e *Engine) adoptPending() {
	e.mu.Lock()
	res, title := e.pending, e.pendingTitle
	e.pending = nil
	e.mu.Unlock()
	if res == nil || res == e.result {
		return
	}
	e.result, e.title = res, title
	e.snap, e.hasSnap = layout.Snapshot{}, false
	e.plot = nil
	e.drag = drag{}
}

// drainSnapshots takes whatever the current run has delivered. Snapshots from
// any other run are dropped.
func (e *Engine) drainSnapshots() {
	if e.result == nil || e.result.Run == nil {
		return
	}
	run := e.result.Run
	for {
		select {
		case s, ok := <-run.C():
			if !ok {
				return
			}
			if s.Run != run.ID {
				continue
			}
			first := !e.hasSnap
			e.snap, e.hasSnap = s, true
			if !e.moved && (first || s.Done) {
				minX, minY, maxX, maxY := render.Bounds(s.Nodes)
				e.view = render.Fit(minX, minY, maxX, maxY, e.Width, e.Height)
			}
		default:
			return
		}
	}
}

func (e *Engine) ensurePlot() bool {
	if e.plot != nil {
		return true
	}
	if e.result == nil {
		return false
	}
	opts := e.opts.Plot
	opts.Width = float64(e.Width - 2*plotMarginX)
	opts.Height = float64(e.Height - plotMarginTop - plotMarginBottom)
	var c parcoords.Categorizer = e.opts.Categories
	if e.opts.Watch != nil {
		c = e.opts.Watch.Highlight(c, e.result.Records)
	}
	e.plot = e.pipeline.Plot(e.result, c, opts)
	return true
}

func (e *Engine) readInput() {
	cx, cy := ebiten.CursorPosition()
	x, y := float64(cx), float64(cy)
	e.cursor = render.Cursor{X: x, Y: y, Inside: cx >= 0 && cy >= 0 && cx < e.Width && cy < e.Height}

	if _, dy := ebiten.Wheel(); dy != 0 {
		// ebiten reports scrolling up as positive.
		e.wheel(-dy, x, y)
	}

	switch {
	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft):
		e.pressPrimary(x, y)
	case inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft):
		e.releasePrimary()
	case ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft):
		e.movePrimary(x, y)
	}
	switch {
	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonRight):
		e.pressSecondary(x, y)
	case inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonRight):
		e.releaseSecondary(x, y)
	case ebiten.IsMouseButtonPressed(ebiten.MouseButtonRight):
		e.moveSecondary(x, y)
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		e.toggleMode()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		e.clearBrushes()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		e.capture(time.Now())
	}
	if e.opts.Navigate != nil {
		if inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft) {
			go e.opts.Navigate(-1)
		}
		if inpututil.IsKeyJustPressed(ebiten.KeyArrowRight) {
			go e.opts.Navigate(1)
		}
	}
}

func (e *Engine) activeView() *render.ViewTransform {
	if e.mode == ModePlot {
		return &e.plotView
	}
	return &e.view
}

// wheel zooms around the cursor. deltaY follows the DOM convention: positive scrolls down.
func (e *Engine) wheel(deltaY, x, y float64) {
	v := e.activeView()
	*v = v.Wheel(deltaY, x, y)
	e.moved = true
}

func (e *Engine) pressPrimary(x, y float64) {
	e.drag = drag{kind: dragPan, lastX: x, lastY: y}
	if e.mode != ModeGraph || !e.hasSnap {
		return
	}
	id, ok := e.renderer.HitTest(e.snap.Nodes, e.view, x, y)
	if !ok {
		return
	}
	e.drag = drag{kind: dragNode, node: id, lastX: x, lastY: y}
	e.pinAt(id, x, y)
}

func (e *Engine) movePrimary(x, y float64) {
	switch e.drag.kind {
	case dragPan:
		v := e.activeView()
		*v = v.Pan(x-e.drag.lastX, y-e.drag.lastY)
		e.moved = true
	case dragNode:
		e.pinAt(e.drag.node, x, y)
	default:
		return
	}
	e.drag.lastX, e.drag.lastY = x, y
}

func (e *Engine) releasePrimary() {
	if e.drag.kind == dragNode && e.result != nil {
		e.result.Run.Unpin(e.drag.node)
	}
	e.drag = drag{}
}

// pinAt holds a node under the screen position and moves it there locally so
// the drag feels immediate.
func (e *Engine) pinAt(id string, sx, sy float64) {
	if e.result == nil {
		return
	}
	wx, wy := e.view.Invert(sx, sy)
	if !e.result.Run.Pin(id, wx, wy) {
		e.reheat(id, wx, wy)
	}
	for i := range e.snap.Nodes {
		if e.snap.Nodes[i].ID == id {
			// Snapshots are shared; copy before editing.
			nodes := append([]layout.NodePosition(nil), e.snap.Nodes...)
			nodes[i].X, nodes[i].Y, nodes[i].Pinned = wx, wy, true
			e.snap.Nodes = nodes
			return
		}
	}
}

// reheat restarts a settled layout with id held at (wx, wy). The view stays
// where it is while the graph moves.
func (e *Engine) reheat(id string, wx, wy float64) {
	res := e.pipeline.Reheat(context.Background(), e.result, map[string]layout.Point{id: {X: wx, Y: wy}})
	if res == nil {
		return
	}
	e.result = res
	e.moved = true
}

func (e *Engine) pressSecondary(x, y float64) {
	if e.mode != ModePlot || !e.ensurePlot() {
		return
	}
	px, py := e.plotView.Invert(x, y)
	i, ok := e.plot.AxisAt(px, axisTolerance)
	if !ok {
		return
	}
	e.drag = drag{kind: dragBrush, axis: e.plot.Axes[i].Name, y0: py}
}

func (e *Engine) moveSecondary(x, y float64) {
	if e.drag.kind != dragBrush {
		return
	}
	_, py := e.plotView.Invert(x, y)
	if math.Abs(py-e.drag.y0) < clickExtent {
		return
	}
	if err := e.plot.SetBrush(e.drag.axis, e.drag.y0, py); err != nil {
		e.log.Warnf("Brush on %s: %v", e.drag.axis, err)
	}
}

func (e *Engine) releaseSecondary(x, y float64) {
	if e.drag.kind != dragBrush {
		return
	}
	_, py := e.plotView.Invert(x, y)
	if math.Abs(py-e.drag.y0) < clickExtent {
		e.plot.ClearBrush(e.drag.axis)
	} else if err := e.plot.SetBrush(e.drag.axis, e.drag.y0, py); err != nil {
		e.log.Warnf("Brush on %s: %v", e.drag.axis, err)
	}
	e.drag = drag{}
}

func (e *Engine) toggleMode() {
	if e.mode == ModeGraph {
		e.mode = ModePlot
	} else {
		e.mode = ModeGraph
	}
	e.drag = drag{}
}

func (e *Engine) clearBrushes() {
	if e.plot != nil {
		e.plot.ClearBrushes()
	}
}

// capture renders the current view to a PNG in the background.
func (e *Engine) capture(ts time.Time) {
	var (
		data []byte
		err  error
	)
	if e.mode == ModePlot && e.ensurePlot() {
		data, err = RenderPlot(render.FormatPNG, e.Width, e.Height, e.plot, e.plotColors, e.plotView)
	} else {
		data, err = RenderGraph(render.FormatPNG, e.Width, e.Height, e.renderer, e.frame(), e.view)
	}
	if err != nil {
		e.log.Errorf("Error capturing frame: %v", err)
		return
	}
	dir := e.opts.CaptureDir
	if dir == "" {
		dir = "."
	}
	writeCapture(dir, CaptureName(e.mode.String(), render.FormatPNG, ts), data, e.log)
}
