package render

import (
	"image/color"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sudorandom/flowscope/pkg/graph"
	"github.com/sudorandom/flowscope/pkg/layout"
)

var (
	red   = color.RGBA{255, 0, 0, 255}
	green = color.RGBA{0, 255, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
)

func fixedRegistry() *ColorRegistry {
	return NewColorRegistry(&FixedPalette{Colors: []color.RGBA{red, green, blue}})
}

func testFrame() Frame {
	return Frame{
		Nodes: []layout.NodePosition{
			{ID: "10.0.0.1", X: 0, Y: 0, Degree: 3},
			{ID: "10.0.0.5", X: 100, Y: 0, Degree: 12},
			{ID: "10.0.0.9", X: 0, Y: 100, Degree: 1},
		},
		Links: []graph.Link{
			{Source: "10.0.0.1", Target: "10.0.0.5", Label: "HTTP", Priority: 3, Weight: 1000},
			{Source: "10.0.0.1", Target: "10.0.0.5", Label: "DNS", Priority: 1, Weight: 1000},
			{Source: "10.0.0.9", Target: "10.0.0.5", Label: "HTTP", Priority: 3, Weight: 1000},
		},
	}
}

func TestRenderEmpty(t *testing.T) {
	rec := NewRecorder(200, 100)
	r := NewRenderer(DefaultOptions(), fixedRegistry())
	st := r.Render(rec, Frame{Links: []graph.Link{{Source: "a", Target: "b"}}}, Identity(), Cursor{})
	if len(rec.Ops) != 1 || rec.Ops[0].Kind != "clear" {
		t.Errorf("empty frame should only clear, got %+v", rec.Ops)
	}
	if st.Nodes != 0 || st.SkippedLinks != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestRenderClearsEachFrame(t *testing.T) {
	rec := NewRecorder(200, 200)
	r := NewRenderer(DefaultOptions(), fixedRegistry())
	r.Render(rec, testFrame(), Identity(), Cursor{})
	first := len(rec.Ops)
	r.Render(rec, testFrame(), Identity(), Cursor{})
	if len(rec.Ops) != first {
		t.Errorf("second frame accumulated ops: %d then %d", first, len(rec.Ops))
	}
	if rec.Ops[0].Kind != "clear" {
		t.Errorf("frame should start with a clear")
	}
}

func TestRenderSubSegments(t *testing.T) {
	rec := NewRecorder(200, 200)
	r := NewRenderer(DefaultOptions(), fixedRegistry())
	st := r.Render(rec, testFrame(), Identity(), Cursor{})
	if st.Links != 3 || st.Segments != 3 || st.SkippedLinks != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}

	var lines []Op
	for _, op := range rec.Ops {
		if op.Kind == "line" {
			lines = append(lines, op)
		}
	}
	// The two links between .1 and .5 split the segment in half, each in its label's color.
	if lines[0].X0 != 0 || lines[0].X1 != 50 || lines[1].X0 != 50 || lines[1].X1 != 100 {
		t.Errorf("sub-segments not divided proportionally: %+v %+v", lines[0], lines[1])
	}
	if lines[0].Color != red || lines[1].Color != green || lines[2].Color != red {
		t.Errorf("link colors = %v %v %v", lines[0].Color, lines[1].Color, lines[2].Color)
	}
	if lines[1].Width <= lines[0].Width {
		t.Errorf("high priority link should be wider")
	}
}

func TestRenderPriorityColors(t *testing.T) {
	rec := NewRecorder(200, 200)
	opts := DefaultOptions()
	opts.LinkColors = ColorByPriority
	NewRenderer(opts, fixedRegistry()).Render(rec, testFrame(), Identity(), Cursor{})
	var colors []color.RGBA
	for _, op := range rec.Ops {
		if op.Kind == "line" {
			colors = append(colors, op.Color)
		}
	}
	if diff := cmp.Diff([]color.RGBA{ColorLink, ColorHighLink, ColorLink}, colors); diff != "" {
		t.Errorf("priority colors (-want +got):\n%s", diff)
	}
}

func TestRenderSkipsDanglingLinks(t *testing.T) {
	f := testFrame()
	f.Links = append(f.Links, graph.Link{Source: "10.0.0.1", Target: "192.0.2.1"})
	st := NewRenderer(DefaultOptions(), nil).Render(NewRecorder(10, 10), f, Identity(), Cursor{})
	if st.SkippedLinks != 1 || st.Nodes != 3 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestRenderLabelPolicy(t *testing.T) {
	r := NewRenderer(DefaultOptions(), fixedRegistry())

	rec := NewRecorder(400, 400)
	st := r.Render(rec, testFrame(), Identity(), Cursor{})
	if diff := cmp.Diff([]string{"10.0.0.5"}, rec.Texts()); diff != "" {
		t.Errorf("without hover only high-degree labels are drawn (-want +got):\n%s", diff)
	}
	if st.HoveredNode != "" {
		t.Errorf("nothing should be hovered")
	}

	// Zoomed in 2x and panned: node 10.0.0.9 at world (0, 100) is at screen (10, 210).
	vt := ViewTransform{Scale: 2, TranslateX: 10, TranslateY: 10}
	rec = NewRecorder(400, 400)
	st = r.Render(rec, testFrame(), vt, Cursor{X: 30, Y: 230, Inside: true})
	if st.HoveredNode != "10.0.0.9" {
		t.Fatalf("HoveredNode = %q, want 10.0.0.9", st.HoveredNode)
	}
	// The cursor maps to world (10, 110), about 14 units from the node.
	found := false
	for _, op := range rec.Ops {
		if op.Kind == "text" && op.Text == "10.0.0.9" {
			found = true
			if op.Size != DefaultOptions().FontSize {
				t.Errorf("hover label should be drawn in screen space at font size, got %v", op.Size)
			}
		}
		if op.Kind == "text" && op.Text == "10.0.0.5" && op.Size != 2*DefaultOptions().FontSize {
			t.Errorf("high-degree label should scale with the view, got %v", op.Size)
		}
	}
	if !found {
		t.Errorf("hover label not drawn: %v", rec.Texts())
	}

	// Far from every node.
	st = r.Render(NewRecorder(400, 400), testFrame(), vt, Cursor{X: 390, Y: 390, Inside: true})
	if st.HoveredNode != "" {
		t.Errorf("unexpected hover on %s", st.HoveredNode)
	}
}

func TestRenderLinkHoverLabels(t *testing.T) {
	r := NewRenderer(DefaultOptions(), fixedRegistry())
	rec := NewRecorder(400, 400)
	// The cursor sits over the midpoint of the shared .1-.5 line, touching both halves.
	st := r.Render(rec, testFrame(), Identity(), Cursor{X: 50, Y: 4, Inside: true})
	if diff := cmp.Diff([]string{"HTTP", "DNS"}, st.HoveredLinks); diff != "" {
		t.Errorf("hovered link labels (-want +got):\n%s", diff)
	}
	var ys []float64
	for _, op := range rec.Ops {
		if op.Kind == "text" && (op.Text == "HTTP" || op.Text == "DNS") {
			ys = append(ys, op.Y0)
		}
	}
	if len(ys) != 2 || ys[1]-ys[0] != 18 {
		t.Errorf("link labels should stack 18px apart, got %v", ys)
	}
}

func TestHitTest(t *testing.T) {
	r := NewRenderer(DefaultOptions(), nil)
	f := testFrame()
	vt := ViewTransform{Scale: 2, TranslateX: 10, TranslateY: 10}
	if id, ok := r.HitTest(f.Nodes, vt, 212, 12); !ok || id != "10.0.0.5" {
		t.Errorf("HitTest = %q, %v", id, ok)
	}
	if _, ok := r.HitTest(f.Nodes, vt, 110, 110); ok {
		t.Errorf("HitTest on empty space should miss")
	}
}

func TestDegreeBuckets(t *testing.T) {
	tests := []struct {
		degree, bucket int
	}{
		{0, 0}, {4, 0}, {5, 1}, {9, 1}, {10, 2}, {19, 2}, {20, 3}, {49, 3}, {50, 4}, {500, 4},
	}
	for _, tt := range tests {
		if got := DegreeBucket(tt.degree); got != tt.bucket {
			t.Errorf("DegreeBucket(%d) = %d, want %d", tt.degree, got, tt.bucket)
		}
	}
	if BucketRadius(0, 4, 12) != 4 || BucketRadius(100, 4, 12) != 12 {
		t.Errorf("bucket radius should span [min, max]")
	}
}

func TestSegmentDistance(t *testing.T) {
	tests := []struct {
		px, py, want float64
	}{
		{5, 3, 3},
		{-4, 3, 5},
		{13, 4, 5},
	}
	for _, tt := range tests {
		if got := SegmentDistance(tt.px, tt.py, 0, 0, 10, 0); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("SegmentDistance(%v, %v) = %v, want %v", tt.px, tt.py, got, tt.want)
		}
	}
	if got := SegmentDistance(3, 4, 0, 0, 0, 0); got != 5 {
		t.Errorf("degenerate segment distance = %v", got)
	}
}

func TestColorRegistry(t *testing.T) {
	reg := fixedRegistry()
	if reg.Color("a") != red || reg.Color("b") != green || reg.Color("a") != red {
		t.Errorf("registry should hand out palette colors once per label")
	}
	reg.Set("c", blue)
	legend := reg.Legend()
	if len(legend) != 3 || legend[2].Label != "c" || legend[2].Color != blue {
		t.Errorf("unexpected legend %+v", legend)
	}

	// Registries are independent.
	other := fixedRegistry()
	if other.Color("b") != red {
		t.Errorf("registries leak state")
	}
}

func TestHuePaletteSpacing(t *testing.T) {
	p := NewHuePalette(9)
	for i := 0; i < 6; i++ {
		p.Next()
	}
	for i := range p.used {
		for j := i + 1; j < len(p.used); j++ {
			if d := hueDistance(p.used[i], p.used[j]); d < p.MinDistance {
				t.Errorf("hues %v and %v only %v apart", p.used[i], p.used[j], d)
			}
		}
	}
	// The wheel is full; further colors must still be produced.
	for i := 0; i < 50; i++ {
		p.Next()
	}
	if len(p.used) != 56 {
		t.Errorf("palette stopped producing colors")
	}
}

func TestHSL(t *testing.T) {
	tests := []struct {
		h    float64
		want color.RGBA
	}{
		{0, color.RGBA{255, 0, 0, 255}},
		{120, color.RGBA{0, 255, 0, 255}},
		{240, color.RGBA{0, 0, 255, 255}},
		{-120, color.RGBA{0, 0, 255, 255}},
	}
	for _, tt := range tests {
		if got := HSL(tt.h, 1, 0.5); got != tt.want {
			t.Errorf("HSL(%v) = %v, want %v", tt.h, got, tt.want)
		}
	}
}
