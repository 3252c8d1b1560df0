package flowengine

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sudorandom/flowscope/pkg/graph"
	"github.com/sudorandom/flowscope/pkg/layout"
	"github.com/sudorandom/flowscope/pkg/render"
)

func exportFixture() (layout.Snapshot, []graph.Link) {
	snap := layout.Snapshot{
		Run: 3, Tick: 120, Progress: 100, Done: true, Reason: layout.Converged,
		Nodes: []layout.NodePosition{
			{ID: "10.0.0.0", X: 10, Y: 20, Degree: 2, Pinned: true},
			{ID: "172.23.0.10", X: 110, Y: 20, Degree: 1},
		},
	}
	links := []graph.Link{
		{Source: "10.0.0.0", Target: "172.23.0.10", Priority: 1, Weight: 3000, Label: "Attempted Recon", Protocol: "TCP"},
		{Source: "10.0.0.0", Target: "172.23.0.99", Priority: 3, Label: "HTTP"},
	}
	return snap, links
}

func TestExportGeoJSON(t *testing.T) {
	snap, links := exportFixture()
	fc := ExportGeoJSON(snap, links)
	if len(fc.Features) != 3 {
		t.Fatalf("expected 2 points and 1 line, got %d features", len(fc.Features))
	}

	node := fc.Features[0]
	if !node.Geometry.IsPoint() || node.ID != "10.0.0.0" {
		t.Errorf("first feature should be the first node, got %+v", node)
	}
	if diff := cmp.Diff([]float64{10, 20}, node.Geometry.Point); diff != "" {
		t.Errorf("point (-want +got):\n%s", diff)
	}
	if pinned, _ := node.PropertyBool("pinned"); !pinned {
		t.Errorf("pinned node should carry the pinned property")
	}

	line := fc.Features[2]
	if !line.Geometry.IsLineString() {
		t.Fatalf("expected a LineString, got %s", line.Geometry.Type)
	}
	if diff := cmp.Diff([][]float64{{10, 20}, {110, 20}}, line.Geometry.LineString); diff != "" {
		t.Errorf("line (-want +got):\n%s", diff)
	}
	if label, _ := line.PropertyString("label"); label != "Attempted Recon" {
		t.Errorf("label = %q", label)
	}

	var buf bytes.Buffer
	if err := WriteGeoJSON(&buf, snap, links); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"FeatureCollection"`) {
		t.Errorf("unexpected GeoJSON: %s", buf.String())
	}
}

func TestExportJSON(t *testing.T) {
	snap, links := exportFixture()
	var buf bytes.Buffer
	if err := ExportJSON(&buf, snap, links); err != nil {
		t.Fatal(err)
	}
	var got Export
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Export{Snapshot: snap, Links: links}, got); diff != "" {
		t.Errorf("ExportJSON (-want +got):\n%s", diff)
	}
}

func TestRenderHeadless(t *testing.T) {
	snap, links := exportFixture()
	r := render.NewRenderer(render.DefaultOptions(), nil)
	frame := render.Frame{Nodes: snap.Nodes, Links: links}
	vt := render.Fit(10, 20, 110, 20.5, 400, 300)

	png, err := RenderGraph(render.FormatPNG, 400, 300, r, frame, vt)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("expected a PNG header")
	}

	svg, err := RenderGraph(render.FormatSVG, 400, 300, r, frame, vt)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(svg, []byte("<svg")) {
		t.Errorf("expected an SVG document")
	}

	if _, err := RenderGraph("gif", 400, 300, r, frame, vt); err == nil {
		t.Errorf("expected an error for an unsupported format")
	}
}

func TestCaptureName(t *testing.T) {
	ts := time.Date(2012, 4, 6, 17, 40, 5, 0, time.UTC)
	if got := CaptureName("plot", render.FormatSVG, ts); got != "flowscope-plot-20120406-174005.svg" {
		t.Errorf("CaptureName = %q", got)
	}
}
