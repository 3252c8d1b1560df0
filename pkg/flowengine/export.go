package flowengine

import (
	"encoding/json"
	"fmt"
	"io"

	geojson "github.com/paulmach/go.geojson"

	"github.com/sudorandom/flowscope/pkg/graph"
	"github.com/sudorandom/flowscope/pkg/layout"
)

// ExportGeoJSON writes a snapshot as a feature collection in layout
// coordinates: one Point per node and one LineString per link. Links whose
// endpoints are not in the snapshot are left out.
func ExportGeoJSON(snap layout.Snapshot, links []graph.Link) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	pos := make(map[string][]float64, len(snap.Nodes))
	for _, n := range snap.Nodes {
		p := []float64{n.X, n.Y}
		pos[n.ID] = p
		f := geojson.NewPointFeature(p)
		f.ID = n.ID
		f.SetProperty("kind", "node")
		f.SetProperty("degree", n.Degree)
		if n.Pinned {
			f.SetProperty("pinned", true)
		}
		fc.AddFeature(f)
	}
	for _, l := range links {
		a, okA := pos[l.Source]
		b, okB := pos[l.Target]
		if !okA || !okB {
			continue
		}
		f := geojson.NewLineStringFeature([][]float64{a, b})
		f.SetProperty("kind", "link")
		f.SetProperty("source", l.Source)
		f.SetProperty("target", l.Target)
		f.SetProperty("label", l.Label)
		f.SetProperty("priority", l.Priority)
		f.SetProperty("protocol", l.Protocol)
		f.SetProperty("weight", l.Weight)
		fc.AddFeature(f)
	}
	return fc
}

// WriteGeoJSON encodes ExportGeoJSON to w.
func WriteGeoJSON(w io.Writer, snap layout.Snapshot, links []graph.Link) error {
	b, err := ExportGeoJSON(snap, links).MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal geojson: %w", err)
	}
	_, err = w.Write(b)
	return err
}

// Export is the JSON document written by ExportJSON and broadcast by the Hub.
type Export struct {
	Snapshot layout.Snapshot `json:"snapshot"`
	Links    []graph.Link    `json:"links"`
}

// ExportJSON writes the snapshot and its links as one JSON document.
func ExportJSON(w io.Writer, snap layout.Snapshot, links []graph.Link) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Export{Snapshot: snap, Links: links}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}
