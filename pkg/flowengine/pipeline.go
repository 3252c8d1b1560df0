// Package flowengine ties ingestion, aggregation, graph building, layout and
// rendering together. It provides the interactive ebiten view, the snapshot hub
// served to browsers, and headless capture and export.
package flowengine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/aggregate"
	"github.com/sudorandom/flowscope/pkg/graph"
	"github.com/sudorandom/flowscope/pkg/layout"
	"github.com/sudorandom/flowscope/pkg/parcoords"
	"github.com/sudorandom/flowscope/pkg/telemetry"
)

// maxLoggedIssues caps how many data-quality issues are logged one by one per build.
const maxLoggedIssues = 20

// Options controls how records are reduced before layout.
type Options struct {
	Masking  bool
	MaskBits int
}

// Result is one built window: the graph, the groups it came from when masking
// is on, and the layout run computing its positions.
type Result struct {
	Records []telemetry.Record
	Groups  []*aggregate.Group
	Graph   *graph.Graph
	Run     *layout.Run
	Issues  []telemetry.Issue
	Options Options
	// Reused is set when the call matched the previous one and nothing was rebuilt.
	Reused bool
}

// Entities converts the result into parallel-coordinates entities, one per
// group when masking is on and one per record otherwise.
func (r *Result) Entities(c parcoords.Categorizer) []parcoords.Entity {
	if r.Options.Masking {
		return parcoords.FromGroups(r.Groups, c)
	}
	return parcoords.FromRecords(r.Records, c)
}

type memoKey struct {
	data     *telemetry.Record
	n        int
	masking  bool
	maskBits int
}

func keyFor(records []telemetry.Record, opts Options) memoKey {
	k := memoKey{n: len(records), masking: opts.Masking, maskBits: opts.MaskBits}
	if len(records) > 0 {
		k.data = &records[0]
	}
	return k
}

// Pipeline runs Aggregate, Build and the layout engine in order, remembering
// the last input so repeated calls with the same slice and options are free.
type Pipeline struct {
	layout *layout.Engine
	log    *zap.SugaredLogger

	mu   sync.Mutex
	key  memoKey
	last *Result
}

func NewPipeline(engine *layout.Engine, log *zap.SugaredLogger) *Pipeline {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{layout: engine, log: log}
}

func (p *Pipeline) Layout() *layout.Engine { return p.layout }

// BuildAndLayout builds the graph for records and starts a layout run for it.
// When records is the same slice as last time and opts are unchanged, the
// previous result is returned with Reused set and the running layout is kept.
// Nodes that survive from the previous window start where they ended.
func (p *Pipeline) BuildAndLayout(ctx context.Context, records []telemetry.Record, opts Options) *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := keyFor(records, opts)
	if p.last != nil && key == p.key && p.layout.Current() == p.last.Run {
		reused := *p.last
		reused.Reused = true
		return &reused
	}

	res := &Result{Records: records, Options: opts}
	entities := graph.Entities{Records: records, Grouped: opts.Masking}
	if opts.Masking {
		agg := aggregate.Aggregate(records, opts.MaskBits)
		entities.Groups = agg.Groups
		res.Groups = agg.Groups
		res.Issues = append(res.Issues, agg.Issues...)
	}
	g := graph.Build(entities)
	res.Graph = g
	res.Issues = append(res.Issues, g.Issues...)
	p.logIssues(res.Issues)

	in := layout.Input{Nodes: g.Nodes, Links: g.Links, Initial: p.previousPositions()}
	res.Run = p.layout.Run(ctx, in)
	p.log.Infof("Built graph from %d records: %d nodes, %d links (masking=%v, bits=%d)",
		len(records), len(g.Nodes), len(g.Links), opts.Masking, opts.MaskBits)

	p.key, p.last = key, res
	return res
}

// Reheat restarts the finished layout of res from its final positions, with
// pinned held in place, the way a settled graph comes back to life when a node
// is dragged. It returns nil when res is still running, was cancelled, or is no
// longer the latest build.
func (p *Pipeline) Reheat(ctx context.Context, res *Result, pinned map[string]layout.Point) *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res == nil || p.last == nil || p.last.Run != res.Run {
		return nil
	}
	snap, ok := res.Run.Terminal()
	if !ok {
		return nil
	}
	next := *p.last
	next.Reused = false
	next.Run = p.layout.Run(ctx, layout.Input{
		Nodes:   res.Graph.Nodes,
		Links:   res.Graph.Links,
		Initial: positions(snap),
		Pinned:  pinned,
		Alpha:   layout.DragAlpha,
	})
	p.log.Debugf("Reheating layout run %d as run %d", res.Run.ID, next.Run.ID)
	p.last = &next
	return &next
}

func (p *Pipeline) previousPositions() map[string]layout.Point {
	if p.last == nil || p.last.Run == nil {
		return nil
	}
	snap, ok := p.last.Run.Terminal()
	if !ok {
		return nil
	}
	return positions(snap)
}

func positions(snap layout.Snapshot) map[string]layout.Point {
	pos := make(map[string]layout.Point, len(snap.Nodes))
	for _, n := range snap.Nodes {
		pos[n.ID] = layout.Point{X: n.X, Y: n.Y}
	}
	return pos
}

func (p *Pipeline) logIssues(issues []telemetry.Issue) {
	for i, is := range issues {
		if i == maxLoggedIssues {
			p.log.Warnf("... and %d more data-quality issues", len(issues)-i)
			return
		}
		p.log.Warnf("Skipped %s", is)
	}
}

// PlotOptions sizes a parallel-coordinates plot.
type PlotOptions struct {
	Dimensions    []string
	Width, Height float64
	BaseWidth     float64
	// SegmentBudget is the segment count above which a warning is logged. Zero disables it.
	SegmentBudget int
}

// Plot lays out res as parallel coordinates.
func (p *Pipeline) Plot(res *Result, c parcoords.Categorizer, opts PlotOptions) *parcoords.Plot {
	dims := opts.Dimensions
	if len(dims) == 0 {
		kind := telemetry.KindIDS
		if len(res.Records) > 0 {
			kind = res.Records[0].Kind
		}
		dims = parcoords.DefaultDimensions(kind)
	}
	plot := parcoords.Layout(res.Entities(c), dims, opts.Width, opts.Height)
	plot.SetBaseWidth(opts.BaseWidth)
	if st := plot.Stats(); opts.SegmentBudget > 0 && st.Segments > opts.SegmentBudget {
		p.log.Warnf("Parallel coordinates need %d segments for %d lines (budget %d, largest fan-out %d); consider a wider mask",
			st.Segments, st.Lines, opts.SegmentBudget, st.MaxFanOut)
	}
	return plot
}
