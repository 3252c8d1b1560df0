package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/config"
	"github.com/sudorandom/flowscope/pkg/flowengine"
	"github.com/sudorandom/flowscope/pkg/layout"
	"github.com/sudorandom/flowscope/pkg/parcoords"
	"github.com/sudorandom/flowscope/pkg/render"
	"github.com/sudorandom/flowscope/pkg/sources"
)

var cli struct {
	config.Flags `embed:""`

	View   string   `help:"What to draw: graph or plot." enum:"graph,plot" default:"graph"`
	Format string   `help:"Output format: png, svg, geojson or json. geojson and json export the graph." enum:"png,svg,geojson,json" default:"png"`
	Output string   `short:"o" help:"Output file. Defaults to a timestamped name in the working directory; - writes to stdout."`
	Width  int      `help:"Image width." default:"1920"`
	Height int      `help:"Image height." default:"1080"`
	Brush  []string `help:"Brush a plot axis, as Axis=low:high (values on the axis). Repeatable." placeholder:"AXIS=LOW:HIGH"`
}

// parseBrush splits "DestinationPort=80:443".
func parseBrush(s string) (axis, lo, hi string, err error) {
	axis, rng, ok := strings.Cut(s, "=")
	if !ok || axis == "" {
		return "", "", "", fmt.Errorf("brush %q: expected AXIS=LOW:HIGH", s)
	}
	lo, hi, ok = strings.Cut(rng, ":")
	if !ok {
		hi = lo
	}
	return axis, lo, hi, nil
}

// settle waits for the run's terminal snapshot.
func settle(run *layout.Run) (layout.Snapshot, error) {
	var last layout.Snapshot
	for s := range run.C() {
		last = s
	}
	if !last.Done {
		return last, fmt.Errorf("layout run %d ended without a result", run.ID)
	}
	return last, nil
}

func renderPlot(res *flowengine.Result, p *flowengine.Pipeline, cfg config.Config, c parcoords.Categorizer, log *zap.SugaredLogger) ([]byte, error) {
	const margin, top, bottom = 60, 110, 60
	plot := p.Plot(res, c, flowengine.PlotOptions{
		Dimensions:    cfg.Plot.DimensionsFor(cfg.Source.Kind),
		Width:         float64(cli.Width - 2*margin),
		Height:        float64(cli.Height - top - bottom),
		BaseWidth:     cfg.Plot.BaseWidth,
		SegmentBudget: cfg.Plot.SegmentBudget,
	})
	for _, b := range cli.Brush {
		axis, lo, hi, err := parseBrush(b)
		if err != nil {
			return nil, err
		}
		if err := plot.BrushValues(axis, lo, hi); err != nil {
			return nil, err
		}
	}
	log.Infof("%d of %d lines selected", len(plot.SelectedEntities()), len(plot.Lines))
	vt := render.ViewTransform{Scale: 1, TranslateX: margin, TranslateY: top}
	return flowengine.RenderPlot(render.Format(cli.Format), cli.Width, cli.Height, plot, render.NewColorRegistry(render.NewHuePalette(2)), vt)
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("flowscope-render"),
		kong.Description("Lay out one window of telemetry and write it as an image or an export file."),
		kong.UsageOnError(),
	)
	log, err := cli.Logger()
	ctx.FatalIfErrorf(err)
	defer log.Sync()

	cfg, err := cli.Load()
	ctx.FatalIfErrorf(err)
	window, err := cfg.Source.Window()
	ctx.FatalIfErrorf(err)

	bg, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	api := sources.NewClient(cfg.Source.BaseURL, log)
	records, issues, err := api.FetchRecords(bg, cfg.Source.Kind, window.Start, window.End)
	if err != nil {
		log.Fatalf("Error fetching %s: %v", window, err)
	}
	log.Infof("Fetched %d records (%d skipped) for %s", len(records), len(issues), window)

	pipeline := flowengine.NewPipeline(layout.NewEngine(cfg.Layout, log), log)
	defer pipeline.Layout().Stop()
	res := pipeline.BuildAndLayout(bg, records, flowengine.Options{Masking: cfg.Aggregation.Masking, MaskBits: cfg.Aggregation.MaskBits})

	var data []byte
	switch {
	case cli.View == "plot" && (cli.Format == "png" || cli.Format == "svg"):
		store, err := cfg.Categories.Open(bg, api, log)
		if err != nil {
			log.Fatalf("Failed to open category store: %v", err)
		}
		defer store.Close()
		data, err = renderPlot(res, pipeline, cfg, cfg.Categories.Watchlist().Highlight(store, res.Records), log)
		if err != nil {
			log.Fatalf("Error rendering plot: %v", err)
		}
	default:
		snap, err := settle(res.Run)
		if err != nil {
			log.Fatal(err)
		}
		log.Infof("Layout finished after %d ticks (%s)", snap.Tick, snap.Reason)
		data, err = encodeGraph(snap, res, cfg)
		if err != nil {
			log.Fatalf("Error writing graph: %v", err)
		}
	}

	out := cli.Output
	if out == "" {
		out = flowengine.CaptureName(cli.View, render.Format(cli.Format), time.Now())
	}
	if err := write(out, data); err != nil {
		log.Fatal(err)
	}
	if out != "-" {
		log.Infof("Wrote %s", out)
	}
}

func encodeGraph(snap layout.Snapshot, res *flowengine.Result, cfg config.Config) ([]byte, error) {
	var b strings.Builder
	switch cli.Format {
	case "geojson":
		if err := flowengine.WriteGeoJSON(&b, snap, res.Graph.Links); err != nil {
			return nil, err
		}
		return []byte(b.String()), nil
	case "json":
		if err := flowengine.ExportJSON(&b, snap, res.Graph.Links); err != nil {
			return nil, err
		}
		return []byte(b.String()), nil
	}
	r := render.NewRenderer(cfg.Render, nil)
	minX, minY, maxX, maxY := render.Bounds(snap.Nodes)
	vt := render.Fit(minX, minY, maxX, maxY, cli.Width, cli.Height)
	return flowengine.RenderGraph(render.Format(cli.Format), cli.Width, cli.Height, r, render.Frame{Nodes: snap.Nodes, Links: res.Graph.Links}, vt)
}

func write(path string, data []byte) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	_, err := w.Write(data)
	return err
}
