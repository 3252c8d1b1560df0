package main

import (
	"context"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hajimehoshi/ebiten/v2"
	_ "github.com/silbinarywolf/preferdiscretegpu"
	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/config"
	"github.com/sudorandom/flowscope/pkg/flowengine"
	"github.com/sudorandom/flowscope/pkg/layout"
	"github.com/sudorandom/flowscope/pkg/sources"
)

var cli struct {
	config.Flags `embed:""`

	Width        int    `help:"Internal rendering width." default:"1280"`
	Height       int    `help:"Internal rendering height." default:"900"`
	WindowWidth  int    `name:"window-width" help:"Initial window width." default:"1280"`
	WindowHeight int    `name:"window-height" help:"Initial window height." default:"900"`
	TPS          int    `help:"Ticks per second (engine updates)." default:"60"`
	CaptureDir   string `name:"capture-dir" help:"Where the P key writes screenshots." default:"captures"`
}

// viewer pages the engine through the dataset one window at a time.
type viewer struct {
	api      *sources.Client
	pipeline *flowengine.Pipeline
	engine   *flowengine.Engine
	cfg      config.Config
	log      *zap.SugaredLogger

	mu     sync.Mutex
	window sources.Window
}

// show fetches the window's records and hands their layout to the engine.
func (v *viewer) show(w sources.Window) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	records, issues, err := v.api.FetchRecords(ctx, v.cfg.Source.Kind, w.Start, w.End)
	if err != nil {
		v.log.Errorf("Error fetching %s: %v", w, err)
		return
	}
	if len(issues) > 0 {
		v.log.Warnf("Skipped %d undecodable records in %s", len(issues), w)
	}
	opts := flowengine.Options{Masking: v.cfg.Aggregation.Masking, MaskBits: v.cfg.Aggregation.MaskBits}
	res := v.pipeline.BuildAndLayout(context.Background(), records, opts)
	v.engine.Show(res, w.String())
}

func (v *viewer) navigate(step int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	next := v.window
	switch {
	case step > 0:
		next = v.window.Forward()
	case step < 0:
		next = v.window.Backward()
	}
	if step != 0 && next.Start.Equal(v.window.Start) {
		return
	}
	v.window = next
	v.show(next)
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("flowscope-viewer"),
		kong.Description("Interactive viewer for network security telemetry: force-directed host graph and parallel coordinates."),
		kong.UsageOnError(),
	)
	log, err := cli.Logger()
	ctx.FatalIfErrorf(err)
	defer log.Sync()

	cfg, err := cli.Load()
	ctx.FatalIfErrorf(err)
	window, err := cfg.Source.Window()
	ctx.FatalIfErrorf(err)

	api := sources.NewClient(cfg.Source.BaseURL, log)
	store, err := cfg.Categories.Open(context.Background(), api, log)
	if err != nil {
		log.Fatalf("Failed to open category store: %v", err)
	}
	defer store.Close()

	pipeline := flowengine.NewPipeline(layout.NewEngine(cfg.Layout, log), log)
	defer pipeline.Layout().Stop()

	v := &viewer{api: api, pipeline: pipeline, cfg: cfg, log: log, window: window}
	v.engine = flowengine.NewEngine(pipeline, flowengine.EngineOptions{
		Width:  cli.Width,
		Height: cli.Height,
		Title:  window.String(),
		Render: cfg.Render,
		Plot: flowengine.PlotOptions{
			Dimensions:    cfg.Plot.DimensionsFor(cfg.Source.Kind),
			BaseWidth:     cfg.Plot.BaseWidth,
			SegmentBudget: cfg.Plot.SegmentBudget,
		},
		Categories: store,
		Watch:      cfg.Categories.Watchlist(),
		CaptureDir: cli.CaptureDir,
		Navigate:   v.navigate,
	}, log)

	go v.navigate(0)

	ebiten.SetTPS(cli.TPS)
	ebiten.SetWindowSize(cli.WindowWidth, cli.WindowHeight)
	ebiten.SetWindowTitle("flowscope")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(v.engine); err != nil {
		log.Fatal(err)
	}
}
