package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/sudorandom/flowscope/pkg/config"
	"github.com/sudorandom/flowscope/pkg/flowengine"
	"github.com/sudorandom/flowscope/pkg/layout"
	"github.com/sudorandom/flowscope/pkg/sources"
	"github.com/sudorandom/flowscope/pkg/telemetry"
)

var cli struct {
	config.Flags `embed:""`

	Listen  *string       `help:"HTTP listen address."`
	NATSURL *string       `name:"nats-url" help:"NATS server to read live records from. Empty disables the live feed."`
	Subject *string       `help:"NATS subject carrying one JSON record per message."`
	Flush   time.Duration `help:"How often a changed live window is laid out again." default:"10s"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("flowscope-server"),
		kong.Description("Stream force-directed layouts of network security telemetry to browsers over websockets."),
		kong.UsageOnError(),
	)
	log, err := cli.Logger()
	ctx.FatalIfErrorf(err)
	defer log.Sync()

	cfg, err := cli.Load()
	ctx.FatalIfErrorf(err)
	if cli.Listen != nil {
		cfg.Server.Listen = *cli.Listen
	}
	if cli.NATSURL != nil {
		cfg.Source.NATSURL = *cli.NATSURL
	}
	if cli.Subject != nil {
		cfg.Source.Subject = *cli.Subject
	}
	window, err := cfg.Source.Window()
	ctx.FatalIfErrorf(err)

	bg, stop := context.WithCancel(context.Background())
	defer stop()

	api := sources.NewClient(cfg.Source.BaseURL, log)
	pipeline := flowengine.NewPipeline(layout.NewEngine(cfg.Layout, log), log)
	defer pipeline.Layout().Stop()
	opts := flowengine.Options{Masking: cfg.Aggregation.Masking, MaskBits: cfg.Aggregation.MaskBits}
	hub := flowengine.NewHub(pipeline, api, cfg.Source.Kind, opts, log)

	if cfg.Source.NATSURL != "" {
		live := sources.NewLive(cfg.Source.Subject, cfg.Source.Kind, cfg.Source.Interval, log)
		if err := live.Connect(cfg.Source.NATSURL); err != nil {
			log.Fatalf("Failed to start live feed: %v", err)
		}
		defer live.Close()
		go live.Run(bg, cli.Flush, func(records []telemetry.Record) {
			res := hub.Publish(bg, records, opts)
			log.Infof("Live window: %d records, run %d, %d dropped so far", len(records), res.Run.ID, live.Dropped())
		})
	} else {
		go func() {
			records, _, err := api.FetchRecords(bg, cfg.Source.Kind, window.Start, window.End)
			if err != nil {
				log.Warnf("Error fetching initial window %s: %v", window, err)
				return
			}
			hub.Publish(bg, records, opts)
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           hub.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("HTTP server starting on %s", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infof("Server shutting down...")
	stop()

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdown); err != nil {
		log.Warnf("HTTP shutdown: %v", err)
	}
	log.Infof("Server exited.")
}
