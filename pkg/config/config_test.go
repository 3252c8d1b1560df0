package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/sudorandom/flowscope/pkg/render"
	"github.com/sudorandom/flowscope/pkg/telemetry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowscope.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverDefaults(t *testing.T) {
	path := writeConfig(t, `
source:
  kind: firewall
  start: "2012-04-06T17:40:00"
  interval: 10m
aggregation:
  masking: false
layout:
  charge: -80
  safety_timeout: 2s
render:
  hover_radius: 30
  link_colors: priority
plot:
  dimensions: [SourceIP, DestinationPort]
categories:
  watch: [scan, trojan]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	want := Default()
	want.Source.Kind = telemetry.KindFirewall
	want.Source.Start = "2012-04-06T17:40:00"
	want.Source.Interval = 10 * time.Minute
	want.Aggregation.Masking = false
	want.Layout.Charge = -80
	want.Layout.SafetyTimeout = 2 * time.Second
	want.Render.HoverRadius = 30
	want.Render.LinkColors = render.ColorByPriority
	want.Plot.Dimensions = []string{"SourceIP", "DestinationPort"}
	want.Categories.Watch = []string{"scan", "trojan"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load (-want +got):\n%s", diff)
	}

	w, err := cfg.Source.Window()
	if err != nil {
		t.Fatal(err)
	}
	if w.Interval != 10*time.Minute || w.Start.Hour() != 17 || w.Start.Minute() != 40 {
		t.Errorf("Window = %v", w)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(\"\") (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
	if _, err := Load(writeConfig(t, "layout: [not, a, map]")); err == nil {
		t.Errorf("expected an error for a malformed file")
	}
	if _, err := Load(writeConfig(t, "render:\n  link_colors: rainbow\n")); err == nil {
		t.Errorf("expected an error for an unknown link color mode")
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Source.Kind = "netflow"
	cfg.Source.Start = "yesterday"
	cfg.Aggregation.MaskBits = 40
	cfg.Layout.CollisionPadding = -1
	cfg.Plot.SegmentBudget = -5

	err := cfg.Validate()
	if got := len(multierr.Errors(err)); got != 5 {
		t.Errorf("expected 5 errors, got %d: %v", got, err)
	}

	cfg = Default()
	cfg.Aggregation.Masking = false
	cfg.Aggregation.MaskBits = 40
	if err := cfg.Validate(); err != nil {
		t.Errorf("mask bits are ignored without masking: %v", err)
	}
}

func TestDimensionsFor(t *testing.T) {
	var p Plot
	if got := p.DimensionsFor(telemetry.KindFirewall); len(got) != 5 {
		t.Errorf("firewall defaults = %v", got)
	}
	p.Dimensions = []string{"Label"}
	if diff := cmp.Diff([]string{"Label"}, p.DimensionsFor(telemetry.KindIDS)); diff != "" {
		t.Errorf("DimensionsFor (-want +got):\n%s", diff)
	}
}
