// Package config holds the settings shared by the flowscope commands. A YAML
// file is loaded over Default, then command-line flags override single fields.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/sudorandom/flowscope/pkg/layout"
	"github.com/sudorandom/flowscope/pkg/parcoords"
	"github.com/sudorandom/flowscope/pkg/render"
	"github.com/sudorandom/flowscope/pkg/sources"
	"github.com/sudorandom/flowscope/pkg/telemetry"
	"github.com/sudorandom/flowscope/pkg/utils"
)

type Config struct {
	Source      Source         `yaml:"source"`
	Aggregation Aggregation    `yaml:"aggregation"`
	Layout      layout.Config  `yaml:"layout"`
	Render      render.Options `yaml:"render"`
	Plot        Plot           `yaml:"plot"`
	Categories  Categories     `yaml:"categories"`
	Server      Server         `yaml:"server"`
}

// Source says where records come from.
type Source struct {
	BaseURL  string         `yaml:"base_url"`
	Kind     telemetry.Kind `yaml:"kind"`
	Start    string         `yaml:"start"`
	Interval time.Duration  `yaml:"interval"`
	NATSURL  string         `yaml:"nats_url"`
	Subject  string         `yaml:"subject"`
}

// StartTime parses Start in local time. An empty Start means the dataset start.
func (s Source) StartTime() (time.Time, error) {
	if s.Start == "" {
		return sources.DatasetStart, nil
	}
	return telemetry.ParseTime(s.Start, time.Local)
}

// Window is the first analysis window described by the source settings.
func (s Source) Window() (sources.Window, error) {
	start, err := s.StartTime()
	if err != nil {
		return sources.Window{}, err
	}
	return sources.NewWindow(start, s.Interval, sources.DatasetStart, sources.DatasetEnd), nil
}

type Aggregation struct {
	Masking  bool `yaml:"masking"`
	MaskBits int  `yaml:"mask_bits"`
}

type Plot struct {
	// Dimensions overrides the default axes for the source kind.
	Dimensions []string `yaml:"dimensions"`
	// SegmentBudget is the segment count above which a warning is logged.
	SegmentBudget int     `yaml:"segment_budget"`
	BaseWidth     float64 `yaml:"base_width"`
}

// DimensionsFor returns the configured axes, or the defaults for kind.
func (p Plot) DimensionsFor(kind telemetry.Kind) []string {
	if len(p.Dimensions) > 0 {
		return p.Dimensions
	}
	return parcoords.DefaultDimensions(kind)
}

type Categories struct {
	// StorePath is a badger directory. Empty keeps the prefix table in memory.
	StorePath string `yaml:"store_path"`
	GeoIPPath string `yaml:"geoip_path"`
	CacheDir  string `yaml:"cache_dir"`
	Reserved  bool   `yaml:"reserved"`
	Cloud     bool   `yaml:"cloud"`
	RIR       bool   `yaml:"rir"`
	// Watch lists terms highlighted when they appear in a classification or label.
	Watch []string `yaml:"watch"`
}

type Server struct {
	Listen string `yaml:"listen"`
}

func Default() Config {
	return Config{
		Source: Source{
			BaseURL:  "http://localhost:8000",
			Kind:     telemetry.KindIDS,
			Interval: sources.DefaultInterval,
			Subject:  "flowscope.records",
		},
		Aggregation: Aggregation{Masking: true, MaskBits: 24},
		Layout:      layout.DefaultConfig(),
		Render:      render.DefaultOptions(),
		Plot:        Plot{SegmentBudget: 20000, BaseWidth: 1},
		Categories:  Categories{CacheDir: "data", Reserved: true},
		Server:      Server{Listen: ":8080"},
	}
}

// Load reads the YAML file at path over Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var err error
	if c.Source.Kind != "" && !c.Source.Kind.Valid() {
		err = multierr.Append(err, fmt.Errorf("unknown source kind %q", c.Source.Kind))
	}
	if c.Source.Start != "" {
		if _, perr := c.Source.StartTime(); perr != nil {
			err = multierr.Append(err, fmt.Errorf("source start: %w", perr))
		}
	}
	if c.Source.Interval < 0 {
		err = multierr.Append(err, errors.New("source interval must not be negative"))
	}
	if c.Aggregation.Masking && c.Aggregation.MaskBits != utils.ClampBits(c.Aggregation.MaskBits) {
		err = multierr.Append(err, fmt.Errorf("mask bits %d out of range [0, 32]", c.Aggregation.MaskBits))
	}
	if lerr := c.Layout.Validate(); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("layout: %w", lerr))
	}
	if c.Plot.SegmentBudget < 0 {
		err = multierr.Append(err, errors.New("segment budget must not be negative"))
	}
	if c.Plot.BaseWidth < 0 {
		err = multierr.Append(err, errors.New("base width must not be negative"))
	}
	return err
}
