package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/telemetry"
)

// Flags are the command-line options shared by every command. Unset pointer
// fields leave the file's value alone.
type Flags struct {
	Config string `help:"YAML configuration file." short:"c" type:"path"`
	Debug  bool   `help:"Enable verbose logging for debugging."`

	BaseURL  *string        `name:"base-url" help:"Data API base URL."`
	Kind     *string        `help:"Record kind: ids or firewall."`
	Start    *string        `help:"Start of the first window, local time (2006-01-02T15:04:05)."`
	Interval *time.Duration `help:"Window length."`

	Masking  *bool `help:"Aggregate source addresses into subnets (--masking=false to disable)."`
	MaskBits *int  `name:"mask-bits" help:"Prefix length used when masking."`

	SafetyTimeout    *time.Duration `name:"safety-timeout" help:"Stop a layout that has not converged after this long."`
	CollisionPadding *float64       `name:"collision-padding" help:"Extra space kept between node circles."`
	LinkDistance     *float64       `name:"link-distance" help:"Rest length of links."`
	Charge           *float64       `help:"Many-body strength; negative repels."`
	Seed             *int64         `help:"Layout seed, for reproducible placements."`
	HoverRadius      *float64       `name:"hover-radius" help:"How close the cursor must be to show a node label."`
}

// Load reads the configuration file, applies the flags and validates the result.
func (f Flags) Load() (Config, error) {
	cfg, err := Load(f.Config)
	if err != nil {
		return cfg, err
	}
	f.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Apply copies every set flag into cfg.
func (f Flags) Apply(cfg *Config) {
	set(&cfg.Source.BaseURL, f.BaseURL)
	if f.Kind != nil {
		cfg.Source.Kind = telemetry.Kind(*f.Kind)
	}
	set(&cfg.Source.Start, f.Start)
	set(&cfg.Source.Interval, f.Interval)
	set(&cfg.Aggregation.Masking, f.Masking)
	set(&cfg.Aggregation.MaskBits, f.MaskBits)
	set(&cfg.Layout.SafetyTimeout, f.SafetyTimeout)
	set(&cfg.Layout.CollisionPadding, f.CollisionPadding)
	set(&cfg.Layout.LinkDistance, f.LinkDistance)
	set(&cfg.Layout.Charge, f.Charge)
	set(&cfg.Layout.Seed, f.Seed)
	set(&cfg.Render.HoverRadius, f.HoverRadius)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Logger returns a production logger, or a development one with Debug.
func (f Flags) Logger() (*zap.SugaredLogger, error) {
	var (
		log *zap.Logger
		err error
	)
	if f.Debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log.Sugar(), nil
}
