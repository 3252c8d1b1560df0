package layout

import (
	"errors"
	"math"
	"time"

	"go.uber.org/multierr"
)

// Config tunes the force simulation. Zero fields are filled from DefaultConfig by Normalize.
type Config struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`

	LinkDistance     float64 `yaml:"link_distance"`
	Charge           float64 `yaml:"charge"`
	CollisionPadding float64 `yaml:"collision_padding"`
	MinRadius        float64 `yaml:"min_radius"`
	MaxRadius        float64 `yaml:"max_radius"`

	AlphaMin      float64 `yaml:"alpha_min"`
	VelocityDecay float64 `yaml:"velocity_decay"`
	Theta         float64 `yaml:"theta"`

	SafetyTimeout    time.Duration `yaml:"safety_timeout"`
	ProgressInterval time.Duration `yaml:"progress_interval"`

	// Seed drives initial placement and jiggle. Zero picks a time based seed.
	Seed int64 `yaml:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Width:            900,
		Height:           1200,
		LinkDistance:     100,
		Charge:           -50,
		CollisionPadding: 5,
		MinRadius:        8,
		MaxRadius:        20,
		AlphaMin:         0.001,
		VelocityDecay:    0.4,
		Theta:            0.9,
		SafetyTimeout:    5 * time.Second,
		ProgressInterval: 50 * time.Millisecond,
	}
}

// Normalize fills unset fields with defaults.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if c.LinkDistance <= 0 {
		c.LinkDistance = d.LinkDistance
	}
	if c.Charge == 0 {
		c.Charge = d.Charge
	}
	if c.CollisionPadding <= 0 {
		c.CollisionPadding = d.CollisionPadding
	}
	if c.MinRadius <= 0 {
		c.MinRadius = d.MinRadius
	}
	if c.MaxRadius < c.MinRadius {
		c.MaxRadius = math.Max(d.MaxRadius, c.MinRadius)
	}
	if c.AlphaMin <= 0 || c.AlphaMin >= 1 {
		c.AlphaMin = d.AlphaMin
	}
	if c.VelocityDecay <= 0 || c.VelocityDecay >= 1 {
		c.VelocityDecay = d.VelocityDecay
	}
	if c.Theta <= 0 {
		c.Theta = d.Theta
	}
	if c.SafetyTimeout <= 0 {
		c.SafetyTimeout = d.SafetyTimeout
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = d.ProgressInterval
	}
	return c
}

// Validate reports settings that Normalize would silently replace.
func (c Config) Validate() error {
	var err error
	if c.Width < 0 || c.Height < 0 {
		err = multierr.Append(err, errors.New("canvas size must not be negative"))
	}
	if c.LinkDistance < 0 {
		err = multierr.Append(err, errors.New("link distance must not be negative"))
	}
	if c.CollisionPadding < 0 {
		err = multierr.Append(err, errors.New("collision padding must not be negative"))
	}
	if c.SafetyTimeout < 0 {
		err = multierr.Append(err, errors.New("safety timeout must not be negative"))
	}
	if c.AlphaMin < 0 || c.AlphaMin >= 1 {
		err = multierr.Append(err, errors.New("alpha min must be in [0, 1)"))
	}
	return err
}

// alphaDecay cools alpha from 1 to AlphaMin in roughly 300 ticks.
func (c Config) alphaDecay() float64 {
	return 1 - math.Pow(c.AlphaMin, 1.0/300)
}

// expectedTicks is the number of ticks needed to cool from alpha to AlphaMin.
func (c Config) expectedTicks(alpha float64) int {
	if alpha <= c.AlphaMin {
		return 1
	}
	return int(math.Ceil(math.Log(c.AlphaMin/alpha)/math.Log(1-c.alphaDecay()) - 1e-9))
}
