package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sudorandom/flowscope/pkg/telemetry"
)

func ptr[T any](v T) *T { return &v }

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
aggregation:
  masking: true
  mask_bits: 16
layout:
  charge: -80
`)
	f := Flags{
		Config:           path,
		Kind:             ptr("firewall"),
		Masking:          ptr(false),
		SafetyTimeout:    ptr(2 * time.Second),
		CollisionPadding: ptr(8.0),
		HoverRadius:      ptr(40.0),
	}
	cfg, err := f.Load()
	if err != nil {
		t.Fatal(err)
	}

	want := Default()
	want.Source.Kind = telemetry.KindFirewall
	want.Aggregation.Masking = false
	want.Aggregation.MaskBits = 16
	want.Layout.Charge = -80
	want.Layout.SafetyTimeout = 2 * time.Second
	want.Layout.CollisionPadding = 8
	want.Render.HoverRadius = 40
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load (-want +got):\n%s", diff)
	}
}

func TestFlagsRejectInvalid(t *testing.T) {
	if _, err := (Flags{MaskBits: ptr(33)}).Load(); err == nil {
		t.Errorf("expected mask bits 33 to be rejected")
	}
	if _, err := (Flags{Kind: ptr("netflow")}).Load(); err == nil {
		t.Errorf("expected an unknown kind to be rejected")
	}
}
