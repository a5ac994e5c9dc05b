// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package models

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
)

func TestParseAspect(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"", 0, false},
		{"16:9", 9.0 / 16.0, false},
		{"4:3", 0.75, false},
		{"1:1", 1.0, false},
		{" 16 : 9 ", 9.0 / 16.0, false},
		{"16", 0, true},
		{"16:9:4", 0, true},
		{"0:9", 0, true},
		{"16:-9", 0, true},
		{"a:b", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAspect(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAspect(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAspect(%q): unexpected error %v", tt.in, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseAspect(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDimMarshalPixels(t *testing.T) {
	data, err := json.Marshal(Px(123.4))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "123" {
		t.Errorf("pixel dim marshalled to %s, want 123", data)
	}
}

func TestDimMarshalPercent(t *testing.T) {
	data, err := json.Marshal(Pct(37.5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"37.5%"` {
		t.Errorf("percent dim marshalled to %s, want \"37.5%%\"", data)
	}
}

func TestDimRoundTrip(t *testing.T) {
	for _, d := range []Dim{Px(0), Px(1920), Pct(100), Pct(12.345)} {
		data, err := json.Marshal(d)
		if err != nil {
			t.Fatalf("marshal %v: %v", d, err)
		}
		var got Dim
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got.Percent != d.Percent || math.Abs(got.Value-d.Value) > 1e-9 {
			t.Errorf("round trip %v -> %s -> %v", d, data, got)
		}
	}
}

// Percent coordinates must survive a pixel conversion round trip within
// one pixel of the original.
func TestPercentPixelRoundTrip(t *testing.T) {
	const regionW = 1920.0
	for _, px := range []float64{0, 1, 640, 1279, 1920} {
		pct := px / regionW * 100
		back := pct / 100 * regionW
		if math.Abs(back-px) > 1.0 {
			t.Errorf("pixel %v -> %v%% -> %v exceeds 1px error", px, pct, back)
		}
	}
}

func TestPriorityOverridesResolve(t *testing.T) {
	five := 5
	removed := OverrideRemoved
	tests := []struct {
		name string
		p    *PriorityOverrides
		want int
	}{
		{"nil table", nil, 10},
		{"device wins", &PriorityOverrides{
			Device:  map[string]int{"tv": 99},
			Group:   map[string]int{"g": 50},
			Context: &five,
		}, 99},
		{"device removed falls to group", &PriorityOverrides{
			Device: map[string]int{"tv": removed},
			Group:  map[string]int{"g": 50},
		}, 50},
		{"group falls to context", &PriorityOverrides{
			Group:   map[string]int{"other": 50},
			Context: &five,
		}, 5},
		{"context removed falls to default", &PriorityOverrides{
			Context: &removed,
		}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Resolve("tv", "g", 10); got != tt.want {
				t.Errorf("Resolve = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGroupType(t *testing.T) {
	communal := Device{ID: "tv", Caps: Capabilities{Communal: true}}
	personal := Device{ID: "ph", Caps: Capabilities{Communal: false}}

	tests := []struct {
		name    string
		devices []Device
		want    GroupType
	}{
		{"all communal", []Device{communal}, GroupCommunal},
		{"all personal", []Device{personal, personal}, GroupPersonal},
		{"mixed", []Device{communal, personal}, GroupMixed},
	}
	for _, tt := range tests {
		g := Group{ID: "g", Devices: tt.devices}
		if got := g.Type(); got != tt.want {
			t.Errorf("%s: Type() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestDeviceDisplaySizeOrientation(t *testing.T) {
	d := Device{Caps: Capabilities{DisplayWidth: 1920, DisplayHeight: 1080}}

	d.Orientation = OrientationLandscape
	if w, h := d.DisplaySize(); w != 1920 || h != 1080 {
		t.Errorf("landscape: got %vx%v", w, h)
	}

	d.Orientation = OrientationPortrait
	if w, h := d.DisplaySize(); w != 1080 || h != 1920 {
		t.Errorf("portrait: got %vx%v", w, h)
	}
}

func TestComponentLifecycle(t *testing.T) {
	c := &Component{State: StateStopped}
	if c.CanTransition(StateStarted) {
		t.Error("stopped -> started must be rejected")
	}
	if !c.CanTransition(StateDestroyed) {
		t.Error("stopped -> destroyed must be allowed")
	}

	c.State = StateInited
	if !c.CanTransition(StateStarted) {
		t.Error("inited -> started must be allowed")
	}

	c.State = StateUninitialised
	if !c.CanTransition(StateInited) {
		t.Error("uninitialised -> inited must be allowed")
	}
	if c.CanTransition(StateStopped) {
		t.Error("uninitialised -> stopped must be rejected")
	}
}

func TestConstraintDocValidate(t *testing.T) {
	doc := ConstraintDoc{
		Version:     4,
		DMApp:       "demo",
		LayoutModel: LayoutModelDynamic,
		Constraints: []Constraint{{ConstraintID: "default"}},
	}
	if err := doc.Validate(); err != nil {
		t.Errorf("valid doc rejected: %v", err)
	}

	bad := doc
	bad.Version = 3
	if err := bad.Validate(); err == nil {
		t.Error("version 3 accepted")
	}

	bad = doc
	bad.LayoutModel = LayoutModelTemplate
	if err := bad.Validate(); err == nil {
		t.Error("template model accepted")
	}

	bad = doc
	bad.Constraints = []Constraint{{ConstraintID: "video"}}
	if err := bad.Validate(); err == nil {
		t.Error("doc without default constraint accepted")
	}
}

func TestConstraintDocFindFallsBackToDefault(t *testing.T) {
	doc := ConstraintDoc{
		Constraints: []Constraint{
			{ConstraintID: "default"},
			{ConstraintID: "video"},
		},
	}
	if c := doc.Find("video"); c == nil || c.ConstraintID != "video" {
		t.Error("known id did not resolve")
	}
	if c := doc.Find("nope"); c == nil || c.ConstraintID != "default" {
		t.Error("unknown id did not fall back to default")
	}
}
