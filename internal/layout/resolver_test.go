// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package layout

import (
	"errors"
	"testing"

	"github.com/tomtom215/mosaicus/internal/models"
)

func intPtr(v int) *int { return &v }

func communalGroup(devices ...models.Device) *models.Group {
	return &models.Group{ID: "g1", Devices: devices}
}

func tvDevice() models.Device {
	return models.Device{
		ID: "tv",
		Caps: models.Capabilities{
			DisplayWidth: 1920, DisplayHeight: 1080, DPI: 96,
			ConcurrentAudio: 2, ConcurrentVideo: 2, Communal: true,
		},
	}
}

func tabletDevice(id string) models.Device {
	return models.Device{
		ID: id,
		Caps: models.Capabilities{
			DisplayWidth: 1024, DisplayHeight: 768, DPI: 120,
			ConcurrentAudio: 1, ConcurrentVideo: 1, Touch: true,
		},
	}
}

func docWith(cons ...models.Constraint) *models.ConstraintDoc {
	hasDefault := false
	for _, c := range cons {
		if c.ConstraintID == models.DefaultConstraintID {
			hasDefault = true
		}
	}
	if !hasDefault {
		cons = append(cons, models.Constraint{
			ConstraintID: models.DefaultConstraintID,
			Communal:     &models.ConstraintConfig{},
			Personal:     &models.ConstraintConfig{},
		})
	}
	return &models.ConstraintDoc{
		Version:     models.ConstraintDocVersion,
		LayoutModel: models.LayoutModelDynamic,
		Constraints: cons,
	}
}

func TestResolveDefaults(t *testing.T) {
	r := &Resolver{Doc: docWith()}
	comp := &models.Component{ID: "c1", ConstraintID: "default"}

	res, err := r.Resolve(comp, communalGroup(tvDevice()))
	if err != nil {
		t.Fatal(err)
	}
	eff := res.Communal
	if eff == nil {
		t.Fatal("no communal effective constraint for a communal group")
	}
	if res.Personal != nil {
		t.Error("personal constraint resolved for an all-communal group")
	}
	if eff.Priority != 1 {
		t.Errorf("default priority = %d, want 1", eff.Priority)
	}
	mw, mh := eff.MinPx(1920, 1080, 96)
	if mw != 1 || mh != 1 {
		t.Errorf("default min = %gx%g, want 1x1", mw, mh)
	}
	pw, ph := eff.PrefPx(1920, 1080, 96)
	if pw != -1 || ph != -1 {
		t.Errorf("default pref = %gx%g, want don't-care", pw, ph)
	}
	if !eff.ValidRegions[RegionRef{DeviceID: "tv"}] {
		t.Error("whole-display region not valid")
	}
}

func TestResolveUnknownConstraintFallsBack(t *testing.T) {
	r := &Resolver{Doc: docWith()}
	comp := &models.Component{ID: "c1", ConstraintID: "does-not-exist"}
	res, err := r.Resolve(comp, communalGroup(tvDevice()))
	if err != nil {
		t.Fatalf("fallback to default failed: %v", err)
	}
	if res.Communal.ConstraintID != models.DefaultConstraintID {
		t.Errorf("constraint id = %q, want default", res.Communal.ConstraintID)
	}
}

func TestResolveNoDefault(t *testing.T) {
	r := &Resolver{Doc: &models.ConstraintDoc{
		Version:     models.ConstraintDocVersion,
		LayoutModel: models.LayoutModelDynamic,
	}}
	_, err := r.Resolve(&models.Component{ID: "c1"}, communalGroup(tvDevice()))
	if !errors.Is(err, ErrInvalidConstraint) {
		t.Fatalf("err = %v, want ErrInvalidConstraint", err)
	}
}

func TestResolveRejections(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.ConstraintConfig
	}{
		{"hcenter anchor", models.ConstraintConfig{Anchor: []models.Anchor{models.AnchorHCenter}}},
		{"unknown anchor", models.ConstraintConfig{Anchor: []models.Anchor{"diagonal"}}},
		{"malformed aspect", models.ConstraintConfig{Aspect: "16x9"}},
		{"min exceeds pref", models.ConstraintConfig{
			MinSize:  &models.SizeSpec{Width: 800, Height: 600, Unit: models.UnitPx},
			PrefSize: &models.SizeSpec{Width: 400, Height: 300, Unit: models.UnitPx},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			r := &Resolver{Doc: docWith(models.Constraint{ConstraintID: "x", Communal: &cfg})}
			_, err := r.Resolve(&models.Component{ID: "c1", ConstraintID: "x"}, communalGroup(tvDevice()))
			if !errors.Is(err, ErrInvalidConstraint) {
				t.Fatalf("err = %v, want ErrInvalidConstraint", err)
			}
		})
	}
}

func TestResolveUnits(t *testing.T) {
	r := &Resolver{Doc: docWith(models.Constraint{
		ConstraintID: "sized",
		Communal: &models.ConstraintConfig{
			MinSize:  &models.SizeSpec{Width: 25, Height: 50, Unit: models.UnitPercent},
			PrefSize: &models.SizeSpec{Width: 2, Height: 1, Unit: models.UnitInches},
		},
	})}
	res, err := r.Resolve(&models.Component{ID: "c1", ConstraintID: "sized"}, communalGroup(tvDevice()))
	if err != nil {
		t.Fatal(err)
	}
	eff := res.Communal
	mw, mh := eff.MinPx(1920, 1080, 96)
	if mw != 480 || mh != 540 {
		t.Errorf("percent min = %gx%g, want 480x540", mw, mh)
	}
	pw, ph := eff.PrefPx(1920, 1080, 96)
	if pw != 192 || ph != 96 {
		t.Errorf("inches pref = %gx%g, want 192x96", pw, ph)
	}
}

func TestComponentPrefSizeOverride(t *testing.T) {
	r := &Resolver{Doc: docWith(models.Constraint{
		ConstraintID: "sized",
		Communal: &models.ConstraintConfig{
			PrefSize: &models.SizeSpec{Width: 100, Height: 100, Unit: models.UnitPx},
		},
	})}
	comp := &models.Component{
		ID:           "c1",
		ConstraintID: "sized",
		PrefSize:     &models.SizeSpec{Width: 640, Height: 360, Unit: models.UnitPx},
	}
	res, err := r.Resolve(comp, communalGroup(tvDevice()))
	if err != nil {
		t.Fatal(err)
	}
	pw, ph := res.Communal.PrefPx(1920, 1080, 96)
	if pw != 640 || ph != 360 {
		t.Errorf("pref = %gx%g, want the component override 640x360", pw, ph)
	}
}

func TestCapabilityFiltering(t *testing.T) {
	tv := tvDevice() // no touch
	tab := tabletDevice("tab1")
	tab.GroupID = "g1"

	r := &Resolver{Doc: docWith(models.Constraint{
		ConstraintID: "touchy",
		Communal:     &models.ConstraintConfig{TouchInteraction: true},
		Personal:     &models.ConstraintConfig{TouchInteraction: true},
	})}
	res, err := r.Resolve(&models.Component{ID: "c1", ConstraintID: "touchy"},
		communalGroup(tv, tab))
	if err != nil {
		t.Fatal(err)
	}
	if res.Communal == nil || len(res.Communal.ValidRegions) != 0 {
		t.Error("touch constraint left the non-touch tv valid")
	}
	if res.Personal == nil || !res.Personal.ValidRegions[RegionRef{DeviceID: "tab1"}] {
		t.Error("touch tablet not valid for the personal constraint")
	}
}

func TestTargetRegions(t *testing.T) {
	tv := tvDevice()
	tv.Regions = []models.Region{
		{ID: "main", Width: 1280, Height: 1080},
		{ID: "side", Width: 640, Height: 1080},
	}
	r := &Resolver{Doc: docWith(models.Constraint{
		ConstraintID: "targeted",
		Communal:     &models.ConstraintConfig{TargetRegions: []string{"side"}},
	})}
	res, err := r.Resolve(&models.Component{ID: "c1", ConstraintID: "targeted"}, communalGroup(tv))
	if err != nil {
		t.Fatal(err)
	}
	eff := res.Communal
	if !eff.ValidRegions[RegionRef{DeviceID: "tv", RegionID: "side"}] {
		t.Error("targeted region not valid")
	}
	if eff.ValidRegions[RegionRef{DeviceID: "tv", RegionID: "main"}] {
		t.Error("untargeted region valid")
	}
}

func TestPriorityOverrideResolution(t *testing.T) {
	r := &Resolver{Doc: docWith(models.Constraint{
		ConstraintID: "prio",
		Communal:     &models.ConstraintConfig{Priority: intPtr(3)},
	})}
	comp := &models.Component{
		ID:           "c1",
		ConstraintID: "prio",
		Priorities: &models.PriorityOverrides{
			Device:  map[string]int{"tv": 9},
			Group:   map[string]int{"g1": 5},
			Context: intPtr(4),
		},
	}
	res, err := r.Resolve(comp, communalGroup(tvDevice()))
	if err != nil {
		t.Fatal(err)
	}
	eff := res.Communal
	if eff.Priority != 5 {
		t.Errorf("group-scope priority = %d, want 5 (group override)", eff.Priority)
	}
	if got := eff.PriorityOn("tv"); got != 9 {
		t.Errorf("device priority = %d, want 9", got)
	}
	if got := eff.PriorityOn("other"); got != 5 {
		t.Errorf("non-overridden device priority = %d, want 5", got)
	}
}

func TestMixedGroupResolvesBoth(t *testing.T) {
	tab := tabletDevice("tab1")
	tab.GroupID = "g1"
	r := &Resolver{Doc: docWith(models.Constraint{
		ConstraintID: "dual",
		Communal:     &models.ConstraintConfig{Priority: intPtr(2)},
		Personal:     &models.ConstraintConfig{Priority: intPtr(7)},
	})}
	res, err := r.Resolve(&models.Component{ID: "c1", ConstraintID: "dual"},
		communalGroup(tvDevice(), tab))
	if err != nil {
		t.Fatal(err)
	}
	if res.Communal == nil || res.Personal == nil {
		t.Fatal("mixed group should resolve both configs")
	}
	if res.Communal.Priority != 2 || res.Personal.Priority != 7 {
		t.Errorf("priorities = %d/%d, want 2/7", res.Communal.Priority, res.Personal.Priority)
	}
}
