// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package layout

import (
	"errors"
	"fmt"

	"github.com/tomtom215/mosaicus/internal/models"
)

// ErrInvalidConstraint marks a constraint record that fails structural or
// semantic validation. It is never fatal to an evaluation: the affected
// component is demoted to notPlaced/incompatible and a warning is logged.
var ErrInvalidConstraint = errors.New("invalid constraint")

// RegionRef identifies one logical region on one device. A device that
// declares no regions contributes a single whole-display region with an
// empty region id.
type RegionRef struct {
	DeviceID string
	RegionID string
}

// EffectiveConstraint is a component's constraint as it applies to one
// device class (communal or personal) within one group. Size fields keep
// their declared units; they resolve to pixels against a concrete node's
// bounding box via MinPx/PrefPx.
type EffectiveConstraint struct {
	ComponentID  string
	ConstraintID string

	// Priority is the group-scope effective priority (override order
	// device > group > context > constraint default; the device step is
	// applied per node via PriorityOn). 0 means excluded.
	Priority int

	MinSize  models.SizeSpec
	PrefSize models.SizeSpec

	// Aspect is height over width; 0 means free.
	Aspect float64

	Margin models.MarginSpec

	Anchors []models.Anchor

	Audio bool
	Video bool
	Touch bool

	// ValidRegions is the region whitelist after targetRegions
	// intersection and capability filtering.
	ValidRegions map[RegionRef]bool

	// Dependencies lists component ids that must be placed for this
	// component to be placed. DeviceDependency additionally requires
	// them on the same device.
	Dependencies     []string
	DeviceDependency bool

	overrides *models.PriorityOverrides
	groupID   string
	basePrio  int
}

// PriorityOn resolves the effective priority for a concrete device,
// applying the device-scope override step.
func (e *EffectiveConstraint) PriorityOn(deviceID string) int {
	return e.overrides.Resolve(deviceID, e.groupID, e.basePrio)
}

// HasAnchor reports whether the constraint carries the given anchor.
func (e *EffectiveConstraint) HasAnchor(a models.Anchor) bool {
	for _, x := range e.Anchors {
		if x == a {
			return true
		}
	}
	return false
}

// Anchored reports whether any edge or centering anchor is set.
func (e *EffectiveConstraint) Anchored() bool { return len(e.Anchors) > 0 }

// resolveDim converts one declared dimension to pixels against a bounding
// length, keeping the -1 "don't care" sentinel intact.
func resolveDim(v float64, unit models.Unit, bound, dpi float64) float64 {
	if v < 0 {
		return -1
	}
	switch unit {
	case models.UnitPercent:
		return v / 100 * bound
	case models.UnitInches:
		if dpi > 0 {
			return v * dpi
		}
		return v
	default:
		return v
	}
}

// MinPx resolves the minimum size in pixels against a bounding box.
func (e *EffectiveConstraint) MinPx(boundW, boundH, dpi float64) (w, h float64) {
	w = resolveDim(e.MinSize.Width, e.MinSize.Unit, boundW, dpi)
	h = resolveDim(e.MinSize.Height, e.MinSize.Unit, boundH, dpi)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// PrefPx resolves the preferred size in pixels against a bounding box.
// A dimension of -1 ("don't care") is passed through.
func (e *EffectiveConstraint) PrefPx(boundW, boundH, dpi float64) (w, h float64) {
	w = resolveDim(e.PrefSize.Width, e.PrefSize.Unit, boundW, dpi)
	h = resolveDim(e.PrefSize.Height, e.PrefSize.Unit, boundH, dpi)
	return w, h
}

// MarginPx resolves the margin to pixels via the device dpi.
func (e *EffectiveConstraint) MarginPx(dpi float64) float64 {
	if e.Margin.Value <= 0 {
		return 0
	}
	if e.Margin.Unit == models.UnitInches && dpi > 0 {
		return e.Margin.Value * dpi
	}
	return e.Margin.Value
}

// ResolvedComponent pairs the effective constraints a component carries
// within one group: one for monolithic groups, two for mixed groups.
type ResolvedComponent struct {
	Component *models.Component
	Communal  *EffectiveConstraint
	Personal  *EffectiveConstraint
}

// ForDevice selects the effective constraint that applies on the given
// device: the communal constraint on communal devices, the personal one
// otherwise. May return nil when the component has no constraint config
// for that device class.
func (r *ResolvedComponent) ForDevice(d *models.Device) *EffectiveConstraint {
	if d.Caps.Communal {
		return r.Communal
	}
	return r.Personal
}

// Any returns whichever effective constraint exists, preferring communal.
// Used for group-scope decisions (sort priority, dependency lists).
func (r *ResolvedComponent) Any() *EffectiveConstraint {
	if r.Communal != nil {
		return r.Communal
	}
	return r.Personal
}

// Resolver materialises effective constraints from a constraint document.
type Resolver struct {
	Doc *models.ConstraintDoc
}

// Resolve builds the effective constraint set for one component within
// one group. It returns ErrInvalidConstraint (wrapped, with detail) when
// the bound constraint record fails validation; callers demote the
// component instead of aborting.
func (r *Resolver) Resolve(comp *models.Component, group *models.Group) (*ResolvedComponent, error) {
	con := r.Doc.Find(comp.ConstraintID)
	if con == nil {
		return nil, fmt.Errorf("%w: no constraint %q and no default", ErrInvalidConstraint, comp.ConstraintID)
	}

	res := &ResolvedComponent{Component: comp}
	gt := group.Type()

	if gt != models.GroupPersonal && con.Communal != nil {
		eff, err := r.effective(comp, group, con, con.Communal, true)
		if err != nil {
			return nil, err
		}
		res.Communal = eff
	}
	if gt != models.GroupCommunal && con.Personal != nil {
		eff, err := r.effective(comp, group, con, con.Personal, false)
		if err != nil {
			return nil, err
		}
		res.Personal = eff
	}
	if res.Communal == nil && res.Personal == nil {
		return nil, fmt.Errorf("%w: constraint %q has no config for group type %s", ErrInvalidConstraint, con.ConstraintID, gt)
	}
	return res, nil
}

func (r *Resolver) effective(comp *models.Component, group *models.Group, con *models.Constraint, cfg *models.ConstraintConfig, communal bool) (*EffectiveConstraint, error) {
	aspect, err := models.ParseAspect(cfg.Aspect)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConstraint, err)
	}

	for _, a := range cfg.Anchor {
		switch a {
		case models.AnchorTop, models.AnchorBottom, models.AnchorLeft,
			models.AnchorRight, models.AnchorVCenter:
		case models.AnchorHCenter:
			// Only vertical centering is honoured by the packer;
			// hcenter is rejected here rather than silently dropped.
			return nil, fmt.Errorf("%w: anchor hcenter is not supported", ErrInvalidConstraint)
		default:
			return nil, fmt.Errorf("%w: unknown anchor %q", ErrInvalidConstraint, a)
		}
	}

	minSize := models.SizeSpec{Width: 1, Height: 1, Unit: models.UnitPx}
	if cfg.MinSize != nil {
		minSize = *cfg.MinSize
		if minSize.Unit == "" {
			minSize.Unit = models.UnitPx
		}
	}
	prefSize := models.SizeSpec{Width: -1, Height: -1, Unit: models.UnitPx}
	if cfg.PrefSize != nil {
		prefSize = *cfg.PrefSize
		if prefSize.Unit == "" {
			prefSize.Unit = models.UnitPx
		}
	}
	if comp.PrefSize != nil {
		prefSize = *comp.PrefSize
		if prefSize.Unit == "" {
			prefSize.Unit = models.UnitPx
		}
	}

	// min > pref is a semantic error when both are declared in the same
	// unit; cross-unit comparisons resolve per node and are checked by
	// the packer's geometry instead.
	if minSize.Unit == prefSize.Unit {
		if prefSize.Width >= 0 && minSize.Width > prefSize.Width {
			return nil, fmt.Errorf("%w: minSize width %g exceeds prefSize width %g", ErrInvalidConstraint, minSize.Width, prefSize.Width)
		}
		if prefSize.Height >= 0 && minSize.Height > prefSize.Height {
			return nil, fmt.Errorf("%w: minSize height %g exceeds prefSize height %g", ErrInvalidConstraint, minSize.Height, prefSize.Height)
		}
	}

	margin := models.MarginSpec{Unit: models.UnitPx}
	if cfg.Margin != nil {
		margin = *cfg.Margin
		if margin.Unit == "" {
			margin.Unit = models.UnitPx
		}
	}

	basePrio := 1
	if cfg.Priority != nil {
		basePrio = *cfg.Priority
	}

	eff := &EffectiveConstraint{
		ComponentID:      comp.ID,
		ConstraintID:     con.ConstraintID,
		MinSize:          minSize,
		PrefSize:         prefSize,
		Aspect:           aspect,
		Margin:           margin,
		Anchors:          cfg.Anchor,
		Audio:            cfg.Audio,
		Video:            cfg.Video,
		Touch:            cfg.TouchInteraction,
		Dependencies:     cfg.ComponentDependency,
		DeviceDependency: cfg.ComponentDeviceDependency,
		ValidRegions:     make(map[RegionRef]bool),
		overrides:        comp.Priorities,
		groupID:          group.ID,
		basePrio:         basePrio,
	}
	eff.Priority = comp.Priorities.Resolve("", group.ID, basePrio)

	target := make(map[string]bool, len(cfg.TargetRegions))
	for _, id := range cfg.TargetRegions {
		target[id] = true
	}

	for i := range group.Devices {
		d := &group.Devices[i]
		if d.Caps.Communal != communal {
			continue
		}
		if !deviceCapable(d, cfg) {
			continue
		}
		if len(d.Regions) == 0 {
			if len(target) == 0 {
				eff.ValidRegions[RegionRef{DeviceID: d.ID}] = true
			}
			continue
		}
		for _, reg := range d.Regions {
			if len(target) > 0 && !target[reg.ID] {
				continue
			}
			eff.ValidRegions[RegionRef{DeviceID: d.ID, RegionID: reg.ID}] = true
		}
	}

	return eff, nil
}

// deviceCapable applies the capability filter: media flags require spare
// capacity on the device, touch interaction requires a touch display.
func deviceCapable(d *models.Device, cfg *models.ConstraintConfig) bool {
	if cfg.TouchInteraction && !d.Caps.Touch {
		return false
	}
	if cfg.Audio && d.Caps.ConcurrentAudio <= 0 {
		return false
	}
	if cfg.Video && d.Caps.ConcurrentVideo <= 0 {
		return false
	}
	return true
}
