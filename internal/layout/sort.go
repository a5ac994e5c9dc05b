// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package layout

import (
	"sort"

	"github.com/tomtom215/mosaicus/internal/models"
)

// Candidate is one component's rectangle in a group's packing run.
type Candidate struct {
	// Index is the component's insertion order, the final sorting
	// tie-break.
	Index int

	Res *ResolvedComponent

	// Priority is the group-scope effective priority used for ordering.
	// For mixed groups it is the higher of the communal and personal
	// resolutions.
	Priority int

	// PrefArea is the preferred size in pixels resolved against the
	// largest valid candidate region, used as the second sort key.
	PrefArea float64

	anchored   bool
	anchorRank int

	// Status is set when the candidate is excluded before or during
	// packing; empty while still in play.
	Status models.NotPlacedStatus
}

// ComponentID returns the candidate's component id.
func (c *Candidate) ComponentID() string { return c.Res.Component.ID }

// anchor preference order among anchored rectangles.
var anchorRanks = map[models.Anchor]int{
	models.AnchorTop:    0,
	models.AnchorRight:  1,
	models.AnchorLeft:   2,
	models.AnchorBottom: 3,
}

const unrankedAnchor = 4

func bestAnchorRank(effs ...*EffectiveConstraint) (bool, int) {
	anchored := false
	rank := unrankedAnchor
	for _, e := range effs {
		if e == nil {
			continue
		}
		for _, a := range e.Anchors {
			anchored = true
			if r, ok := anchorRanks[a]; ok && r < rank {
				rank = r
			}
		}
	}
	return anchored, rank
}

// regionBounds describes one candidate region root for size estimation.
type regionBounds struct {
	ref    RegionRef
	w, h   float64
	dpi    float64
	device *models.Device
}

func regionsOf(t *Tree) []regionBounds {
	seen := make(map[RegionRef]bool)
	var out []regionBounds
	for _, r := range t.roots {
		n := t.node(r)
		if n.dead || n.parent != noNode {
			continue
		}
		ref := t.RegionRefOf(r)
		if seen[ref] {
			continue
		}
		seen[ref] = true
		d := &t.Devices[n.deviceIdx]
		out = append(out, regionBounds{ref: ref, w: n.boundW, h: n.boundH, dpi: d.Caps.DPI, device: d})
	}
	return out
}

// largestValidRegion picks the biggest region, by pixel area, that either
// effective constraint of the candidate may target.
func largestValidRegion(regions []regionBounds, res *ResolvedComponent) (regionBounds, bool) {
	var best regionBounds
	found := false
	for _, rb := range regions {
		valid := (res.Communal != nil && res.Communal.ValidRegions[rb.ref]) ||
			(res.Personal != nil && res.Personal.ValidRegions[rb.ref])
		if !valid {
			continue
		}
		if !found || rb.w*rb.h > best.w*best.h {
			best = rb
			found = true
		}
	}
	return best, found
}

// minFitsSomewhere reports whether any valid region can geometrically
// hold the candidate at minimum size, margin included.
func minFitsSomewhere(regions []regionBounds, res *ResolvedComponent) bool {
	for _, rb := range regions {
		for _, e := range []*EffectiveConstraint{res.Communal, res.Personal} {
			if e == nil || !e.ValidRegions[rb.ref] {
				continue
			}
			mw, mh := e.MinPx(rb.w, rb.h, rb.dpi)
			m := e.MarginPx(rb.dpi)
			if mw+2*m <= rb.w && mh+2*m <= rb.h {
				return true
			}
		}
	}
	return false
}

// orderCandidates builds the ordered candidate rectangle list for one
// group and splits off the components excluded before packing.
//
// Ordering is a strictly total comparator: priority descending, preferred
// pixel area descending, anchored before unanchored, anchor preference
// top/right/left/bottom, and finally insertion order. Insertion order as
// the ultimate tie-break keeps equal-priority equal-area rectangles
// stable across evaluations.
//
// Exclusions, in check order per candidate:
//   - priority 0 -> skipped (reserved "never place" priority)
//   - no valid region at all -> noDevice
//   - no valid region fits minSize -> incompatible
//
// After ordering, the tail whose cumulative minimum area provably exceeds
// the group's total usable area is trimmed to incompatible.
func orderCandidates(t *Tree, resolved []*ResolvedComponent) (ordered, excluded []*Candidate) {
	regions := regionsOf(t)

	var totalArea float64
	for _, rb := range regions {
		totalArea += rb.w * rb.h
	}

	for i, res := range resolved {
		c := &Candidate{Index: i, Res: res}

		prio := 0
		if res.Communal != nil && res.Communal.Priority > prio {
			prio = res.Communal.Priority
		}
		if res.Personal != nil && res.Personal.Priority > prio {
			prio = res.Personal.Priority
		}
		c.Priority = prio
		c.anchored, c.anchorRank = bestAnchorRank(res.Communal, res.Personal)

		if prio <= 0 {
			c.Status = models.NotPlacedSkipped
			excluded = append(excluded, c)
			continue
		}

		rb, ok := largestValidRegion(regions, res)
		if !ok {
			c.Status = models.NotPlacedNoDevice
			excluded = append(excluded, c)
			continue
		}
		if !minFitsSomewhere(regions, res) {
			c.Status = models.NotPlacedIncompatible
			excluded = append(excluded, c)
			continue
		}

		eff := res.Communal
		if eff == nil || !eff.ValidRegions[rb.ref] {
			eff = res.Personal
		}
		pw, ph := eff.PrefPx(rb.w, rb.h, rb.dpi)
		if pw < 0 {
			pw = rb.w
		}
		if ph < 0 {
			ph = rb.h
		}
		c.PrefArea = pw * ph

		ordered = append(ordered, c)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.PrefArea != b.PrefArea {
			return a.PrefArea > b.PrefArea
		}
		if a.anchored != b.anchored {
			return a.anchored
		}
		if a.anchorRank != b.anchorRank {
			return a.anchorRank < b.anchorRank
		}
		return a.Index < b.Index
	})

	// Tail trim: once the cumulative minimum area of higher-priority
	// candidates exceeds the usable area, the rest cannot fit.
	var cum float64
	kept := ordered[:0]
	for _, c := range ordered {
		rb, _ := largestValidRegion(regions, c.Res)
		eff := c.Res.Communal
		if eff == nil || !eff.ValidRegions[rb.ref] {
			eff = c.Res.Personal
		}
		mw, mh := eff.MinPx(rb.w, rb.h, rb.dpi)
		if cum+mw*mh > totalArea {
			c.Status = models.NotPlacedIncompatible
			excluded = append(excluded, c)
			continue
		}
		cum += mw * mh
		kept = append(kept, c)
	}
	return kept, excluded
}
