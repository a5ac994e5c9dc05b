// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package layout

import (
	"math"
	"sort"

	"github.com/tomtom215/mosaicus/internal/models"
)

const geomEps = 1e-6

// Placement is one achieved rectangle: a candidate's content rectangle
// (margin excluded) within a host region.
type Placement struct {
	CandIdx     int
	ComponentID string

	DeviceID string
	RegionID string

	// Content rectangle, region-relative pixels.
	X, Y, W, H float64
	Margin     float64

	ZDepth int

	deviceIdx int32
	eff       *EffectiveConstraint
	audio     bool
	video     bool
}

func (p *Placement) outerW() float64 { return p.W + 2*p.Margin }
func (p *Placement) outerH() float64 { return p.H + 2*p.Margin }

func (p *Placement) ref() RegionRef {
	return RegionRef{DeviceID: p.DeviceID, RegionID: p.RegionID}
}

// Result is the packer's output for one group.
type Result struct {
	// Placements holds every achieved rectangle, grouped per candidate
	// index (a personal component may hold one per personal device).
	Placements map[int][]*Placement

	// Ordered is every candidate that entered the packer, in pack order.
	Ordered []*Candidate

	// Excluded is every candidate that never entered the packer, with
	// its not-placed status set.
	Excluded []*Candidate
}

// PlacedCount counts candidates with at least one placement.
func (r *Result) PlacedCount() int {
	n := 0
	for _, pls := range r.Placements {
		if len(pls) > 0 {
			n++
		}
	}
	return n
}

// Packer runs the three-pass placement algorithm over one group's BSP
// node set and ordered candidate list.
type Packer struct {
	Tree *Tree
	Cfg  models.ContextConfig

	ordered  []*Candidate
	excluded []*Candidate

	placements map[int][]*Placement

	// SinglePass restricts packing to the initial fit (simulation mode:
	// coverage is irrelevant, only the candidate device set matters).
	SinglePass bool
}

// NewPacker wires a packer for one group.
func NewPacker(tree *Tree, ordered, excluded []*Candidate, cfg models.ContextConfig) *Packer {
	cfg.Normalize()
	return &Packer{
		Tree:       tree,
		Cfg:        cfg,
		ordered:    ordered,
		excluded:   excluded,
		placements: make(map[int][]*Placement),
	}
}

// Pack executes the passes and finalises every candidate's status.
func (p *Packer) Pack() *Result {
	p.passInitial(p.ordered, 1.0)

	if !p.SinglePass {
		p.passReduce()
		p.passBeautify()
	}

	// Finalise statuses: anything still unplaced after all passes ran
	// out of space; candidates with dependencies report noDependent.
	for _, c := range p.ordered {
		if len(p.placements[c.Index]) > 0 {
			c.Status = ""
			continue
		}
		if c.Status != "" {
			continue
		}
		if eff := c.Res.Any(); eff != nil && len(eff.Dependencies) > 0 {
			c.Status = models.NotPlacedNoDependent
		} else {
			c.Status = models.NotPlacedSkipped
		}
	}

	p.assignZDepth()

	return &Result{
		Placements: p.placements,
		Ordered:    p.ordered,
		Excluded:   p.excluded,
	}
}

func (p *Packer) assignZDepth() {
	depth := make(map[RegionRef]int)
	for _, c := range p.ordered {
		for _, pl := range p.placements[c.Index] {
			pl.ZDepth = depth[pl.ref()]
			depth[pl.ref()]++
		}
	}
}

// --- pass 1: initial fit --------------------------------------------------

// passInitial walks the rectangle list in order and gives each candidate
// its first-fit placements at the given reduction factor.
func (p *Packer) passInitial(cands []*Candidate, reduce float64) {
	for _, c := range cands {
		if c.Status != "" || len(p.placements[c.Index]) > 0 {
			continue
		}
		p.placeCandidate(c, reduce)
	}
}

// placeCandidate attempts every instance the candidate is entitled to:
// one communal placement per group, one personal placement per personal
// device.
func (p *Packer) placeCandidate(c *Candidate, reduce float64) bool {
	var placed []*Placement

	if eff := c.Res.Communal; eff != nil {
		if pl := p.placeInstance(c, eff, reduce, ""); pl != nil {
			placed = append(placed, pl)
		}
	}
	if eff := c.Res.Personal; eff != nil {
		for i := range p.Tree.Devices {
			d := &p.Tree.Devices[i]
			if d.Caps.Communal {
				continue
			}
			if pl := p.placeInstance(c, eff, reduce, d.ID); pl != nil {
				placed = append(placed, pl)
			}
		}
	}

	if len(placed) == 0 {
		return false
	}
	p.placements[c.Index] = append(p.placements[c.Index], placed...)
	return true
}

// placeInstance finds the first node that accepts one instance of the
// candidate, trying free nodes first and occupied-node donation second.
// deviceFilter restricts the search to one device ("" = any).
func (p *Packer) placeInstance(c *Candidate, eff *EffectiveConstraint, reduce float64, deviceFilter string) *Placement {
	t := p.Tree

	for _, id := range t.Leaves() {
		n := t.node(id)
		if !n.free() {
			continue
		}
		if pl := p.tryFreeNode(c, eff, id, reduce, deviceFilter); pl != nil {
			return pl
		}
	}

	for _, id := range t.Leaves() {
		n := t.node(id)
		if n.free() {
			continue
		}
		if pl := p.tryOccupiedSplit(c, eff, id, reduce, deviceFilter); pl != nil {
			return pl
		}
	}
	return nil
}

// eligibleNode applies the non-geometric placement conditions: region
// whitelist, per-device priority, media budget and dependencies.
func (p *Packer) eligibleNode(c *Candidate, eff *EffectiveConstraint, id nodeID, deviceFilter string) bool {
	t := p.Tree
	n := t.node(id)
	d := &t.Devices[n.deviceIdx]

	if deviceFilter != "" && d.ID != deviceFilter {
		return false
	}
	if !eff.ValidRegions[t.RegionRefOf(id)] {
		return false
	}
	if eff.PriorityOn(d.ID) <= 0 {
		return false
	}
	if !t.HasMedia(n.deviceIdx, eff.Audio, eff.Video) {
		return false
	}
	return p.dependenciesSatisfied(eff, d.ID)
}

// dependenciesSatisfied checks that every componentDependency target is
// already placed; with componentDeviceDependency the target must sit on
// the given device.
func (p *Packer) dependenciesSatisfied(eff *EffectiveConstraint, deviceID string) bool {
	for _, dep := range eff.Dependencies {
		found := false
		for _, c := range p.ordered {
			if c.ComponentID() != dep {
				continue
			}
			for _, pl := range p.placements[c.Index] {
				if !eff.DeviceDependency || pl.DeviceID == deviceID {
					found = true
					break
				}
			}
			break
		}
		if !found {
			return false
		}
	}
	return true
}

// request computes the candidate's content size within a node at the
// current reduction factor, honouring min/pref/aspect/margin.
func request(eff *EffectiveConstraint, n *node, dpi, reduce float64) (w, h, m float64, ok bool) {
	m = eff.MarginPx(dpi)
	availW := n.w - 2*m
	availH := n.h - 2*m
	minW, minH := eff.MinPx(n.boundW, n.boundH, dpi)
	if availW+geomEps < minW || availH+geomEps < minH {
		return 0, 0, 0, false
	}
	prefW, prefH := eff.PrefPx(n.boundW, n.boundH, dpi)

	w = availW
	if prefW >= 0 {
		w = math.Max(minW, prefW*reduce)
		if w > availW {
			w = availW
		}
	}
	h = availH
	if prefH >= 0 {
		h = math.Max(minH, prefH*reduce)
		if h > availH {
			h = availH
		}
	}
	w, h, ok = correctAspect(w, h, eff.Aspect, minW, minH, availW, availH)
	if !ok {
		return 0, 0, 0, false
	}
	return w, h, m, true
}

// anchorFeasible checks the node-position conditions an anchored
// rectangle imposes. vcenter is checked later, once the size is known.
func anchorFeasible(eff *EffectiveConstraint, n *node) bool {
	if eff.HasAnchor(models.AnchorTop) && n.y > geomEps {
		return false
	}
	if eff.HasAnchor(models.AnchorLeft) && n.x > geomEps {
		return false
	}
	if eff.HasAnchor(models.AnchorRight) && n.x+n.w < n.boundW-geomEps {
		return false
	}
	if eff.HasAnchor(models.AnchorBottom) && n.y+n.h < n.boundH-geomEps {
		return false
	}
	return true
}

// tryFreeNode places the candidate into a free node, splitting it down
// to the requested size. Returns nil when the node rejects the rectangle.
func (p *Packer) tryFreeNode(c *Candidate, eff *EffectiveConstraint, id nodeID, reduce float64, deviceFilter string) *Placement {
	t := p.Tree
	n := t.node(id)

	if !p.eligibleNode(c, eff, id, deviceFilter) {
		return nil
	}
	if !anchorFeasible(eff, n) {
		return nil
	}
	d := &t.Devices[n.deviceIdx]
	w, h, m, ok := request(eff, n, d.Caps.DPI, reduce)
	if !ok {
		return nil
	}

	mark := t.Mark()
	target, ok := p.carveFree(id, eff, w+2*m, h+2*m)
	if !ok {
		t.Rollback(mark)
		return nil
	}
	if !t.TakeMedia(t.node(target).deviceIdx, eff.Audio, eff.Video) {
		t.Rollback(mark)
		return nil
	}
	t.Occupy(target, int32(c.Index))

	tn := t.node(target)
	if tn.w <= geomEps || tn.h <= geomEps ||
		tn.x < -geomEps || tn.y < -geomEps ||
		tn.x+tn.w > tn.boundW+geomEps || tn.y+tn.h > tn.boundH+geomEps {
		// Internal: the split violated a post-condition. Unwind and let
		// the caller keep searching.
		t.Rollback(mark)
		return nil
	}

	pl := &Placement{
		CandIdx:     c.Index,
		ComponentID: c.ComponentID(),
		DeviceID:    d.ID,
		RegionID:    tn.regionID,
		X:           tn.x + m,
		Y:           tn.y + m,
		W:           tn.w - 2*m,
		H:           tn.h - 2*m,
		Margin:      m,
		deviceIdx:   tn.deviceIdx,
		eff:         eff,
		audio:       eff.Audio,
		video:       eff.Video,
	}
	t.ConsolidateAround(target)
	return pl
}

// carveFree splits a free node down to an outer rectangle of outerW x
// outerH, honouring the constraint's edge anchors and vcenter.
func (p *Packer) carveFree(id nodeID, eff *EffectiveConstraint, outerW, outerH float64) (nodeID, bool) {
	t := p.Tree
	n := t.node(id)

	if outerW > n.w+geomEps || outerH > n.h+geomEps {
		return noNode, false
	}

	alignRight := eff.HasAnchor(models.AnchorRight) && !eff.HasAnchor(models.AnchorLeft)
	alignBottom := eff.HasAnchor(models.AnchorBottom) && !eff.HasAnchor(models.AnchorTop)

	target := id

	if eff.HasAnchor(models.AnchorVCenter) {
		// Three-way vertical split: top slice, centred band, bottom
		// slice. Legal only when the region's vertical centre line can
		// centre the rectangle inside this node.
		cy := n.boundH / 2
		top := cy - outerH/2
		if top < n.y-geomEps || top+outerH > n.y+n.h+geomEps {
			return noNode, false
		}
		topSlice := top - n.y
		if topSlice > geomEps {
			_, rest, ok := t.SplitH(target, topSlice, false)
			if !ok {
				return noNode, false
			}
			target = rest
		}
		if t.node(target).h-outerH > geomEps {
			mid, _, ok := t.SplitH(target, outerH, false)
			if !ok {
				return noNode, false
			}
			target = mid
		}
		return p.carveX(target, outerW, alignRight)
	}

	// Two-way splits along the longer legal axis first.
	leftoverW := n.w - outerW
	leftoverH := n.h - outerH
	if leftoverW >= leftoverH {
		var ok bool
		if target, ok = p.carveX(target, outerW, alignRight); !ok {
			return noNode, false
		}
		return p.carveY(target, outerH, alignBottom)
	}
	var ok bool
	if target, ok = p.carveY(target, outerH, alignBottom); !ok {
		return noNode, false
	}
	return p.carveX(target, outerW, alignRight)
}

func (p *Packer) carveX(id nodeID, outerW float64, alignRight bool) (nodeID, bool) {
	t := p.Tree
	n := t.node(id)
	if n.w-outerW <= geomEps {
		return id, true
	}
	if alignRight {
		_, r, ok := t.SplitV(id, n.w-outerW, false)
		if !ok {
			return noNode, false
		}
		return r, true
	}
	l, _, ok := t.SplitV(id, outerW, false)
	if !ok {
		return noNode, false
	}
	return l, true
}

func (p *Packer) carveY(id nodeID, outerH float64, alignBottom bool) (nodeID, bool) {
	t := p.Tree
	n := t.node(id)
	if n.h-outerH <= geomEps {
		return id, true
	}
	if alignBottom {
		_, b, ok := t.SplitH(id, n.h-outerH, false)
		if !ok {
			return noNode, false
		}
		return b, true
	}
	tp, _, ok := t.SplitH(id, outerH, false)
	if !ok {
		return noNode, false
	}
	return tp, true
}

// --- occupied-node donation ----------------------------------------------

// axisFlexible reports whether the constraint declares "don't care" on
// the given axis of its preferred size.
func axisFlexible(eff *EffectiveConstraint, xAxis bool) bool {
	if xAxis {
		return eff.PrefSize.Width < 0
	}
	return eff.PrefSize.Height < 0
}

// anchorsConflict reports whether two rectangles want mutually-exclusive
// anchors on the same edge for a split along the given axis: a
// side-by-side split cannot give both rectangles the left (or right)
// edge; a stacked split cannot give both the top (or bottom) edge.
func anchorsConflict(a, b *EffectiveConstraint, xAxis bool) bool {
	if xAxis {
		if a.HasAnchor(models.AnchorLeft) && b.HasAnchor(models.AnchorLeft) {
			return true
		}
		if a.HasAnchor(models.AnchorRight) && b.HasAnchor(models.AnchorRight) {
			return true
		}
		return false
	}
	if a.HasAnchor(models.AnchorTop) && b.HasAnchor(models.AnchorTop) {
		return true
	}
	if a.HasAnchor(models.AnchorBottom) && b.HasAnchor(models.AnchorBottom) {
		return true
	}
	if a.HasAnchor(models.AnchorVCenter) || b.HasAnchor(models.AnchorVCenter) {
		return true
	}
	return false
}

// occupantOf finds the placement currently holding a node.
func (p *Packer) occupantOf(id nodeID) *Placement {
	t := p.Tree
	n := t.node(id)
	for _, pls := range p.placements {
		for _, pl := range pls {
			if pl.CandIdx == int(n.occupant) && pl.DeviceID == t.Devices[n.deviceIdx].ID &&
				pl.RegionID == n.regionID {
				return pl
			}
		}
	}
	return nil
}

// tryOccupiedSplit donates part of an occupied node to the incoming
// rectangle. The occupant must not care about the split axis (prefSize
// dim = -1) and both rectangles' anchors must stay satisfiable.
func (p *Packer) tryOccupiedSplit(c *Candidate, eff *EffectiveConstraint, id nodeID, reduce float64, deviceFilter string) *Placement {
	t := p.Tree
	n := t.node(id)

	if !p.eligibleNode(c, eff, id, deviceFilter) {
		return nil
	}
	occ := p.occupantOf(id)
	if occ == nil || occ.eff == nil {
		return nil
	}

	d := &t.Devices[n.deviceIdx]
	w, h, m, ok := request(eff, n, d.Caps.DPI, reduce)
	if !ok {
		return nil
	}
	// The full-node request is an upper bound; the donated share must
	// still satisfy the incoming minimum, which splitShare checks.
	_ = w
	_ = h

	for _, xAxis := range []bool{true, false} {
		if !axisFlexible(occ.eff, xAxis) {
			continue
		}
		if anchorsConflict(eff, occ.eff, xAxis) {
			continue
		}
		if pl := p.donate(c, eff, id, occ, xAxis, m, reduce); pl != nil {
			return pl
		}
	}
	return nil
}

// splitShare sizes the two sides of an occupied-node split along one
// axis, following the pair-priority rule.
func splitShare(axisLen float64,
	inPref, inMin, inMargin float64,
	occMin, occMargin float64,
	inPrio, occPrio int) (inShare float64, ok bool) {

	inMinOuter := inMin + 2*inMargin
	occMinOuter := occMin + 2*occMargin
	if inMinOuter+occMinOuter > axisLen+geomEps {
		return 0, false
	}

	if inPref >= 0 {
		// The incoming side has a finite preference: it gets exactly its
		// preference (reduced), the occupant keeps the remainder clamped
		// to its minimum.
		inShare = inPref + 2*inMargin
		if inShare < inMinOuter {
			inShare = inMinOuter
		}
		if axisLen-inShare < occMinOuter {
			inShare = axisLen - occMinOuter
		}
		if inShare < inMinOuter-geomEps {
			return 0, false
		}
		return inShare, true
	}

	// Both sides flexible: split midway, then grow the side with the
	// larger minimum; the higher-priority rectangle wins ties.
	inShare = axisLen / 2
	if inMinOuter > inShare {
		inShare = inMinOuter
	}
	if axisLen-inShare < occMinOuter {
		inShare = axisLen - occMinOuter
	}
	if inShare < inMinOuter-geomEps {
		return 0, false
	}
	if math.Abs(inMinOuter-occMinOuter) < geomEps && occPrio > inPrio {
		// Tie on minima: the higher-priority occupant keeps the larger
		// share.
		if inShare > axisLen/2 {
			inShare = axisLen / 2
		}
	}
	return inShare, true
}

// donate splits an occupied node along one axis, keeps the occupant on
// its anchored side, re-corrects both rectangles' aspects and places the
// incoming candidate into the freed side. Any failure unwinds the split.
func (p *Packer) donate(c *Candidate, eff *EffectiveConstraint, id nodeID, occ *Placement, xAxis bool, inMargin float64, reduce float64) *Placement {
	t := p.Tree
	n := t.node(id)
	d := &t.Devices[n.deviceIdx]
	dpi := d.Caps.DPI

	inMinW, inMinH := eff.MinPx(n.boundW, n.boundH, dpi)
	inPrefW, inPrefH := eff.PrefPx(n.boundW, n.boundH, dpi)
	occMinW, occMinH := occ.eff.MinPx(n.boundW, n.boundH, dpi)

	axisLen := n.w
	inPref, inMin, occMin := inPrefW, inMinW, occMinW
	if !xAxis {
		axisLen = n.h
		inPref, inMin, occMin = inPrefH, inMinH, occMinH
	}
	if inPref >= 0 {
		inPref *= reduce
		if inPref < inMin {
			inPref = inMin
		}
	}

	inPrio := eff.PriorityOn(d.ID)
	occPrio := occ.eff.PriorityOn(d.ID)

	inShare, ok := splitShare(axisLen, inPref, inMin, inMargin, occMin, occ.Margin, inPrio, occPrio)
	if !ok {
		return nil
	}

	// Occupant side selection: keep the occupant on the edge its anchor
	// demands; otherwise the occupant keeps the near side (left/top).
	occFirst := true
	if xAxis && occ.eff.HasAnchor(models.AnchorRight) {
		occFirst = false
	}
	if xAxis && eff.HasAnchor(models.AnchorLeft) {
		occFirst = false
	}
	if !xAxis && occ.eff.HasAnchor(models.AnchorBottom) {
		occFirst = false
	}
	if !xAxis && eff.HasAnchor(models.AnchorTop) {
		occFirst = false
	}

	mark := t.Mark()
	oldOcc := *occ

	var occNode, inNode nodeID
	if xAxis {
		if occFirst {
			a, b, sok := t.SplitV(id, axisLen-inShare, false)
			if !sok {
				return nil
			}
			occNode, inNode = a, b
		} else {
			a, b, sok := t.SplitV(id, inShare, true)
			if !sok {
				return nil
			}
			inNode, occNode = a, b
		}
	} else {
		if occFirst {
			a, b, sok := t.SplitH(id, axisLen-inShare, false)
			if !sok {
				return nil
			}
			occNode, inNode = a, b
		} else {
			a, b, sok := t.SplitH(id, inShare, true)
			if !sok {
				return nil
			}
			inNode, occNode = a, b
		}
	}

	// Re-correct the occupant's content inside its shrunk node.
	on := t.node(occNode)
	availW := on.w - 2*occ.Margin
	availH := on.h - 2*occ.Margin
	ow, oh, cok := correctAspect(
		math.Min(occ.W, availW), math.Min(occ.H, availH),
		occ.eff.Aspect, occMinW, occMinH, availW, availH)
	if !cok || ow < occMinW-geomEps || oh < occMinH-geomEps {
		t.Rollback(mark)
		return nil
	}
	occ.X = on.x + occ.Margin
	occ.Y = on.y + occ.Margin
	occ.W = ow
	occ.H = oh

	// Place the incoming rectangle into the freed side.
	pl := p.tryFreeNode(c, eff, inNode, reduce, "")
	if pl == nil {
		*occ = oldOcc
		t.Rollback(mark)
		return nil
	}
	return pl
}

// --- pass 2: reduction-and-retry -------------------------------------------

type attemptSnapshot struct {
	placements map[int][]*Placement
	placed     int
	whitespace float64
}

func (p *Packer) snapshot() attemptSnapshot {
	cp := make(map[int][]*Placement, len(p.placements))
	for k, pls := range p.placements {
		out := make([]*Placement, len(pls))
		for i, pl := range pls {
			dup := *pl
			out[i] = &dup
		}
		cp[k] = out
	}
	placed := 0
	for _, pls := range cp {
		if len(pls) > 0 {
			placed++
		}
	}
	return attemptSnapshot{placements: cp, placed: placed, whitespace: p.Tree.FreeArea()}
}

func (s attemptSnapshot) betterThan(o attemptSnapshot) bool {
	if s.placed != o.placed {
		return s.placed > o.placed
	}
	return s.whitespace < o.whitespace
}

// unplacedCandidates returns the in-play candidates without placements.
func (p *Packer) unplacedCandidates() []*Candidate {
	var out []*Candidate
	for _, c := range p.ordered {
		if c.Status == "" && len(p.placements[c.Index]) == 0 {
			out = append(out, c)
		}
	}
	return out
}

// regionFreeArea sums free leaf area per region.
func (p *Packer) regionFreeArea() map[RegionRef]float64 {
	out := make(map[RegionRef]float64)
	for _, id := range p.Tree.Leaves() {
		n := p.Tree.node(id)
		if n.free() {
			out[p.Tree.RegionRefOf(id)] += n.area()
		}
	}
	return out
}

// passReduce retries the initial fit with multiplicatively reduced
// preferred sizes (floor: declared minimums), resetting only the regions
// that still hold unplaced candidates and are not already at capacity.
// The best attempt by (most placed, least white space) wins.
func (p *Packer) passReduce() {
	if len(p.unplacedCandidates()) == 0 {
		return
	}

	best := p.snapshot()

	factor := p.Cfg.ReduceFactor
	tries := p.Cfg.ReduceTries
	if factor >= 1.0-geomEps {
		// A unit reduce factor collapses the pass to the single attempt
		// pass 1 already made.
		return
	}

	reduce := 1.0
	for it := 1; it <= tries; it++ {
		unplaced := p.unplacedCandidates()
		if len(unplaced) == 0 {
			break
		}
		reduce *= factor

		// Regions still wanted by an unplaced candidate, not at capacity.
		free := p.regionFreeArea()
		reset := make(map[RegionRef]bool)
		for _, c := range unplaced {
			for _, e := range []*EffectiveConstraint{c.Res.Communal, c.Res.Personal} {
				if e == nil {
					continue
				}
				for ref := range e.ValidRegions {
					if free[ref] > geomEps {
						reset[ref] = true
					}
				}
			}
		}
		if len(reset) == 0 {
			break
		}

		// Evict placements from the reset regions and release their
		// media budget; those candidates re-enter this attempt.
		for idx, pls := range p.placements {
			kept := pls[:0]
			for _, pl := range pls {
				if reset[pl.ref()] {
					p.releaseMedia(pl)
					continue
				}
				kept = append(kept, pl)
			}
			if len(kept) == 0 {
				delete(p.placements, idx)
			} else {
				p.placements[idx] = kept
			}
		}
		p.Tree.ResetRegions(reset)

		p.passInitial(p.ordered, reduce)

		if snap := p.snapshot(); snap.betterThan(best) {
			best = snap
		}
	}

	p.placements = best.placements
}

func (p *Packer) releaseMedia(pl *Placement) {
	if pl.audio {
		p.Tree.audioLeft[pl.deviceIdx]++
	}
	if pl.video {
		p.Tree.videoLeft[pl.deviceIdx]++
	}
}

// --- pass 3: beautify -------------------------------------------------------

// regionPlacements groups the current placements per region.
func (p *Packer) regionPlacements() map[RegionRef][]*Placement {
	out := make(map[RegionRef][]*Placement)
	for _, pls := range p.placements {
		for _, pl := range pls {
			out[pl.ref()] = append(out[pl.ref()], pl)
		}
	}
	return out
}

// passBeautify re-packs each region that still has white space: its
// rectangles are re-placed large-first into a fresh tree, greedily and
// without occupied-node splits. The new arrangement is kept only when it
// places at least as many rectangles and fills at least as much area.
func (p *Packer) passBeautify() {
	byRegion := p.regionPlacements()
	regions := regionsOf(p.Tree)

	for _, rb := range regions {
		pls := byRegion[rb.ref]
		if len(pls) == 0 {
			continue
		}
		var filled float64
		for _, pl := range pls {
			filled += pl.outerW() * pl.outerH()
		}
		if rb.w*rb.h-filled <= geomEps {
			continue
		}

		improved, newFilled, ok := repackRegion(rb, pls, false)
		if ok && len(improved) >= len(pls) && newFilled >= filled-geomEps {
			p.adoptRegion(rb.ref, pls, improved)
			pls = improved
			filled = newFilled
		}

		if !monotonicTopLeft(pls) {
			reordered, reFilled, rok := repackRegion(rb, pls, true)
			if rok && len(reordered) >= len(pls) && reFilled >= filled-geomEps {
				p.adoptRegion(rb.ref, pls, reordered)
			}
		}
	}
}

// adoptRegion swaps a region's placements for re-packed replacements,
// matching by candidate index.
func (p *Packer) adoptRegion(ref RegionRef, old, repacked []*Placement) {
	byCand := make(map[int]*Placement, len(repacked))
	for _, pl := range repacked {
		byCand[pl.CandIdx] = pl
	}
	for idx, pls := range p.placements {
		for i, pl := range pls {
			if pl.ref() != ref {
				continue
			}
			if np, ok := byCand[idx]; ok {
				pls[i] = np
			}
		}
	}
	_ = old
}

// monotonicTopLeft reports whether placements, in order, are
// monotonically increasing in (y, then x).
func monotonicTopLeft(pls []*Placement) bool {
	for i := 1; i < len(pls); i++ {
		a, b := pls[i-1], pls[i]
		if b.Y < a.Y-geomEps {
			return false
		}
		if math.Abs(b.Y-a.Y) <= geomEps && b.X < a.X-geomEps {
			return false
		}
	}
	return true
}

// repackRegion re-places a region's rectangles, large-first, into a
// fresh single-region tree using each rectangle's achieved size. With
// topLeft set, each rectangle takes the top-left-most free node that
// fits instead of the first fit.
func repackRegion(rb regionBounds, pls []*Placement, topLeft bool) ([]*Placement, float64, bool) {
	rects := make([]*Placement, len(pls))
	copy(rects, pls)
	sort.SliceStable(rects, func(i, j int) bool {
		return rects[i].outerW()*rects[i].outerH() > rects[j].outerW()*rects[j].outerH()
	})

	t := &Tree{
		Devices:   []models.Device{{ID: rb.ref.DeviceID}},
		audioLeft: []int{0},
		videoLeft: []int{0},
	}
	t.addRoot(0, rb.ref.RegionID, rb.w, rb.h)

	sub := &Packer{Tree: t, placements: make(map[int][]*Placement)}

	var out []*Placement
	var filled float64
	for _, r := range rects {
		target := noNode
		var bestY, bestX float64
		for _, id := range t.Leaves() {
			n := t.node(id)
			if !n.free() || n.w+geomEps < r.outerW() || n.h+geomEps < r.outerH() {
				continue
			}
			if !anchorFeasibleRect(r, n) {
				continue
			}
			if target == noNode || (topLeft && (n.y < bestY-geomEps ||
				(math.Abs(n.y-bestY) <= geomEps && n.x < bestX-geomEps))) {
				target = id
				bestY, bestX = n.y, n.x
			}
			if !topLeft {
				break
			}
		}
		if target == noNode {
			continue
		}
		carved, ok := sub.carveFree(target, r.eff, r.outerW(), r.outerH())
		if !ok {
			continue
		}
		t.Occupy(carved, int32(r.CandIdx))
		cn := t.node(carved)
		np := *r
		np.X = cn.x + r.Margin
		np.Y = cn.y + r.Margin
		np.W = cn.w - 2*r.Margin
		np.H = cn.h - 2*r.Margin
		out = append(out, &np)
		filled += np.outerW() * np.outerH()
	}
	return out, filled, true
}

// anchorFeasibleRect mirrors anchorFeasible for an already-sized
// rectangle during re-pack.
func anchorFeasibleRect(r *Placement, n *node) bool {
	if r.eff == nil {
		return true
	}
	return anchorFeasible(r.eff, n)
}
