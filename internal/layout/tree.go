// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package layout

import (
	"math"

	"github.com/tomtom215/mosaicus/internal/models"
)

// aspectTolerance bounds the aspect-ratio error |h/w - aspect| accepted
// on a placed rectangle.
const aspectTolerance = 1e-3

// nodeID indexes into a Tree's node arena.
type nodeID int32

const noNode nodeID = -1

// noOccupant marks a free node.
const noOccupant int32 = -1

// node is one rectangle in a region's BSP partition. Coordinates are
// relative to the host region's origin; bounding w/h are the host
// region's and never change across splits.
type node struct {
	x, y, w, h     float64
	boundW, boundH float64

	deviceIdx int32
	regionID  string

	occupant int32

	parent    nodeID
	children  [3]nodeID
	nchildren int8

	// dead nodes were replaced by a consolidation; they stay in the
	// arena so undo can revive them, but no traversal visits them.
	dead bool
}

func (n *node) leaf() bool { return n.nchildren == 0 && !n.dead }

func (n *node) free() bool { return n.occupant == noOccupant }

func (n *node) area() float64 { return n.w * n.h }

// sameRegion reports whether two nodes partition the same host region.
func (n *node) sameRegion(m *node) bool {
	return n.deviceIdx == m.deviceIdx && n.regionID == m.regionID
}

// Tree is the BSP node set for one layout group: one root per logical
// region, plus the per-device audio/video budget counters.
type Tree struct {
	nodes []node
	roots []nodeID

	Devices []models.Device

	audioLeft []int
	videoLeft []int

	log []undoRec
}

// NewTree builds the initial node list for a group: one root node per
// logical region of each device, or one whole-display node for a device
// that declares none. Device orientation is applied to the display size
// before the whole-display root is sized.
func NewTree(devices []models.Device) *Tree {
	t := &Tree{
		Devices:   devices,
		audioLeft: make([]int, len(devices)),
		videoLeft: make([]int, len(devices)),
	}
	for i := range devices {
		d := &devices[i]
		t.audioLeft[i] = d.Caps.ConcurrentAudio
		t.videoLeft[i] = d.Caps.ConcurrentVideo
		if len(d.Regions) == 0 {
			w, h := d.DisplaySize()
			t.addRoot(int32(i), "", w, h)
			continue
		}
		for _, reg := range d.Regions {
			t.addRoot(int32(i), reg.ID, reg.Width, reg.Height)
		}
	}
	return t
}

func (t *Tree) addRoot(deviceIdx int32, regionID string, w, h float64) nodeID {
	id := t.alloc(node{
		w: w, h: h,
		boundW: w, boundH: h,
		deviceIdx: deviceIdx,
		regionID:  regionID,
		occupant:  noOccupant,
		parent:    noNode,
	})
	t.roots = append(t.roots, id)
	return id
}

func (t *Tree) alloc(n node) nodeID {
	id := nodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	return id
}

func (t *Tree) node(id nodeID) *node { return &t.nodes[id] }

// Leaves returns the live leaf nodes in deterministic order: roots in
// build order, children depth-first in split order.
func (t *Tree) Leaves() []nodeID {
	var out []nodeID
	var walk func(id nodeID)
	walk = func(id nodeID) {
		n := t.node(id)
		if n.dead {
			return
		}
		if n.nchildren == 0 {
			out = append(out, id)
			return
		}
		for i := int8(0); i < n.nchildren; i++ {
			walk(n.children[i])
		}
	}
	for _, r := range t.roots {
		walk(r)
	}
	return out
}

// RegionRefOf returns the region reference a node belongs to.
func (t *Tree) RegionRefOf(id nodeID) RegionRef {
	n := t.node(id)
	return RegionRef{DeviceID: t.Devices[n.deviceIdx].ID, RegionID: n.regionID}
}

// FreeArea sums the area of all free live leaves.
func (t *Tree) FreeArea() float64 {
	var sum float64
	for _, id := range t.Leaves() {
		n := t.node(id)
		if n.free() {
			sum += n.area()
		}
	}
	return sum
}

// --- undo log -------------------------------------------------------------

type undoKind uint8

const (
	undoOccupy undoKind = iota
	undoSplit
	undoConsolidate
	undoCounter
)

type undoRec struct {
	kind undoKind

	n            nodeID // occupied node / split parent / merged node
	prevOccupant int32

	a, b nodeID // consolidation sources

	nodesLen int // arena length before the op, for LIFO truncation
	rootsLen int // roots length before a consolidation

	deviceIdx    int32
	audio, video int
}

// Mark returns a checkpoint for Rollback.
func (t *Tree) Mark() int { return len(t.log) }

// Rollback reverses, last-in first-out, every operation since the mark.
func (t *Tree) Rollback(mark int) {
	for i := len(t.log) - 1; i >= mark; i-- {
		rec := t.log[i]
		switch rec.kind {
		case undoOccupy:
			t.node(rec.n).occupant = rec.prevOccupant
		case undoSplit:
			n := t.node(rec.n)
			n.nchildren = 0
			n.occupant = rec.prevOccupant
			t.nodes = t.nodes[:rec.nodesLen]
		case undoConsolidate:
			t.nodes = t.nodes[:rec.nodesLen]
			t.roots = t.roots[:rec.rootsLen]
			t.node(rec.a).dead = false
			t.node(rec.b).dead = false
		case undoCounter:
			t.audioLeft[rec.deviceIdx] += rec.audio
			t.videoLeft[rec.deviceIdx] += rec.video
		}
	}
	t.log = t.log[:mark]
}

// --- operations -----------------------------------------------------------

// Occupy assigns a candidate to a free node.
func (t *Tree) Occupy(id nodeID, cand int32) {
	n := t.node(id)
	t.log = append(t.log, undoRec{kind: undoOccupy, n: id, prevOccupant: n.occupant})
	n.occupant = cand
}

// Release frees a node (undo-logged like Occupy).
func (t *Tree) Release(id nodeID) {
	n := t.node(id)
	t.log = append(t.log, undoRec{kind: undoOccupy, n: id, prevOccupant: n.occupant})
	n.occupant = noOccupant
}

// TakeMedia decrements the host device's audio/video budget for the
// given media flags. Returns false without mutating when the budget is
// exhausted.
func (t *Tree) TakeMedia(deviceIdx int32, audio, video bool) bool {
	a, v := 0, 0
	if audio {
		if t.audioLeft[deviceIdx] <= 0 {
			return false
		}
		a = 1
	}
	if video {
		if t.videoLeft[deviceIdx] <= 0 {
			return false
		}
		v = 1
	}
	if a == 0 && v == 0 {
		return true
	}
	t.audioLeft[deviceIdx] -= a
	t.videoLeft[deviceIdx] -= v
	t.log = append(t.log, undoRec{kind: undoCounter, deviceIdx: deviceIdx, audio: a, video: v})
	return true
}

// HasMedia reports whether the device still has budget for the flags.
func (t *Tree) HasMedia(deviceIdx int32, audio, video bool) bool {
	if audio && t.audioLeft[deviceIdx] <= 0 {
		return false
	}
	if video && t.videoLeft[deviceIdx] <= 0 {
		return false
	}
	return true
}

// SplitV splits a free or occupied leaf vertically (children side by
// side) at leftW. The occupant, if any, stays on the left child unless
// occupantRight is set.
func (t *Tree) SplitV(id nodeID, leftW float64, occupantRight bool) (left, right nodeID, ok bool) {
	n := t.node(id)
	if leftW <= 0 || leftW >= n.w || n.nchildren != 0 || n.dead {
		return noNode, noNode, false
	}
	rec := undoRec{kind: undoSplit, n: id, nodesLen: len(t.nodes), prevOccupant: n.occupant}

	occ := n.occupant
	base := *n
	l := t.alloc(node{
		x: base.x, y: base.y, w: leftW, h: base.h,
		boundW: base.boundW, boundH: base.boundH,
		deviceIdx: base.deviceIdx, regionID: base.regionID,
		occupant: noOccupant, parent: id,
	})
	r := t.alloc(node{
		x: base.x + leftW, y: base.y, w: base.w - leftW, h: base.h,
		boundW: base.boundW, boundH: base.boundH,
		deviceIdx: base.deviceIdx, regionID: base.regionID,
		occupant: noOccupant, parent: id,
	})
	if occ != noOccupant {
		if occupantRight {
			t.node(r).occupant = occ
		} else {
			t.node(l).occupant = occ
		}
	}

	n = t.node(id) // alloc may have moved the backing array
	n.children = [3]nodeID{l, r, noNode}
	n.nchildren = 2
	n.occupant = noOccupant
	t.log = append(t.log, rec)
	return l, r, true
}

// SplitH splits a free or occupied leaf horizontally (children stacked)
// at topH. The occupant, if any, stays on the top child unless
// occupantBottom is set.
func (t *Tree) SplitH(id nodeID, topH float64, occupantBottom bool) (top, bottom nodeID, ok bool) {
	n := t.node(id)
	if topH <= 0 || topH >= n.h || n.nchildren != 0 || n.dead {
		return noNode, noNode, false
	}
	rec := undoRec{kind: undoSplit, n: id, nodesLen: len(t.nodes), prevOccupant: n.occupant}

	occ := n.occupant
	base := *n
	tp := t.alloc(node{
		x: base.x, y: base.y, w: base.w, h: topH,
		boundW: base.boundW, boundH: base.boundH,
		deviceIdx: base.deviceIdx, regionID: base.regionID,
		occupant: noOccupant, parent: id,
	})
	bt := t.alloc(node{
		x: base.x, y: base.y + topH, w: base.w, h: base.h - topH,
		boundW: base.boundW, boundH: base.boundH,
		deviceIdx: base.deviceIdx, regionID: base.regionID,
		occupant: noOccupant, parent: id,
	})
	if occ != noOccupant {
		if occupantBottom {
			t.node(bt).occupant = occ
		} else {
			t.node(tp).occupant = occ
		}
	}

	n = t.node(id)
	n.children = [3]nodeID{tp, bt, noNode}
	n.nchildren = 2
	n.occupant = noOccupant
	t.log = append(t.log, rec)
	return tp, bt, true
}

// mergeable reports whether two free live leaves of the same region
// share the full length of one edge with identical orthogonal length.
func (t *Tree) mergeable(a, b nodeID) bool {
	na, nb := t.node(a), t.node(b)
	if !na.leaf() || !nb.leaf() || !na.free() || !nb.free() || !na.sameRegion(nb) {
		return false
	}
	const eps = 1e-6
	// Vertical stack: same x span, touching horizontally.
	if math.Abs(na.x-nb.x) < eps && math.Abs(na.w-nb.w) < eps {
		if math.Abs(na.y+na.h-nb.y) < eps || math.Abs(nb.y+nb.h-na.y) < eps {
			return true
		}
	}
	// Horizontal pair: same y span, touching vertically.
	if math.Abs(na.y-nb.y) < eps && math.Abs(na.h-nb.h) < eps {
		if math.Abs(na.x+na.w-nb.x) < eps || math.Abs(nb.x+nb.w-na.x) < eps {
			return true
		}
	}
	return false
}

// Consolidate merges two mergeable free leaves into a fresh root-less
// node covering their union, retiring both sources. Returns the merged
// node.
func (t *Tree) Consolidate(a, b nodeID) (nodeID, bool) {
	if !t.mergeable(a, b) {
		return noNode, false
	}
	rec := undoRec{kind: undoConsolidate, a: a, b: b, nodesLen: len(t.nodes), rootsLen: len(t.roots)}
	na, nb := t.node(a), t.node(b)
	merged := node{
		x: math.Min(na.x, nb.x), y: math.Min(na.y, nb.y),
		boundW: na.boundW, boundH: na.boundH,
		deviceIdx: na.deviceIdx, regionID: na.regionID,
		occupant: noOccupant, parent: noNode,
	}
	merged.w = math.Max(na.x+na.w, nb.x+nb.w) - merged.x
	merged.h = math.Max(na.y+na.h, nb.y+nb.h) - merged.y

	id := t.alloc(merged)
	t.node(a).dead = true
	t.node(b).dead = true
	t.roots = append(t.roots, id)
	t.log = append(t.log, rec)
	return id, true
}

// Note: Consolidate appends the merged node to roots; Rollback truncates
// the arena, so stale root ids are filtered by the dead check during
// traversal. Roots never shrink within one evaluation.

// adjacent reports whether two live leaves of the same region touch along
// any edge segment.
func (t *Tree) adjacent(a, b nodeID) bool {
	na, nb := t.node(a), t.node(b)
	if !na.sameRegion(nb) {
		return false
	}
	const eps = 1e-6
	xOverlap := na.x < nb.x+nb.w-eps && nb.x < na.x+na.w-eps
	yOverlap := na.y < nb.y+nb.h-eps && nb.y < na.y+na.h-eps
	touchX := math.Abs(na.x+na.w-nb.x) < eps || math.Abs(nb.x+nb.w-na.x) < eps
	touchY := math.Abs(na.y+na.h-nb.y) < eps || math.Abs(nb.y+nb.h-na.y) < eps
	return (touchX && yOverlap) || (touchY && xOverlap)
}

// ConsolidateAround merges free neighbours of a newly placed node until
// no further merge is possible. Only pairs where at least one side
// touches the placed node's edges are considered; merging cascades
// because a merged node is itself a neighbour candidate.
func (t *Tree) ConsolidateAround(placed nodeID) {
	for {
		leaves := t.Leaves()
		var frontier []nodeID
		for _, id := range leaves {
			n := t.node(id)
			if n.free() && t.adjacent(placed, id) {
				frontier = append(frontier, id)
			}
		}
		mergedAny := false
		for _, f := range frontier {
			if t.node(f).dead {
				continue
			}
			for _, other := range leaves {
				if other == f || t.node(other).dead {
					continue
				}
				if _, ok := t.Consolidate(f, other); ok {
					mergedAny = true
					break
				}
			}
			if mergedAny {
				break
			}
		}
		if !mergedAny {
			return
		}
	}
}

// ResetRegions rebuilds one fresh, empty root per given region and
// retires every live root (including consolidation spill-over roots) of
// those regions. Media counters are the packer's to release; this only
// resets geometry. Not undoable: callers truncate the undo log around
// whole-region resets.
func (t *Tree) ResetRegions(refs map[RegionRef]bool) {
	done := make(map[RegionRef]bool, len(refs))
	for i := range t.roots {
		r := t.roots[i]
		n := t.node(r)
		if n.dead {
			continue
		}
		ref := t.RegionRefOf(r)
		if !refs[ref] {
			continue
		}
		bw, bh := n.boundW, n.boundH
		di, rid := n.deviceIdx, n.regionID
		t.killSubtree(r)
		if done[ref] {
			continue
		}
		done[ref] = true
		fresh := t.alloc(node{
			w: bw, h: bh,
			boundW: bw, boundH: bh,
			deviceIdx: di, regionID: rid,
			occupant: noOccupant, parent: noNode,
		})
		t.roots[i] = fresh
	}
	t.log = t.log[:0]
}

func (t *Tree) killSubtree(id nodeID) {
	n := t.node(id)
	n.dead = true
	for i := int8(0); i < n.nchildren; i++ {
		t.killSubtree(n.children[i])
	}
	n.nchildren = 0
}

// correctAspect adjusts a w/h pair to satisfy an aspect ratio within
// tolerance, keeping the result within [minW,minH] and [maxW,maxH].
// aspect is height over width; aspect 0 passes through.
func correctAspect(w, h, aspect, minW, minH, maxW, maxH float64) (float64, float64, bool) {
	if aspect <= 0 {
		return w, h, true
	}
	if w > 0 && math.Abs(h/w-aspect) <= aspectTolerance {
		return w, h, true
	}
	nh := w * aspect
	if nh > maxH {
		nh = maxH
		w = nh / aspect
	}
	if w > maxW {
		w = maxW
		nh = w * aspect
	}
	if w < minW || nh < minH || nh > maxH {
		return 0, 0, false
	}
	return w, nh, true
}
