// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package layout

import (
	"math"
	"testing"

	"github.com/tomtom215/mosaicus/internal/models"
)

func almostEq(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func singleRegionTree(w, h float64) *Tree {
	return NewTree([]models.Device{{
		ID: "d1",
		Caps: models.Capabilities{
			DisplayWidth: w, DisplayHeight: h,
			ConcurrentAudio: 2, ConcurrentVideo: 2, Communal: true,
		},
	}})
}

func TestNewTreeRoots(t *testing.T) {
	devices := []models.Device{
		{
			ID:   "tv",
			Caps: models.Capabilities{DisplayWidth: 1920, DisplayHeight: 1080, Communal: true},
			Regions: []models.Region{
				{ID: "main", Width: 1280, Height: 1080},
				{ID: "side", Width: 640, Height: 1080},
			},
		},
		{
			ID:   "tablet",
			Caps: models.Capabilities{DisplayWidth: 1024, DisplayHeight: 768},
		},
	}
	tr := NewTree(devices)

	leaves := tr.Leaves()
	if len(leaves) != 3 {
		t.Fatalf("leaves = %d, want 3", len(leaves))
	}
	refs := make(map[RegionRef]bool)
	for _, id := range leaves {
		refs[tr.RegionRefOf(id)] = true
	}
	for _, want := range []RegionRef{
		{DeviceID: "tv", RegionID: "main"},
		{DeviceID: "tv", RegionID: "side"},
		{DeviceID: "tablet"},
	} {
		if !refs[want] {
			t.Errorf("missing region root %+v", want)
		}
	}
	if !almostEq(tr.FreeArea(), 1280*1080+640*1080+1024*768) {
		t.Errorf("free area = %g", tr.FreeArea())
	}
}

func TestSplitAndRollback(t *testing.T) {
	tr := singleRegionTree(100, 100)
	root := tr.roots[0]

	mark := tr.Mark()
	l, r, ok := tr.SplitV(root, 40, false)
	if !ok {
		t.Fatal("SplitV failed")
	}
	if nl := tr.node(l); !almostEq(nl.w, 40) || !almostEq(nl.h, 100) {
		t.Errorf("left = %gx%g", nl.w, nl.h)
	}
	if nr := tr.node(r); !almostEq(nr.x, 40) || !almostEq(nr.w, 60) {
		t.Errorf("right = x%g w%g", nr.x, nr.w)
	}

	tp, bt, ok := tr.SplitH(l, 30, false)
	if !ok {
		t.Fatal("SplitH failed")
	}
	tr.Occupy(tp, 7)
	if tr.node(tp).free() {
		t.Error("occupied node reported free")
	}
	if !almostEq(tr.FreeArea(), 100*100-40*30) {
		t.Errorf("free area = %g", tr.FreeArea())
	}
	_ = bt

	tr.Rollback(mark)
	if len(tr.Leaves()) != 1 {
		t.Fatalf("leaves after rollback = %d, want 1", len(tr.Leaves()))
	}
	n := tr.node(root)
	if n.nchildren != 0 || !n.free() {
		t.Error("root not restored to a free leaf")
	}
	if !almostEq(tr.FreeArea(), 100*100) {
		t.Errorf("free area after rollback = %g", tr.FreeArea())
	}
}

func TestSplitOccupiedRollbackRestoresOccupant(t *testing.T) {
	tr := singleRegionTree(100, 100)
	root := tr.roots[0]
	tr.Occupy(root, 7)

	mark := tr.Mark()
	l, _, ok := tr.SplitV(root, 40, false)
	if !ok {
		t.Fatal("SplitV refused an occupied leaf")
	}
	if tr.node(l).occupant != 7 {
		t.Fatalf("occupant not donated to left child: %d", tr.node(l).occupant)
	}

	tr.Rollback(mark)
	n := tr.node(root)
	if n.nchildren != 0 {
		t.Fatal("split not unwound")
	}
	if n.occupant != 7 {
		t.Errorf("occupant after rollback = %d, want 7", n.occupant)
	}

	mark = tr.Mark()
	tp, _, ok := tr.SplitH(root, 30, false)
	if !ok {
		t.Fatal("SplitH refused an occupied leaf")
	}
	if tr.node(tp).occupant != 7 {
		t.Fatalf("occupant not donated to top child: %d", tr.node(tp).occupant)
	}
	tr.Rollback(mark)
	if tr.node(root).occupant != 7 {
		t.Errorf("occupant after SplitH rollback = %d, want 7", tr.node(root).occupant)
	}
}

func TestConsolidateAndRollback(t *testing.T) {
	tr := singleRegionTree(100, 100)
	root := tr.roots[0]

	l, r, _ := tr.SplitV(root, 50, false)

	mark := tr.Mark()
	merged, ok := tr.Consolidate(l, r)
	if !ok {
		t.Fatal("Consolidate refused mergeable siblings")
	}
	m := tr.node(merged)
	if !almostEq(m.w, 100) || !almostEq(m.h, 100) {
		t.Errorf("merged = %gx%g", m.w, m.h)
	}
	if !tr.node(l).dead || !tr.node(r).dead {
		t.Error("source nodes not retired")
	}
	if !almostEq(tr.FreeArea(), 100*100) {
		t.Errorf("free area after merge = %g (double counted?)", tr.FreeArea())
	}

	tr.Rollback(mark)
	if tr.node(l).dead || tr.node(r).dead {
		t.Error("rollback did not revive sources")
	}
	if !almostEq(tr.FreeArea(), 100*100) {
		t.Errorf("free area after rollback = %g", tr.FreeArea())
	}
}

func TestConsolidateRejectsMismatched(t *testing.T) {
	tr := singleRegionTree(100, 100)
	root := tr.roots[0]
	l, r, _ := tr.SplitV(root, 40, false)
	// Different heights after an inner split: no full shared edge.
	tp, _, _ := tr.SplitH(l, 30, false)
	if _, ok := tr.Consolidate(tp, r); ok {
		t.Error("merged leaves without a full shared edge")
	}
	// Occupied nodes never merge.
	tr.Occupy(r, 1)
	l2 := tr.node(l).children[1]
	if _, ok := tr.Consolidate(l2, r); ok {
		t.Error("merged an occupied leaf")
	}
}

func TestResetRegions(t *testing.T) {
	tr := singleRegionTree(100, 100)
	root := tr.roots[0]
	l, r, _ := tr.SplitV(root, 50, false)
	tr.Occupy(l, 1)
	tr.Occupy(r, 2)
	if tr.FreeArea() != 0 {
		t.Fatalf("free area = %g, want 0", tr.FreeArea())
	}

	tr.ResetRegions(map[RegionRef]bool{{DeviceID: "d1"}: true})
	leaves := tr.Leaves()
	if len(leaves) != 1 {
		t.Fatalf("leaves after reset = %d, want 1", len(leaves))
	}
	if !almostEq(tr.FreeArea(), 100*100) {
		t.Errorf("free area after reset = %g", tr.FreeArea())
	}
	if len(tr.log) != 0 {
		t.Error("undo log survived a region reset")
	}
}

func TestMediaBudget(t *testing.T) {
	tr := singleRegionTree(100, 100)

	if !tr.HasMedia(0, true, true) {
		t.Fatal("fresh budget reports exhausted")
	}
	mark := tr.Mark()
	if !tr.TakeMedia(0, true, false) || !tr.TakeMedia(0, true, false) {
		t.Fatal("TakeMedia failed within budget")
	}
	if tr.TakeMedia(0, true, false) {
		t.Error("TakeMedia exceeded the audio budget")
	}
	if !tr.HasMedia(0, false, true) {
		t.Error("video budget drained by audio takes")
	}
	tr.Rollback(mark)
	if !tr.HasMedia(0, true, false) || tr.audioLeft[0] != 2 {
		t.Errorf("audio budget after rollback = %d, want 2", tr.audioLeft[0])
	}
}

func TestCorrectAspect(t *testing.T) {
	tests := []struct {
		name               string
		w, h, aspect       float64
		minW, minH         float64
		maxW, maxH         float64
		wantW, wantH       float64
		wantOK             bool
	}{
		{"free aspect", 300, 200, 0, 1, 1, 400, 400, 300, 200, true},
		{"already correct", 160, 90, 0.5625, 1, 1, 200, 200, 160, 90, true},
		{"grow height", 160, 50, 0.5625, 1, 1, 200, 200, 160, 90, true},
		{"clamp to max height", 160, 90, 1.0, 1, 1, 200, 100, 100, 100, true},
		{"violates min", 160, 90, 2.0, 150, 1, 200, 100, 0, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h, ok := correctAspect(tc.w, tc.h, tc.aspect, tc.minW, tc.minH, tc.maxW, tc.maxH)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if !almostEq(w, tc.wantW) || !almostEq(h, tc.wantH) {
				t.Errorf("got %gx%g, want %gx%g", w, h, tc.wantW, tc.wantH)
			}
			if tc.aspect > 0 && math.Abs(h/w-tc.aspect) > aspectTolerance {
				t.Errorf("aspect %g out of tolerance", h/w)
			}
		})
	}
}
