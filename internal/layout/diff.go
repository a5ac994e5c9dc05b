// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package layout

import (
	"bytes"
	"math"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mosaicus/internal/models"
)

// diffLayouts compares the previous and new layouts into the create,
// update and destroy message sets. Message ids are issued create-first,
// then update, then destroy, so id order is replay order within a diff.
//
// Create messages carry a timestamp 100ms before the layout timestamp,
// giving clients a pre-load window before the matching updates land.
// Creates come in two forms: the full form with layout geometry for a
// device already known from the previous layout, and the fresh-init
// form without geometry for a device seen for the first time.
func diffLayouts(in *EvalInput, next *models.Layout, nextID func() uint64) *models.Diff {
	d := &models.Diff{}
	prev := in.Previous

	type key struct{ device, component string }
	prevSet := make(map[key]*models.PlacedComponent)
	prevDevices := make(map[string]bool)
	if prev != nil {
		for i := range prev.Devices {
			pd := &prev.Devices[i]
			prevDevices[pd.DeviceID] = true
			for j := range pd.Components {
				pc := &pd.Components[j]
				prevSet[key{pd.DeviceID, pc.ComponentID}] = pc
			}
		}
	}

	var updates []*models.PlacedComponent

	for i := range next.Devices {
		nd := &next.Devices[i]
		for j := range nd.Components {
			nc := &nd.Components[j]
			k := key{nd.DeviceID, nc.ComponentID}
			pc, existed := prevSet[k]
			if !existed {
				comp := in.DMApp.Component(nc.ComponentID)
				msg := models.CreateMessage{
					MessageID:   nextID(),
					Timestamp:   in.Now - models.CreateTimestampOffsetNs,
					ComponentID: nc.ComponentID,
					ContextID:   in.Context.ID,
					DMAppID:     in.DMApp.ID,
					DeviceID:    nd.DeviceID,
					StartTime:   nc.StartTime,
					StopTime:    nc.StopTime,
					Layout:      layoutRef(nc),
					Parameters:  nc.Parameters,
					Priorities:  nc.Priorities,
				}
				if comp != nil {
					msg.Config = comp.Config
				}
				// A device absent from the previous layout receives the
				// full layout document on join; its creates only have to
				// instantiate the component (fresh-init form).
				if !prevDevices[nd.DeviceID] {
					msg.Layout = nil
				}
				d.Create = append(d.Create, msg)
				continue
			}
			delete(prevSet, k)
			if placementChanged(pc, nc) {
				updates = append(updates, nc)
			}
		}
	}

	for _, nc := range updates {
		d.Update = append(d.Update, models.UpdateMessage{
			MessageID:   nextID(),
			Timestamp:   in.Now,
			ComponentID: nc.ComponentID,
			ContextID:   in.Context.ID,
			DMAppID:     in.DMApp.ID,
			DeviceID:    nc.DeviceID,
			StartTime:   nc.StartTime,
			StopTime:    nc.StopTime,
			Layout:      layoutRef(nc),
			Parameters:  nc.Parameters,
			Priorities:  nc.Priorities,
		})
	}

	// Destroys follow previous-layout order for determinism.
	if prev != nil {
		for i := range prev.Devices {
			pd := &prev.Devices[i]
			for j := range pd.Components {
				pc := &pd.Components[j]
				if _, gone := prevSet[key{pd.DeviceID, pc.ComponentID}]; !gone {
					continue
				}
				var stop *int64
				if comp := in.DMApp.Component(pc.ComponentID); comp != nil {
					stop = comp.StopTime
				}
				d.Destroy = append(d.Destroy, models.DestroyMessage{
					MessageID:   nextID(),
					Timestamp:   in.Now,
					ComponentID: pc.ComponentID,
					ContextID:   in.Context.ID,
					DMAppID:     in.DMApp.ID,
					DeviceID:    pd.DeviceID,
					StopTime:    stop,
					InstanceID:  pc.InstanceID,
				})
			}
		}
	}

	return d
}

func layoutRef(pc *models.PlacedComponent) *models.ComponentLayoutRef {
	return &models.ComponentLayoutRef{
		Position:   pc.Position,
		Size:       pc.Size,
		ZDepth:     pc.ZDepth,
		RegionID:   pc.RegionID,
		DeviceID:   pc.DeviceID,
		InstanceID: pc.InstanceID,
	}
}

func dimEq(a, b models.Dim) bool {
	if a.Percent != b.Percent {
		return false
	}
	if a.Percent {
		return math.Abs(a.Value-b.Value) < 1e-9
	}
	// Pixel dims compare after the same rounding the wire format applies.
	return math.Round(a.Value) == math.Round(b.Value)
}

func posEq(a, b *models.Position) bool {
	if a == nil || b == nil {
		return a == b
	}
	return dimEq(a.X, b.X) && dimEq(a.Y, b.Y)
}

func sizeEq(a, b *models.Size) bool {
	if a == nil || b == nil {
		return a == b
	}
	return dimEq(a.Width, b.Width) && dimEq(a.Height, b.Height)
}

func int64PtrEq(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// jsonEq compares two opaque payloads by wire representation; the store
// round-trips them through the same marshaller, so this is stable.
func jsonEq(a, b any) bool {
	ab, aerr := json.Marshal(a)
	bb, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// placementChanged reports whether a surviving placement needs an update
// message: geometry, stacking, region, visibility, timing, priorities or
// parameters changed.
func placementChanged(prev, next *models.PlacedComponent) bool {
	if prev.RegionID != next.RegionID {
		return true
	}
	if prev.ZDepth != next.ZDepth {
		return true
	}
	if !posEq(prev.Position, next.Position) {
		return true
	}
	if !sizeEq(prev.Size, next.Size) {
		return true
	}
	if !int64PtrEq(prev.StartTime, next.StartTime) || !int64PtrEq(prev.StopTime, next.StopTime) {
		return true
	}
	if !jsonEq(prev.Priorities, next.Priorities) {
		return true
	}
	if !jsonEq(prev.Parameters, next.Parameters) {
		return true
	}
	return false
}
