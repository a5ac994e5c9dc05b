// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Dim is one coordinate or size value. It marshals as a rounded integer
// pixel count by default, or as a percent string ("37.5%") when the
// context has percentCoords enabled.
type Dim struct {
	Value   float64
	Percent bool
}

// Px makes a pixel-valued Dim.
func Px(v float64) Dim { return Dim{Value: v} }

// Pct makes a percent-valued Dim.
func Pct(v float64) Dim { return Dim{Value: v, Percent: true} }

// MarshalJSON renders the value as an integer pixel number or a percent
// string, depending on the Percent flag.
func (d Dim) MarshalJSON() ([]byte, error) {
	if d.Percent {
		return json.Marshal(strconv.FormatFloat(d.Value, 'f', -1, 64) + "%")
	}
	return json.Marshal(math.Round(d.Value))
}

// UnmarshalJSON accepts either a number (pixels) or a "N%" string.
func (d *Dim) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*d = Dim{Value: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("dim must be a number or percent string: %w", err)
	}
	if !strings.HasSuffix(s, "%") {
		return fmt.Errorf("dim string %q lacks %% suffix", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return fmt.Errorf("dim string %q: %w", s, err)
	}
	*d = Dim{Value: v, Percent: true}
	return nil
}

// Position is a placed component's top-left corner within its region.
type Position struct {
	X Dim `json:"x"`
	Y Dim `json:"y"`
}

// Size is a placed component's display size.
type Size struct {
	Width  Dim `json:"width"`
	Height Dim `json:"height"`
}

// HiddenSize is the sentinel size sent for a component that remains in
// the layout but is currently hidden.
func HiddenSize() *Size {
	return &Size{Width: Px(-1), Height: Px(-1)}
}

// Hidden reports whether this is the hidden-component sentinel.
func (s *Size) Hidden() bool {
	return s != nil && s.Width.Value == -1 && s.Height.Value == -1
}

// PlacedComponent is one component's placement in a layout.
//
// A placement with nil Position and Size is a component that is part of
// the layout but not currently displayed (initialised but not started,
// or hidden while still running).
type PlacedComponent struct {
	ComponentID string    `json:"componentId"`
	DeviceID    string    `json:"deviceId"`
	RegionID    string    `json:"regionId,omitempty"`
	Position    *Position `json:"position,omitempty"`
	Size        *Size     `json:"size,omitempty"`
	ZDepth      int       `json:"zDepth,omitempty"`
	InstanceID  string    `json:"instanceId,omitempty"`
	Timestamp   int64     `json:"timestamp,omitempty"`

	StartTime *int64 `json:"startTime,omitempty"`
	StopTime  *int64 `json:"stopTime,omitempty"`

	Priorities *PriorityOverrides `json:"priorities,omitempty"`
	Parameters map[string]any     `json:"parameters,omitempty"`
}

// DeviceLayout groups one device's placements.
type DeviceLayout struct {
	DeviceID   string            `json:"deviceId"`
	Components []PlacedComponent `json:"components"`
}

// NotPlacedStatus classifies why a component was left out of a layout.
type NotPlacedStatus string

const (
	// NotPlacedNoDevice: no region in the group passes capability filters.
	NotPlacedNoDevice NotPlacedStatus = "noDevice"
	// NotPlacedIncompatible: capability fit exists but no geometric fit,
	// even at minimum size.
	NotPlacedIncompatible NotPlacedStatus = "incompatible"
	// NotPlacedSkipped: geometric fit exists but the packer ran out of
	// space after all passes. Priority-0 components also land here.
	NotPlacedSkipped NotPlacedStatus = "skipped"
	// NotPlacedNoDependent: a componentDependency target was itself
	// not placed (or placed on the wrong device).
	NotPlacedNoDependent NotPlacedStatus = "noDependent"
)

// NotPlacedGroup records the components of one layout group that share a
// not-placed status.
type NotPlacedGroup struct {
	GroupID      string          `json:"group"`
	Status       NotPlacedStatus `json:"status"`
	ComponentIDs []string        `json:"componentIds"`
}

// Layout is the engine's output for one context: every placement on
// every device, plus the not-placed record set.
type Layout struct {
	ContextID string           `json:"contextId"`
	DMAppID   string           `json:"dmappId,omitempty"`
	Timestamp int64            `json:"timestamp"`
	Devices   []DeviceLayout   `json:"devices"`
	NotPlaced []NotPlacedGroup `json:"notPlaced,omitempty"`
}

// Device returns the layout entry for a device id, or nil.
func (l *Layout) Device(deviceID string) *DeviceLayout {
	for i := range l.Devices {
		if l.Devices[i].DeviceID == deviceID {
			return &l.Devices[i]
		}
	}
	return nil
}

// Find returns a placement by device and component id, or nil.
func (l *Layout) Find(deviceID, componentID string) *PlacedComponent {
	dl := l.Device(deviceID)
	if dl == nil {
		return nil
	}
	for i := range dl.Components {
		if dl.Components[i].ComponentID == componentID {
			return &dl.Components[i]
		}
	}
	return nil
}

// NotPlacedStatusOf returns the not-placed status recorded for a
// component, or "" when the component was placed (or unknown).
func (l *Layout) NotPlacedStatusOf(componentID string) NotPlacedStatus {
	for i := range l.NotPlaced {
		for _, id := range l.NotPlaced[i].ComponentIDs {
			if id == componentID {
				return l.NotPlaced[i].Status
			}
		}
	}
	return ""
}

// InstanceID builds the deterministic component instance identifier from
// the context, DMApp, device and component identifiers.
func InstanceID(contextID, dmappID, deviceID, componentID string) string {
	return contextID + "." + dmappID + "." + deviceID + "." + componentID
}
