// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package models

// ContextConfig carries per-context layout options.
type ContextConfig struct {
	// PercentCoords switches the wire format for positions and sizes
	// from integer pixels to percent strings relative to the host region.
	PercentCoords bool `json:"percentCoords,omitempty"`

	// ReduceFactor is the multiplicative size reduction applied between
	// packer retry iterations. 1.0 collapses the retry pass to a single
	// attempt.
	ReduceFactor float64 `json:"reduceFactor,omitempty"`

	// ReduceTries bounds the number of reduction iterations.
	ReduceTries int `json:"reduceTries,omitempty"`
}

// Engine defaults applied when a context does not set its own options.
const (
	DefaultReduceFactor = 0.8
	DefaultReduceTries  = 5
)

// Normalize fills unset config fields with engine defaults.
func (c *ContextConfig) Normalize() {
	if c.ReduceFactor <= 0 || c.ReduceFactor > 1 {
		c.ReduceFactor = DefaultReduceFactor
	}
	if c.ReduceTries <= 0 {
		c.ReduceTries = DefaultReduceTries
	}
}

// Context is a named session grouping the devices that participate in a
// shared DMApp presentation.
type Context struct {
	ID      string        `json:"contextId"`
	DMAppID string        `json:"dmappId,omitempty"`
	Devices []Device      `json:"devices,omitempty"`
	Config  ContextConfig `json:"config,omitempty"`
}

// Groups partitions the context's devices by group id, preserving device
// order within each group and first-seen order across groups. Devices
// without a group id form a single-device group keyed by the device id.
func (c *Context) Groups() []Group {
	index := make(map[string]int)
	var groups []Group
	for i := range c.Devices {
		d := c.Devices[i]
		gid := d.GroupID
		if gid == "" {
			gid = d.ID
		}
		gi, ok := index[gid]
		if !ok {
			gi = len(groups)
			index[gid] = gi
			groups = append(groups, Group{ID: gid})
		}
		groups[gi].Devices = append(groups[gi].Devices, d)
	}
	return groups
}

// Device returns the device with the given id, or nil.
func (c *Context) Device(deviceID string) *Device {
	for i := range c.Devices {
		if c.Devices[i].ID == deviceID {
			return &c.Devices[i]
		}
	}
	return nil
}

// DMApp bundles the component set and constraint document that a context
// is presenting.
type DMApp struct {
	ID          string        `json:"dmappId"`
	ContextID   string        `json:"contextId"`
	Constraints ConstraintDoc `json:"constraints"`
	Components  []Component   `json:"components,omitempty"`
}

// Component returns the component with the given id, or nil.
func (a *DMApp) Component(componentID string) *Component {
	for i := range a.Components {
		if a.Components[i].ID == componentID {
			return &a.Components[i]
		}
	}
	return nil
}
