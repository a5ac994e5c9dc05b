// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package models

// CreateTimestampOffsetNs is subtracted from the layout timestamp on
// create messages so clients can pre-load before updates arrive.
const CreateTimestampOffsetNs = int64(100_000_000) // 100ms

// ComponentLayoutRef is the layout fragment carried on create and update
// messages.
type ComponentLayoutRef struct {
	Position   *Position `json:"position,omitempty"`
	Size       *Size     `json:"size,omitempty"`
	ZDepth     int       `json:"zDepth,omitempty"`
	RegionID   string    `json:"regionId,omitempty"`
	DeviceID   string    `json:"deviceId,omitempty"`
	InstanceID string    `json:"instanceId,omitempty"`
}

// CreateMessage announces a component newly present on a device.
type CreateMessage struct {
	MessageID   uint64              `json:"messageId"`
	Timestamp   int64               `json:"timestamp"`
	ComponentID string              `json:"componentId"`
	ContextID   string              `json:"contextId"`
	DMAppID     string              `json:"DMAppId"`
	DeviceID    string              `json:"deviceId"`
	Config      map[string]any      `json:"config,omitempty"`
	StartTime   *int64              `json:"startTime"`
	StopTime    *int64              `json:"stopTime"`
	Layout      *ComponentLayoutRef `json:"layout,omitempty"`
	Parameters  map[string]any      `json:"parameters,omitempty"`
	Priorities  *PriorityOverrides  `json:"priorities,omitempty"`
}

// UpdateMessage announces a change to an already-present component.
type UpdateMessage struct {
	MessageID   uint64              `json:"messageId"`
	Timestamp   int64               `json:"timestamp"`
	ComponentID string              `json:"componentId"`
	ContextID   string              `json:"contextId"`
	DMAppID     string              `json:"DMAppId"`
	DeviceID    string              `json:"deviceId"`
	StartTime   *int64              `json:"startTime"`
	StopTime    *int64              `json:"stopTime"`
	Layout      *ComponentLayoutRef `json:"layout,omitempty"`
	Parameters  map[string]any      `json:"parameters,omitempty"`
	Priorities  *PriorityOverrides  `json:"priorities,omitempty"`
}

// DestroyMessage announces a component removed from a device.
type DestroyMessage struct {
	MessageID   uint64 `json:"messageId"`
	Timestamp   int64  `json:"timestamp"`
	ComponentID string `json:"componentId"`
	ContextID   string `json:"contextId"`
	DMAppID     string `json:"DMAppId"`
	DeviceID    string `json:"deviceId"`
	StopTime    *int64 `json:"stopTime"`
	InstanceID  string `json:"instanceId,omitempty"`
}

// ComponentPropertyRef is one entry of a componentProperties message.
type ComponentPropertyRef struct {
	ComponentID string             `json:"componentId"`
	DMAppID     string             `json:"DMAppId"`
	ContextID   string             `json:"contextId"`
	DeviceID    string             `json:"deviceId"`
	Priorities  *PriorityOverrides `json:"priorities,omitempty"`
}

// ComponentPropertiesMessage pushes property changes without layout
// changes.
type ComponentPropertiesMessage struct {
	MessageID  uint64                 `json:"messageId"`
	Timestamp  int64                  `json:"timestamp"`
	Components []ComponentPropertyRef `json:"components"`
}

// LogicalRegionChangeMessage announces a device's logical region set
// changing shape.
type LogicalRegionChangeMessage struct {
	MessageID      uint64   `json:"messageId"`
	Timestamp      int64    `json:"timestamp"`
	DeviceID       string   `json:"deviceId"`
	LogicalRegions []Region `json:"logicalRegions"`
}

// Diff is the differential result of one evaluation: the message sets
// that carry clients from the previous layout to the new one, in
// message-id order within each set (create, then update, then destroy).
type Diff struct {
	Create              []CreateMessage              `json:"create,omitempty"`
	Update              []UpdateMessage              `json:"update,omitempty"`
	Destroy             []DestroyMessage             `json:"destroy,omitempty"`
	NotPlaced           []NotPlacedGroup             `json:"notPlaced,omitempty"`
	LogicalRegionChange []LogicalRegionChangeMessage `json:"logicalRegionChange,omitempty"`
}

// Empty reports whether the diff carries no messages at all.
func (d *Diff) Empty() bool {
	return len(d.Create) == 0 && len(d.Update) == 0 && len(d.Destroy) == 0 &&
		len(d.LogicalRegionChange) == 0
}
