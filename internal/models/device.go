// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package models

// Orientation values a device may report.
const (
	OrientationLandscape = "landscape"
	OrientationPortrait  = "portrait"
)

// Region is a logical rectangular sub-area of a device's display.
type Region struct {
	ID        string  `json:"regionId"`
	Width     float64 `json:"displayWidth"`
	Height    float64 `json:"displayHeight"`
	Resizable bool    `json:"resizable,omitempty"`
}

// Capabilities describes what a device's display can do.
type Capabilities struct {
	DisplayWidth  float64 `json:"displayWidth"`
	DisplayHeight float64 `json:"displayHeight"`
	DPI           float64 `json:"dpi,omitempty"`

	// ConcurrentAudio and ConcurrentVideo cap how many audio- and
	// video-flagged components may be active on the device at once.
	ConcurrentAudio int `json:"concurrentAudio"`
	ConcurrentVideo int `json:"concurrentVideo"`

	Touch    bool `json:"touchInteraction,omitempty"`
	Communal bool `json:"communalDevice,omitempty"`

	Orientations []string `json:"orientations,omitempty"`
}

// Device is one participating display in a context.
type Device struct {
	ID          string       `json:"deviceId"`
	Caps        Capabilities `json:"caps"`
	Regions     []Region     `json:"regions,omitempty"`
	GroupID     string       `json:"group,omitempty"`
	Orientation string       `json:"orientation,omitempty"`
}

// DisplaySize returns the device display size with the current
// orientation applied: a portrait device reports its longer axis as
// height regardless of how the raw capability record is oriented.
func (d *Device) DisplaySize() (w, h float64) {
	w, h = d.Caps.DisplayWidth, d.Caps.DisplayHeight
	switch d.Orientation {
	case OrientationPortrait:
		if w > h {
			w, h = h, w
		}
	case OrientationLandscape:
		if h > w {
			w, h = h, w
		}
	}
	return w, h
}

// GroupType classifies a layout group by the communal flag of its members.
type GroupType string

const (
	GroupCommunal GroupType = "communal"
	GroupPersonal GroupType = "personal"
	GroupMixed    GroupType = "mixed"
)

// Group is a subset of a context's devices that are laid out together.
type Group struct {
	ID      string   `json:"groupId"`
	Devices []Device `json:"-"`
}

// Type derives the group classification: communal if every member is
// communal, personal if none are, mixed otherwise.
func (g *Group) Type() GroupType {
	communal, personal := 0, 0
	for i := range g.Devices {
		if g.Devices[i].Caps.Communal {
			communal++
		} else {
			personal++
		}
	}
	switch {
	case personal == 0:
		return GroupCommunal
	case communal == 0:
		return GroupPersonal
	default:
		return GroupMixed
	}
}
