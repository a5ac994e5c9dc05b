// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Layout models supported by constraint documents. Only the dynamic
// packing model is implemented; "template" documents are rejected at load.
const (
	LayoutModelDynamic  = "dynamic"
	LayoutModelPacker   = "packer"
	LayoutModelTemplate = "template"
)

// ConstraintDocVersion is the only constraint document version Mosaicus accepts.
const ConstraintDocVersion = 4

// DefaultConstraintID is applied to any component whose constraint binding
// is missing or unknown. A valid constraint document must define it.
const DefaultConstraintID = "default"

// Unit identifies how a size value is expressed.
type Unit string

const (
	// UnitPx is device pixels, the engine's working unit.
	UnitPx Unit = "px"
	// UnitPercent resolves against the bounding (host region) size.
	UnitPercent Unit = "percent"
	// UnitInches converts to pixels via the host device's dpi.
	UnitInches Unit = "inches"
)

// SizeSpec is a width/height pair with a unit. A dimension of -1 means
// "don't care" for preferred sizes.
type SizeSpec struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   Unit    `json:"unit,omitempty"`
}

// Anchor names an edge or centering constraint on a placed component.
type Anchor string

const (
	AnchorTop     Anchor = "top"
	AnchorBottom  Anchor = "bottom"
	AnchorLeft    Anchor = "left"
	AnchorRight   Anchor = "right"
	AnchorVCenter Anchor = "vcenter"
	// AnchorHCenter appears in constraint documents but is rejected at
	// validation; the packer only honours vertical centering.
	AnchorHCenter Anchor = "hcenter"
)

// MarginSpec is a uniform margin around a placed component, in pixels
// or inches.
type MarginSpec struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit,omitempty"`
}

// ConstraintConfig is one half (personal or communal) of a constraint
// record, as it appears in the constraint document.
type ConstraintConfig struct {
	// Aspect is "w:h" of positive integers; empty means free.
	Aspect string `json:"aspect,omitempty"`

	PrefSize *SizeSpec `json:"prefSize,omitempty"`
	MinSize  *SizeSpec `json:"minSize,omitempty"`

	// TargetRegions restricts placement to the named region ids.
	// Empty means every region that passes capability filtering.
	TargetRegions []string `json:"targetRegions,omitempty"`

	// Priority orders components for placement. 0 means excluded.
	Priority *int `json:"priority,omitempty"`

	Audio            bool `json:"audio,omitempty"`
	Video            bool `json:"video,omitempty"`
	TouchInteraction bool `json:"touchInteraction,omitempty"`

	Margin *MarginSpec `json:"margin,omitempty"`

	Anchor []Anchor `json:"anchor,omitempty"`

	// ComponentDependency lists component ids that must also be placed
	// for this component to be shown.
	ComponentDependency []string `json:"componentDependency,omitempty"`

	// ComponentDeviceDependency requires the dependency targets to be
	// placed on the same device as this component.
	ComponentDeviceDependency bool `json:"componentDeviceDependency,omitempty"`
}

// Constraint pairs the personal and communal configs under one id.
type Constraint struct {
	ConstraintID string            `json:"constraintId"`
	Personal     *ConstraintConfig `json:"personal,omitempty"`
	Communal     *ConstraintConfig `json:"communal,omitempty"`
}

// ConstraintDoc is the top-level constraint document a DMApp ships.
type ConstraintDoc struct {
	Version     int          `json:"version"`
	DMApp       string       `json:"dmapp"`
	Constraints []Constraint `json:"constraints"`
	LayoutModel string       `json:"layoutModel"`
}

// Validate checks the structural requirements on a constraint document:
// supported version, supported layout model, and a "default" constraint.
func (d *ConstraintDoc) Validate() error {
	if d.Version != ConstraintDocVersion {
		return fmt.Errorf("unsupported constraint document version %d (want %d)", d.Version, ConstraintDocVersion)
	}
	switch d.LayoutModel {
	case LayoutModelDynamic, LayoutModelPacker:
	case LayoutModelTemplate:
		return fmt.Errorf("layout model %q is not supported", d.LayoutModel)
	default:
		return fmt.Errorf("unknown layout model %q", d.LayoutModel)
	}
	for i := range d.Constraints {
		if d.Constraints[i].ConstraintID == DefaultConstraintID {
			return nil
		}
	}
	return fmt.Errorf("constraint document must define a %q constraint", DefaultConstraintID)
}

// Find returns the constraint with the given id, falling back to the
// default constraint for unknown ids.
func (d *ConstraintDoc) Find(constraintID string) *Constraint {
	var def *Constraint
	for i := range d.Constraints {
		if d.Constraints[i].ConstraintID == constraintID {
			return &d.Constraints[i]
		}
		if d.Constraints[i].ConstraintID == DefaultConstraintID {
			def = &d.Constraints[i]
		}
	}
	return def
}

// ParseAspect parses a "w:h" aspect string into the height-over-width
// ratio the packer works with. An empty string yields 0 (free aspect).
func ParseAspect(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed aspect %q: want \"w:h\"", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || w <= 0 {
		return 0, fmt.Errorf("malformed aspect %q: width must be a positive integer", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || h <= 0 {
		return 0, fmt.Errorf("malformed aspect %q: height must be a positive integer", s)
	}
	return float64(h) / float64(w), nil
}
