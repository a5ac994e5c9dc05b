// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package models

// ComponentState is the lifecycle state of a component within a DMApp.
//
// The only legal forward path is
// uninitialised -> inited -> started -> stopped -> destroyed; a stopped
// component cannot be restarted, it must be destroyed and re-inited.
type ComponentState string

const (
	StateUninitialised ComponentState = "uninitialised"
	StateInited        ComponentState = "inited"
	StateStarted       ComponentState = "started"
	StateStopped       ComponentState = "stopped"
	StateDestroyed     ComponentState = "destroyed"
)

// PriorityOverrides is a compact per-scope priority override table.
// Resolution order is fixed: device, then group, then context, then the
// constraint's own priority. An override value of -1 removes the override
// at that scope.
type PriorityOverrides struct {
	Device  map[string]int `json:"device,omitempty"`
	Group   map[string]int `json:"group,omitempty"`
	Context *int           `json:"context,omitempty"`
}

// OverrideRemoved is the reserved override value that clears an override.
const OverrideRemoved = -1

// Resolve returns the effective priority for the given device and group,
// falling back to def when no override applies.
func (p *PriorityOverrides) Resolve(deviceID, groupID string, def int) int {
	if p == nil {
		return def
	}
	if v, ok := p.Device[deviceID]; ok && v != OverrideRemoved {
		return v
	}
	if v, ok := p.Group[groupID]; ok && v != OverrideRemoved {
		return v
	}
	if p.Context != nil && *p.Context != OverrideRemoved {
		return *p.Context
	}
	return def
}

// Component is a displayable element contributed by a DMApp.
type Component struct {
	ID           string `json:"componentId"`
	ConstraintID string `json:"constraintId,omitempty"`

	// StartTime and StopTime are nanoseconds since the Unix epoch;
	// nil means not started / not stopped.
	StartTime *int64 `json:"startTime,omitempty"`
	StopTime  *int64 `json:"stopTime,omitempty"`

	State ComponentState `json:"state,omitempty"`

	// Visible is the orthogonal visible/hidden flag; simulation runs
	// force it true for the set under test.
	Visible bool `json:"visible,omitempty"`

	Priorities *PriorityOverrides `json:"priorities,omitempty"`

	// PrefSize overrides the constraint's preferred size for this
	// component only.
	PrefSize *SizeSpec `json:"prefSize,omitempty"`

	// Config and Parameters are opaque payloads the engine passes
	// through to clients untouched.
	Config     map[string]any `json:"config,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Running reports whether the component has been started and not stopped.
func (c *Component) Running() bool {
	return c.StartTime != nil && c.StopTime == nil
}

// Active reports whether the component should take part in layout at all.
func (c *Component) Active() bool {
	return c.State != StateDestroyed && c.State != StateUninitialised && c.State != ""
}

// CanTransition reports whether the lifecycle transition from the
// component's current state to next is permitted.
func (c *Component) CanTransition(next ComponentState) bool {
	cur := c.State
	if cur == "" {
		cur = StateUninitialised
	}
	switch next {
	case StateInited:
		return cur == StateUninitialised
	case StateStarted:
		// stopped -> started is forbidden; destroy and re-init instead.
		return cur == StateInited
	case StateStopped:
		return cur == StateStarted
	case StateDestroyed:
		return cur != StateDestroyed
	default:
		return false
	}
}
