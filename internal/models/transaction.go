// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package models

import "fmt"

// ActionName is one lifecycle or property action within a transaction.
type ActionName string

const (
	ActionInit    ActionName = "init"
	ActionStart   ActionName = "start"
	ActionStop    ActionName = "stop"
	ActionDestroy ActionName = "destroy"
	ActionHide    ActionName = "hide"
	ActionShow    ActionName = "show"
	ActionUpdate  ActionName = "update"
)

// Valid reports whether the action name is known.
func (a ActionName) Valid() bool {
	switch a {
	case ActionInit, ActionStart, ActionStop, ActionDestroy,
		ActionHide, ActionShow, ActionUpdate:
		return true
	}
	return false
}

// Action applies one operation to a set of components.
type Action struct {
	Action       ActionName `json:"action"`
	ComponentIDs []string   `json:"componentIds"`

	// ConstraintID binds the components to a constraint on init.
	ConstraintID string `json:"constraintId,omitempty"`

	// StartTime and StopTime override the transaction time for start and
	// stop actions, nanoseconds since the epoch.
	StartTime *int64 `json:"startTime,omitempty"`
	StopTime  *int64 `json:"stopTime,omitempty"`

	Config     map[string]any `json:"config,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Transaction is a batch of component actions applied atomically: either
// every action is legal and the whole batch triggers one re-evaluation,
// or nothing changes.
type Transaction struct {
	// Time is the presentation time the actions take effect at; nil means
	// the server clock.
	Time    *int64   `json:"time,omitempty"`
	Actions []Action `json:"actions"`
}

// Validate checks the transaction's shape without touching any DMApp.
func (t *Transaction) Validate() error {
	if len(t.Actions) == 0 {
		return fmt.Errorf("transaction has no actions")
	}
	for i := range t.Actions {
		a := &t.Actions[i]
		if !a.Action.Valid() {
			return fmt.Errorf("action %d: unknown action %q", i, a.Action)
		}
		if len(a.ComponentIDs) == 0 {
			return fmt.Errorf("action %d (%s): no component ids", i, a.Action)
		}
	}
	return nil
}
