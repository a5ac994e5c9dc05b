// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package layout

import (
	"fmt"

	"github.com/tomtom215/mosaicus/internal/models"
)

// SimResult is the outcome of a what-if placement run: the device
// mapping the components would get, expressed as create messages with
// nil start and stop times, plus the components that would not place.
type SimResult struct {
	Layout    *models.Layout         `json:"layout"`
	Create    []models.CreateMessage `json:"create,omitempty"`
	NotPlaced []models.NotPlacedGroup `json:"notPlaced,omitempty"`
}

// Simulate answers "where would these components go" without touching
// persisted state. The named components are treated as started and
// visible regardless of their actual lifecycle; every other component
// keeps its real state and still competes for space and media budgets,
// so an announced device is one with room actually left. Packing stops
// after the initial fit since only the device mapping matters, not
// coverage.
func (e *Engine) Simulate(in EvalInput, componentIDs []string) (*SimResult, error) {
	if in.Context == nil || in.DMApp == nil {
		return nil, fmt.Errorf("%w: nil context or dmapp", ErrInternal)
	}
	if err := in.DMApp.Constraints.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConstraint, err)
	}

	// Clone the component set with the requested subset forced runnable.
	forced := make(map[string]bool, len(componentIDs))
	for _, id := range componentIDs {
		if in.DMApp.Component(id) == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, id)
		}
		forced[id] = true
	}

	app := *in.DMApp
	app.Components = make([]models.Component, len(in.DMApp.Components))
	copy(app.Components, in.DMApp.Components)
	start := in.Now
	for i := range app.Components {
		c := &app.Components[i]
		if len(forced) > 0 && !forced[c.ID] {
			continue
		}
		c.State = models.StateStarted
		c.StartTime = &start
		c.StopTime = nil
		c.Visible = true
	}

	sim := EvalInput{
		Context: in.Context,
		DMApp:   &app,
		Now:     in.Now,
	}

	lay := &models.Layout{
		ContextID: sim.Context.ID,
		DMAppID:   app.ID,
		Timestamp: sim.Now,
	}
	for _, g := range sim.Context.Groups() {
		g := g
		res := e.simPackGroup(&sim, &g)
		e.appendGroup(&sim, lay, &g, res)
	}

	out := &SimResult{Layout: lay, NotPlaced: lay.NotPlaced}
	var id uint64
	for i := range lay.Devices {
		dl := &lay.Devices[i]
		for j := range dl.Components {
			pc := &dl.Components[j]
			if len(forced) > 0 && !forced[pc.ComponentID] {
				continue
			}
			id++
			out.Create = append(out.Create, models.CreateMessage{
				MessageID:   id,
				Timestamp:   sim.Now,
				ComponentID: pc.ComponentID,
				ContextID:   sim.Context.ID,
				DMAppID:     app.ID,
				DeviceID:    dl.DeviceID,
				StartTime:   nil,
				StopTime:    nil,
				Layout:      layoutRef(pc),
			})
		}
	}
	return out, nil
}

func (e *Engine) simPackGroup(in *EvalInput, g *models.Group) *Result {
	r := &Resolver{Doc: &in.DMApp.Constraints}

	var resolved []*ResolvedComponent
	var demoted []*Candidate
	for i := range in.DMApp.Components {
		c := &in.DMApp.Components[i]
		if !c.Active() || !c.Running() || !c.Visible {
			continue
		}
		rc, err := r.Resolve(c, g)
		if err != nil {
			demoted = append(demoted, &Candidate{
				Index:  -1,
				Res:    &ResolvedComponent{Component: c},
				Status: models.NotPlacedIncompatible,
			})
			continue
		}
		resolved = append(resolved, rc)
	}

	tree := NewTree(g.Devices)
	ordered, excluded := orderCandidates(tree, resolved)
	excluded = append(excluded, demoted...)

	p := NewPacker(tree, ordered, excluded, in.Context.Config)
	p.SinglePass = true
	return p.Pack()
}
