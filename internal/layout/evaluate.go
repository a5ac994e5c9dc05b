// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package layout

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mosaicus/internal/models"
)

// Error taxonomy for evaluation. ErrInvalidConstraint lives in
// resolver.go; per-component constraint failures demote the component,
// only a structurally broken document fails the whole evaluation.
var (
	// ErrUnknownComponent marks an operation referencing a component id
	// the DMApp does not declare.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrUnplaceableComponent marks a component that can never be placed
	// in the current context (reported, never fatal).
	ErrUnplaceableComponent = errors.New("unplaceable component")

	// ErrDependencyMissing marks a componentDependency referencing a
	// component id the DMApp does not declare.
	ErrDependencyMissing = errors.New("dependency missing")

	// ErrInternal marks an engine invariant violation.
	ErrInternal = errors.New("internal layout error")
)

// EvalInput is one evaluation request: a full snapshot of the context,
// the DMApp and the previously persisted layout.
type EvalInput struct {
	Context  *models.Context
	DMApp    *models.DMApp
	Previous *models.Layout

	// Now is the evaluation timestamp, nanoseconds since the epoch.
	Now int64

	// NextID issues monotonically increasing message ids. Nil falls back
	// to an engine-local counter.
	NextID func() uint64
}

// Engine evaluates layouts. It holds no per-context state; callers
// serialise evaluations of the same context.
type Engine struct {
	log zerolog.Logger

	fallbackID atomic.Uint64
}

// NewEngine returns an engine logging through the given logger.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// Evaluate computes a fresh layout for the context and the differential
// messages that carry clients from the previous layout to it.
func (e *Engine) Evaluate(in EvalInput) (*models.Layout, *models.Diff, error) {
	if in.Context == nil || in.DMApp == nil {
		return nil, nil, fmt.Errorf("%w: nil context or dmapp", ErrInternal)
	}
	if err := in.DMApp.Constraints.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidConstraint, err)
	}
	if err := checkDependencies(in.DMApp); err != nil {
		return nil, nil, err
	}

	nextID := in.NextID
	if nextID == nil {
		nextID = func() uint64 { return e.fallbackID.Add(1) }
	}

	lay := &models.Layout{
		ContextID: in.Context.ID,
		DMAppID:   in.DMApp.ID,
		Timestamp: in.Now,
	}

	for _, g := range in.Context.Groups() {
		g := g
		res := e.packGroup(&in, &g)
		e.appendGroup(&in, lay, &g, res)
	}
	e.carryOver(&in, lay)

	diff := diffLayouts(&in, lay, nextID)
	diff.NotPlaced = lay.NotPlaced
	return lay, diff, nil
}

// checkDependencies verifies every componentDependency target is a
// declared component of the DMApp.
func checkDependencies(app *models.DMApp) error {
	declared := make(map[string]bool, len(app.Components))
	for i := range app.Components {
		declared[app.Components[i].ID] = true
	}
	check := func(cfg *models.ConstraintConfig, cid string) error {
		if cfg == nil {
			return nil
		}
		for _, dep := range cfg.ComponentDependency {
			if !declared[dep] {
				return fmt.Errorf("%w: constraint %q depends on undeclared component %q", ErrDependencyMissing, cid, dep)
			}
		}
		return nil
	}
	for i := range app.Constraints.Constraints {
		con := &app.Constraints.Constraints[i]
		if err := check(con.Communal, con.ConstraintID); err != nil {
			return err
		}
		if err := check(con.Personal, con.ConstraintID); err != nil {
			return err
		}
	}
	return nil
}

// packGroup resolves, orders and packs one group's candidate set.
func (e *Engine) packGroup(in *EvalInput, g *models.Group) *Result {
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
			e.log.Warn().Err(err).
				Str("component", c.ID).
				Str("group", g.ID).
				Msg("constraint rejected, component demoted")
			demoted = append(demoted, &Candidate{
				Index:  -1, // never collides with a packed candidate
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

	return NewPacker(tree, ordered, excluded, in.Context.Config).Pack()
}

// regionSize returns the pixel bounds of a placement's host region.
func regionSize(ctx *models.Context, deviceID, regionID string) (w, h float64) {
	d := ctx.Device(deviceID)
	if d == nil {
		return 0, 0
	}
	if regionID == "" {
		return d.DisplaySize()
	}
	for _, r := range d.Regions {
		if r.ID == regionID {
			return r.Width, r.Height
		}
	}
	return d.DisplaySize()
}

func dim(v, bound float64, percent bool) models.Dim {
	if percent && bound > 0 {
		return models.Pct(v / bound * 100)
	}
	return models.Px(v)
}

// appendGroup folds one group's pack result into the layout: placements
// become device entries, the not-placed set is recorded per status.
func (e *Engine) appendGroup(in *EvalInput, lay *models.Layout, g *models.Group, res *Result) {
	pct := in.Context.Config.PercentCoords

	for _, c := range res.Ordered {
		comp := c.Res.Component
		for _, pl := range res.Placements[c.Index] {
			bw, bh := regionSize(in.Context, pl.DeviceID, pl.RegionID)
			placed := models.PlacedComponent{
				ComponentID: comp.ID,
				DeviceID:    pl.DeviceID,
				RegionID:    pl.RegionID,
				Position: &models.Position{
					X: dim(pl.X, bw, pct),
					Y: dim(pl.Y, bh, pct),
				},
				Size: &models.Size{
					Width:  dim(pl.W, bw, pct),
					Height: dim(pl.H, bh, pct),
				},
				ZDepth:     pl.ZDepth,
				InstanceID: models.InstanceID(in.Context.ID, in.DMApp.ID, pl.DeviceID, comp.ID),
				Timestamp:  in.Now,
				StartTime:  comp.StartTime,
				StopTime:   comp.StopTime,
				Priorities: comp.Priorities,
				Parameters: comp.Parameters,
			}
			e.addPlacement(lay, placed)
		}
	}

	// Not-placed records, one group entry per status, fixed status order.
	byStatus := make(map[models.NotPlacedStatus][]string)
	record := func(cs []*Candidate) {
		for _, c := range cs {
			if c.Status != "" && len(res.Placements[c.Index]) == 0 {
				byStatus[c.Status] = append(byStatus[c.Status], c.ComponentID())
			}
		}
	}
	record(res.Ordered)
	record(res.Excluded)
	for _, st := range []models.NotPlacedStatus{
		models.NotPlacedNoDevice,
		models.NotPlacedIncompatible,
		models.NotPlacedSkipped,
		models.NotPlacedNoDependent,
	} {
		if ids := byStatus[st]; len(ids) > 0 {
			lay.NotPlaced = append(lay.NotPlaced, models.NotPlacedGroup{
				GroupID:      g.ID,
				Status:       st,
				ComponentIDs: ids,
			})
		}
	}
}

func (e *Engine) addPlacement(lay *models.Layout, placed models.PlacedComponent) {
	for i := range lay.Devices {
		if lay.Devices[i].DeviceID == placed.DeviceID {
			lay.Devices[i].Components = append(lay.Devices[i].Components, placed)
			return
		}
	}
	lay.Devices = append(lay.Devices, models.DeviceLayout{
		DeviceID:   placed.DeviceID,
		Components: []models.PlacedComponent{placed},
	})
}

// carryOver keeps components in the layout that the packer did not
// place: an inited-but-not-started component stays as a geometry-less
// entry on its previous device; a hidden-but-running component, and a
// running component the packer squeezed out (incompatible or skipped),
// stay with the hidden size sentinel instead of being destroyed.
func (e *Engine) carryOver(in *EvalInput, lay *models.Layout) {
	if in.Previous == nil {
		return
	}
	unplaced := make(map[string]models.NotPlacedStatus)
	for _, g := range lay.NotPlaced {
		for _, id := range g.ComponentIDs {
			unplaced[id] = g.Status
		}
	}
	placedNow := make(map[string]bool)
	for _, dl := range lay.Devices {
		for _, pc := range dl.Components {
			placedNow[pc.ComponentID] = true
		}
	}
	for i := range in.DMApp.Components {
		c := &in.DMApp.Components[i]
		if !c.Active() {
			continue
		}
		hidden := c.Running() && !c.Visible
		if c.Running() && c.Visible && !placedNow[c.ID] {
			st := unplaced[c.ID]
			hidden = st == models.NotPlacedIncompatible || st == models.NotPlacedSkipped
		}
		if c.State != models.StateInited && !hidden {
			continue
		}
		for _, pd := range in.Previous.Devices {
			prev := in.Previous.Find(pd.DeviceID, c.ID)
			if prev == nil {
				continue
			}
			if lay.Find(pd.DeviceID, c.ID) != nil {
				continue
			}
			placed := models.PlacedComponent{
				ComponentID: c.ID,
				DeviceID:    pd.DeviceID,
				RegionID:    prev.RegionID,
				InstanceID:  prev.InstanceID,
				Timestamp:   in.Now,
				StartTime:   c.StartTime,
				StopTime:    c.StopTime,
				Priorities:  c.Priorities,
				Parameters:  c.Parameters,
			}
			if hidden {
				placed.Size = models.HiddenSize()
			}
			e.addPlacement(lay, placed)
		}
	}
}
