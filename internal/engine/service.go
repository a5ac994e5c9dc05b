// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

// Package engine is the stateful service around the pure layout
// evaluator: it owns persistence, per-context serialisation, message id
// issuance and the push of results to websocket subscribers.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/mosaicus/internal/config"
	"github.com/tomtom215/mosaicus/internal/layout"
	"github.com/tomtom215/mosaicus/internal/logging"
	"github.com/tomtom215/mosaicus/internal/metrics"
	"github.com/tomtom215/mosaicus/internal/models"
	"github.com/tomtom215/mosaicus/internal/store"
)

var (
	// ErrContextExists marks an attempt to create a context with an id
	// that is already in use.
	ErrContextExists = errors.New("context already exists")

	// ErrInvalidTransition marks a transaction action that is not legal in
	// the component's current lifecycle state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrNoDMApp marks an evaluation request for a context that has no
	// DMApp loaded.
	ErrNoDMApp = errors.New("no dmapp loaded")
)

// Pusher delivers layout results to connected clients. The websocket hub
// implements it; tests substitute a recorder.
type Pusher interface {
	BroadcastLayout(lay *models.Layout)
	BroadcastDiff(contextID string, diff *models.Diff)
	BroadcastRegionChange(contextID string, msg *models.LogicalRegionChangeMessage)
}

// Service coordinates layout evaluation for all contexts.
//
// Evaluations of the same context are serialised on a per-context lock;
// distinct contexts evaluate concurrently.
type Service struct {
	store *store.Store
	eval  *layout.Engine
	push  Pusher
	cfg   config.EngineConfig
	log   zerolog.Logger

	// now is the clock, swappable in tests.
	now func() int64

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	fallbackID atomic.Uint64
}

// NewService wires the evaluator to its collaborators.
func NewService(st *store.Store, push Pusher, cfg config.EngineConfig) *Service {
	log := logging.WithComponent("engine")
	return &Service{
		store: st,
		eval:  layout.NewEngine(log),
		push:  push,
		cfg:   cfg,
		log:   log,
		now:   func() int64 { return time.Now().UnixNano() },
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockFor(contextID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[contextID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[contextID] = l
	}
	return l
}

// nextID issues a message id from the persistent sequence, falling back
// to a process-local counter if the store fails. A local id keeps the
// evaluation usable; the sequence bandwidth guarantees no reuse after
// restart anyway.
func (s *Service) nextID() uint64 {
	id, err := s.store.NextMessageID()
	if err != nil {
		s.log.Warn().Err(err).Msg("message sequence failed, using fallback counter")
		return s.fallbackID.Add(1)
	}
	return id
}

// --- contexts ---------------------------------------------------------------

// CreateContext registers a new context. A missing id gets a generated
// one; the id is returned on the stored document.
func (s *Service) CreateContext(ctx *models.Context) (*models.Context, error) {
	if ctx.ID == "" {
		ctx.ID = uuid.NewString()
	}
	if _, err := s.store.GetContext(ctx.ID); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrContextExists, ctx.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	ctx.Config.Normalize()
	if err := s.store.SaveContext(ctx); err != nil {
		return nil, err
	}
	metrics.ActiveContexts.Inc()
	s.log.Info().Str("context_id", ctx.ID).Int("devices", len(ctx.Devices)).Msg("context created")
	return ctx, nil
}

// GetContext loads a context.
func (s *Service) GetContext(contextID string) (*models.Context, error) {
	return s.store.GetContext(contextID)
}

// ListContexts lists every context.
func (s *Service) ListContexts() ([]*models.Context, error) {
	return s.store.ListContexts()
}

// DeleteContext removes a context and everything under it.
func (s *Service) DeleteContext(contextID string) error {
	l := s.lockFor(contextID)
	l.Lock()
	defer l.Unlock()
	if err := s.store.DeleteContext(contextID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.locks, contextID)
	s.mu.Unlock()
	metrics.ActiveContexts.Dec()
	s.log.Info().Str("context_id", contextID).Msg("context deleted")
	return nil
}

// --- devices ----------------------------------------------------------------

// JoinDevice adds (or replaces) a device in a context and re-evaluates.
func (s *Service) JoinDevice(contextID string, dev models.Device) (*models.Layout, *models.Diff, error) {
	l := s.lockFor(contextID)
	l.Lock()
	defer l.Unlock()

	ctx, err := s.store.GetContext(contextID)
	if err != nil {
		return nil, nil, err
	}
	if existing := ctx.Device(dev.ID); existing != nil {
		*existing = dev
	} else {
		ctx.Devices = append(ctx.Devices, dev)
	}
	if err := s.store.SaveContext(ctx); err != nil {
		return nil, nil, err
	}
	s.log.Info().
		Str("context_id", contextID).
		Str("device_id", dev.ID).
		Bool("communal", dev.Caps.Communal).
		Msg("device joined")
	return s.evaluateLocked("devices", ctx)
}

// LeaveDevice removes a device from a context and re-evaluates.
func (s *Service) LeaveDevice(contextID, deviceID string) (*models.Layout, *models.Diff, error) {
	l := s.lockFor(contextID)
	l.Lock()
	defer l.Unlock()

	ctx, err := s.store.GetContext(contextID)
	if err != nil {
		return nil, nil, err
	}
	kept := ctx.Devices[:0]
	found := false
	for _, d := range ctx.Devices {
		if d.ID == deviceID {
			found = true
			continue
		}
		kept = append(kept, d)
	}
	if !found {
		return nil, nil, fmt.Errorf("device %q: %w", deviceID, store.ErrNotFound)
	}
	ctx.Devices = kept
	if err := s.store.SaveContext(ctx); err != nil {
		return nil, nil, err
	}
	s.log.Info().Str("context_id", contextID).Str("device_id", deviceID).Msg("device left")
	return s.evaluateLocked("devices", ctx)
}

// ChangeRegions replaces a device's logical region set and re-evaluates.
// The region change is announced to subscribers alongside the diff.
func (s *Service) ChangeRegions(contextID, deviceID string, regions []models.Region) (*models.Layout, *models.Diff, error) {
	l := s.lockFor(contextID)
	l.Lock()
	defer l.Unlock()

	ctx, err := s.store.GetContext(contextID)
	if err != nil {
		return nil, nil, err
	}
	dev := ctx.Device(deviceID)
	if dev == nil {
		return nil, nil, fmt.Errorf("device %q: %w", deviceID, store.ErrNotFound)
	}
	dev.Regions = regions
	if err := s.store.SaveContext(ctx); err != nil {
		return nil, nil, err
	}

	lay, diff, err := s.evaluateLocked("devices", ctx)
	if err != nil {
		return nil, nil, err
	}
	msg := models.LogicalRegionChangeMessage{
		MessageID:      s.nextID(),
		Timestamp:      s.now(),
		DeviceID:       deviceID,
		LogicalRegions: regions,
	}
	if diff != nil {
		diff.LogicalRegionChange = append(diff.LogicalRegionChange, msg)
	}
	if s.push != nil {
		s.push.BroadcastRegionChange(contextID, &msg)
	}
	return lay, diff, nil
}

// --- dmapps -----------------------------------------------------------------

// LoadDMApp loads a DMApp into its context. The constraint document is
// validated up front so a broken load fails before it is persisted.
func (s *Service) LoadDMApp(app *models.DMApp) (*models.Layout, *models.Diff, error) {
	l := s.lockFor(app.ContextID)
	l.Lock()
	defer l.Unlock()

	ctx, err := s.store.GetContext(app.ContextID)
	if err != nil {
		return nil, nil, err
	}
	if err := app.Constraints.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", layout.ErrInvalidConstraint, err)
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	for i := range app.Components {
		if app.Components[i].State == "" {
			app.Components[i].State = models.StateUninitialised
		}
	}
	if err := s.store.SaveDMApp(app); err != nil {
		return nil, nil, err
	}
	ctx.DMAppID = app.ID
	if err := s.store.SaveContext(ctx); err != nil {
		return nil, nil, err
	}
	s.log.Info().
		Str("context_id", app.ContextID).
		Str("dmapp_id", app.ID).
		Int("components", len(app.Components)).
		Msg("dmapp loaded")
	return s.evaluateLocked("transaction", ctx)
}

// GetDMApp loads a DMApp document.
func (s *Service) GetDMApp(contextID, dmappID string) (*models.DMApp, error) {
	return s.store.GetDMApp(contextID, dmappID)
}

// UnloadDMApp removes a DMApp. Every placement of the previous layout is
// destroyed and subscribers receive the resulting empty layout.
func (s *Service) UnloadDMApp(contextID, dmappID string) (*models.Diff, error) {
	l := s.lockFor(contextID)
	l.Lock()
	defer l.Unlock()

	ctx, err := s.store.GetContext(contextID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetDMApp(contextID, dmappID); err != nil {
		return nil, err
	}

	now := s.now()
	diff := &models.Diff{}
	prev, err := s.store.GetLayout(contextID)
	if err == nil {
		for i := range prev.Devices {
			dl := &prev.Devices[i]
			for j := range dl.Components {
				pc := &dl.Components[j]
				diff.Destroy = append(diff.Destroy, models.DestroyMessage{
					MessageID:   s.nextID(),
					Timestamp:   now,
					ComponentID: pc.ComponentID,
					ContextID:   contextID,
					DMAppID:     dmappID,
					DeviceID:    dl.DeviceID,
					InstanceID:  pc.InstanceID,
				})
			}
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err := s.store.DeleteDMApp(contextID, dmappID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteLayout(contextID); err != nil {
		return nil, err
	}
	if ctx.DMAppID == dmappID {
		ctx.DMAppID = ""
		if err := s.store.SaveContext(ctx); err != nil {
			return nil, err
		}
	}
	s.log.Info().Str("context_id", contextID).Str("dmapp_id", dmappID).Msg("dmapp unloaded")

	if s.push != nil {
		s.push.BroadcastLayout(&models.Layout{ContextID: contextID, DMAppID: dmappID, Timestamp: now})
		s.push.BroadcastDiff(contextID, diff)
	}
	return diff, nil
}

// --- transactions -----------------------------------------------------------

// ApplyTransaction applies a batch of component actions and triggers one
// re-evaluation. The batch is atomic: any illegal action rejects the
// whole transaction before anything is persisted.
func (s *Service) ApplyTransaction(contextID, dmappID string, txn *models.Transaction) (*models.Layout, *models.Diff, error) {
	if err := txn.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", layout.ErrInvalidConstraint, err)
	}

	l := s.lockFor(contextID)
	l.Lock()
	defer l.Unlock()

	ctx, err := s.store.GetContext(contextID)
	if err != nil {
		return nil, nil, err
	}
	app, err := s.store.GetDMApp(contextID, dmappID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	txnTime := now
	if txn.Time != nil {
		txnTime = *txn.Time
	}
	for i := range txn.Actions {
		if err := s.applyAction(app, &txn.Actions[i], txnTime); err != nil {
			return nil, nil, err
		}
	}

	if err := s.store.SaveDMApp(app); err != nil {
		return nil, nil, err
	}
	return s.evaluateLocked("transaction", ctx)
}

func (s *Service) applyAction(app *models.DMApp, a *models.Action, txnTime int64) error {
	for _, id := range a.ComponentIDs {
		c := app.Component(id)
		if c == nil {
			return fmt.Errorf("%w: %q", layout.ErrUnknownComponent, id)
		}
		switch a.Action {
		case models.ActionInit:
			if !c.CanTransition(models.StateInited) {
				return transitionErr(c, models.StateInited)
			}
			c.State = models.StateInited
			c.Visible = true
			if a.ConstraintID != "" {
				c.ConstraintID = a.ConstraintID
			}
			if a.Config != nil {
				c.Config = a.Config
			}
			if a.Parameters != nil {
				c.Parameters = a.Parameters
			}

		case models.ActionStart:
			if !c.CanTransition(models.StateStarted) {
				return transitionErr(c, models.StateStarted)
			}
			c.State = models.StateStarted
			t := txnTime
			if a.StartTime != nil {
				t = *a.StartTime
			}
			c.StartTime = &t
			c.StopTime = nil

		case models.ActionStop:
			if !c.CanTransition(models.StateStopped) {
				return transitionErr(c, models.StateStopped)
			}
			c.State = models.StateStopped
			t := txnTime
			if a.StopTime != nil {
				t = *a.StopTime
			}
			c.StopTime = &t

		case models.ActionDestroy:
			if !c.CanTransition(models.StateDestroyed) {
				return transitionErr(c, models.StateDestroyed)
			}
			c.State = models.StateDestroyed

		case models.ActionHide:
			c.Visible = false

		case models.ActionShow:
			c.Visible = true

		case models.ActionUpdate:
			if a.Parameters != nil {
				if c.Parameters == nil {
					c.Parameters = make(map[string]any, len(a.Parameters))
				}
				for k, v := range a.Parameters {
					c.Parameters[k] = v
				}
			}
			if a.Config != nil {
				c.Config = a.Config
			}
		}
	}
	return nil
}

func transitionErr(c *models.Component, next models.ComponentState) error {
	return fmt.Errorf("%w: component %q %s -> %s", ErrInvalidTransition, c.ID, c.State, next)
}

// SetPriorities merges priority overrides onto a component and
// re-evaluates.
func (s *Service) SetPriorities(contextID, dmappID, componentID string, p *models.PriorityOverrides) (*models.Layout, *models.Diff, error) {
	l := s.lockFor(contextID)
	l.Lock()
	defer l.Unlock()

	ctx, err := s.store.GetContext(contextID)
	if err != nil {
		return nil, nil, err
	}
	app, err := s.store.GetDMApp(contextID, dmappID)
	if err != nil {
		return nil, nil, err
	}
	c := app.Component(componentID)
	if c == nil {
		return nil, nil, fmt.Errorf("%w: %q", layout.ErrUnknownComponent, componentID)
	}
	mergePriorities(c, p)
	if err := s.store.SaveDMApp(app); err != nil {
		return nil, nil, err
	}
	return s.evaluateLocked("transaction", ctx)
}

// mergePriorities overlays p onto the component's override table. An
// override value of OverrideRemoved clears that scope's entry.
func mergePriorities(c *models.Component, p *models.PriorityOverrides) {
	if p == nil {
		return
	}
	if c.Priorities == nil {
		c.Priorities = &models.PriorityOverrides{}
	}
	dst := c.Priorities
	for id, v := range p.Device {
		if v == models.OverrideRemoved {
			delete(dst.Device, id)
			continue
		}
		if dst.Device == nil {
			dst.Device = make(map[string]int)
		}
		dst.Device[id] = v
	}
	for id, v := range p.Group {
		if v == models.OverrideRemoved {
			delete(dst.Group, id)
			continue
		}
		if dst.Group == nil {
			dst.Group = make(map[string]int)
		}
		dst.Group[id] = v
	}
	if p.Context != nil {
		if *p.Context == models.OverrideRemoved {
			dst.Context = nil
		} else {
			v := *p.Context
			dst.Context = &v
		}
	}
}

// --- layouts ----------------------------------------------------------------

// GetLayout returns the context's current layout.
func (s *Service) GetLayout(contextID string) (*models.Layout, error) {
	return s.store.GetLayout(contextID)
}

// ReEvaluate forces a fresh evaluation, e.g. on a clock update.
func (s *Service) ReEvaluate(contextID string) (*models.Layout, *models.Diff, error) {
	l := s.lockFor(contextID)
	l.Lock()
	defer l.Unlock()

	ctx, err := s.store.GetContext(contextID)
	if err != nil {
		return nil, nil, err
	}
	return s.evaluateLocked("clock", ctx)
}

// Simulate answers where the named components would be placed, without
// touching persisted state.
func (s *Service) Simulate(contextID, dmappID string, componentIDs []string) (*layout.SimResult, error) {
	ctx, err := s.store.GetContext(contextID)
	if err != nil {
		return nil, err
	}
	app, err := s.store.GetDMApp(contextID, dmappID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	res, err := s.eval.Simulate(layout.EvalInput{
		Context: ctx,
		DMApp:   app,
		Now:     s.now(),
	}, componentIDs)
	metrics.ObserveEvaluation("simulate", err, time.Since(started), placedCount(resLayout(res)))
	return res, err
}

func resLayout(res *layout.SimResult) *models.Layout {
	if res == nil {
		return nil
	}
	return res.Layout
}

// evaluateLocked runs one evaluation for a context whose lock is held,
// persists the result and pushes it to subscribers. A context without a
// loaded DMApp yields ErrNoDMApp.
func (s *Service) evaluateLocked(trigger string, ctx *models.Context) (*models.Layout, *models.Diff, error) {
	if ctx.DMAppID == "" {
		return nil, nil, fmt.Errorf("context %q: %w", ctx.ID, ErrNoDMApp)
	}
	app, err := s.store.GetDMApp(ctx.ID, ctx.DMAppID)
	if err != nil {
		return nil, nil, err
	}
	prev, err := s.store.GetLayout(ctx.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}

	in := layout.EvalInput{
		Context:  ctx,
		DMApp:    app,
		Previous: prev,
		Now:      s.now(),
		NextID:   s.nextID,
	}

	started := time.Now()
	lay, diff, err := s.evaluateWithTimeout(in)
	elapsed := time.Since(started)
	metrics.ObserveEvaluation(trigger, err, elapsed, placedCount(lay))
	if err != nil {
		s.log.Error().Err(err).Str("context_id", ctx.ID).Str("trigger", trigger).Msg("evaluation failed")
		return nil, nil, err
	}
	recordDiff(lay, diff)

	if err := s.store.SaveLayout(lay); err != nil {
		return nil, nil, err
	}

	s.log.Debug().
		Str("context_id", ctx.ID).
		Str("trigger", trigger).
		Int("placed", placedCount(lay)).
		Int("creates", len(diff.Create)).
		Int("updates", len(diff.Update)).
		Int("destroys", len(diff.Destroy)).
		Dur("elapsed", elapsed).
		Msg("layout evaluated")

	if s.push != nil {
		s.push.BroadcastLayout(lay)
		s.push.BroadcastDiff(ctx.ID, diff)
	}
	return lay, diff, nil
}

// evaluateWithTimeout bounds one evaluation by cfg.EvalTimeout. The
// evaluator has no cancellation points, so a timed-out run is abandoned
// rather than interrupted; its goroutine finishes and its result is
// dropped.
func (s *Service) evaluateWithTimeout(in layout.EvalInput) (*models.Layout, *models.Diff, error) {
	if s.cfg.EvalTimeout <= 0 {
		return s.eval.Evaluate(in)
	}

	type evalResult struct {
		lay  *models.Layout
		diff *models.Diff
		err  error
	}
	done := make(chan evalResult, 1)
	go func() {
		lay, diff, err := s.eval.Evaluate(in)
		done <- evalResult{lay, diff, err}
	}()

	select {
	case r := <-done:
		return r.lay, r.diff, r.err
	case <-time.After(s.cfg.EvalTimeout):
		return nil, nil, fmt.Errorf("%w: evaluation exceeded %v", layout.ErrInternal, s.cfg.EvalTimeout)
	}
}

func placedCount(lay *models.Layout) int {
	if lay == nil {
		return 0
	}
	n := 0
	for i := range lay.Devices {
		n += len(lay.Devices[i].Components)
	}
	return n
}

func recordDiff(lay *models.Layout, diff *models.Diff) {
	for i := range lay.NotPlaced {
		g := &lay.NotPlaced[i]
		metrics.NotPlacedTotal.WithLabelValues(string(g.Status)).Add(float64(len(g.ComponentIDs)))
	}
	metrics.DiffMessagesTotal.WithLabelValues("create").Add(float64(len(diff.Create)))
	metrics.DiffMessagesTotal.WithLabelValues("update").Add(float64(len(diff.Update)))
	metrics.DiffMessagesTotal.WithLabelValues("destroy").Add(float64(len(diff.Destroy)))
}
