// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/mosaicus/internal/config"
	"github.com/tomtom215/mosaicus/internal/layout"
	"github.com/tomtom215/mosaicus/internal/models"
	"github.com/tomtom215/mosaicus/internal/store"
)

const testNow = int64(20_000_000_000)

// recordingPusher captures push calls for assertions.
type recordingPusher struct {
	mu      sync.Mutex
	layouts []*models.Layout
	diffs   []*models.Diff
	regions []*models.LogicalRegionChangeMessage
}

func (p *recordingPusher) BroadcastLayout(lay *models.Layout) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.layouts = append(p.layouts, lay)
}

func (p *recordingPusher) BroadcastDiff(_ string, diff *models.Diff) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diffs = append(p.diffs, diff)
}

func (p *recordingPusher) BroadcastRegionChange(_ string, msg *models.LogicalRegionChangeMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regions = append(p.regions, msg)
}

func newTestService(t *testing.T) (*Service, *recordingPusher) {
	t.Helper()
	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	push := &recordingPusher{}
	svc := NewService(st, push, config.EngineConfig{
		ReduceFactor: models.DefaultReduceFactor,
		ReduceTries:  models.DefaultReduceTries,
		EvalTimeout:  time.Second,
	})
	svc.now = func() int64 { return testNow }
	return svc, push
}

func testDoc(cons ...models.Constraint) models.ConstraintDoc {
	cons = append(cons, models.Constraint{
		ConstraintID: models.DefaultConstraintID,
		Communal:     &models.ConstraintConfig{},
		Personal:     &models.ConstraintConfig{},
	})
	return models.ConstraintDoc{
		Version:     models.ConstraintDocVersion,
		LayoutModel: models.LayoutModelDynamic,
		Constraints: cons,
	}
}

func tvContext(id string) *models.Context {
	return &models.Context{
		ID: id,
		Devices: []models.Device{{
			ID:      "tv",
			GroupID: "g1",
			Caps: models.Capabilities{
				DisplayWidth: 1920, DisplayHeight: 1080,
				ConcurrentAudio: 2, ConcurrentVideo: 2,
				Communal: true,
			},
		}},
	}
}

func mustCreate(t *testing.T, svc *Service, ctx *models.Context) {
	t.Helper()
	if _, err := svc.CreateContext(ctx); err != nil {
		t.Fatalf("create context: %v", err)
	}
}

func startedApp(contextID string) *models.DMApp {
	start := testNow - 1
	return &models.DMApp{
		ID:          "app1",
		ContextID:   contextID,
		Constraints: testDoc(),
		Components: []models.Component{{
			ID: "video", State: models.StateStarted, StartTime: &start, Visible: true,
		}},
	}
}

func TestCreateContext(t *testing.T) {
	svc, _ := newTestService(t)

	ctx, err := svc.CreateContext(&models.Context{})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.ID == "" {
		t.Error("no id generated")
	}
	if ctx.Config.ReduceFactor != models.DefaultReduceFactor {
		t.Errorf("config not normalized: %+v", ctx.Config)
	}

	if _, err := svc.CreateContext(&models.Context{ID: ctx.ID}); !errors.Is(err, ErrContextExists) {
		t.Errorf("duplicate create err = %v, want ErrContextExists", err)
	}
}

func TestLoadDMAppEvaluatesAndPushes(t *testing.T) {
	svc, push := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))

	lay, diff, err := svc.LoadDMApp(startedApp("ctx1"))
	if err != nil {
		t.Fatal(err)
	}
	if lay.Find("tv", "video") == nil {
		t.Fatal("video not placed")
	}
	if len(diff.Create) != 1 {
		t.Fatalf("creates = %d, want 1", len(diff.Create))
	}

	persisted, err := svc.GetLayout("ctx1")
	if err != nil {
		t.Fatal(err)
	}
	if persisted.Find("tv", "video") == nil {
		t.Error("layout not persisted")
	}
	if len(push.layouts) != 1 || len(push.diffs) != 1 {
		t.Errorf("pushes = %d layouts / %d diffs, want 1/1", len(push.layouts), len(push.diffs))
	}
}

func TestLoadDMAppRejectsBadDocument(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))

	app := startedApp("ctx1")
	app.Constraints.Version = 3
	if _, _, err := svc.LoadDMApp(app); !errors.Is(err, layout.ErrInvalidConstraint) {
		t.Errorf("err = %v, want ErrInvalidConstraint", err)
	}
	if _, err := svc.GetDMApp("ctx1", "app1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("rejected dmapp was persisted")
	}
}

func TestTransactionLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))

	app := startedApp("ctx1")
	app.Components = []models.Component{{ID: "video", State: models.StateUninitialised}}
	if _, _, err := svc.LoadDMApp(app); err != nil {
		t.Fatal(err)
	}

	lay, _, err := svc.ApplyTransaction("ctx1", "app1", &models.Transaction{
		Actions: []models.Action{
			{Action: models.ActionInit, ComponentIDs: []string{"video"}},
			{Action: models.ActionStart, ComponentIDs: []string{"video"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if lay.Find("tv", "video") == nil {
		t.Fatal("video not placed after init+start")
	}

	got, err := svc.GetDMApp("ctx1", "app1")
	if err != nil {
		t.Fatal(err)
	}
	c := got.Component("video")
	if c.State != models.StateStarted || c.StartTime == nil || *c.StartTime != testNow {
		t.Errorf("component after start: %+v", c)
	}

	_, diff, err := svc.ApplyTransaction("ctx1", "app1", &models.Transaction{
		Actions: []models.Action{{Action: models.ActionStop, ComponentIDs: []string{"video"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(diff.Destroy) != 1 {
		t.Errorf("destroys after stop = %d, want 1", len(diff.Destroy))
	}
}

func TestTransactionRejectsIllegalTransition(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))

	app := startedApp("ctx1")
	app.Components = []models.Component{{ID: "video", State: models.StateUninitialised}}
	if _, _, err := svc.LoadDMApp(app); err != nil {
		t.Fatal(err)
	}

	// start without init is illegal; the batch must change nothing.
	_, _, err := svc.ApplyTransaction("ctx1", "app1", &models.Transaction{
		Actions: []models.Action{{Action: models.ActionStart, ComponentIDs: []string{"video"}}},
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	got, err := svc.GetDMApp("ctx1", "app1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Component("video").State != models.StateUninitialised {
		t.Error("rejected transaction mutated persisted state")
	}
}

func TestTransactionUnknownComponent(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))
	if _, _, err := svc.LoadDMApp(startedApp("ctx1")); err != nil {
		t.Fatal(err)
	}

	_, _, err := svc.ApplyTransaction("ctx1", "app1", &models.Transaction{
		Actions: []models.Action{{Action: models.ActionHide, ComponentIDs: []string{"ghost"}}},
	})
	if !errors.Is(err, layout.ErrUnknownComponent) {
		t.Errorf("err = %v, want ErrUnknownComponent", err)
	}
}

func TestJoinAndLeaveDevice(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))
	if _, _, err := svc.LoadDMApp(startedApp("ctx1")); err != nil {
		t.Fatal(err)
	}

	lay, _, err := svc.JoinDevice("ctx1", models.Device{
		ID:      "tablet",
		GroupID: "g1",
		Caps:    models.Capabilities{DisplayWidth: 1024, DisplayHeight: 768, ConcurrentAudio: 1, ConcurrentVideo: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := svc.GetContext("ctx1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ctx.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(ctx.Devices))
	}
	if lay == nil {
		t.Fatal("join did not re-evaluate")
	}

	if _, _, err := svc.LeaveDevice("ctx1", "tablet"); err != nil {
		t.Fatal(err)
	}
	ctx, _ = svc.GetContext("ctx1")
	if len(ctx.Devices) != 1 {
		t.Errorf("devices after leave = %d, want 1", len(ctx.Devices))
	}

	if _, _, err := svc.LeaveDevice("ctx1", "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("leave unknown device err = %v, want ErrNotFound", err)
	}
}

func TestJoinWithoutDMApp(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))

	_, _, err := svc.JoinDevice("ctx1", models.Device{ID: "tablet"})
	if !errors.Is(err, ErrNoDMApp) {
		t.Errorf("err = %v, want ErrNoDMApp", err)
	}
}

func TestSetPriorities(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))
	if _, _, err := svc.LoadDMApp(startedApp("ctx1")); err != nil {
		t.Fatal(err)
	}

	nine := 9
	if _, _, err := svc.SetPriorities("ctx1", "app1", "video", &models.PriorityOverrides{
		Context: &nine,
		Device:  map[string]int{"tv": 3},
	}); err != nil {
		t.Fatal(err)
	}
	app, _ := svc.GetDMApp("ctx1", "app1")
	p := app.Component("video").Priorities
	if p == nil || p.Context == nil || *p.Context != 9 || p.Device["tv"] != 3 {
		t.Fatalf("priorities = %+v", p)
	}

	removed := models.OverrideRemoved
	if _, _, err := svc.SetPriorities("ctx1", "app1", "video", &models.PriorityOverrides{
		Context: &removed,
		Device:  map[string]int{"tv": models.OverrideRemoved},
	}); err != nil {
		t.Fatal(err)
	}
	app, _ = svc.GetDMApp("ctx1", "app1")
	p = app.Component("video").Priorities
	if p.Context != nil || len(p.Device) != 0 {
		t.Errorf("overrides not cleared: %+v", p)
	}
}

func TestUnloadDMApp(t *testing.T) {
	svc, push := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))
	if _, _, err := svc.LoadDMApp(startedApp("ctx1")); err != nil {
		t.Fatal(err)
	}

	diff, err := svc.UnloadDMApp("ctx1", "app1")
	if err != nil {
		t.Fatal(err)
	}
	if len(diff.Destroy) != 1 || diff.Destroy[0].ComponentID != "video" {
		t.Fatalf("destroys = %+v", diff.Destroy)
	}
	if _, err := svc.GetLayout("ctx1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("layout survived unload")
	}
	ctx, _ := svc.GetContext("ctx1")
	if ctx.DMAppID != "" {
		t.Error("context still references unloaded dmapp")
	}

	push.mu.Lock()
	last := push.layouts[len(push.layouts)-1]
	push.mu.Unlock()
	if len(last.Devices) != 0 {
		t.Error("unload did not push an empty layout")
	}
}

func TestChangeRegions(t *testing.T) {
	svc, push := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))
	if _, _, err := svc.LoadDMApp(startedApp("ctx1")); err != nil {
		t.Fatal(err)
	}

	_, diff, err := svc.ChangeRegions("ctx1", "tv", []models.Region{
		{ID: "main", Width: 1280, Height: 1080},
		{ID: "side", Width: 640, Height: 1080},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(diff.LogicalRegionChange) != 1 {
		t.Fatalf("region change messages = %d, want 1", len(diff.LogicalRegionChange))
	}
	if diff.LogicalRegionChange[0].DeviceID != "tv" {
		t.Errorf("device = %s", diff.LogicalRegionChange[0].DeviceID)
	}
	if len(push.regions) != 1 {
		t.Errorf("region pushes = %d, want 1", len(push.regions))
	}
}

func TestSimulate(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))

	app := startedApp("ctx1")
	app.Components = []models.Component{{ID: "video", State: models.StateUninitialised}}
	if _, _, err := svc.LoadDMApp(app); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Simulate("ctx1", "app1", []string{"video"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Create) != 1 || res.Create[0].DeviceID != "tv" {
		t.Fatalf("simulate creates = %+v", res.Create)
	}

	// Simulation must not touch persisted state.
	got, _ := svc.GetDMApp("ctx1", "app1")
	if got.Component("video").State != models.StateUninitialised {
		t.Error("simulate mutated component state")
	}
}

func TestReEvaluateIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, tvContext("ctx1"))
	if _, _, err := svc.LoadDMApp(startedApp("ctx1")); err != nil {
		t.Fatal(err)
	}

	_, diff, err := svc.ReEvaluate("ctx1")
	if err != nil {
		t.Fatal(err)
	}
	if !diff.Empty() {
		t.Errorf("re-evaluation of unchanged state produced diff %+v", diff)
	}
}
