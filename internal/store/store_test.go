// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package store

import (
	"errors"
	"testing"

	"github.com/tomtom215/mosaicus/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestContextRoundTrip(t *testing.T) {
	s := openTestStore(t)

	ctx := &models.Context{
		ID:      "ctx1",
		DMAppID: "app1",
		Devices: []models.Device{{
			ID:   "tv",
			Caps: models.Capabilities{DisplayWidth: 1920, DisplayHeight: 1080, Communal: true},
		}},
	}
	if err := s.SaveContext(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetContext("ctx1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "ctx1" || len(got.Devices) != 1 || got.Devices[0].ID != "tv" {
		t.Errorf("got %+v", got)
	}
	if got.Devices[0].Caps.DisplayWidth != 1920 {
		t.Error("capabilities lost in round trip")
	}

	if _, err := s.GetContext("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing context err = %v, want ErrNotFound", err)
	}
}

func TestDeleteContextCascades(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveContext(&models.Context{ID: "ctx1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDMApp(&models.DMApp{ID: "app1", ContextID: "ctx1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveLayout(&models.Layout{ContextID: "ctx1", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteContext("ctx1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetContext("ctx1"); !errors.Is(err, ErrNotFound) {
		t.Error("context survived delete")
	}
	if _, err := s.GetDMApp("ctx1", "app1"); !errors.Is(err, ErrNotFound) {
		t.Error("dmapp survived context delete")
	}
	if _, err := s.GetLayout("ctx1"); !errors.Is(err, ErrNotFound) {
		t.Error("layout survived context delete")
	}
}

func TestListContextsAndDMApps(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveContext(&models.Context{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	ctxs, err := s.ListContexts()
	if err != nil {
		t.Fatal(err)
	}
	if len(ctxs) != 3 {
		t.Fatalf("contexts = %d, want 3", len(ctxs))
	}

	if err := s.SaveDMApp(&models.DMApp{ID: "app1", ContextID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDMApp(&models.DMApp{ID: "app2", ContextID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDMApp(&models.DMApp{ID: "other", ContextID: "b"}); err != nil {
		t.Fatal(err)
	}
	apps, err := s.ListDMApps("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 2 {
		t.Fatalf("dmapps in a = %d, want 2", len(apps))
	}
}

func TestLayoutRoundTrip(t *testing.T) {
	s := openTestStore(t)

	lay := &models.Layout{
		ContextID: "ctx1",
		Timestamp: 42,
		Devices: []models.DeviceLayout{{
			DeviceID: "tv",
			Components: []models.PlacedComponent{{
				ComponentID: "video",
				DeviceID:    "tv",
				Position:    &models.Position{X: models.Px(0), Y: models.Px(0)},
				Size:        &models.Size{Width: models.Px(1920), Height: models.Px(1080)},
			}},
		}},
	}
	if err := s.SaveLayout(lay); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetLayout("ctx1")
	if err != nil {
		t.Fatal(err)
	}
	pc := got.Find("tv", "video")
	if pc == nil {
		t.Fatal("placement lost")
	}
	if pc.Size.Width.Value != 1920 {
		t.Errorf("width = %g", pc.Size.Width.Value)
	}
}

func TestMessageIDsMonotonic(t *testing.T) {
	s := openTestStore(t)

	var last uint64
	for i := 0; i < 100; i++ {
		id, err := s.NextMessageID()
		if err != nil {
			t.Fatal(err)
		}
		if id <= last {
			t.Fatalf("id %d not after %d", id, last)
		}
		last = id
	}
	if last < 100 {
		t.Errorf("ids not dense from 1: last = %d", last)
	}
}
