// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

// Package models defines the shared data model for Mosaicus.
//
// The model is split along the same lines as the wire protocol:
//
//   - Contexts, devices, regions and groups describe the physical session:
//     which displays participate, their capabilities, and how they are
//     grouped for layout purposes.
//   - Constraint documents describe how a DMApp's components may be laid
//     out: sizes, aspect ratios, priorities, anchors and dependencies.
//   - Components carry lifecycle state (init/start/stop/destroy) and
//     opaque payloads that the engine passes through untouched.
//   - Layouts are the engine's output: per-device placements plus the
//     set of components that could not be placed and why.
//   - Messages are the differential notifications (create/update/destroy)
//     that carry clients from one layout to the next.
//
// All JSON serialization in Mosaicus goes through goccy/go-json; struct
// tags here define the wire format for both the REST surface and the
// badger-backed store.
package models
