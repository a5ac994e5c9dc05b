// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

// Package layout implements the Mosaicus layout engine.
//
// The engine is a pure function over a snapshot: given a context (devices,
// groups, options), a constraint document, the component set and the
// previously persisted layout, it produces a fresh layout and the
// differential message sets that carry clients from the old layout to the
// new one. It performs no I/O and holds no state between calls.
//
// # Pipeline
//
// Evaluation runs the following stages, leaves first:
//
//  1. Resolver materialises per-component effective constraints
//     (communal/personal selection, defaults, unit normalisation,
//     priority overrides).
//  2. Tree builds one BSP root node per logical device region.
//  3. orderCandidates prioritises candidate rectangles and trims the
//     tail that provably cannot fit.
//  4. Packer places rectangles in three passes: initial fit,
//     reduction-and-retry, beautify.
//  5. Assembler collects placed rectangles into a device-keyed layout.
//  6. Differ compares the previous and new layouts into
//     create/update/destroy record sets.
//
// Simulate wraps stages 1-5 with a forced-visible component subset and
// discards everything except the device mapping.
//
// # Memory model
//
// Region nodes live in a flat arena indexed by nodeID; nodes reference
// their host device and region by index, never by pointer. Attempted
// placements are made reversible through an undo log of split, occupy,
// consolidate and counter operations; a failed placement rolls the arena
// back instead of cloning it up front.
//
// The engine is single-threaded per context. Callers serialise
// evaluations on the same context; concurrent evaluations on different
// contexts are independent.
package layout
