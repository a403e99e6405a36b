// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package check implements the access checker (spec.md §4.4): the
// component that turns a bare memory access plus "what frame, what
// lockset, how deep in an atomic region" into a shadow-memory query,
// and hands back whatever races fall out. The race logic itself --
// SP-parallelism, lockset intersection, atomic suppression -- lives in
// package shadow's per-byte state machine; this package is the thin,
// frame-aware front end event.Dispatcher drives, so the dispatcher
// never has to reach into a Frame's Locks field or the atomic-region
// counter itself.
package check

import (
	"github.com/race-tools/cilksan-go/lockset"
	"github.com/race-tools/cilksan-go/shadow"
	"github.com/race-tools/cilksan-go/spbag"
)

// Checker wraps a shadow memory and an atomic-region counter, shared
// across every frame of one detector instance (mode (a): a single
// logical worker).
type Checker struct {
	Shadow *shadow.Shadow
	Atomic lockset.AtomicRegion
}

// New returns a Checker over a fresh shadow memory.
func New() *Checker {
	return &Checker{Shadow: shadow.New()}
}

// Read checks and records a read of [lo, hi) performed by frame f at
// instruction iid.
func (c *Checker) Read(f *spbag.Frame, lo, hi, iid, epoch uint64) []shadow.Race {
	return c.Shadow.CheckAndUpdateRead(lo, hi, iid, f.Leaf(), f.Locks, epoch, c.Atomic.Active())
}

// Write checks and records a write of [lo, hi) performed by frame f at
// instruction iid.
func (c *Checker) Write(f *spbag.Frame, lo, hi, iid, epoch uint64) []shadow.Race {
	return c.Shadow.CheckAndUpdateWrite(lo, hi, iid, f.Leaf(), f.Locks, epoch, c.Atomic.Active())
}

// Free checks [lo, hi) against its last writer/readers for frame f at
// instruction iid, then clears shadow state for the range. Atomic
// regions and locksets never suppress a free race (freeing memory
// another strand is concurrently touching races regardless).
func (c *Checker) Free(f *spbag.Frame, lo, hi, iid uint64) []shadow.Race {
	return c.Shadow.Free(lo, hi, iid, f.Leaf())
}
