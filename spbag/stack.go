// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spbag

import "github.com/race-tools/cilksan-go/cilkerr"

// Stack is the logical call stack of live frames for one worker: a
// single top frame plus everything reachable through Parent links. It
// is driven strictly by well-nested function-entry/exit events, with
// detach/detach_continue/sync bracketing spawns, exactly as the event
// dispatcher receives them.
type Stack struct {
	Forest *Forest
	top    *Frame

	// pendingSpawn, when non-nil, records that a detach event fired
	// and the next function-entry event creates a spawned child in
	// this sync region.
	pendingSpawn *SyncRegion
}

// NewStack creates a stack with a single root frame for rootFuncIID
// (the outermost instrumented function, typically main).
func NewStack(forest *Forest, rootFuncIID uint64) *Stack {
	return &Stack{Forest: forest, top: NewRoot(forest, rootFuncIID)}
}

// Top returns the currently active frame.
func (s *Stack) Top() *Frame { return s.top }

// Detach records a spawn (detach) about to occur in sync region
// region; the next FuncEntry call creates the spawned child.
func (s *Stack) Detach(region SyncRegion) error {
	if s.pendingSpawn != nil {
		return cilkerr.Protocolf("detach in region %d with unconsumed pending detach in region %d", region, *s.pendingSpawn)
	}
	r := region
	s.pendingSpawn = &r
	return nil
}

// FuncEntry pushes a new frame for funcIID, consuming any pending
// spawn recorded by Detach.
func (s *Stack) FuncEntry(funcIID uint64) *Frame {
	spawn := s.pendingSpawn != nil
	var region SyncRegion
	if spawn {
		region = *s.pendingSpawn
		s.pendingSpawn = nil
	}
	child := s.top.Enter(funcIID, spawn, region)
	s.top = child
	return child
}

// FuncExit pops the current frame, which must match funcIID and must
// have no outstanding (unsync'd) spawned children.
func (s *Stack) FuncExit(funcIID uint64) error {
	f := s.top
	if f.FuncIID != funcIID {
		return cilkerr.Protocolf("function exit for IID %d does not match current frame IID %d", funcIID, f.FuncIID)
	}
	if f.Parent == nil {
		return cilkerr.Protocolf("function exit on root frame (IID %d)", funcIID)
	}
	if f.OpenSyncRegions() {
		return cilkerr.Protocolf("function exit for IID %d with outstanding sync region(s)", funcIID)
	}
	f.Parent.Exit(f)
	s.top = f.Parent
	return nil
}

// DetachContinue marks that the spawner has reached the continuation
// point after a spawn in region.
func (s *Stack) DetachContinue(region SyncRegion) error {
	if s.pendingSpawn != nil {
		return cilkerr.Protocolf("detach_continue in region %d with an unconsumed detach still pending", region)
	}
	s.top.Continue(region)
	return nil
}

// Sync unions every P-bag open in region at the current frame into its
// S-bag.
func (s *Stack) Sync(region SyncRegion) {
	s.top.Sync(region)
}

// Depth returns the number of live frames, root inclusive.
func (s *Stack) Depth() int {
	n := 0
	for f := s.top; f != nil; f = f.Parent {
		n++
	}
	return n
}
