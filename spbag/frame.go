// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spbag

import "github.com/race-tools/cilksan-go/lockset"

// SyncRegion identifies a `cilk_sync` scope within a frame; a frame may
// have more than one open sync region live at once (nested syncregs.c
// style code), each with its own pending P-bag.
type SyncRegion uint64

// Frame is one activation record of an instrumented function: current
// S-bag, the P-bags pending per open sync region, the parent frame,
// and the bookkeeping the checker and report store need (lockset held
// on entry, suppression depth, a snapshot for attribution).
//
// Frames are created on a function-entry event and destroyed on the
// matching function-exit event, strictly nested with every other live
// frame: Parent is the caller (or spawner) is always live at the
// moment a child frame exists.
type Frame struct {
	Forest *Forest
	Parent *Frame

	FuncIID uint64 // IID of the function-entry site this frame was created for
	InSpawn bool   // true if this frame is a spawned child, not an ordinary call

	S *Bag
	// p holds, per open sync region, the list of P-bags collected so
	// far for that region: one per spawned child that has returned,
	// each already union-linked to that one child's S-bag but
	// deliberately *not* linked to each other or to f.S. Keeping them
	// as distinct DSU roots until Sync is what keeps sibling spawns
	// logically parallel to each other in the interim; collapsing
	// them into one shared P-bag node as they arrive would wrongly
	// make every sibling sequenced with the others as soon as a
	// second one returned.
	p map[SyncRegion][]*Bag

	// SpawnRegion is the sync region the spawn that created this
	// frame (if InSpawn) belongs to, needed so the union at
	// function-exit lands in the right P-bag.
	SpawnRegion SyncRegion

	SuppressionDepth int
	Locks            lockset.Set

	// EntrySnapshot is the caller's S-bag at the moment this frame
	// was created, retained only for race-report attribution (call
	// context reconstruction); it is never unioned or mutated.
	EntrySnapshot *Bag
}

// NewRoot creates the outermost frame of a computation (the program's
// main strand), with no parent.
func NewRoot(forest *Forest, funcIID uint64) *Frame {
	f := &Frame{Forest: forest, FuncIID: funcIID, p: make(map[SyncRegion][]*Bag)}
	f.S = forest.newBag(SBag, f)
	return f
}

// Enter creates a new child frame for a function-entry event. If
// spawn is true, the new frame is a spawned detach child of f in sync
// region region; otherwise it is an ordinary (non-spawn) call.
//
// Per the SP-bags algorithm, the callee always gets a fresh S-bag and
// the calling strand logically moves into it ("current strand belongs
// to callee.S"); the distinction between call and spawn only affects
// where the callee's S-bag is unioned to on exit.
func (f *Frame) Enter(funcIID uint64, spawn bool, region SyncRegion) *Frame {
	child := &Frame{
		Forest:      f.Forest,
		Parent:      f,
		FuncIID:     funcIID,
		InSpawn:     spawn,
		SpawnRegion: region,
		Locks:       f.Locks,
		p:           make(map[SyncRegion][]*Bag),
	}
	child.S = f.Forest.newBag(SBag, child)
	child.EntrySnapshot = f.S
	return child
}

// Exit retires child (whose function-exit event just fired) into its
// parent. An ordinary call unions callee.S directly into caller.S. A
// spawned child instead gets a fresh P-bag allocated, child.S is
// union-linked into it, and that P-bag is appended to the spawner's
// pending list for the sync region the spawn opened; the merge into
// S, and into the other pending P-bags, is deferred until that
// region's Sync event.
//
// Exit must be called with child == f's most recently entered,
// not-yet-exited child; the event dispatcher enforces this by driving
// Frame strictly through a call stack.
func (f *Frame) Exit(child *Frame) {
	if child.InSpawn {
		pb := f.Forest.newBag(PBag, f)
		ForestUnionInto(child.S, pb)
		f.p[child.SpawnRegion] = append(f.p[child.SpawnRegion], pb)
	} else {
		ForestUnionInto(child.S, f.S)
	}
}

// Continue marks that the spawner's strand has reached the
// continuation point after a spawn (the detach_continue event). It
// performs no bag action: the union of the spawned child's completed
// work into the P-bag already happened at Exit, and the spawner's
// strand was never moved out of its own S-bag by the spawn in the
// first place. Continue exists so the dispatcher has a place to
// validate the detach/detach_continue pairing.
func (f *Frame) Continue(region SyncRegion) {}

// Sync unions every P-bag open at region into f's S-bag and retires
// the region, matching "all P-bags at this sync-region are unioned
// into the enclosing S-bag, and the P-bag set is cleared."
func (f *Frame) Sync(region SyncRegion) {
	bags, ok := f.p[region]
	if !ok {
		return
	}
	for _, b := range bags {
		ForestUnionInto(b, f.S)
	}
	delete(f.p, region)
}

// OpenSyncRegions reports whether any sync region in f still has
// unsync'd spawned children, used by the dispatcher to reject a
// function-exit event while a sync is still outstanding.
func (f *Frame) OpenSyncRegions() bool {
	return len(f.p) != 0
}

// Leaf returns the bag that an access by the current strand of f
// should be attributed to: f's own S-bag. Strands never access memory
// "as" a P-bag; P-bags only ever collect completed children.
func (f *Frame) Leaf() *Bag { return f.S }
