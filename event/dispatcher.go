// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event implements the detector's event dispatcher: the single
// entry point the instrumented program (or a trace replayer) drives
// with a well-formed sequence of function-entry/exit, detach/sync,
// memory-access, lock, atomic-region, and allocation events. The
// dispatcher routes each event to the SP-bags stack, shadow memory,
// lockset, and allocation tracker, and submits any race it turns up to
// the report store.
//
// Every event in one process is handled by one Dispatcher, serially:
// this mirrors mode (a) of the concurrency model, a single logical
// worker replaying a total order of events (parallel workers sharding
// the same shadow memory, mode (b), is future work -- see DESIGN.md).
package event

import (
	"fmt"

	"github.com/race-tools/cilksan-go/alloc"
	"github.com/race-tools/cilksan-go/check"
	"github.com/race-tools/cilksan-go/cilkerr"
	"github.com/race-tools/cilksan-go/lockset"
	"github.com/race-tools/cilksan-go/report"
	"github.com/race-tools/cilksan-go/shadow"
	"github.com/race-tools/cilksan-go/spbag"
)

// Dispatcher owns every piece of per-process detector state and
// exposes one method per ABI event (spec.md §6's event taxonomy).
type Dispatcher struct {
	Stack   *spbag.Stack
	Check   *check.Checker
	Allocs  *alloc.Tracker
	Store   *report.Store
	Locks   *lockset.Registry
	objects *report.Indexer

	// Verbose, when set, is called with a diagnostic line for every
	// non-fatal condition (out-of-scope access, stale shadow entry).
	// A nil Verbose silently drops these, matching spec.md §7's "never
	// fatal" contract for this error class.
	Verbose func(string)
}

// New returns a Dispatcher with a fresh stack rooted at rootFuncIID
// (the outermost instrumented frame, typically the program's main
// strand) and empty shadow/alloc/report state.
func New(rootFuncIID uint64) *Dispatcher {
	d := &Dispatcher{
		Stack:   spbag.NewStack(spbag.NewForest(), rootFuncIID),
		Check:   check.New(),
		Allocs:  alloc.NewTracker(),
		Store:   report.NewStore(),
		Locks:   lockset.NewRegistry(),
		objects: report.NewIndexer(),
	}
	d.Check.Shadow.Live = d.Allocs.Live
	d.Check.Shadow.StaleLog = func(addr uint64) {
		d.logf("stale shadow entry at 0x%x discarded (allocation epoch changed)", addr)
	}
	return d
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.Verbose != nil {
		d.Verbose(fmt.Sprintf(format, args...))
	}
}

// FuncEntry pushes a new frame for funcIID, consuming a pending
// Detach if one is outstanding (the frame becomes a spawned child).
func (d *Dispatcher) FuncEntry(funcIID uint64) *spbag.Frame {
	return d.Stack.FuncEntry(funcIID)
}

// FuncExit pops the current frame.
func (d *Dispatcher) FuncExit(funcIID uint64) error {
	return d.Stack.FuncExit(funcIID)
}

// Detach records a cilk_spawn about to occur in region.
func (d *Dispatcher) Detach(region spbag.SyncRegion) error {
	return d.Stack.Detach(region)
}

// DetachContinue marks the spawner's arrival at the post-spawn
// continuation point.
func (d *Dispatcher) DetachContinue(region spbag.SyncRegion) error {
	return d.Stack.DetachContinue(region)
}

// Sync retires every P-bag open in region, per cilk_sync semantics.
func (d *Dispatcher) Sync(region spbag.SyncRegion) {
	d.Stack.Sync(region)
}

// AtomicBegin enters an atomic/suppressed region: accesses made while
// any atomic region is active never race against each other, though
// shadow state still records them.
func (d *Dispatcher) AtomicBegin() {
	d.Check.Atomic.Begin()
}

// AtomicEnd exits one level of atomic region. Calling it with no
// matching AtomicBegin is a protocol violation.
func (d *Dispatcher) AtomicEnd() error {
	if d.Check.Atomic.Depth() == 0 {
		return cilkerr.Protocolf("atomic_end with no matching atomic_begin")
	}
	d.Check.Atomic.End()
	return nil
}

// AcquireLock adds id to the current frame's held lockset.
func (d *Dispatcher) AcquireLock(id lockset.ID) {
	f := d.Stack.Top()
	f.Locks = f.Locks.Acquire(id)
}

// ReleaseLock removes id from the current frame's held lockset.
func (d *Dispatcher) ReleaseLock(id lockset.ID) {
	f := d.Stack.Top()
	f.Locks = f.Locks.Release(id)
}

// AcquireFakeLock is AcquireLock for a user-declared fake lock named
// name, registering it on first use.
func (d *Dispatcher) AcquireFakeLock(name string) {
	d.AcquireLock(d.Locks.Register(name))
}

// ReleaseFakeLock is ReleaseLock for a user-declared fake lock.
func (d *Dispatcher) ReleaseFakeLock(name string) {
	d.ReleaseLock(d.Locks.Register(name))
}

// Alloc registers a new allocation of kind starting at lo up to (not
// including) hi, named name for report attribution.
func (d *Dispatcher) Alloc(lo, hi uint64, kind alloc.Kind, name string) *alloc.Record {
	return d.Allocs.Alloc(lo, hi, kind, name)
}

// Realloc splits a realloc into a free of the old range and an
// allocation of the new one, checking the freed range for races first.
func (d *Dispatcher) Realloc(oldLo, newLo, newHi uint64, kind alloc.Kind, name string, iid uint64) (*alloc.Record, []shadow.Race) {
	old := d.Allocs.Lookup(oldLo)
	var races []shadow.Race
	if old != nil {
		races = d.free(old.Lo, old.Hi, iid)
	}
	d.Allocs.Free(oldLo)
	fresh := d.Allocs.Alloc(newLo, newHi, kind, name)
	return fresh, races
}

// Free checks the live allocation starting at lo for races against the
// freeing access, then releases it.
func (d *Dispatcher) Free(lo uint64, iid uint64) []shadow.Race {
	rec := d.Allocs.Lookup(lo)
	if rec == nil {
		d.logf("free of untracked address 0x%x (out-of-scope)", lo)
		return nil
	}
	races := d.free(rec.Lo, rec.Hi, iid)
	d.Allocs.Free(rec.Lo)
	return races
}

func (d *Dispatcher) free(lo, hi uint64, iid uint64) []shadow.Race {
	races := d.Check.Free(d.Stack.Top(), lo, hi, iid)
	d.submit(races)
	return races
}

// Read checks and records a read of [lo, hi) at iid, returning any
// races it exposed.
func (d *Dispatcher) Read(lo, hi uint64, iid uint64) []shadow.Race {
	races := d.Check.Read(d.Stack.Top(), lo, hi, iid, d.epochFor(lo))
	d.submit(races)
	return races
}

// Write checks and records a write of [lo, hi) at iid, returning any
// races it exposed.
func (d *Dispatcher) Write(lo, hi uint64, iid uint64) []shadow.Race {
	races := d.Check.Write(d.Stack.Top(), lo, hi, iid, d.epochFor(lo))
	d.submit(races)
	return races
}

func (d *Dispatcher) epochFor(addr uint64) uint64 {
	rec := d.Allocs.Lookup(addr)
	if rec == nil {
		d.logf("access to untracked address 0x%x (out-of-scope)", addr)
		return 0
	}
	return rec.Epoch
}

// submit converts each raw shadow.Race into a report.Entry (resolving
// call chains and object descriptors) and hands it to the store for
// deduplication.
func (d *Dispatcher) submit(races []shadow.Race) {
	for _, r := range races {
		chain1 := chainOf(r.First.BID.Frame)
		chain2 := chainOf(r.Second.BID.Frame)
		obj := d.objects.Describe(d.Allocs.Lookup(r.Addr))
		d.Store.Submit(r, chain1, chain2, obj, obj)
	}
}

// chainOf walks f and its ancestors (root exclusive) into a root-to-leaf
// report.ChainFrame slice, labeling each link "Spawn" if that frame was
// entered via cilk_spawn and "Call" otherwise.
func chainOf(f *spbag.Frame) []report.ChainFrame {
	var rev []report.ChainFrame
	for cur := f; cur != nil && cur.Parent != nil; cur = cur.Parent {
		kind := "Call"
		if cur.InSpawn {
			kind = "Spawn"
		}
		rev = append(rev, report.ChainFrame{IID: cur.FuncIID, Kind: kind})
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}
