// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spbag

// ParforOp is one step of the synthetic spawn/sync tree a parallel-for
// loop is lowered to, per spec.md §4.2: "Modeled as a balanced binary
// tree of spawns and syncs; each iteration is a spawned leaf."
//
// The lowering mirrors the standard cilk_for expansion: to process
// [lo, hi), split at the midpoint, spawn a child frame that
// recursively handles the left half and syncs its own spawns before
// returning, continue in the current frame to recursively handle the
// right half, then sync. Every level of the
// recursion reuses the same region number, which is safe because a
// sync region is scoped per-Frame (spbag.Frame.p), not globally.
type ParforOp struct {
	// Op is "detach", "enter", "exit", "continue", or "sync".
	Op string
	// Region is the sync region this op belongs to.
	Region SyncRegion
	// Iter is set on "enter"/"exit" for a leaf op: which loop
	// iteration this frame represents. -1 for interior split frames.
	Iter int
	// FuncIID distinguishes leaf bodies from interior split frames so
	// a trace replayer can assign them distinct instruction ids.
	FuncIID uint64
}

// ParforPlan returns the sequence of detach/enter/exit/continue/sync
// operations that replay a parallel-for of n iterations (indices
// [0, n)) as a balanced binary recursive spawn tree, all using sync
// region, with leaf bodies numbered funcIIDBase+1..funcIIDBase+n and
// interior split frames using funcIIDBase. It is used by tests and the
// trace-replay harness to generate the event stream for spec.md §8
// scenario 1 and similar parallel-for scenarios without hand-writing
// O(n) events.
func ParforPlan(n int, region SyncRegion, funcIIDBase uint64) []ParforOp {
	var ops []ParforOp
	nextLeaf := funcIIDBase + 1
	interiorIID := funcIIDBase

	var pfor func(lo, hi int)
	pfor = func(lo, hi int) {
		switch hi - lo {
		case 0:
			return
		case 1:
			leaf := nextLeaf
			nextLeaf++
			ops = append(ops,
				ParforOp{Op: "detach", Region: region, Iter: lo, FuncIID: leaf},
				ParforOp{Op: "enter", Region: region, Iter: lo, FuncIID: leaf},
				ParforOp{Op: "exit", Region: region, Iter: lo, FuncIID: leaf},
				ParforOp{Op: "continue", Region: region, Iter: lo, FuncIID: leaf},
			)
			return
		}
		mid := lo + (hi-lo)/2
		ops = append(ops,
			ParforOp{Op: "detach", Region: region, Iter: -1, FuncIID: interiorIID},
			ParforOp{Op: "enter", Region: region, Iter: -1, FuncIID: interiorIID},
		)
		pfor(lo, mid)
		ops = append(ops,
			ParforOp{Op: "sync", Region: region, Iter: -1, FuncIID: interiorIID},
			ParforOp{Op: "exit", Region: region, Iter: -1, FuncIID: interiorIID},
			ParforOp{Op: "continue", Region: region, Iter: -1, FuncIID: interiorIID},
		)
		pfor(mid, hi)
		ops = append(ops, ParforOp{Op: "sync", Region: region, Iter: -1, FuncIID: interiorIID})
	}
	pfor(0, n)
	return ops
}
