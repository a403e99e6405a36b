// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import "testing"

func TestAllocLookup(t *testing.T) {
	tr := NewTracker()
	tr.Alloc(100, 200, Heap, "buf")
	tr.Alloc(200, 250, Stack, "local")

	if r := tr.Lookup(150); r == nil || r.Name != "buf" {
		t.Fatalf("Lookup(150) = %+v, want buf", r)
	}
	if r := tr.Lookup(220); r == nil || r.Name != "local" {
		t.Fatalf("Lookup(220) = %+v, want local", r)
	}
	if r := tr.Lookup(1000); r != nil {
		t.Fatalf("Lookup(1000) = %+v, want nil (out of scope)", r)
	}
}

func TestZeroLengthAllocNeverMatches(t *testing.T) {
	tr := NewTracker()
	tr.Alloc(100, 100, VLA, "empty")
	if r := tr.Lookup(100); r != nil {
		t.Fatalf("Lookup(100) on a zero-length allocation = %+v, want nil (B1)", r)
	}
}

func TestFreeRemovesAndBumpsEpoch(t *testing.T) {
	tr := NewTracker()
	r := tr.Alloc(100, 200, Heap, "buf")
	if !tr.Live(150, r.Epoch) {
		t.Fatalf("freshly allocated record should be live")
	}
	freed := tr.Free(100)
	if freed != r {
		t.Fatalf("Free returned %+v, want the original record", freed)
	}
	if tr.Lookup(150) != nil {
		t.Fatalf("freed range must no longer be looked up")
	}
	if tr.Live(150, r.Epoch) {
		t.Fatalf("stale epoch must not be reported live after free")
	}
}

func TestFreeUnknownIsNoop(t *testing.T) {
	tr := NewTracker()
	if r := tr.Free(999); r != nil {
		t.Fatalf("Free of an unknown address returned %+v, want nil", r)
	}
}

func TestReallocSameAddress(t *testing.T) {
	tr := NewTracker()
	old := tr.Alloc(100, 200, Heap, "buf")
	freed, fresh := tr.Realloc(100, 100, 300, Heap, "buf")
	if freed != old {
		t.Fatalf("Realloc must report the freed old record")
	}
	if fresh.Lo != 100 || fresh.Hi != 300 {
		t.Fatalf("Realloc fresh record = %+v, want [100,300)", fresh)
	}
	if fresh.Epoch == old.Epoch {
		t.Fatalf("realloc to the same address must bump the epoch (B2)")
	}
	if !tr.Live(250, fresh.Epoch) {
		t.Fatalf("new record should be live at its own epoch")
	}
}

func TestReallocMoves(t *testing.T) {
	tr := NewTracker()
	tr.Alloc(100, 200, Heap, "buf")
	_, fresh := tr.Realloc(100, 500, 700, Heap, "buf")
	if tr.Lookup(150) != nil {
		t.Fatalf("old range must be freed after a moving realloc")
	}
	if tr.Lookup(600) != fresh {
		t.Fatalf("new range must be looked up at its moved address")
	}
}
