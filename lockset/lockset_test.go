// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lockset

import "testing"

func TestAcquireRelease(t *testing.T) {
	s := Empty
	s = s.Acquire(3)
	s = s.Acquire(1)
	s = s.Acquire(2)
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if !s.Holds(1) || !s.Holds(2) || !s.Holds(3) {
		t.Fatalf("Set does not hold all acquired locks: %+v", s)
	}
	s = s.Release(2)
	if s.Holds(2) {
		t.Fatalf("Set still holds released lock 2")
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
}

func TestAcquireIdempotent(t *testing.T) {
	s := Empty.Acquire(5)
	s2 := s.Acquire(5)
	if s2.Len() != 1 {
		t.Fatalf("recursive acquire grew the set: %+v", s2)
	}
}

func TestIntersects(t *testing.T) {
	a := Empty.Acquire(1).Acquire(2)
	b := Empty.Acquire(3).Acquire(2)
	c := Empty.Acquire(3).Acquire(4)
	if !a.Intersects(b) {
		t.Fatalf("a and b should intersect on lock 2")
	}
	if a.Intersects(c) {
		t.Fatalf("a and c share no locks")
	}
}

func TestAtomicRegionNesting(t *testing.T) {
	var a AtomicRegion
	if a.Active() {
		t.Fatalf("fresh atomic region must not be active")
	}
	a.Begin()
	a.Begin()
	if !a.Active() {
		t.Fatalf("atomic region must be active after Begin")
	}
	a.End()
	if !a.Active() {
		t.Fatalf("atomic region must stay active until all Begins are matched")
	}
	a.End()
	if a.Active() {
		t.Fatalf("atomic region must be inactive after matching Ends")
	}
	a.End() // unmatched End must not go negative
	if a.Active() {
		t.Fatalf("unmatched End must not make the region active")
	}
}

func TestFakeLockRegistry(t *testing.T) {
	r := NewRegistry()
	id1 := r.Register("spinlock-a")
	id2 := r.Register("spinlock-b")
	if id1 == id2 {
		t.Fatalf("distinct names must get distinct ids")
	}
	if r.Register("spinlock-a") != id1 {
		t.Fatalf("Register must be idempotent for the same name")
	}
}
