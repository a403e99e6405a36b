// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lockset maintains, per strand, the set of locks currently
// held (real mutexes and user-declared "fake locks" alike) and the
// depth of any atomic region the strand is inside. Two accesses whose
// locksets intersect are suppressed from race reporting even when they
// would otherwise race, and so is any race detected while the current
// access is inside an atomic region. An access recorded inside an
// atomic region can still race a later access made outside one.
package lockset

import "sort"

// ID identifies one lock (real or fake) by the opaque value the
// instrumented program's runtime uses for it, e.g. a mutex's address.
type ID uint64

// Set is a sorted set of held lock IDs, compared by set equality. It
// is immutable from the caller's point of view: Acquire and Release
// return a new Set, which is cheap for the small, mostly-empty
// locksets real programs hold.
type Set struct {
	ids []ID
}

// Fingerprint is a cheap, order-independent summary of a Set used to
// decide intersection quickly before falling back to an exact
// comparison when the fingerprints collide.
type Fingerprint uint64

// Empty is the lockset held by a strand that holds no locks.
var Empty = Set{}

// Acquire returns the set resulting from acquiring id in addition to
// s's locks. Acquiring an already-held lock (recursive acquire) is a
// no-op, matching how the instrumented runtime treats a strand that
// reenters a lock it already holds through a fake-lock declaration.
func (s Set) Acquire(id ID) Set {
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= id })
	if i < len(s.ids) && s.ids[i] == id {
		return s
	}
	ids := make([]ID, len(s.ids)+1)
	copy(ids, s.ids[:i])
	ids[i] = id
	copy(ids[i+1:], s.ids[i:])
	return Set{ids}
}

// Release returns the set resulting from releasing id from s. It is a
// no-op if id is not held.
func (s Set) Release(id ID) Set {
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= id })
	if i >= len(s.ids) || s.ids[i] != id {
		return s
	}
	ids := make([]ID, len(s.ids)-1)
	copy(ids, s.ids[:i])
	copy(ids[i:], s.ids[i+1:])
	return Set{ids}
}

// Holds reports whether id is a member of s.
func (s Set) Holds(id ID) bool {
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= id })
	return i < len(s.ids) && s.ids[i] == id
}

// Len reports the number of locks held.
func (s Set) Len() int { return len(s.ids) }

// Equal reports whether s and t hold exactly the same locks.
func (s Set) Equal(t Set) bool {
	if len(s.ids) != len(t.ids) {
		return false
	}
	for i := range s.ids {
		if s.ids[i] != t.ids[i] {
			return false
		}
	}
	return true
}

// Intersects reports whether s and t share at least one held lock.
// It first rejects via the two sets' Fingerprints: a shared bit is
// necessary (though not sufficient) for a shared lock, so a zero AND
// proves disjointness without ever touching s.ids/t.ids. Only a
// nonzero AND falls back to the exact sorted merge, so a fingerprint
// collision costs one extra comparison and never misses or fabricates
// a race.
func (s Set) Intersects(t Set) bool {
	if s.Fingerprint()&t.Fingerprint() == 0 {
		return false
	}
	i, j := 0, 0
	for i < len(s.ids) && j < len(t.ids) {
		switch {
		case s.ids[i] == t.ids[j]:
			return true
		case s.ids[i] < t.ids[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// Fingerprint computes s's order-independent Bloom-filter summary: the
// OR of each member's splitmix64 hash reduced to a single set bit.
// Used by Intersects as a cheap pre-check on the access checker's hot
// path, on spec.md's lockset_fingerprint Access Record field.
func (s Set) Fingerprint() Fingerprint {
	var fp uint64
	for _, id := range s.ids {
		fp |= uint64(1) << (splitmix64(uint64(id)) % 64)
	}
	return Fingerprint(fp)
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// AtomicRegion is a nesting counter for __sync_*/atomic-begin/end
// regions and std::call_once-style interiors. While Depth() > 0 the
// access checker skips race emission for the current strand but still
// updates shadow memory, so accesses after the atomic region still see
// a writer/reader recorded inside it.
type AtomicRegion struct {
	depth int
}

// Begin enters one more level of atomic region.
func (a *AtomicRegion) Begin() { a.depth++ }

// End exits one level of atomic region. Calling End with Depth() == 0
// is a protocol violation left to the caller (the event dispatcher) to
// detect and report.
func (a *AtomicRegion) End() {
	if a.depth > 0 {
		a.depth--
	}
}

// Depth reports the current atomic-region nesting depth.
func (a *AtomicRegion) Depth() int { return a.depth }

// Active reports whether the strand is currently inside an atomic
// region.
func (a *AtomicRegion) Active() bool { return a.depth > 0 }
