// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"sort"
	"sync"

	"github.com/race-tools/cilksan-go/shadow"
)

// ChainFrame is one link of a live call chain at the moment a race was
// detected: the call-site IID and how the frame was entered (an
// ordinary call, a cilk_spawn detach, or a parallel-for iteration).
type ChainFrame struct {
	IID  uint64
	Kind string // "Call", "Spawn", or "Parfor"
}

// Entry is one distinct race, the first occurrence recorded in full
// (spec.md §4.9: "First occurrence is recorded in full, subsequent
// matches increment a suppression counter").
type Entry struct {
	Fingerprint Fingerprint
	Race        shadow.Race
	// Chain1, Chain2 are the live call chains (root to leaf) of First
	// and Second respectively at the moment of detection, used only
	// for report formatting.
	Chain1, Chain2 []ChainFrame
	// Object1, Object2 are the allocation descriptors for First's and
	// Second's addresses, filled in by the caller (the detector has
	// the allocation tracker; this package does not).
	Object1, Object2 ObjectDescriptor
	Suppressed       int
	seq              int // insertion order, for stable report output
}

// Store deduplicates races by canonical fingerprint and tallies the
// distinct/suppressed counts spec.md §6 requires on exit.
type Store struct {
	mu      sync.Mutex
	entries map[Fingerprint]*Entry
	seq     int
}

// NewStore returns an empty race report store.
func NewStore() *Store {
	return &Store{entries: make(map[Fingerprint]*Entry)}
}

// Submit records one detected race. The race's call contexts are
// hashed together with its (kind, IIDs) to form the fingerprint: two
// races with the same instruction pair but different enclosing call
// chains are distinct reports (see CallContextHash). obj1/obj2
// describe the allocation each side of the race lands in, for report
// formatting.
//
// Submit returns true if this is the first occurrence of this
// fingerprint (a new distinct race), false if it was a duplicate
// (the suppressed counter was incremented instead).
func (s *Store) Submit(r shadow.Race, chain1, chain2 []ChainFrame, obj1, obj2 ObjectDescriptor) bool {
	cc := CallContextHash(chainIIDs(chain1, chain2))
	fp := computeFingerprint(r.Kind, r.First.IID, r.Second.IID, cc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[fp]; ok {
		e.Suppressed++
		return false
	}
	s.seq++
	s.entries[fp] = &Entry{
		Fingerprint: fp,
		Race:        r,
		Chain1:      chain1,
		Chain2:      chain2,
		Object1:     obj1,
		Object2:     obj2,
		seq:         s.seq,
	}
	return true
}

func chainIIDs(chains ...[]ChainFrame) []uint64 {
	var out []uint64
	for _, c := range chains {
		for _, f := range c {
			out = append(out, f.IID)
		}
	}
	return out
}

// Distinct returns the number of distinct races recorded so far.
func (s *Store) Distinct() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Suppressed returns the total number of duplicate race reports
// suppressed so far, summed across every distinct entry.
func (s *Store) Suppressed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, e := range s.entries {
		total += e.Suppressed
	}
	return total
}

// Entries returns every distinct race in the order first detected,
// for report formatting.
func (s *Store) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
