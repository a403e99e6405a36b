// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spbag implements the SP-bags algorithm (Feng/Leiserson) over
// dynamic fork-join execution: a forest of S-bags and P-bags, one pair
// per live function frame, that answers "are these two strands
// logically parallel?" in amortized-constant time via the underlying
// disjoint-set forest.
package spbag

import "github.com/race-tools/cilksan-go/dsu"

// Kind distinguishes the two bag families of the SP-bags algorithm.
type Kind uint8

const (
	// SBag holds strands sequenced so far, left of the current point.
	SBag Kind = iota
	// PBag collects sibling spawned subcomputations not yet sync'd.
	PBag
)

func (k Kind) String() string {
	if k == PBag {
		return "P"
	}
	return "S"
}

// Bag is one node of the SP-bag forest. It embeds a dsu.Node so the
// whole forest is a single disjoint-set structure; Kind and Frame
// survive any union because UnionInto is directional (dsu.UnionInto
// always keeps the parent's root).
//
// A Bag is an arena-owned value: the forest that created it owns it
// for the lifetime of the detector process and frees nothing until
// process exit, matching the "no cyclic ownership, DSU purely
// additive" design called out in the specification.
type Bag struct {
	parent dsu.Node
	rank   int

	Kind  Kind
	Frame *Frame
	ID    uint64 // stable creation-order id; shadow's reader-set eviction orders readers by it
}

func (b *Bag) Parent() dsu.Node     { return b.parent }
func (b *Bag) SetParent(p dsu.Node) { b.parent = p }
func (b *Bag) Rank() int            { return b.rank }
func (b *Bag) SetRank(r int)        { b.rank = r }

// BID is the identifier for a bag used throughout the detector. It is
// simply the bag pointer: two BIDs denote the same bag iff they are
// equal, and the "logically parallel" relation is a DSU query over
// them.
type BID = *Bag

// Forest is the arena that owns every Bag ever allocated by one
// detector instance. It assigns monotonically increasing diagnostic
// IDs but otherwise holds no per-bag state beyond what Bag itself
// carries; the whole arena is released in one step when the detector
// tears down (the caller simply drops the Forest).
type Forest struct {
	next uint64
}

// NewForest returns an empty bag arena.
func NewForest() *Forest {
	return &Forest{}
}

func (f *Forest) newBag(kind Kind, frame *Frame) *Bag {
	f.next++
	b := &Bag{Kind: kind, Frame: frame, ID: f.next}
	dsu.Make(b)
	return b
}

// AreParallel reports whether a previously recorded strand a is
// logically parallel to the currently executing strand b, i.e. not
// ordered by the SP-order of the computation. Per the SP-bags rule, a
// is parallel to the current strand iff a's set representative is a
// P-bag: a spawned child that has returned but is not yet synced. A
// bag whose representative is an S-bag belongs to a live frame on the
// current strand's ancestor chain (or was joined into one), so it
// precedes b. Two DSU-equivalent bags are always sequenced.
func AreParallel(a, b BID) bool {
	return !dsu.Same(a, b) && dsu.Find(a).(*Bag).Kind == PBag
}

// Sequenced is the complement of AreParallel; it also trivially holds
// for a bag compared with itself.
func Sequenced(a, b BID) bool {
	return !AreParallel(a, b)
}

// ForestUnionInto merges child's set into parent's, keeping parent's
// root (and therefore parent's Kind/Frame) as the representative. This
// is the only place bag union happens; it exists as a typed wrapper
// around dsu.UnionInto so callers never have to think about the
// dsu.Node interface directly.
func ForestUnionInto(child, parent BID) {
	dsu.UnionInto(child, parent)
}
