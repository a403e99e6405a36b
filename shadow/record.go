// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shadow implements the two-level shadow memory that maps
// each addressable byte to its most recent reader(s) and writer, each
// tagged with the SP-bag it belongs to, with run-length compression
// for pages whose bytes all share the same state.
package shadow

import (
	"github.com/race-tools/cilksan-go/lockset"
	"github.com/race-tools/cilksan-go/spbag"
)

// Access is one recorded memory access: the instruction that performed
// it, the SP-bag (strand) it ran on, and the lockset held at the time.
type Access struct {
	IID     uint64
	BID     spbag.BID
	Lockset lockset.Set
	Epoch   uint64 // the allocation epoch live at the time of the access
}

func (a Access) valid() bool { return a.BID != nil }

func (a Access) equal(b Access) bool {
	return a.IID == b.IID && a.BID == b.BID && a.Epoch == b.Epoch && a.Lockset.Equal(b.Lockset)
}

// RaceKind is the classification of a detected race, per spec.md's
// Race Report data model.
type RaceKind uint8

const (
	RW RaceKind = iota
	WR
	WW
	WFree
	RFree
)

func (k RaceKind) String() string {
	switch k {
	case RW:
		return "RW"
	case WR:
		return "WR"
	case WW:
		return "WW"
	case WFree:
		return "W-FREE"
	case RFree:
		return "R-FREE"
	default:
		return "?"
	}
}

// Race is one detected determinacy race between two accesses to the
// same byte, emitted by the shadow memory and handed up to the access
// checker for report-store submission.
type Race struct {
	Kind RaceKind
	Addr uint64
	// First is the access already recorded in shadow memory; Second
	// is the access that triggered detection.
	First, Second Access
}

// byteState is the full shadow state of one byte: at most one writer
// and up to two readers (the "leftmost" and "rightmost" in program
// order, per spec.md §4.3's retained-pair eviction policy). Fixing the
// cap at two is this implementation's choice for the open K question
// in spec.md §9; see DESIGN.md.
type byteState struct {
	writer      Access
	left, right Access
}

func (s byteState) empty() bool {
	return !s.writer.valid() && !s.left.valid() && !s.right.valid()
}

func (s byteState) equal(o byteState) bool {
	return s.writer.equal(o.writer) && s.left.equal(o.left) && s.right.equal(o.right)
}
