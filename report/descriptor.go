// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"fmt"

	"github.com/race-tools/cilksan-go/alloc"
)

// ObjectDescriptor is the "Stack object 3" / "Heap object 1" / ...
// line that follows each access block in a race report, per spec.md
// §6. index is the allocation's position, per Kind, in the order the
// Indexer first describes records (that is, the order of the first
// race touching each), not allocation order and not the record's
// address, so that reports stay stable across runs with ASLR.
type ObjectDescriptor struct {
	Kind  alloc.Kind
	Index int
	Name  string
}

func (d ObjectDescriptor) String() string {
	if d.Kind == alloc.Kind(0) && d.Index == 0 && d.Name == "" {
		return ""
	}
	label := fmt.Sprintf("%s object %d", d.Kind, d.Index)
	if d.Name != "" {
		label += fmt.Sprintf(" (%s)", d.Name)
	}
	return label
}

// Indexer numbers allocation records per-kind, in first-seen order,
// for stable ObjectDescriptor.Index values across a run.
type Indexer struct {
	next map[alloc.Kind]int
	seen map[*alloc.Record]int
}

// NewIndexer returns an empty per-kind allocation indexer.
func NewIndexer() *Indexer {
	return &Indexer{next: make(map[alloc.Kind]int), seen: make(map[*alloc.Record]int)}
}

// Describe returns the stable ObjectDescriptor for rec, assigning it
// the next index for its kind the first time it is seen.
func (ix *Indexer) Describe(rec *alloc.Record) ObjectDescriptor {
	if rec == nil {
		return ObjectDescriptor{}
	}
	if i, ok := ix.seen[rec]; ok {
		return ObjectDescriptor{Kind: rec.Kind, Index: i, Name: rec.Name}
	}
	ix.next[rec.Kind]++
	i := ix.next[rec.Kind]
	ix.seen[rec] = i
	return ObjectDescriptor{Kind: rec.Kind, Index: i, Name: rec.Name}
}
