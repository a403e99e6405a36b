// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"fmt"
	"strings"

	"github.com/race-tools/cilksan-go/shadow"
	"github.com/race-tools/cilksan-go/symtab"
)

// Formatter renders Store entries into the text stanzas spec.md §6
// describes, resolving each IID to a source location through an
// (optionally empty) symbol table.
type Formatter struct {
	Symbols *symtab.Table

	// Miss, when set, is called for every lookup of an IID that fails
	// to resolve (spec.md §7.4's symbolization-miss category) as it is
	// formatted, so an IID that appears more than once is reported more
	// than once.
	Miss func(iid uint64)
}

// NewFormatter returns a Formatter; a nil table is equivalent to
// symtab.Empty() (every location falls back to its hex IID).
func NewFormatter(t *symtab.Table) *Formatter {
	if t == nil {
		t = symtab.Empty()
	}
	return &Formatter{Symbols: t}
}

func (f *Formatter) function(iid uint64) string {
	loc := f.Symbols.Resolve(iid)
	if !loc.Resolved || loc.Func == "" {
		f.reportMiss(iid)
		return fmt.Sprintf("0x%x", iid)
	}
	return loc.Func
}

func (f *Formatter) reportMiss(iid uint64) {
	if f.Miss != nil {
		f.Miss(iid)
	}
}

func accessVerb(k shadow.RaceKind, first bool) string {
	switch k {
	case shadow.RW:
		if first {
			return "Read"
		}
		return "Write"
	case shadow.WR:
		if first {
			return "Write"
		}
		return "Read"
	case shadow.WW:
		return "Write"
	case shadow.WFree:
		if first {
			return "Write"
		}
		return "Free"
	case shadow.RFree:
		if first {
			return "Read"
		}
		return "Free"
	default:
		return "Access"
	}
}

func (f *Formatter) accessBlock(verb string, a shadow.Access, obj ObjectDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "* %s 0x%x %s\n", verb, a.IID, f.function(a.IID))
	loc := f.Symbols.Resolve(a.IID)
	if loc.Resolved && loc.VarHint != "" {
		fmt.Fprintf(&b, "  to variable %s\n", loc.VarHint)
	}
	if d := obj.String(); d != "" {
		fmt.Fprintf(&b, "  %s\n", d)
	}
	return b.String()
}

func (f *Formatter) chainBlock(chain []ChainFrame) string {
	if len(chain) == 0 {
		return ""
	}
	var b strings.Builder
	for _, link := range chain {
		fmt.Fprintf(&b, "  %s 0x%x %s\n", link.Kind, link.IID, f.function(link.IID))
	}
	return b.String()
}

// commonPrefix returns the longest shared leading run of two call
// chains, used to print the "Common calling context" block once
// instead of duplicating it under both accesses.
func commonPrefix(a, b []ChainFrame) []ChainFrame {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// FormatEntry renders one distinct race as the multi-line stanza
// spec.md §6 requires: a header naming the race address, the two
// access blocks, any common calling context, and the object
// descriptor(s).
func (f *Formatter) FormatEntry(e *Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Race detected on location 0x%x\n", e.Race.Addr)
	b.WriteString(f.accessBlock(accessVerb(e.Race.Kind, true), e.Race.First, e.Object1))
	b.WriteString(f.accessBlock(accessVerb(e.Race.Kind, false), e.Race.Second, e.Object2))

	if common := commonPrefix(e.Chain1, e.Chain2); len(common) > 0 {
		b.WriteString("Common calling context\n")
		b.WriteString(f.chainBlock(common))
	} else {
		if c := f.chainBlock(e.Chain1); c != "" {
			b.WriteString(c)
		}
		if c := f.chainBlock(e.Chain2); c != "" {
			b.WriteString(c)
		}
	}
	return b.String()
}

// FormatAll renders every distinct entry in Store, each separated by
// a blank line, followed by the mandated exit summary lines.
func FormatAll(store *Store, f *Formatter) string {
	var b strings.Builder
	for _, e := range store.Entries() {
		b.WriteString(f.FormatEntry(e))
		b.WriteString("\n")
	}
	b.WriteString(Summary(store))
	return b.String()
}

// Summary renders the two mandated exit lines, the only part of the
// report format spec.md pins exactly:
//
//	Cilksan detected N distinct races.
//	Cilksan suppressed M duplicate race reports.
//
// The second line is omitted when M is zero.
func Summary(store *Store) string {
	d, s := store.Distinct(), store.Suppressed()
	out := fmt.Sprintf("Cilksan detected %d distinct races.\n", d)
	if s > 0 {
		out += fmt.Sprintf("Cilksan suppressed %d duplicate race reports.\n", s)
	}
	return out
}
