// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import "sort"

// RaceAddrStats is an optional summary of where
// distinct races landed in the address space, purely diagnostic: it
// never feeds back into Distinct()/Suppressed() or the mandated exit
// lines (spec.md §6 pins those two lines exactly; nothing else may
// perturb them).
//
// A byte-addressed histogram over go-moremath's stats package would
// fit this naturally, but only go-moremath/scale ships in this
// dependency pack (see DESIGN.md); the summary below is therefore
// hand-rolled over the standard library rather than risk an unverified
// API.
type RaceAddrStats struct {
	Count      int
	Min, Max   uint64
	Median     uint64
	ByKind     map[shadowKindKey]int
}

type shadowKindKey = string

// Summarize computes a RaceAddrStats over every distinct entry in
// store, in address order. Nothing in the detector calls it; it is
// there for callers that want the summary.
func Summarize(store *Store) RaceAddrStats {
	entries := store.Entries()
	stats := RaceAddrStats{ByKind: make(map[shadowKindKey]int)}
	if len(entries) == 0 {
		return stats
	}

	addrs := make([]uint64, len(entries))
	for i, e := range entries {
		addrs[i] = e.Race.Addr
		stats.ByKind[e.Race.Kind.String()]++
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	stats.Count = len(addrs)
	stats.Min = addrs[0]
	stats.Max = addrs[len(addrs)-1]
	stats.Median = addrs[len(addrs)/2]
	return stats
}
