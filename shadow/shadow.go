// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shadow

import (
	"sort"

	"github.com/race-tools/cilksan-go/lockset"
	"github.com/race-tools/cilksan-go/spbag"
)

// Shadow is the detector's shadow memory: a two-level, page-compressed
// table from byte address to the byte's most recent writer and (up to
// two) readers.
type Shadow struct {
	dir *directory

	// Live, when set, reports whether epoch is still the allocation
	// epoch currently live at addr (see alloc.Tracker.Live). A nil
	// Live treats every recorded entry as live, i.e. disables stale-
	// entry detection -- the right default for callers (tests) that
	// never free or reallocate between checks.
	Live func(addr, epoch uint64) bool

	// StaleLog, when set, is called once per CheckAndUpdateRead/Write
	// call that discarded at least one stale entry (spec.md §7.5).
	StaleLog func(addr uint64)
}

// PageOccupancy summarizes one touched shadow page, for diagnostics
// (package diag's occupancy dump).
type PageOccupancy struct {
	PageNum uint64
	Uniform bool
}

// Occupancy returns one PageOccupancy per page touched so far, in
// ascending page-number order.
func (s *Shadow) Occupancy() []PageOccupancy {
	out := make([]PageOccupancy, 0, len(s.dir.pages))
	for num, p := range s.dir.pages {
		out = append(out, PageOccupancy{PageNum: num, Uniform: p.uniform})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNum < out[j].PageNum })
	return out
}

// New returns an empty shadow memory.
func New() *Shadow {
	return &Shadow{dir: newDirectory()}
}

// CheckAndUpdateRead checks a read of [lo, hi) against the existing
// writer of each byte (a WR race if logically parallel, locksets
// disjoint, and not atomic), then records the read, per spec.md §4.3.
// Any recorded entry whose allocation epoch no longer matches the
// epoch live at lo is dropped first as a stale shadow entry (spec.md
// §7.5) rather than raced against.
func (s *Shadow) CheckAndUpdateRead(lo, hi uint64, iid uint64, bid spbag.BID, ls lockset.Set, epoch uint64, atomic bool) []Race {
	if lo >= hi {
		return nil
	}
	new := Access{IID: iid, BID: bid, Lockset: ls, Epoch: epoch}
	var races []Race
	stale := false
	s.dir.forEachRange(lo, hi, func(p *page, loInPage, hiInPage int) {
		rs := p.visit(loInPage, hiInPage, func(bs byteState) (byteState, []Race) {
			bs, wasStale := s.dropStale(bs, lo)
			stale = stale || wasStale
			return checkRead(bs, new, atomic)
		})
		races = append(races, rs...)
	})
	if stale {
		s.logStale(lo)
	}
	return attributeAddr(races, lo)
}

// CheckAndUpdateWrite checks a write of [lo, hi) against the existing
// writer (WW) and readers (RW) of each byte, then records the write
// and clears the byte's reader set, per spec.md §4.3. Stale entries
// are dropped first, as in CheckAndUpdateRead.
func (s *Shadow) CheckAndUpdateWrite(lo, hi uint64, iid uint64, bid spbag.BID, ls lockset.Set, epoch uint64, atomic bool) []Race {
	if lo >= hi {
		return nil
	}
	new := Access{IID: iid, BID: bid, Lockset: ls, Epoch: epoch}
	var races []Race
	stale := false
	s.dir.forEachRange(lo, hi, func(p *page, loInPage, hiInPage int) {
		rs := p.visit(loInPage, hiInPage, func(bs byteState) (byteState, []Race) {
			bs, wasStale := s.dropStale(bs, lo)
			stale = stale || wasStale
			return checkWrite(bs, new, atomic)
		})
		races = append(races, rs...)
	})
	if stale {
		s.logStale(lo)
	}
	return attributeAddr(races, lo)
}

// dropStale clears any writer/reader entry in bs whose recorded
// allocation epoch is no longer the epoch live at addr, reporting
// whether it found one. A dropped entry never races against the new
// access; the byte proceeds as if it had never been touched, per
// spec.md §7.5's "the stale entry is dropped and the access proceeds
// as a fresh one."
func (s *Shadow) dropStale(bs byteState, addr uint64) (byteState, bool) {
	stale := false
	if bs.writer.valid() && !s.isLive(addr, bs.writer.Epoch) {
		bs.writer = Access{}
		stale = true
	}
	if bs.left.valid() && !s.isLive(addr, bs.left.Epoch) {
		bs.left = Access{}
		stale = true
	}
	if bs.right.valid() && !s.isLive(addr, bs.right.Epoch) {
		bs.right = Access{}
		stale = true
	}
	return bs, stale
}

func (s *Shadow) isLive(addr, epoch uint64) bool {
	if s.Live == nil {
		return true
	}
	return s.Live(addr, epoch)
}

func (s *Shadow) logStale(addr uint64) {
	if s.StaleLog != nil {
		s.StaleLog(addr)
	}
}

// Free checks every byte still live in [lo, hi) against the freeing
// access, emitting W-FREE/R-FREE races for any that are logically
// parallel to it, then clears shadow state in the range.
func (s *Shadow) Free(lo, hi uint64, iid uint64, bid spbag.BID) []Race {
	if lo >= hi {
		return nil
	}
	var races []Race
	s.dir.forEachRangeReadOnly(lo, hi, func(p *page, loInPage, hiInPage int) {
		rs := p.visit(loInPage, hiInPage, func(bs byteState) (byteState, []Race) {
			return checkFree(bs, iid, bid)
		})
		races = append(races, rs...)
	})
	return attributeAddr(races, lo)
}

// attributeAddr fills in Race.Addr for races that were detected
// without per-byte addressing context (page.visit operates per-page,
// not per-address): every race of one call is attributed to the
// call's lo address. Because the per-byte checks of a multi-byte
// access report the same conflict once per byte, races of the same
// kind against the same prior access are merged, so one call yields
// at most one race per conflicting prior access.
func attributeAddr(races []Race, lo uint64) []Race {
	var out []Race
	for _, r := range races {
		r.Addr = lo
		dup := false
		for _, o := range out {
			if o.Kind == r.Kind && o.First.equal(r.First) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
	}
	return out
}

// checkRead implements check_and_update_read for a single byte.
func checkRead(bs byteState, new Access, atomic bool) (byteState, []Race) {
	var races []Race
	if bs.writer.valid() && spbag.AreParallel(bs.writer.BID, new.BID) && !atomic && !bs.writer.Lockset.Intersects(new.Lockset) {
		races = append(races, Race{Kind: WR, First: bs.writer, Second: new})
	}

	// Reader-set update: replace any existing reader that is
	// sequenced before (dominated by) the new access; otherwise keep
	// both and possibly evict using the leftmost/rightmost policy.
	replaced := false
	if bs.left.valid() && spbag.Sequenced(bs.left.BID, new.BID) {
		bs.left = new
		replaced = true
	}
	if bs.right.valid() && spbag.Sequenced(bs.right.BID, new.BID) {
		bs.right = new
		replaced = true
	}
	if replaced {
		return bs, races
	}

	switch {
	case !bs.left.valid():
		bs.left = new
	case !bs.right.valid():
		if new.BID.ID < bs.left.BID.ID {
			bs.right = bs.left
			bs.left = new
		} else {
			bs.right = new
		}
	default:
		// Both slots hold readers logically parallel to the new one:
		// keep the two with the most extreme ID (our stand-in for
		// leftmost/rightmost SP position, see DESIGN.md) among the
		// three candidates.
		lo, hi := bs.left, bs.right
		if lo.BID.ID > hi.BID.ID {
			lo, hi = hi, lo
		}
		if new.BID.ID < lo.BID.ID {
			lo = new
		} else if new.BID.ID > hi.BID.ID {
			hi = new
		}
		bs.left, bs.right = lo, hi
	}
	return bs, races
}

// checkWrite implements check_and_update_write for a single byte.
func checkWrite(bs byteState, new Access, atomic bool) (byteState, []Race) {
	var races []Race
	if bs.writer.valid() && spbag.AreParallel(bs.writer.BID, new.BID) && !atomic && !bs.writer.Lockset.Intersects(new.Lockset) {
		races = append(races, Race{Kind: WW, First: bs.writer, Second: new})
	}
	if bs.left.valid() && spbag.AreParallel(bs.left.BID, new.BID) && !atomic && !bs.left.Lockset.Intersects(new.Lockset) {
		races = append(races, Race{Kind: RW, First: bs.left, Second: new})
	}
	if bs.right.valid() && spbag.AreParallel(bs.right.BID, new.BID) && !atomic && !bs.right.Lockset.Intersects(new.Lockset) {
		races = append(races, Race{Kind: RW, First: bs.right, Second: new})
	}
	bs.writer = new
	bs.left = Access{}
	bs.right = Access{}
	return bs, races
}

// checkFree implements free(lo, hi) for a single byte: any access
// still recorded that is logically parallel to the freeing strand
// races; the byte's state is unconditionally cleared afterward.
func checkFree(bs byteState, iid uint64, bid spbag.BID) (byteState, []Race) {
	var races []Race
	freeAccess := Access{IID: iid, BID: bid}
	if bs.writer.valid() && spbag.AreParallel(bs.writer.BID, bid) {
		races = append(races, Race{Kind: WFree, First: bs.writer, Second: freeAccess})
	}
	if bs.left.valid() && spbag.AreParallel(bs.left.BID, bid) {
		races = append(races, Race{Kind: RFree, First: bs.left, Second: freeAccess})
	}
	if bs.right.valid() && spbag.AreParallel(bs.right.BID, bid) {
		races = append(races, Race{Kind: RFree, First: bs.right, Second: freeAccess})
	}
	return byteState{}, races
}
