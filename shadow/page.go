// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shadow

const (
	// PageBits sets the page size to 4KiB, within the 2^12-2^16 range
	// spec.md §4.3 allows.
	PageBits = 12
	PageSize = 1 << PageBits
	pageMask = PageSize - 1
)

// page is one page's worth of shadow state. While uniform is true,
// every byte of the page shares the single state in uniformState and
// bytes is unused (zeroed); any access that would break that
// uniformity expands the page into the per-byte array first. A page
// may later be recompressed back to uniform (see tryCompress). bytes
// is an inline array, so a page holds its per-byte storage whether or
// not it is uniform.
type page struct {
	uniform      bool
	uniformState byteState
	bytes        [PageSize]byteState
}

func newPage() *page {
	return &page{uniform: true}
}

// visit applies fn to every byte state in [loInPage, hiInPage) of p,
// replacing each with fn's return value, and returns the union of all
// races fn reported. It expands the page out of uniform mode only if
// the requested range does not cover the whole page; a whole-page
// visit of a uniform page applies fn once to the shared state, which
// every byte has, and never expands.
func (p *page) visit(loInPage, hiInPage int, fn func(byteState) (byteState, []Race)) []Race {
	if p.uniform && loInPage == 0 && hiInPage == PageSize {
		next, races := fn(p.uniformState)
		p.uniformState = next
		return races
	}

	p.expand()
	var races []Race
	for i := loInPage; i < hiInPage; i++ {
		next, rs := fn(p.bytes[i])
		p.bytes[i] = next
		races = append(races, rs...)
	}
	p.tryCompress()
	return races
}

// expand materializes bytes from uniformState if the page is currently
// compressed. It is a no-op if already expanded.
func (p *page) expand() {
	if !p.uniform {
		return
	}
	for i := range p.bytes {
		p.bytes[i] = p.uniformState
	}
	p.uniform = false
}

// tryCompress collapses bytes back into uniformState if every byte now
// shares the same state. This is the run-length compression step:
// pages that settle back into a uniform access pattern (e.g. after a
// hot loop finishes touching one region) go back to one shared state
// and whole-page visits. No memory is released: bytes is only zeroed.
func (p *page) tryCompress() {
	if p.uniform {
		return
	}
	first := p.bytes[0]
	for i := 1; i < PageSize; i++ {
		if !p.bytes[i].equal(first) {
			return
		}
	}
	p.uniform = true
	p.uniformState = first
	p.bytes = [PageSize]byteState{}
}

// directory is the outer, lazily-populated table mapping a page number
// (address >> PageBits) to its page. Unallocated pages read as empty,
// per spec.md §4.3, without ever being materialized.
type directory struct {
	pages map[uint64]*page
}

func newDirectory() *directory {
	return &directory{pages: make(map[uint64]*page)}
}

func (d *directory) pageFor(pageNum uint64, create bool) *page {
	p, ok := d.pages[pageNum]
	if !ok {
		if !create {
			return nil
		}
		p = newPage()
		d.pages[pageNum] = p
	}
	return p
}

// forEachRange splits [lo, hi) into per-page sub-ranges and invokes fn
// on each page (created lazily) with the in-page byte offsets.
func (d *directory) forEachRange(lo, hi uint64, fn func(p *page, loInPage, hiInPage int)) {
	for addr := lo; addr < hi; {
		pageNum := addr >> PageBits
		pageStart := pageNum << PageBits
		pageEnd := pageStart + PageSize
		end := hi
		if pageEnd < end {
			end = pageEnd
		}
		p := d.pageFor(pageNum, true)
		fn(p, int(addr-pageStart), int(end-pageStart))
		addr = end
	}
}

// forEachRangeReadOnly is like forEachRange but never allocates a page
// for a range that was never touched (used by Free, which has nothing
// useful to do against an empty page).
func (d *directory) forEachRangeReadOnly(lo, hi uint64, fn func(p *page, loInPage, hiInPage int)) {
	for addr := lo; addr < hi; {
		pageNum := addr >> PageBits
		pageStart := pageNum << PageBits
		pageEnd := pageStart + PageSize
		end := hi
		if pageEnd < end {
			end = pageEnd
		}
		if p := d.pageFor(pageNum, false); p != nil {
			fn(p, int(addr-pageStart), int(end-pageStart))
		}
		addr = end
	}
}
