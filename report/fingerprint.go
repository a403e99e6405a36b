// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report implements the race report store: deduplication by
// canonical fingerprint, distinct/suppressed tallying, and the report
// stanza format described in spec.md §6.
package report

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/race-tools/cilksan-go/shadow"
)

// Fingerprint is the canonical identity of a race report: two reports
// that describe the same race (same two instruction sites, same kind
// once WR/RW are canonicalized, same call context) share one
// Fingerprint regardless of which access the shadow memory happened to
// detect first.
type Fingerprint [32]byte

// canonicalKind collapses RW and WR into one kind for fingerprinting
// purposes (spec.md §4.9: "RW at X from A,B and WR at X from B,A share
// one fingerprint"), and returns the two IIDs in a canonical (min,
// max) order.
func canonicalKind(k shadow.RaceKind, iid1, iid2 uint64) (kind shadow.RaceKind, lo, hi uint64) {
	switch k {
	case shadow.WR:
		k = shadow.RW
	}
	if iid1 <= iid2 {
		return k, iid1, iid2
	}
	return k, iid2, iid1
}

// computeFingerprint hashes (kind, IID_min, IID_max, call-context) with
// blake2b-256. blake2b replaces an ad hoc rolled hash so that
// fingerprint collisions are cryptographically implausible; a
// collision would silently merge two distinct races into one report,
// so this is a correctness-relevant choice, not just a performance
// one.
func computeFingerprint(k shadow.RaceKind, iid1, iid2 uint64, callContext uint64) Fingerprint {
	kind, lo, hi := canonicalKind(k, iid1, iid2)

	var buf [25]byte
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint64(buf[1:9], lo)
	binary.LittleEndian.PutUint64(buf[9:17], hi)
	binary.LittleEndian.PutUint64(buf[17:25], callContext)

	return blake2b.Sum256(buf[:])
}

// CallContextHash hashes the vector of call-site IIDs along a live
// frame chain, used as the call-context component of a fingerprint.
// Two races with identical instruction pairs but different enclosing
// call chains (e.g. the same racy helper inlined at two call sites)
// are intentionally treated as distinct reports.
func CallContextHash(chain []uint64) uint64 {
	var h uint64 = 1469598103934665603 // FNV-1a 64-bit offset basis
	const prime = 1099511628211
	for _, iid := range chain {
		for i := 0; i < 8; i++ {
			h ^= uint64(byte(iid >> (8 * i)))
			h *= prime
		}
	}
	return h
}
