// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"testing"

	"github.com/race-tools/cilksan-go/spbag"
)

func TestAtomicRegionSuppressesWriteWriteRace(t *testing.T) {
	forest := spbag.NewForest()
	s := spbag.NewStack(forest, 1)
	s.Detach(1)
	s.FuncEntry(2)
	a := s.Top()
	s.FuncExit(2)
	s.DetachContinue(1)
	b := s.Top()

	c := New()
	c.Atomic.Begin()
	c.Write(a, 100, 101, 1, 0)
	races := c.Write(b, 100, 101, 2, 0)
	c.Atomic.End()
	if len(races) != 0 {
		t.Fatalf("atomic-region writes raced: %+v", races)
	}
}

func TestParallelWritesRaceOutsideAtomicRegion(t *testing.T) {
	forest := spbag.NewForest()
	s := spbag.NewStack(forest, 1)
	s.Detach(1)
	s.FuncEntry(2)
	a := s.Top()
	s.FuncExit(2)
	s.DetachContinue(1)
	b := s.Top()

	c := New()
	c.Write(a, 100, 101, 1, 0)
	races := c.Write(b, 100, 101, 2, 0)
	if len(races) != 1 {
		t.Fatalf("races = %+v, want 1", races)
	}
}
