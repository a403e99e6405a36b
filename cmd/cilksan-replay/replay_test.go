// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"github.com/race-tools/cilksan-go/cilksan"
)

func run(t *testing.T, trace string) *cilksan.Detector {
	t.Helper()
	det := cilksan.New(1, cilksan.Config{})
	if err := Replay(det, strings.NewReader(trace)); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	return det
}

func TestReplayParallelWritesRace(t *testing.T) {
	det := run(t, `
alloc 1000 1008 global counter
detach 1
func_entry 2
write 1000 1008 10
func_exit 2
detach_continue 1
write 1000 1008 11
`)
	if det.Store().Distinct() != 1 {
		t.Fatalf("Distinct() = %d, want 1", det.Store().Distinct())
	}
}

func TestReplaySyncedWritesDoNotRace(t *testing.T) {
	det := run(t, `
alloc 1000 1008 global counter
detach 1
func_entry 2
write 1000 1008 10
func_exit 2
detach_continue 1
sync 1
write 1000 1008 11
`)
	if det.Store().Distinct() != 0 {
		t.Fatalf("Distinct() = %d, want 0", det.Store().Distinct())
	}
}

func TestReplayUnknownEventErrors(t *testing.T) {
	det := cilksan.New(1, cilksan.Config{})
	if err := Replay(det, strings.NewReader("frobnicate 1 2 3")); err == nil {
		t.Fatalf("expected an error for an unknown event")
	}
}

func TestReplayFromTxtarFixture(t *testing.T) {
	archive := txtar.Parse([]byte(`
-- trace --
alloc 100 108 heap buf
detach 1
func_entry 2
write 100 108 10
func_exit 2
detach_continue 1
free 100 11
`))
	var trace string
	for _, f := range archive.Files {
		if f.Name == "trace" {
			trace = string(f.Data)
		}
	}
	det := run(t, trace)
	if det.Store().Distinct() != 1 {
		t.Fatalf("Distinct() = %d, want 1 (W-FREE race)", det.Store().Distinct())
	}
}
