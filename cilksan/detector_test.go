// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cilksan

import (
	"os"
	"strings"
	"testing"

	"github.com/race-tools/cilksan-go/alloc"
	"github.com/race-tools/cilksan-go/spbag"
)

func TestParallelIncrementRaces(t *testing.T) {
	d := New(1, Config{})
	d.Alloc(1000, 1008, alloc.Global, "counter")

	region := spbag.SyncRegion(1)
	for i := 0; i < 4; i++ {
		if err := d.Detach(region); err != nil {
			t.Fatal(err)
		}
		d.FuncEntry(uint64(10 + i))
		d.Write(1000, 1008, uint64(100+i))
		if err := d.FuncExit(uint64(10 + i)); err != nil {
			t.Fatal(err)
		}
		if err := d.DetachContinue(region); err != nil {
			t.Fatal(err)
		}
	}
	d.Sync(region)

	if d.Store().Distinct() == 0 {
		t.Fatalf("expected parallel writes to the same global to race")
	}
}

func TestDisableCheckingSuppressesRaces(t *testing.T) {
	d := New(1, Config{})
	d.Alloc(1000, 1008, alloc.Global, "counter")

	region := spbag.SyncRegion(1)
	d.Detach(region)
	d.FuncEntry(2)

	d.DisableChecking()
	// This write happens entirely while checking is disabled: disabling
	// suppresses shadow-memory updates too, not just reporting, so it
	// leaves no trace for a later access to race against.
	if races := d.Write(1000, 1008, 100); races != nil {
		t.Fatalf("checking was disabled but a race was reported: %v", races)
	}
	d.EnableChecking()

	d.FuncExit(2)
	d.DetachContinue(region)

	if d.Store().Distinct() != 0 {
		t.Fatalf("Distinct() = %d, want 0 (the only prior write was never recorded)", d.Store().Distinct())
	}

	// Now record two genuinely parallel writes with checking enabled.
	region2 := spbag.SyncRegion(2)
	d.Detach(region2)
	d.FuncEntry(3)
	d.Write(1000, 1008, 200)
	d.FuncExit(3)
	d.DetachContinue(region2)

	races := d.Write(1000, 1008, 201)
	if len(races) == 0 {
		t.Fatalf("expected a race between two parallel writes with checking enabled")
	}
}

func TestShutdownWritesToConfiguredPath(t *testing.T) {
	path := t.TempDir() + "/report.txt"
	d := New(1, Config{OutputPath: path})
	d.Alloc(1000, 1008, alloc.Global, "x")

	region := spbag.SyncRegion(1)
	d.Detach(region)
	d.FuncEntry(2)
	d.Write(1000, 1008, 100)
	d.FuncExit(2)
	d.DetachContinue(region)
	d.Write(1000, 1008, 101)

	if err := d.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(data), "Cilksan detected 1 distinct races.") {
		t.Fatalf("report missing summary line: %q", data)
	}
}

func TestConfigFromEnvParsesAllThreeVariables(t *testing.T) {
	t.Setenv("CILKSAN_OUTPUT_PATH", "/tmp/out.txt")
	t.Setenv("CILKSAN_DISABLE", "true")
	t.Setenv("CILKSAN_ARGS", "--foo 'bar baz'")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.OutputPath != "/tmp/out.txt" {
		t.Fatalf("OutputPath = %q", cfg.OutputPath)
	}
	if !cfg.Disabled {
		t.Fatalf("Disabled = false, want true")
	}
	if len(cfg.ExtraArgs) != 2 || cfg.ExtraArgs[1] != "bar baz" {
		t.Fatalf("ExtraArgs = %#v", cfg.ExtraArgs)
	}
}

func TestConfigFromEnvParsesDiagPaths(t *testing.T) {
	t.Setenv("CILKSAN_DIAG_PNG", "/tmp/occupancy.png")
	t.Setenv("CILKSAN_DIAG_SVG", "/tmp/timeline.svg")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.DiagPNGPath != "/tmp/occupancy.png" {
		t.Fatalf("DiagPNGPath = %q", cfg.DiagPNGPath)
	}
	if cfg.DiagSVGPath != "/tmp/timeline.svg" {
		t.Fatalf("DiagSVGPath = %q", cfg.DiagSVGPath)
	}
}

func TestShutdownWritesConfiguredDiagnostics(t *testing.T) {
	dir := t.TempDir()
	pngPath := dir + "/occupancy.png"
	svgPath := dir + "/timeline.svg"

	d := New(1, Config{DiagPNGPath: pngPath, DiagSVGPath: svgPath})
	d.Alloc(1000, 1008, alloc.Global, "x")

	region := spbag.SyncRegion(1)
	d.Detach(region)
	d.FuncEntry(2)
	d.Write(1000, 1008, 100)
	d.FuncExit(2)
	d.DetachContinue(region)
	d.Write(1000, 1008, 101)

	if err := d.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if fi, err := os.Stat(pngPath); err != nil || fi.Size() == 0 {
		t.Fatalf("expected a non-empty PNG at %s, stat err: %v", pngPath, err)
	}
	if fi, err := os.Stat(svgPath); err != nil || fi.Size() == 0 {
		t.Fatalf("expected a non-empty SVG at %s, stat err: %v", svgPath, err)
	}
}

func TestDeclareLockIsIdempotent(t *testing.T) {
	d := New(1, Config{})
	a := d.DeclareLock("spinlock")
	b := d.DeclareLock("spinlock")
	if a != b {
		t.Fatalf("DeclareLock(name) returned different IDs on repeat calls")
	}
}
