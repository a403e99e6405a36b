// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cilksan

import (
	"io"
	"log"
	"os"
	"sync"

	"github.com/race-tools/cilksan-go/alloc"
	"github.com/race-tools/cilksan-go/diag"
	"github.com/race-tools/cilksan-go/event"
	"github.com/race-tools/cilksan-go/lockset"
	"github.com/race-tools/cilksan-go/report"
	"github.com/race-tools/cilksan-go/shadow"
	"github.com/race-tools/cilksan-go/spbag"
	"github.com/race-tools/cilksan-go/symtab"
)

// diagCanvasWidth/diagCanvasHeight size the optional timeline SVG;
// the occupancy PNG's canvas is fixed by diag.PageCanvasSize instead.
const (
	diagCanvasWidth  = 800
	diagCanvasHeight = 400
)

// Detector is the top-level race detector: one Dispatcher plus the
// environment configuration and lifecycle state a consumer (the
// instrumented runtime, or cmd/cilksan-replay) actually drives.
type Detector struct {
	dispatch *event.Dispatcher
	cfg      Config
	symbols  *symtab.Table

	mu      sync.Mutex
	enabled bool
	done    bool

	// timeline records one point per dispatched event, in order, for
	// CILKSAN_DIAG_SVG; left nil (and never appended to) unless
	// cfg.DiagSVGPath is set, so the common case pays nothing.
	timeline []diag.TimelinePoint
}

func (d *Detector) recordTimeline(kind string) {
	if d.cfg.DiagSVGPath == "" {
		return
	}
	d.timeline = append(d.timeline, diag.TimelinePoint{Seq: len(d.timeline), Kind: kind})
}

// New returns a Detector rooted at rootFuncIID (typically the IID of
// the instrumented program's main strand), configured by cfg.
func New(rootFuncIID uint64, cfg Config) *Detector {
	d := &Detector{
		dispatch: event.New(rootFuncIID),
		cfg:      cfg,
		symbols:  symtab.Empty(),
		enabled:  !cfg.Disabled,
	}
	if cfg.Verbose {
		d.dispatch.Verbose = func(msg string) { log.Printf("cilksan: %s", msg) }
	}
	return d
}

// NewFromEnv is New with Config read from the process environment
// (CILKSAN_OUTPUT_PATH, CILKSAN_DISABLE, CILKSAN_ARGS, CILKSAN_VERBOSE).
func NewFromEnv(rootFuncIID uint64) (*Detector, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(rootFuncIID, cfg), nil
}

// LoadSymbols attaches a symbol table (see package symtab) used to
// resolve IIDs to source locations in the final report. Calling it
// more than once, or with a nil table, simply replaces the table; a
// Detector with no table resolves every IID to its hex value.
func (d *Detector) LoadSymbols(t *symtab.Table) {
	if t == nil {
		t = symtab.Empty()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.symbols = t
}

// Config returns the configuration the Detector was constructed with.
func (d *Detector) Config() Config { return d.cfg }

// EnableChecking turns race checking back on. It is idempotent: a
// Detector that is already enabled is unaffected. SP-bags/allocation
// bookkeeping runs regardless of enabled state; only Read/Write are
// gated by it (Free always runs its race check).
func (d *Detector) EnableChecking() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = true
}

// DisableChecking turns race checking off without losing track of
// parallelism structure; idempotent.
func (d *Detector) DisableChecking() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = false
}

// CheckingEnabled reports the current checking state.
func (d *Detector) CheckingEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

func (d *Detector) checking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// FuncEntry, FuncExit, Detach, DetachContinue, and Sync drive the
// SP-bags engine; they run unconditionally, independent of
// EnableChecking/DisableChecking, so re-enabling mid-computation sees
// a correct parallelism model.

func (d *Detector) FuncEntry(funcIID uint64) *spbag.Frame {
	d.recordTimeline("func_entry")
	return d.dispatch.FuncEntry(funcIID)
}
func (d *Detector) FuncExit(funcIID uint64) error {
	d.recordTimeline("func_exit")
	return d.dispatch.FuncExit(funcIID)
}
func (d *Detector) Detach(region spbag.SyncRegion) error {
	d.recordTimeline("detach")
	return d.dispatch.Detach(region)
}
func (d *Detector) DetachContinue(region spbag.SyncRegion) error {
	d.recordTimeline("detach_continue")
	return d.dispatch.DetachContinue(region)
}
func (d *Detector) Sync(region spbag.SyncRegion) {
	d.recordTimeline("sync")
	d.dispatch.Sync(region)
}

// AtomicBegin/AtomicEnd bracket an atomic or std::call_once-style
// region; idempotent with respect to the rest of the detector state
// (an unmatched AtomicEnd is reported, not panicked).
func (d *Detector) AtomicBegin() { d.dispatch.AtomicBegin() }
func (d *Detector) AtomicEnd() error {
	return d.dispatch.AtomicEnd()
}

// AcquireLock/ReleaseLock track a real mutex's held state for the
// current frame.
func (d *Detector) AcquireLock(id lockset.ID) { d.dispatch.AcquireLock(id) }
func (d *Detector) ReleaseLock(id lockset.ID) { d.dispatch.ReleaseLock(id) }

// DeclareLock registers a user-declared fake lock by name, returning
// its stable ID; registering the same name twice returns the same ID
// (idempotent).
func (d *Detector) DeclareLock(name string) lockset.ID { return d.dispatch.Locks.Register(name) }

// ForgetLock un-registers a fake lock name; a later DeclareLock of the
// same name allocates a fresh ID.
func (d *Detector) ForgetLock(name string) { d.dispatch.Locks.Unregister(name) }

// AcquireFakeLock/ReleaseFakeLock are AcquireLock/ReleaseLock for a
// user-declared fake lock, registering it on first use.
func (d *Detector) AcquireFakeLock(name string) { d.dispatch.AcquireFakeLock(name) }
func (d *Detector) ReleaseFakeLock(name string) { d.dispatch.ReleaseFakeLock(name) }

// Alloc, Realloc, and Free track allocation lifetime; Free and Realloc
// always run their race checks regardless of CheckingEnabled, since a
// free/realloc race is a memory-safety concern independent of whether
// the user asked to suppress ordinary read/write checking.
func (d *Detector) Alloc(lo, hi uint64, kind alloc.Kind, name string) *alloc.Record {
	return d.dispatch.Alloc(lo, hi, kind, name)
}

func (d *Detector) Realloc(oldLo, newLo, newHi uint64, kind alloc.Kind, name string, iid uint64) (*alloc.Record, []shadow.Race) {
	return d.dispatch.Realloc(oldLo, newLo, newHi, kind, name, iid)
}

func (d *Detector) Free(lo uint64, iid uint64) []shadow.Race {
	return d.dispatch.Free(lo, iid)
}

// Read checks and records a read of [lo, hi) at instruction iid. A
// no-op, returning nil, while checking is disabled.
func (d *Detector) Read(lo, hi, iid uint64) []shadow.Race {
	d.recordTimeline("read")
	if !d.checking() {
		return nil
	}
	return d.dispatch.Read(lo, hi, iid)
}

// Write checks and records a write of [lo, hi) at instruction iid. A
// no-op, returning nil, while checking is disabled.
func (d *Detector) Write(lo, hi, iid uint64) []shadow.Race {
	d.recordTimeline("write")
	if !d.checking() {
		return nil
	}
	return d.dispatch.Write(lo, hi, iid)
}

// Store exposes the underlying race report store (distinct/suppressed
// counts, entries), for callers that want to inspect results without
// going through Shutdown's formatted report.
func (d *Detector) Store() *report.Store { return d.dispatch.Store }

// Shutdown renders the final race report to cfg.OutputPath (or stderr
// if unset) and the mandated exit summary lines. It is safe to call
// more than once; subsequent calls are no-ops.
func (d *Detector) Shutdown() error {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return nil
	}
	d.done = true
	d.mu.Unlock()

	w, closer, err := d.openOutput()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	formatter := report.NewFormatter(d.symbols)
	if d.cfg.Verbose {
		formatter.Miss = func(iid uint64) { log.Printf("cilksan: symbolization miss for iid 0x%x", iid) }
	}
	_, err = io.WriteString(w, report.FormatAll(d.dispatch.Store, formatter))
	if err != nil {
		return err
	}
	return d.writeDiagnostics()
}

func (d *Detector) openOutput() (io.Writer, *os.File, error) {
	if d.cfg.OutputPath == "" {
		return os.Stderr, nil, nil
	}
	f, err := os.Create(d.cfg.OutputPath)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

// writeDiagnostics emits the optional CILKSAN_DIAG_PNG/CILKSAN_DIAG_SVG
// dumps, if configured. Neither affects the race report written just
// before it; both are purely for a human inspecting this run.
func (d *Detector) writeDiagnostics() error {
	if d.cfg.DiagPNGPath != "" {
		if err := writeDiagFile(d.cfg.DiagPNGPath, func(w io.Writer) error {
			return diag.WritePageOccupancy(w, d.dispatch.Check.Shadow)
		}); err != nil {
			return err
		}
	}
	if d.cfg.DiagSVGPath != "" {
		if err := writeDiagFile(d.cfg.DiagSVGPath, func(w io.Writer) error {
			return diag.WriteTimelineSVG(w, d.timeline, diagCanvasWidth, diagCanvasHeight)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeDiagFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return write(f)
}
