// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cilksan wires the dsu/spbag/lockset/alloc/shadow/check/event/
// report/symtab/diag packages into one Detector: the external surface
// an instrumented program (or cmd/cilksan-replay) actually drives, plus
// the environment-variable configuration and process-exit reporting
// spec.md §6 describes.
package cilksan

import (
	"os"
	"strconv"

	"github.com/kballard/go-shellquote"
)

// Config is the detector's environment-derived configuration.
type Config struct {
	// OutputPath is where the final race report is written; empty
	// means stderr. Set from CILKSAN_OUTPUT_PATH.
	OutputPath string
	// Disabled starts the detector with checking turned off; set from
	// CILKSAN_DISABLE. The detector's frame/SP-bags bookkeeping still
	// runs even while disabled -- only race checking is skipped -- so
	// a later EnableChecking mid-run sees a consistent parallelism
	// model.
	Disabled bool
	// ExtraArgs is an additional argument vector tokenized from
	// CILKSAN_ARGS, for launch environments that cannot pass argv
	// directly to the instrumented binary.
	ExtraArgs []string
	// Verbose gates non-fatal diagnostic logging (out-of-scope
	// accesses, stale shadow entries, symbolization misses).
	Verbose bool
	// DiagPNGPath, if set, makes Shutdown write a shadow-page
	// occupancy bitmap (package diag) to this path. Set from
	// CILKSAN_DIAG_PNG.
	DiagPNGPath string
	// DiagSVGPath, if set, makes Shutdown write a per-event timeline
	// scatter plot (package diag) to this path. Set from
	// CILKSAN_DIAG_SVG.
	DiagSVGPath string
}

const (
	envOutputPath = "CILKSAN_OUTPUT_PATH"
	envDisable    = "CILKSAN_DISABLE"
	envArgs       = "CILKSAN_ARGS"
	envVerbose    = "CILKSAN_VERBOSE"
	envDiagPNG    = "CILKSAN_DIAG_PNG"
	envDiagSVG    = "CILKSAN_DIAG_SVG"
)

// ConfigFromEnv reads Config from the process environment, matching
// the variable names spec.md §6 pins exactly.
func ConfigFromEnv() (Config, error) {
	cfg := Config{OutputPath: os.Getenv(envOutputPath)}

	if v := os.Getenv(envDisable); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, &envError{envDisable, v, err}
		}
		cfg.Disabled = b
	}

	if v := os.Getenv(envVerbose); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, &envError{envVerbose, v, err}
		}
		cfg.Verbose = b
	}

	if v := os.Getenv(envArgs); v != "" {
		args, err := shellquote.Split(v)
		if err != nil {
			return cfg, &envError{envArgs, v, err}
		}
		cfg.ExtraArgs = args
	}

	cfg.DiagPNGPath = os.Getenv(envDiagPNG)
	cfg.DiagSVGPath = os.Getenv(envDiagSVG)

	return cfg, nil
}

type envError struct {
	name, value string
	err         error
}

func (e *envError) Error() string {
	return e.name + "=" + e.value + ": " + e.err.Error()
}

func (e *envError) Unwrap() error { return e.err }
