// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cilksan-replay is a minimal reference harness: it reads a
// line-based event trace and drives a cilksan.Detector with it,
// printing the final race report. It exists to exercise the Detector
// against fixed trace fixtures (see testdata/traces), not as a
// general-purpose CLI.
package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/race-tools/cilksan-go/alloc"
	"github.com/race-tools/cilksan-go/cilksan"
	"github.com/race-tools/cilksan-go/lockset"
	"github.com/race-tools/cilksan-go/spbag"
)

// Replay parses one event per line of trace and drives det with it.
// Blank lines and lines starting with # are ignored. The grammar:
//
//	func_entry <iid>
//	func_exit <iid>
//	detach <region>
//	detach_continue <region>
//	sync <region>
//	alloc <lo> <hi> <kind> <name>
//	realloc <old_lo> <new_lo> <new_hi> <kind> <name> <iid>
//	free <lo> <iid>
//	read <lo> <hi> <iid>
//	write <lo> <hi> <iid>
//	atomic_begin
//	atomic_end
//	acquire_lock <id>
//	release_lock <id>
//	acquire_fake_lock <name>
//	release_fake_lock <name>
//
// kind is one of: heap, stack, global, vla, reducer, library.
func Replay(det *cilksan.Detector, trace io.Reader) error {
	sc := bufio.NewScanner(trace)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := replayLine(det, line); err != nil {
			return fmt.Errorf("line %d: %q: %w", lineNo, line, err)
		}
	}
	return sc.Err()
}

func replayLine(det *cilksan.Detector, line string) error {
	fields := strings.Fields(line)
	op, args := fields[0], fields[1:]

	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s wants %d argument(s), got %d", op, n, len(args))
		}
		return nil
	}

	switch op {
	case "func_entry":
		if err := need(1); err != nil {
			return err
		}
		iid, err := u64(args[0])
		if err != nil {
			return err
		}
		det.FuncEntry(iid)
	case "func_exit":
		if err := need(1); err != nil {
			return err
		}
		iid, err := u64(args[0])
		if err != nil {
			return err
		}
		return det.FuncExit(iid)
	case "detach":
		if err := need(1); err != nil {
			return err
		}
		r, err := region(args[0])
		if err != nil {
			return err
		}
		return det.Detach(r)
	case "detach_continue":
		if err := need(1); err != nil {
			return err
		}
		r, err := region(args[0])
		if err != nil {
			return err
		}
		return det.DetachContinue(r)
	case "sync":
		if err := need(1); err != nil {
			return err
		}
		r, err := region(args[0])
		if err != nil {
			return err
		}
		det.Sync(r)
	case "alloc":
		if err := need(4); err != nil {
			return err
		}
		lo, hi, err := rangeOf(args[0], args[1])
		if err != nil {
			return err
		}
		kind, err := allocKind(args[2])
		if err != nil {
			return err
		}
		det.Alloc(lo, hi, kind, args[3])
	case "realloc":
		if err := need(6); err != nil {
			return err
		}
		oldLo, err := u64(args[0])
		if err != nil {
			return err
		}
		newLo, newHi, err := rangeOf(args[1], args[2])
		if err != nil {
			return err
		}
		kind, err := allocKind(args[3])
		if err != nil {
			return err
		}
		iid, err := u64(args[5])
		if err != nil {
			return err
		}
		det.Realloc(oldLo, newLo, newHi, kind, args[4], iid)
	case "free":
		if err := need(2); err != nil {
			return err
		}
		lo, err := u64(args[0])
		if err != nil {
			return err
		}
		iid, err := u64(args[1])
		if err != nil {
			return err
		}
		det.Free(lo, iid)
	case "read":
		if err := need(3); err != nil {
			return err
		}
		lo, hi, err := rangeOf(args[0], args[1])
		if err != nil {
			return err
		}
		iid, err := u64(args[2])
		if err != nil {
			return err
		}
		det.Read(lo, hi, iid)
	case "write":
		if err := need(3); err != nil {
			return err
		}
		lo, hi, err := rangeOf(args[0], args[1])
		if err != nil {
			return err
		}
		iid, err := u64(args[2])
		if err != nil {
			return err
		}
		det.Write(lo, hi, iid)
	case "atomic_begin":
		if err := need(0); err != nil {
			return err
		}
		det.AtomicBegin()
	case "atomic_end":
		if err := need(0); err != nil {
			return err
		}
		return det.AtomicEnd()
	case "acquire_lock":
		if err := need(1); err != nil {
			return err
		}
		id, err := u64(args[0])
		if err != nil {
			return err
		}
		det.AcquireLock(lockset.ID(id))
	case "release_lock":
		if err := need(1); err != nil {
			return err
		}
		id, err := u64(args[0])
		if err != nil {
			return err
		}
		det.ReleaseLock(lockset.ID(id))
	case "acquire_fake_lock":
		if err := need(1); err != nil {
			return err
		}
		det.AcquireFakeLock(args[0])
	case "release_fake_lock":
		if err := need(1); err != nil {
			return err
		}
		det.ReleaseFakeLock(args[0])
	default:
		return fmt.Errorf("unknown event %q", op)
	}
	return nil
}

func u64(s string) (uint64, error) { return strconv.ParseUint(s, 0, 64) }

func region(s string) (spbag.SyncRegion, error) {
	v, err := u64(s)
	return spbag.SyncRegion(v), err
}

func rangeOf(loS, hiS string) (lo, hi uint64, err error) {
	lo, err = u64(loS)
	if err != nil {
		return 0, 0, err
	}
	hi, err = u64(hiS)
	return lo, hi, err
}

func allocKind(s string) (alloc.Kind, error) {
	switch s {
	case "heap":
		return alloc.Heap, nil
	case "stack":
		return alloc.Stack, nil
	case "global":
		return alloc.Global, nil
	case "vla":
		return alloc.VLA, nil
	case "reducer":
		return alloc.ReducerView, nil
	case "library":
		return alloc.Library, nil
	default:
		return 0, fmt.Errorf("unknown allocation kind %q", s)
	}
}
