// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symtab resolves an IID (instruction identifier) to a source
// location. Symbolization itself -- parsing debug info out of the
// instrumented binary -- is an external collaborator (spec.md §1's
// "process-map parsing and symbolizer"); this package only loads and
// looks up an already-produced sidecar table, stored as a txtar
// archive (the same archive format golang.org/x/tools' own command
// tooling uses for golden fixtures) mapping each IID to one line of
// "file:line:function:varhint:objkind".
package symtab

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/tools/txtar"
)

// ObjKind is the descriptor class a resolved location belongs to, used
// to pick the race report's object line ("Heap object", "Stack
// object", ...).
type ObjKind string

const (
	ObjUnknown ObjKind = ""
	ObjHeap    ObjKind = "Heap"
	ObjStack   ObjKind = "Stack"
	ObjGlobal  ObjKind = "Global"
	ObjLibrary ObjKind = "Library"
	ObjVar     ObjKind = "variable"
)

// Location is everything resolvable out-of-band for one IID, per
// spec.md's Data Model: "(source_file, line, function, variable_hint,
// object_kind)".
type Location struct {
	File     string
	Line     int
	Func     string
	VarHint  string
	ObjKind  ObjKind
	Resolved bool
}

// Table is a loaded IID -> Location sidecar.
type Table struct {
	locs map[uint64]Location
}

// Empty returns a Table that resolves nothing; every Resolve call
// returns the non-fatal "symbolization failure" zero value, per
// spec.md §7.4.
func Empty() *Table {
	return &Table{locs: map[uint64]Location{}}
}

// Load parses a txtar archive whose file named "iids" holds one
// "iid file:line:function:varhint:objkind" record per line; files with
// any other name are ignored. Blank lines and lines starting with #
// are ignored.
func Load(data []byte) (*Table, error) {
	archive := txtar.Parse(data)
	t := &Table{locs: make(map[uint64]Location)}
	for _, f := range archive.Files {
		if f.Name != "iids" {
			continue
		}
		if err := t.parse(f.Data); err != nil {
			return nil, fmt.Errorf("symtab: %s: %w", f.Name, err)
		}
	}
	return t, nil
}

func (t *Table) parse(data []byte) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			return fmt.Errorf("malformed line %q", line)
		}
		iid, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad iid in %q: %w", line, err)
		}
		parts := strings.Split(fields[1], ":")
		for len(parts) < 5 {
			parts = append(parts, "")
		}
		lineNo, _ := strconv.Atoi(parts[1])
		t.locs[iid] = Location{
			File:     parts[0],
			Line:     lineNo,
			Func:     parts[2],
			VarHint:  parts[3],
			ObjKind:  ObjKind(parts[4]),
			Resolved: true,
		}
	}
	return sc.Err()
}

// Resolve returns the location for iid, or a zero Location with
// Resolved == false if iid is unknown (spec.md §7.4: non-fatal, the
// caller falls back to printing the IID in hex).
func (t *Table) Resolve(iid uint64) Location {
	if t == nil {
		return Location{}
	}
	return t.locs[iid]
}
