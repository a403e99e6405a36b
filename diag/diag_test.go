// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diag

import (
	"bytes"
	"testing"

	"github.com/race-tools/cilksan-go/lockset"
	"github.com/race-tools/cilksan-go/shadow"
	"github.com/race-tools/cilksan-go/spbag"
)

func TestWritePageOccupancyProducesPNG(t *testing.T) {
	forest := spbag.NewForest()
	s := spbag.NewStack(forest, 1)
	sh := shadow.New()
	a := s.Top().Leaf()

	sh.CheckAndUpdateWrite(0, shadow.PageSize, 1, a, lockset.Empty, 0, false)
	sh.CheckAndUpdateWrite(5, 6, 2, a, lockset.Empty, 0, false) // expands one page

	var buf bytes.Buffer
	if err := WritePageOccupancy(&buf, sh); err != nil {
		t.Fatalf("WritePageOccupancy: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatalf("output does not start with the PNG magic number")
	}
}

func TestWriteTimelineSVGProducesXML(t *testing.T) {
	points := []TimelinePoint{
		{Seq: 0, Kind: "func_entry"},
		{Seq: 1, Kind: "detach"},
		{Seq: 2, Kind: "sync"},
	}
	var buf bytes.Buffer
	if err := WriteTimelineSVG(&buf, points, 400, 300); err != nil {
		t.Fatalf("WriteTimelineSVG: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected non-empty SVG output")
	}
}
