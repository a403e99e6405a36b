// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diag

import (
	"io"

	"github.com/aclements/go-gg/gg"
	"github.com/aclements/go-gg/table"
)

// TimelinePoint is one entry of a worker's event timeline: the order
// the event was dispatched in and what kind of event it was, enough
// to scatter-plot "what was this worker doing, and when" across a run.
type TimelinePoint struct {
	Seq  int
	Kind string // "func_entry", "detach", "sync", "read", "write", ...
}

// WriteTimelineSVG renders points as an X/Y scatter (sequence number
// vs. event kind) and writes the result as an SVG, the same
// TableFromStructs -> NewPlot -> Add(Layer...) -> WriteSVG pipeline
// benchplot/plot.go and benchplot/main.go use for benchmark charts,
// applied here to a per-worker event trace instead of benchmark
// results.
func WriteTimelineSVG(w io.Writer, points []TimelinePoint, width, height int) error {
	t := table.TableFromStructs(points)
	plot := gg.NewPlot(t)
	plot.Add(gg.LayerPoints{X: "Seq", Y: "Kind", Color: "Kind"})
	return plot.WriteSVG(w, width, height)
}
