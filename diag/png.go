// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diag implements the detector's optional diagnostics, each
// written only when its output path is configured: a shadow-occupancy
// PNG (CILKSAN_DIAG_PNG) and a per-worker event-timeline SVG
// (CILKSAN_DIAG_SVG). Neither affects
// race detection; both are purely for a human inspecting why a run
// behaved the way it did.
package diag

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	"github.com/race-tools/cilksan-go/shadow"
)

// PageCanvasSize is the fixed output canvas the one-pixel-per-page
// occupancy bitmap is scaled up to, so a run touching only a handful
// of pages still produces a legible image.
const PageCanvasSize = 512

// WritePageOccupancy renders one pixel per touched shadow page --
// green for a page still in its run-length-compressed uniform state,
// red for one that has been expanded to per-byte tracking -- and
// writes it as a PNG to w. Pages are laid out left-to-right,
// top-to-bottom in ascending page-number order.
//
// The small source bitmap is upscaled with draw.Scaler.Scale, the same
// interface srgb/main.go uses (there with draw.BiLinear, to shrink a
// decoded photo); NearestNeighbor is used here instead so adjacent
// pages stay block-sharp rather than blurring into each other.
func WritePageOccupancy(w io.Writer, sh *shadow.Shadow) error {
	pages := sh.Occupancy()
	if len(pages) == 0 {
		pages = []shadow.PageOccupancy{{}}
	}

	cols := 1
	for cols*cols < len(pages) {
		cols++
	}
	rows := (len(pages) + cols - 1) / cols

	src := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for i, p := range pages {
		x, y := i%cols, i/cols
		src.Set(x, y, occupancyColor(p))
	}

	dst := image.NewRGBA(image.Rect(0, 0, PageCanvasSize, PageCanvasSize))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	return png.Encode(w, dst)
}

func occupancyColor(p shadow.PageOccupancy) color.Color {
	if p.Uniform {
		return color.RGBA{R: 0x20, G: 0xa0, B: 0x20, A: 0xff}
	}
	return color.RGBA{R: 0xc0, G: 0x30, B: 0x20, A: 0xff}
}
