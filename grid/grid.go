// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package grid converts raw engine frames into the fixed-size text
// grids that are edited into a session's display message.
//
// Quantization is deterministic: the same frame at the same
// dimensions always produces byte-identical cells, which is what makes
// diffing against the last transmitted grid meaningful. The symbol
// palette is ordered by intensity and the intensity-to-symbol mapping
// is monotonic, so a scene that brightens slightly moves to an
// adjacent symbol instead of flickering to an unrelated one.
package grid

import (
	"fmt"
	"strings"

	"github.com/playgrid/playgrid/engine"
)

// Palette is the display alphabet, darkest to lightest. Cell values
// are indices into this string.
const Palette = " .:-=+*#%@"

// Grid is a fixed-size matrix of palette symbols representing one
// rendered frame. Cells is row-major with Width*Height entries, each
// a byte from Palette.
type Grid struct {
	Width  int
	Height int
	Cells  []byte
}

// Quantize downsamples a raw frame to a width x height text grid.
// Each cell is the mean intensity of its source pixel block, mapped
// through Palette. Panics if width or height is not positive; returns
// an error if the frame buffer is malformed.
func Quantize(frame *engine.Frame, width, height int) (Grid, error) {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("grid: non-positive dimensions %dx%d", width, height))
	}
	if frame.Width <= 0 || frame.Height <= 0 || len(frame.Pixels) != frame.Width*frame.Height {
		return Grid{}, fmt.Errorf("grid: malformed frame: %dx%d with %d pixels",
			frame.Width, frame.Height, len(frame.Pixels))
	}

	cells := make([]byte, width*height)
	for cy := range height {
		// Source pixel rows covered by this cell row. Always at
		// least one row, even when the grid is taller than the frame.
		y0 := cy * frame.Height / height
		y1 := (cy + 1) * frame.Height / height
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for cx := range width {
			x0 := cx * frame.Width / width
			x1 := (cx + 1) * frame.Width / width
			if x1 <= x0 {
				x1 = x0 + 1
			}

			var sum, count int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sum += int(frame.At(x, y))
					count++
				}
			}
			mean := sum / count

			// Monotonic intensity-to-symbol mapping.
			cells[cy*width+cx] = Palette[mean*(len(Palette)-1)/255]
		}
	}

	return Grid{Width: width, Height: height, Cells: cells}, nil
}

// IsZero reports whether the grid is the zero value (no render yet).
func (g Grid) IsZero() bool { return g.Cells == nil }

// Diff returns the number of cells in which g and other differ. Grids
// of different dimensions are entirely different: the count is the
// larger cell count.
func (g Grid) Diff(other Grid) int {
	if g.Width != other.Width || g.Height != other.Height {
		return max(g.Width*g.Height, other.Width*other.Height)
	}
	changed := 0
	for i := range g.Cells {
		if g.Cells[i] != other.Cells[i] {
			changed++
		}
	}
	return changed
}

// String renders the grid as Height newline-separated rows.
func (g Grid) String() string {
	var b strings.Builder
	b.Grow((g.Width + 1) * g.Height)
	for y := range g.Height {
		if y > 0 {
			b.WriteByte('\n')
		}
		b.Write(g.Cells[y*g.Width : (y+1)*g.Width])
	}
	return b.String()
}
