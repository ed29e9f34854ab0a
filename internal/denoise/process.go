// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package denoise

import (
	"fmt"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// Denoises src into dst in raster order, comparing patches against ref.
// Resets and reuses the given scratch. dst, src and ref must have equal dimensions.
func DenoisePlane(dst, src, ref Plane, c *Config, sc *Scratch) {
	sc.Reset()
	denoiseRows(dst, src, ref, c, sc, 0, dst.Height)
}

// Denoises rows [yStart, yEnd) of src into dst
func denoiseRows(dst, src, ref Plane, c *Config, sc *Scratch, yStart, yEnd int) {
	for y := yStart; y < yEnd; y++ {
		for x := 0; x < dst.Width; x++ {
			sc.Build(src, ref, y, x)
			sc.PatchWeights(c.H)
			sc.PositionWeights(c.H2)
			dst.Set(y, x, float32(sc.Aggregate()))
		}
	}
}

// Denoises src into dst with row bands spread over the worker pool. Every band
// worker owns a private scratch, so at most maxBands scratch sets are live at
// once (maxBands<=0 means one per pool worker). Results are identical to DenoisePlane.
func DenoisePlaneParallel(dst, src, ref Plane, c *Config, pool *workerpool.Pool, maxBands int) {
	bands := dst.Height
	if pool != nil && pool.NumWorkers() < bands {
		bands = pool.NumWorkers()
	}
	if maxBands > 0 && maxBands < bands {
		bands = maxBands
	}
	if pool == nil || bands <= 1 {
		DenoisePlane(dst, src, ref, c, NewScratch(c))
		return
	}

	rowsPerBand := (dst.Height + bands - 1) / bands
	pool.ParallelFor(bands, func(start, end int) {
		sc := NewScratch(c)
		for b := start; b < end; b++ {
			yStart := b * rowsPerBand
			if yStart >= dst.Height {
				break
			}
			yEnd := min(yStart+rowsPerBand, dst.Height)
			denoiseRows(dst, src, ref, c, sc, yStart, yEnd)
		}
	})
}

// A planar frame: up to MaxPlanes planes of Width*Height samples each
type Frame struct {
	Width  int
	Height int
	Planes [][]float32
}

// Slices a contiguous planar buffer into a frame without copying
func NewFrame(data []float32, width, height, numPlanes int) (Frame, error) {
	if err := CheckFormat(width, height, numPlanes); err != nil {
		return Frame{}, err
	}
	size := width * height
	if len(data) != size*numPlanes {
		return Frame{}, fmt.Errorf("%d samples for %dx%dx%d frame: %w", len(data), width, height, numPlanes, ErrFormat)
	}
	f := Frame{Width: width, Height: height, Planes: make([][]float32, numPlanes)}
	for i := range f.Planes {
		f.Planes[i] = data[i*size : (i+1)*size]
	}
	return f, nil
}

// Returns plane i as a view with the given boundary policy
func (f Frame) Plane(i int, b Boundary) Plane {
	return NewPlane(f.Planes[i], f.Width, f.Height, b)
}

func (f Frame) SameShape(g Frame) bool {
	return f.Width == g.Width && f.Height == g.Height && len(f.Planes) == len(g.Planes)
}

// Denoises the selected planes of src into dst, with patches compared against ref.
// ref may alias src. Unselected planes are copied through unchanged unless dst
// already shares them with src.
func DenoiseFrame(dst, src, ref Frame, c *Config, pool *workerpool.Pool, maxBands int) error {
	if !src.SameShape(dst) || !src.SameShape(ref) {
		return fmt.Errorf("frames %dx%dx%d, %dx%dx%d and %dx%dx%d differ in shape: %w",
			src.Width, src.Height, len(src.Planes), dst.Width, dst.Height, len(dst.Planes),
			ref.Width, ref.Height, len(ref.Planes), ErrFormat)
	}
	if err := CheckFormat(src.Width, src.Height, len(src.Planes)); err != nil {
		return err
	}
	if len(src.Planes) != c.NumPlanes {
		return fmt.Errorf("%d planes, configured for %d: %w", len(src.Planes), c.NumPlanes, ErrFormat)
	}
	for i := range src.Planes {
		if c.Process[i] && (aliases(dst.Planes[i], src.Planes[i]) || aliases(dst.Planes[i], ref.Planes[i])) {
			return fmt.Errorf("plane %d: output shares memory with input: %w", i, ErrFormat)
		}
	}

	for i := range src.Planes {
		if !c.Process[i] {
			if !aliases(dst.Planes[i], src.Planes[i]) {
				copy(dst.Planes[i], src.Planes[i])
			}
			continue
		}
		DenoisePlaneParallel(dst.Plane(i, Zero), src.Plane(i, Repeat), ref.Plane(i, Repeat), c, pool, maxBands)
	}
	return nil
}

func aliases(a, b []float32) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}
