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

// Per-worker scratch buffers. Allocated once per plane, overwritten for every pixel.
// Not safe for concurrent use; each worker owns its own.
type Scratch struct {
	A, S       int
	SearchSize int
	PatchSize  int

	Matrix   []float64 // SearchSize x PatchSize, row i is the reference patch of the i-th search candidate
	Center   []float64 // query patch from the source plane, length PatchSize
	Patch    []float64 // patch-level weights, length SearchSize
	Position []float64 // position-level weights, length PatchSize
}

func NewScratch(c *Config) *Scratch {
	ss, ps := c.SearchSize(), c.PatchSize()
	return &Scratch{
		A:          c.A,
		S:          c.S,
		SearchSize: ss,
		PatchSize:  ps,
		Matrix:     make([]float64, ss*ps),
		Center:     make([]float64, ps),
		Patch:      make([]float64, ss),
		Position:   make([]float64, ps),
	}
}

// Clears all buffers
func (sc *Scratch) Reset() {
	for _, b := range [][]float64{sc.Matrix, sc.Center, sc.Patch, sc.Position} {
		for i := range b {
			b[i] = 0
		}
	}
}

// Row i of the patch matrix
func (sc *Scratch) Row(i int) []float64 {
	return sc.Matrix[i*sc.PatchSize : (i+1)*sc.PatchSize]
}

// Index of the zero-displacement candidate in the patch matrix
func (sc *Scratch) CenterRow() int { return (sc.SearchSize - 1) / 2 }

// Index of the patch center within a flattened patch
func (sc *Scratch) CenterOffset() int { return (sc.PatchSize - 1) / 2 }

// Builds the query patch from src and the patch matrix from ref for target pixel (y,x).
// Candidates are enumerated row-major over the search window, so the
// zero-displacement candidate lands on CenterRow().
func (sc *Scratch) Build(src, ref Plane, y, x int) {
	Flatten(sc.Center, src, y, x, sc.S)

	offset := 0
	for cy := y - sc.A; cy <= y+sc.A; cy++ {
		for cx := x - sc.A; cx <= x+sc.A; cx++ {
			offset += Flatten(sc.Matrix[offset:], ref, cy, cx, sc.S)
		}
	}
}
