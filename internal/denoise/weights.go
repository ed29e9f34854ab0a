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
	"math"

	"gonum.org/v1/gonum/floats"
)

// Computes patch-level weights: the sum of squared errors of every candidate
// patch against the zero-displacement candidate, mapped through exp(-sse/h^2)
// and normalized to sum one. The center row always has sse 0.
func (sc *Scratch) PatchWeights(h float64) {
	center := sc.Row(sc.CenterRow())
	batchSSE(sc.Patch, center, sc.Matrix, sc.SearchSize, sc.PatchSize)
	expNormalize(sc.Patch, h)
}

// Computes position-level weights from the patch-level weights, which must be
// computed first. For every offset j within a patch, accumulates the
// patch-weighted squared deviation from each candidate's own center sample.
func (sc *Scratch) PositionWeights(h2 float64) {
	pos := sc.Position
	for j := range pos {
		pos[j] = 0
	}
	c := sc.CenterOffset()
	for i := 0; i < sc.SearchSize; i++ {
		row, w := sc.Row(i), sc.Patch[i]
		center := row[c]
		for j, v := range row {
			d := v - center
			pos[j] += w * (d * d)
		}
	}
	expNormalize(pos, h2)
}

// Returns the position-weighted sum of the query patch
func (sc *Scratch) Aggregate() float64 {
	return floats.Dot(sc.Position, sc.Center)
}

// Maps squared errors to exp(-sse/h^2) in place and normalizes to sum one.
// A zero or non-finite sum is not guarded and yields non-finite weights.
func expNormalize(w []float64, h float64) {
	hSq := h * h
	for i, sse := range w {
		w[i] = math.Exp(-sse / hSq)
	}
	norm := floats.Sum(w)
	for i := range w {
		w[i] /= norm
	}
}
