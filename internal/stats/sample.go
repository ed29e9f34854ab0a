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

package stats

import (
	"math"

	"github.com/valyala/fastrand"
)

// Calculates fast approximate median of the (presumably large) data by subsampling
// len(samples) values and taking the median of that. Uses samples as scratchpad.
// Data must not contain IEEE NaN
func FastApproxMedian(data []float32, samples []float32) float32 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = data[rng.Uint32n(max)]
	}
	return QSelectMedianFloat32(samples)
}

// Calculates fast approximate median of absolute differences from location by
// subsampling, normalized to a Gaussian standard deviation. Uses samples as scratchpad.
func FastApproxMAD(data []float32, location float32, samples []float32) float32 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = float32(math.Abs(float64(data[rng.Uint32n(max)] - location)))
	}
	return QSelectMedianFloat32(samples) * 1.4826
}

// Exact median and normalized MAD. Reorders the data
func MedianMAD(data []float32) (median, mad float32) {
	if len(data) == 0 {
		return float32(math.NaN()), float32(math.NaN())
	}
	median = QSelectMedianFloat32(data)
	for i, d := range data {
		data[i] = float32(math.Abs(float64(d - median)))
	}
	mad = QSelectMedianFloat32(data) * 1.4826
	return median, mad
}
