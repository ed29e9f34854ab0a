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
	"github.com/ajroetker/go-highway/hwy/contrib/vec"
)

// Computes the squared error of each of count rows in data against query.
// Dispatches at runtime to the widest SIMD kernel the CPU supports.
func batchSSE(dst, query, data []float64, count, dims int) {
	vec.BatchL2SquaredDistance(query, data, dst, count, dims)
}

// Computes dst[i] = sum_j (data[i*dims+j]-query[j])^2 for i in [0,count). Pure go implementation
func batchSSEPureGo(dst, query, data []float64, count, dims int) {
	for i := 0; i < count; i++ {
		row := data[i*dims : (i+1)*dims]
		sse := 0.0
		for j, v := range row {
			d := v - query[j]
			sse += d * d
		}
		dst[i] = sse
	}
}
