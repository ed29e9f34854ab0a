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

// Flattens the (2r+1)x(2r+1) neighborhood of (cy,cx) into dst, row by row,
// and returns the number of samples written. The center sample lands at
// index ((2r+1)^2-1)/2. dst must hold at least (2r+1)^2 values.
func Flatten(dst []float64, p Plane, cy, cx, radius int) int {
	i := 0
	if cy-radius >= 0 && cy+radius < p.Height && cx-radius >= 0 && cx+radius < p.Width {
		// interior fast path, no clamping needed
		for y := cy - radius; y <= cy+radius; y++ {
			row := p.Data[y*p.Stride+cx-radius : y*p.Stride+cx+radius+1]
			for _, v := range row {
				dst[i] = float64(v)
				i++
			}
		}
		return i
	}
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			dst[i] = float64(p.At(y, x))
			i++
		}
	}
	return i
}
