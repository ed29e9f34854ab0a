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

// Boundary policy for reads outside the plane
type Boundary int

const (
	Repeat Boundary = iota // clamp to the nearest valid coordinate
	Zero                   // read as zero
)

// A borrowed view onto a row-major float32 plane. Reads are total over all
// integer coordinates, writes must be in range.
type Plane struct {
	Data     []float32
	Stride   int
	Width    int
	Height   int
	Boundary Boundary
}

// Wraps data with stride equal to width
func NewPlane(data []float32, width, height int, b Boundary) Plane {
	return Plane{Data: data, Stride: width, Width: width, Height: height, Boundary: b}
}

// Returns the sample at (y,x) under the plane's boundary policy
func (p Plane) At(y, x int) float32 {
	if y < 0 || y >= p.Height || x < 0 || x >= p.Width {
		if p.Boundary == Zero {
			return 0
		}
		y, x = clamp(y, p.Height), clamp(x, p.Width)
	}
	return p.Data[y*p.Stride+x]
}

func (p Plane) Set(y, x int, v float32) {
	p.Data[y*p.Stride+x] = v
}

// Row y without boundary handling
func (p Plane) Row(y int) []float32 {
	return p.Data[y*p.Stride : y*p.Stride+p.Width]
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
