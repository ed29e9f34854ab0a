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

package fits

import (
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/patchweight/internal/stats"
)

// A FITS image holding one to three planes of float32 data.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output. Counted upwards from 0, by convention a reference frame is -1
	FileName string // Original file name, if any, for log output.

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating.
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i].
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i].
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y,planes)
	Pixels int32   // Number of values in the image. Product of Naxisn[]

	Data []float32 // The image data, planes stored one after the other

	Exposure float32 // Image exposure in seconds
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bscale: 1,
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
	}
}

// Creates a FITS image with the metadata of the given image. New data array will be allocated
func NewImageFromImage(img *Image) *Image {
	res := NewImageFromNaxisn(img.Naxisn, nil)
	res.ID, res.FileName, res.Exposure = img.ID, img.FileName, img.Exposure
	res.Header.History = append(res.Header.History, img.Header.History...)
	return res
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header

func (f *Image) Width() int {
	if len(f.Naxisn) < 1 {
		return 0
	}
	return int(f.Naxisn[0])
}

func (f *Image) Height() int {
	if len(f.Naxisn) < 2 {
		return 0
	}
	return int(f.Naxisn[1])
}

// Number of planes. 1 for two-dimensional images, 0 for anything that is not an image
func (f *Image) NumPlanes() int {
	switch len(f.Naxisn) {
	case 2:
		return 1
	case 3:
		return int(f.Naxisn[2])
	default:
		return 0
	}
}

// Data of the i-th plane, without copying
func (f *Image) Plane(i int) []float32 {
	size := f.Width() * f.Height()
	return f.Data[i*size : (i+1)*size]
}

// Calculates statistics for every plane
func (f *Image) PlaneStats() []*stats.Stats {
	res := make([]*stats.Stats, f.NumPlanes())
	for i := range res {
		res[i] = stats.NewStats(f.Plane(i), f.Width())
	}
	return res
}

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Minimum and maximum finite value across all planes. Zero for images without finite values
func (f *Image) MinMax() (min, max float32) {
	first := true
	for _, d := range f.Data {
		if math.IsNaN(float64(d)) || math.IsInf(float64(d), 0) {
			continue
		}
		if first || d < min {
			min = d
		}
		if first || d > max {
			max = d
		}
		first = false
	}
	return min, max
}

// Equal tells whether a and b contain the same elements.
// A nil argument is equivalent to an empty slice.
func EqualInt32Slice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
