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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"

	"github.com/lucasb-eyer/go-colorful"
)

// Maps values from [min,max] to [0,1] with clamping and gamma
type normalizer struct {
	min      float32
	scale    float32
	gammaInv float64
}

func newNormalizer(min, max, gamma float32) normalizer {
	if !(max > min) {
		max = min + 1
	}
	if !(gamma > 0) {
		gamma = 1
	}
	return normalizer{min: min, scale: 1 / (max - min), gammaInv: float64(1 / gamma)}
}

func (n normalizer) apply(v float32) float32 {
	v = (v - n.min) * n.scale
	// replace NaNs with zeros for export, else JPG output breaks
	if math.IsNaN(float64(v)) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	if n.gammaInv != 1.0 {
		v = float32(math.Pow(float64(v), n.gammaInv))
	}
	return v
}

// Write a FITS image to JPG, using the given min, max and gamma.
// If srgb is set, the normalized values are treated as linear light and encoded with the sRGB transfer curve.
func (f *Image) WriteJPGToFile(fileName string, min, max, gamma float32, srgb bool, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := f.WriteJPG(writer, min, max, gamma, srgb, quality); err != nil {
		return err
	}
	return writer.Flush()
}

// Write a FITS image with one or three planes to JPG, using the given min, max and gamma.
func (f *Image) WriteJPG(writer io.Writer, min, max, gamma float32, srgb bool, quality int) error {
	width, height := f.Width(), f.Height()
	rect := image.Rectangle{image.Point{0, 0}, image.Point{width, height}}
	n := newNormalizer(min, max, gamma)

	var img image.Image
	switch f.NumPlanes() {
	case 1:
		gray := image.NewGray(rect)
		data := f.Plane(0)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := n.apply(data[y*width+x])
				r, _, _ := encode8(v, v, v, srgb)
				gray.SetGray(x, y, color.Gray{r})
			}
		}
		img = gray
	case 3:
		rgba := image.NewRGBA(rect)
		rp, gp, bp := f.Plane(0), f.Plane(1), f.Plane(2)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := y*width + x
				r, g, b := encode8(n.apply(rp[i]), n.apply(gp[i]), n.apply(bp[i]), srgb)
				rgba.SetRGBA(x, y, color.RGBA{r, g, b, 255})
			}
		}
		img = rgba
	default:
		return fmt.Errorf("%d: cannot export %d planes to JPG", f.ID, f.NumPlanes())
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

// Converts normalized values to 8 bit, optionally applying the sRGB transfer curve
func encode8(r, g, b float32, srgb bool) (uint8, uint8, uint8) {
	if srgb {
		return colorful.LinearRgb(float64(r), float64(g), float64(b)).Clamped().RGB255()
	}
	return uint8(r * 255), uint8(g * 255), uint8(b * 255)
}
