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
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"golang.org/x/image/tiff"
)

// Write a FITS image to 16-bit TIFF, using the given min, max and gamma.
func (f *Image) WriteTIFF16ToFile(fileName string, min, max, gamma float32) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := f.WriteTIFF16(writer, min, max, gamma); err != nil {
		return err
	}
	return writer.Flush()
}

// Write a FITS image with one or three planes to 16-bit TIFF, using the given min, max and gamma.
func (f *Image) WriteTIFF16(writer io.Writer, min, max, gamma float32) error {
	width, height := f.Width(), f.Height()
	rect := image.Rectangle{image.Point{0, 0}, image.Point{width, height}}
	n := newNormalizer(min, max, gamma)

	var img image.Image
	switch f.NumPlanes() {
	case 1:
		gray := image.NewGray16(rect)
		data := f.Plane(0)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				gray.SetGray16(x, y, color.Gray16{uint16(n.apply(data[y*width+x]) * 65535)})
			}
		}
		img = gray
	case 3:
		rgb := image.NewRGBA64(rect)
		r, g, b := f.Plane(0), f.Plane(1), f.Plane(2)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := y*width + x
				rgb.SetRGBA64(x, y, color.RGBA64{uint16(n.apply(r[i]) * 65535), uint16(n.apply(g[i]) * 65535), uint16(n.apply(b[i]) * 65535), 65535})
			}
		}
		img = rgb
	default:
		return fmt.Errorf("%d: cannot export %d planes to TIFF", f.ID, f.NumPlanes())
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Read a color or grayscale TIFF file into a FITS image.
func (f *Image) ReadTIFFFile(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()
	f.FileName = fileName
	return f.ReadTIFF(bufio.NewReader(file))
}

// Read a color or grayscale TIFF image into a FITS image. Values keep their 8 or 16 bit range.
func (f *Image) ReadTIFF(reader io.Reader) error {
	t, err := tiff.Decode(reader)
	if err != nil {
		return err
	}

	// determine width, height, color depth and number of color channels
	width, height := t.Bounds().Dx(), t.Bounds().Dy()
	bitpix, channels := colorModelToBitpixAndChannels(t.ColorModel())
	if channels == 0 {
		return errors.New("unsupported TIFF color model")
	}

	f.Bitpix = bitpix
	f.Naxisn = []int32{int32(width), int32(height), channels}
	if channels == 1 {
		f.Naxisn = f.Naxisn[:2]
	}
	f.Pixels = int32(width) * int32(height) * channels
	f.Bzero, f.Bscale = 0, 1
	f.Data = make([]float32, f.Pixels)

	// 16-bit color components are scaled down to the original depth
	shift := uint(0)
	if bitpix == 8 {
		shift = 8
	}
	size := width * height
	minX, minY := t.Bounds().Min.X, t.Bounds().Min.Y
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := t.At(minX+x, minY+y)
			i := y*width + x
			if channels == 1 {
				f.Data[i] = float32(color.Gray16Model.Convert(c).(color.Gray16).Y >> shift)
			} else {
				r, g, b, _ := c.RGBA()
				f.Data[i] = float32(r >> shift)
				f.Data[i+size] = float32(g >> shift)
				f.Data[i+2*size] = float32(b >> shift)
			}
		}
	}
	return nil
}

func colorModelToBitpixAndChannels(m color.Model) (bitpix, channels int32) {
	switch m {
	case color.RGBAModel, color.NRGBAModel:
		return 8, 3
	case color.RGBA64Model, color.NRGBA64Model:
		return 16, 3
	case color.GrayModel:
		return 8, 1
	case color.Gray16Model:
		return 16, 1
	default:
		return 0, 0
	}
}
