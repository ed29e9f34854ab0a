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

package filter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mlnoga/patchweight/internal/denoise"
	"github.com/mlnoga/patchweight/internal/fits"
	"github.com/mlnoga/patchweight/internal/ops"
	"github.com/mlnoga/patchweight/internal/stats"
)

// Patch-weighted denoising of each image. Takes n inputs, produces n new outputs
type OpDenoise struct {
	ops.OpUnaryBase
	A        int     `json:"a"`        // search radius
	S        int     `json:"s"`        // patch radius
	H        float64 `json:"h"`        // patch-level bandwidth
	H2       float64 `json:"h2"`       // position-level bandwidth, 0 means same as h
	Planes   []int   `json:"planes"`   // planes to process, empty means all
	RefFile  string  `json:"refFile"`  // optional reference image to compare patches against
	LogNoise bool    `json:"logNoise"` // log noise estimates before and after
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpDenoiseDefault() }) } // register the operator for JSON decoding

func NewOpDenoiseDefault() *OpDenoise {
	return NewOpDenoise(denoise.DefaultA, denoise.DefaultS, denoise.DefaultH, 0, nil, "")
}

func NewOpDenoise(a, s int, h, h2 float64, planes []int, refFile string) *OpDenoise {
	op := &OpDenoise{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "denoise", Active: true}},
		A:           a,
		S:           s,
		H:           h,
		H2:          h2,
		Planes:      planes,
		RefFile:     refFile,
		LogNoise:    true,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpDenoise) UnmarshalJSON(data []byte) error {
	type defaults OpDenoise
	def := defaults(*NewOpDenoiseDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpDenoise(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Validates parameters against the given image and builds the filter configuration
func (op *OpDenoise) Config(f *fits.Image) (*denoise.Config, error) {
	if err := denoise.CheckFormat(f.Width(), f.Height(), f.NumPlanes()); err != nil {
		return nil, err
	}
	h2 := op.H2
	if h2 == 0 {
		h2 = op.H
	}
	return denoise.NewConfig(op.A, op.S, op.H, h2, op.Planes, f.NumPlanes())
}

func (op *OpDenoise) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	cfg, err := op.Config(f)
	if err != nil {
		return nil, fmt.Errorf("%d: %s image: %w", f.ID, f.DimensionsToString(), err)
	}
	src, err := denoise.NewFrame(f.Data, f.Width(), f.Height(), f.NumPlanes())
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}

	ref := src
	if op.RefFile != "" {
		refImg, err := c.Reference(op.RefFile)
		if err != nil {
			return nil, fmt.Errorf("%d: loading reference: %s", f.ID, err.Error())
		}
		if !fits.EqualInt32Slice(refImg.Naxisn, f.Naxisn) {
			return nil, fmt.Errorf("%d: reference %s differs from image %s: %w",
				f.ID, refImg.DimensionsToString(), f.DimensionsToString(), denoise.ErrFormat)
		}
		if ref, err = denoise.NewFrame(refImg.Data, refImg.Width(), refImg.Height(), refImg.NumPlanes()); err != nil {
			return nil, fmt.Errorf("%d: reference: %w", f.ID, err)
		}
	}

	out := fits.NewImageFromImage(f)
	dst, err := denoise.NewFrame(out.Data, out.Width(), out.Height(), out.NumPlanes())
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}

	maxBands := c.MaxScratch(cfg.ScratchBytes())
	fmt.Fprintf(c.Log, "%d: Denoising %s pixels with %v using up to %d bands\n", f.ID, f.DimensionsToString(), cfg, maxBands)
	start := time.Now()
	if err := denoise.DenoiseFrame(dst, src, ref, cfg, c.Pool, maxBands); err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	fmt.Fprintf(c.Log, "%d: Denoised in %v\n", f.ID, time.Since(start).Round(time.Millisecond))

	if op.LogNoise {
		for i := range src.Planes {
			if cfg.Process[i] {
				before := stats.EstimateNoise(src.Planes[i], src.Width)
				after := stats.EstimateNoise(dst.Planes[i], dst.Width)
				fmt.Fprintf(c.Log, "%d: Plane %d noise %.4g -> %.4g\n", f.ID, i, before, after)
			}
		}
	}

	out.Header.History = append(out.Header.History, "patchweight "+cfg.String())
	return out, nil
}
