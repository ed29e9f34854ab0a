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
	"bytes"
	"errors"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/patchweight/internal/denoise"
	"github.com/mlnoga/patchweight/internal/fits"
	"github.com/mlnoga/patchweight/internal/ops"
	"github.com/valyala/fastrand"
)

func randomImage(naxisn ...int32) *fits.Image {
	img := fits.NewImageFromNaxisn(naxisn, nil)
	rng := fastrand.RNG{}
	for i := range img.Data {
		img.Data[i] = float32(rng.Uint32n(1000)) / 1000
	}
	return img
}

func TestDenoiseFlatImage(t *testing.T) {
	img := fits.NewImageFromNaxisn([]int32{6, 5}, nil)
	for i := range img.Data {
		img.Data[i] = 0.3
	}
	log := bytes.Buffer{}
	c := ops.NewContext(&log, 2)
	defer c.Close()

	out, err := NewOpDenoise(1, 1, 1.6, 0, nil, "").Apply(img, c)
	if err != nil {
		t.Fatal(err)
	}
	if out == img || &out.Data[0] == &img.Data[0] {
		t.Errorf("output shares memory with input")
	}
	for i, d := range out.Data {
		if d != 0.3 {
			t.Errorf("data[%d] got %f expect 0.3", i, d)
		}
	}
	if n := len(out.Header.History); n != 1 || !strings.HasPrefix(out.Header.History[0], "patchweight a=1 s=1") {
		t.Errorf("history got %q", out.Header.History)
	}
	if !strings.Contains(log.String(), "Plane 0 noise") {
		t.Errorf("log lacks noise estimate: %s", log.String())
	}
}

func TestDenoisePlaneSelection(t *testing.T) {
	img := randomImage(7, 6, 3)
	c := ops.NewContext(io.Discard, 3)
	defer c.Close()

	out, err := NewOpDenoise(1, 1, denoise.ScalingFactor, 0, []int{1}, "").Apply(img, c)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []int{0, 2} {
		for i, d := range out.Plane(p) {
			if d != img.Plane(p)[i] {
				t.Errorf("plane %d changed at %d: got %f expect %f", p, i, d, img.Plane(p)[i])
			}
		}
	}
	changed := 0
	for i, d := range out.Plane(1) {
		if d != img.Plane(1)[i] {
			changed++
		}
	}
	if changed == 0 {
		t.Errorf("plane 1 left unchanged")
	}
}

func TestDenoiseErrors(t *testing.T) {
	c := ops.NewContext(io.Discard, 1)
	defer c.Close()

	dir := t.TempDir()
	refName := filepath.Join(dir, "ref.fits")
	if err := randomImage(4, 4).WriteFile(refName, false); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name   string
		op     *OpDenoise
		img    *fits.Image
		expect error
	}{
		{"plane out of range", NewOpDenoise(1, 1, 1.6, 0, []int{1}, ""), randomImage(4, 4), denoise.ErrPlaneIndexOutOfRange},
		{"duplicate plane", NewOpDenoise(1, 1, 1.6, 0, []int{2, 2}, ""), randomImage(4, 4, 3), denoise.ErrDuplicatePlane},
		{"negative radius", NewOpDenoise(-1, 1, 1.6, 0, nil, ""), randomImage(4, 4), denoise.ErrInvalidParameter},
		{"zero bandwidth", NewOpDenoise(1, 1, 0, 0, nil, ""), randomImage(4, 4), denoise.ErrInvalidParameter},
		{"four planes", NewOpDenoise(1, 1, 1.6, 0, nil, ""), randomImage(4, 4, 4), denoise.ErrFormat},
		{"one dimension", NewOpDenoise(1, 1, 1.6, 0, nil, ""), randomImage(16), denoise.ErrFormat},
		{"reference shape", NewOpDenoise(1, 1, 1.6, 0, nil, refName), randomImage(4, 5), denoise.ErrFormat},
	} {
		if _, err := tc.op.Apply(tc.img, c); !errors.Is(err, tc.expect) {
			t.Errorf("%s: got %v expect %v", tc.name, err, tc.expect)
		}
	}
}

func TestDenoiseWithReference(t *testing.T) {
	dir := t.TempDir()
	refName := filepath.Join(dir, "ref.fits")
	ref := fits.NewImageFromNaxisn([]int32{5, 5}, nil)
	for i := range ref.Data {
		ref.Data[i] = 1
	}
	if err := ref.WriteFile(refName, false); err != nil {
		t.Fatal(err)
	}

	// a flat reference weighs all candidates and positions equally,
	// so the result is the box mean of the source patch
	img := randomImage(5, 5)
	c := ops.NewContext(io.Discard, 1)
	defer c.Close()
	out, err := NewOpDenoise(1, 1, 1.6, 0, nil, refName).Apply(img, c)
	if err != nil {
		t.Fatal(err)
	}
	sum := float64(0)
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 3; x++ {
			sum += float64(img.Data[y*5+x])
		}
	}
	if expect := float32(sum / 9); math.Abs(float64(out.Data[2*5+2]-expect)) > 1e-6 {
		t.Errorf("center got %f expect %f", out.Data[2*5+2], expect)
	}
}

func TestDenoiseJSONDefaults(t *testing.T) {
	op, err := ops.UnmarshalOperator([]byte(`{"type":"denoise","planes":[0],"h2":2.5}`))
	if err != nil {
		t.Fatal(err)
	}
	d, ok := op.(*OpDenoise)
	if !ok {
		t.Fatalf("got %T", op)
	}
	if !d.Active || d.A != denoise.DefaultA || d.S != denoise.DefaultS || d.H != denoise.DefaultH || d.H2 != 2.5 {
		t.Errorf("got %+v", d)
	}
	if len(d.Planes) != 1 || d.Planes[0] != 0 || !d.LogNoise {
		t.Errorf("got %+v", d)
	}
	if d.OpUnaryBase.Apply == nil {
		t.Errorf("apply not bound")
	}
}

func TestDenoisePipeline(t *testing.T) {
	dir := t.TempDir()
	inName, outName := filepath.Join(dir, "in.fits"), filepath.Join(dir, "out.fits")
	if err := randomImage(9, 8).WriteFile(inName, false); err != nil {
		t.Fatal(err)
	}

	log := bytes.Buffer{}
	c := ops.NewContext(&log, 2)
	defer c.Close()
	seq := ops.NewOpSequence(
		ops.NewOpLoad(0, inName),
		NewOpDenoise(2, 1, 1.6, 0, nil, ""),
		ops.NewOpSave(outName),
	)
	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ops.MaterializeAll(promises, c.MaxThreads, true); err != nil {
		t.Fatal(err)
	}

	res, err := fits.NewImageFromFile(outName, 0, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if res.DimensionsToString() != "9x8" {
		t.Errorf("got %s", res.DimensionsToString())
	}
	if len(res.Header.History) != 1 || !strings.HasPrefix(res.Header.History[0], "patchweight a=2 s=1") {
		t.Errorf("history got %q", res.Header.History)
	}
	if !strings.Contains(log.String(), "Writing 9x8 pixel FITS") {
		t.Errorf("log got %s", log.String())
	}
}
