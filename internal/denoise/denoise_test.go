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
	"errors"
	"math"
	"testing"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
	"github.com/valyala/fastrand"
)

// Bandwidth in user units that maps to roughly 1 after scaling
const unitH = ScalingFactor

func randomPlane(rng *fastrand.RNG, width, height int) Plane {
	data := make([]float32, width*height)
	for i := range data {
		data[i] = float32(rng.Uint32n(1<<16)) / (1 << 16)
	}
	return NewPlane(data, width, height, Repeat)
}

func constPlane(v float32, width, height int, b Boundary) Plane {
	data := make([]float32, width*height)
	for i := range data {
		data[i] = v
	}
	return NewPlane(data, width, height, b)
}

func mustConfig(t *testing.T, a, s int, h, h2 float64) *Config {
	t.Helper()
	c, err := NewConfig(a, s, h, h2, nil, 1)
	if err != nil {
		t.Fatalf("config a=%d s=%d h=%g h2=%g: %s", a, s, h, h2, err.Error())
	}
	return c
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

func TestBuildCenterRow(t *testing.T) {
	rng := fastrand.RNG{}
	p := randomPlane(&rng, 7, 6)
	c := mustConfig(t, 2, 1, unitH, unitH)
	sc := NewScratch(c)

	for _, yx := range [][2]int{{0, 0}, {3, 3}, {5, 6}} {
		sc.Build(p, p, yx[0], yx[1])
		center := sc.Row(sc.CenterRow())
		for j := range center {
			if center[j] != sc.Center[j] {
				t.Errorf("(%d,%d) center row[%d]=%g; want query %g", yx[0], yx[1], j, center[j], sc.Center[j])
			}
		}
		if got, want := sc.Center[sc.CenterOffset()], float64(p.At(yx[0], yx[1])); got != want {
			t.Errorf("(%d,%d) query center %g; want %g", yx[0], yx[1], got, want)
		}
		// row 0 is the candidate at displacement (-a,-a)
		if got, want := sc.Row(0)[sc.CenterOffset()], float64(p.At(yx[0]-2, yx[1]-2)); got != want {
			t.Errorf("(%d,%d) row 0 center %g; want %g", yx[0], yx[1], got, want)
		}
	}
}

func TestSelfSSEIsZero(t *testing.T) {
	rng := fastrand.RNG{}
	p := randomPlane(&rng, 9, 9)
	c := mustConfig(t, 2, 2, unitH, unitH)
	sc := NewScratch(c)
	sc.Build(p, p, 4, 4)

	kernels := map[string]func(dst, query, data []float64, count, dims int){
		"pure go":  batchSSEPureGo,
		"dispatch": batchSSE,
	}
	for name, kernel := range kernels {
		sse := make([]float64, sc.SearchSize)
		kernel(sse, sc.Row(sc.CenterRow()), sc.Matrix, sc.SearchSize, sc.PatchSize)
		if sse[sc.CenterRow()] != 0 {
			t.Errorf("%s: self sse %g; want 0", name, sse[sc.CenterRow()])
		}
	}
}

func TestSSEKernelsAgree(t *testing.T) {
	rng := fastrand.RNG{}
	for _, dims := range []int{1, 3, 9, 25, 49} {
		count := 7
		query := make([]float64, dims)
		data := make([]float64, count*dims)
		for i := range query {
			query[i] = float64(rng.Uint32n(1000)) / 100
		}
		for i := range data {
			data[i] = float64(rng.Uint32n(1000)) / 100
		}
		a, b := make([]float64, count), make([]float64, count)
		batchSSEPureGo(a, query, data, count, dims)
		batchSSE(b, query, data, count, dims)
		for i := range a {
			if math.Abs(a[i]-b[i]) > 1e-9*math.Max(1, a[i]) {
				t.Errorf("dims=%d row %d: pure go %g dispatch %g", dims, i, a[i], b[i])
			}
		}
	}
}

func TestWeightsSumToOne(t *testing.T) {
	rng := fastrand.RNG{}
	p := randomPlane(&rng, 11, 8)
	c := mustConfig(t, 2, 1, unitH, 0.5*unitH)
	sc := NewScratch(c)

	for y := 0; y < p.Height; y += 3 {
		for x := 0; x < p.Width; x += 2 {
			sc.Build(p, p, y, x)
			sc.PatchWeights(c.H)
			sc.PositionWeights(c.H2)
			if s := sum(sc.Patch); math.Abs(s-1) > 1e-12 {
				t.Errorf("(%d,%d) patch weights sum %g; want 1", y, x, s)
			}
			if s := sum(sc.Position); math.Abs(s-1) > 1e-12 {
				t.Errorf("(%d,%d) position weights sum %g; want 1", y, x, s)
			}
			for i, w := range sc.Patch {
				if w < 0 {
					t.Errorf("(%d,%d) patch weight %d negative %g", y, x, i, w)
				}
			}
			for i, w := range sc.Position {
				if w < 0 {
					t.Errorf("(%d,%d) position weight %d negative %g", y, x, i, w)
				}
			}
			// the center row and the center offset carry the largest unnormalized weight
			for i, w := range sc.Patch {
				if w > sc.Patch[sc.CenterRow()] {
					t.Errorf("(%d,%d) patch weight %d=%g exceeds center %g", y, x, i, w, sc.Patch[sc.CenterRow()])
				}
			}
		}
	}
}

func TestFlatPlaneIsUnchanged(t *testing.T) {
	src := constPlane(2.0, 4, 4, Repeat)
	dst := constPlane(0, 4, 4, Zero)
	c := mustConfig(t, 1, 1, DefaultH, DefaultH)
	sc := NewScratch(c)

	DenoisePlane(dst, src, src, c, sc)
	for i, v := range dst.Data {
		if v != 2.0 {
			t.Errorf("dst[%d]=%g; want 2", i, v)
		}
	}
	for i, w := range sc.Patch {
		if math.Abs(w-1.0/9) > 1e-15 {
			t.Errorf("patch weight %d=%g; want uniform 1/9", i, w)
		}
	}
}

func TestSearchRadiusZero(t *testing.T) {
	rng := fastrand.RNG{}
	p := randomPlane(&rng, 6, 5)
	c := mustConfig(t, 0, 2, unitH, unitH)
	sc := NewScratch(c)
	if sc.SearchSize != 1 {
		t.Fatalf("search size %d; want 1", sc.SearchSize)
	}
	sc.Build(p, p, 2, 3)
	sc.PatchWeights(c.H)
	if sc.Patch[0] != 1 {
		t.Errorf("single patch weight %g; want 1", sc.Patch[0])
	}
	sc.PositionWeights(c.H2)
	if s := sum(sc.Position); math.Abs(s-1) > 1e-12 {
		t.Errorf("position weights sum %g; want 1", s)
	}
}

func TestPatchRadiusZeroIsIdentity(t *testing.T) {
	rng := fastrand.RNG{}
	src := randomPlane(&rng, 7, 5)
	ref := randomPlane(&rng, 7, 5)
	for _, a := range []int{0, 1, 3} {
		for _, h := range []float64{0.01, 1.6, 500} {
			c := mustConfig(t, a, 0, h, 2*h)
			dst := constPlane(-1, 7, 5, Zero)
			DenoisePlane(dst, src, ref, c, NewScratch(c))
			for i := range dst.Data {
				if dst.Data[i] != src.Data[i] {
					t.Errorf("a=%d h=%g dst[%d]=%g; want source %g", a, h, i, dst.Data[i], src.Data[i])
				}
			}
		}
	}
}

func TestCornerUsesReplicatedEdge(t *testing.T) {
	data := []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	p := NewPlane(data, 3, 3, Repeat)
	c := mustConfig(t, 1, 1, unitH, unitH)
	sc := NewScratch(c)
	sc.Build(p, p, 0, 0)

	wantCenter := []float64{1, 1, 2, 1, 1, 2, 4, 4, 5}
	for j, w := range wantCenter {
		if sc.Center[j] != w {
			t.Errorf("query[%d]=%g; want %g", j, sc.Center[j], w)
		}
	}
	// candidate (-1,-1) lies entirely outside and replicates the corner pixel
	for j, v := range sc.Row(0) {
		if v != 1 {
			t.Errorf("row 0[%d]=%g; want 1", j, v)
		}
	}
	// candidate (+1,+1) is the interior pixel 5 and its full neighborhood
	want := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	for j, v := range sc.Row(sc.SearchSize - 1) {
		if v != want[j] {
			t.Errorf("last row[%d]=%g; want %g", j, v, want[j])
		}
	}
}

func TestNotIdempotent(t *testing.T) {
	rng := fastrand.RNG{}
	src := randomPlane(&rng, 8, 8)
	c := mustConfig(t, 1, 1, unitH, unitH)
	sc := NewScratch(c)

	once := constPlane(0, 8, 8, Zero)
	DenoisePlane(once, src, src, c, sc)
	twice := constPlane(0, 8, 8, Zero)
	once.Boundary = Repeat
	DenoisePlane(twice, once, once, c, sc)

	differ := 0
	for i := range once.Data {
		if once.Data[i] != twice.Data[i] {
			differ++
		}
	}
	if differ == 0 {
		t.Errorf("second pass reproduced the first pass exactly; filter is not expected to be idempotent")
	}
}

// Degenerate inputs are not guarded: non-finite samples turn into non-finite output
func TestNonFinitePropagates(t *testing.T) {
	src := constPlane(1, 5, 5, Repeat)
	src.Set(2, 2, float32(math.Inf(1)))
	dst := constPlane(0, 5, 5, Zero)
	c := mustConfig(t, 1, 1, unitH, unitH)
	DenoisePlane(dst, src, src, c, NewScratch(c))

	v := float64(dst.At(2, 2))
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		t.Errorf("dst(2,2)=%g; want non-finite", v)
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	pool := workerpool.New(4)
	defer pool.Close()

	rng := fastrand.RNG{}
	src := randomPlane(&rng, 13, 9)
	ref := randomPlane(&rng, 13, 9)
	c := mustConfig(t, 2, 1, unitH, unitH)

	seq := constPlane(0, 13, 9, Zero)
	DenoisePlane(seq, src, ref, c, NewScratch(c))

	for _, maxBands := range []int{0, 1, 2, 3, 100} {
		par := constPlane(0, 13, 9, Zero)
		DenoisePlaneParallel(par, src, ref, c, pool, maxBands)
		for i := range seq.Data {
			if math.Float32bits(seq.Data[i]) != math.Float32bits(par.Data[i]) {
				t.Errorf("maxBands=%d dst[%d]=%g; sequential %g", maxBands, i, par.Data[i], seq.Data[i])
			}
		}
	}

	nilPool := constPlane(0, 13, 9, Zero)
	DenoisePlaneParallel(nilPool, src, ref, c, nil, 0)
	for i := range seq.Data {
		if seq.Data[i] != nilPool.Data[i] {
			t.Errorf("nil pool dst[%d]=%g; sequential %g", i, nilPool.Data[i], seq.Data[i])
		}
	}
}

func TestDenoiseFramePlaneSelection(t *testing.T) {
	rng := fastrand.RNG{}
	width, height := 6, 5
	size := width * height
	data := make([]float32, 3*size)
	for i := range data {
		data[i] = float32(rng.Uint32n(1000)) / 1000
	}
	data[size+4] = float32(math.NaN())
	src, err := NewFrame(data, width, height, 3)
	if err != nil {
		t.Fatalf("source frame: %s", err.Error())
	}
	dst, err := NewFrame(make([]float32, 3*size), width, height, 3)
	if err != nil {
		t.Fatalf("destination frame: %s", err.Error())
	}
	c, err := NewConfig(1, 1, unitH, unitH, []int{0}, 3)
	if err != nil {
		t.Fatalf("config: %s", err.Error())
	}

	pool := workerpool.New(2)
	defer pool.Close()
	if err := DenoiseFrame(dst, src, src, c, pool, 0); err != nil {
		t.Fatalf("denoise: %s", err.Error())
	}
	for p := 1; p < 3; p++ {
		for i := range src.Planes[p] {
			if math.Float32bits(dst.Planes[p][i]) != math.Float32bits(src.Planes[p][i]) {
				t.Errorf("plane %d [%d]=%g; want source %g bit for bit", p, i, dst.Planes[p][i], src.Planes[p][i])
			}
		}
	}

	want := constPlane(0, width, height, Zero)
	DenoisePlane(want, src.Plane(0, Repeat), src.Plane(0, Repeat), c, NewScratch(c))
	for i := range want.Data {
		if dst.Planes[0][i] != want.Data[i] {
			t.Errorf("plane 0 [%d]=%g; want %g", i, dst.Planes[0][i], want.Data[i])
		}
	}
}

func TestDenoiseFrameErrors(t *testing.T) {
	c := mustConfig(t, 1, 1, unitH, unitH)
	a, _ := NewFrame(make([]float32, 12), 4, 3, 1)
	b, _ := NewFrame(make([]float32, 12), 3, 4, 1)
	if err := DenoiseFrame(a, a, b, c, nil, 0); !errors.Is(err, ErrFormat) {
		t.Errorf("shape mismatch: got %v; want ErrFormat", err)
	}
	if err := DenoiseFrame(a, a, a, c, nil, 0); !errors.Is(err, ErrFormat) {
		t.Errorf("in place: got %v; want ErrFormat", err)
	}
	rgb, _ := NewFrame(make([]float32, 36), 4, 3, 3)
	rgbOut, _ := NewFrame(make([]float32, 36), 4, 3, 3)
	if err := DenoiseFrame(rgbOut, rgb, rgb, c, nil, 0); !errors.Is(err, ErrFormat) {
		t.Errorf("config for 1 plane on 3 planes: got %v; want ErrFormat", err)
	}
	if _, err := NewFrame(make([]float32, 11), 4, 3, 1); !errors.Is(err, ErrFormat) {
		t.Errorf("short buffer: got %v; want ErrFormat", err)
	}
	if _, err := NewFrame(nil, 0, 3, 1); !errors.Is(err, ErrFormat) {
		t.Errorf("zero width: got %v; want ErrFormat", err)
	}
}

// Direct evaluation of the filter for pixel (y,x), with replicated edges.
// Returns the output value and both weight vectors.
func referenceFilter(src, ref Plane, y, x, a, s int, h, h2 float64) (out float64, patchW, posW []float64) {
	at := func(p Plane, y, x int) float64 {
		return float64(p.Data[clamp(y, p.Height)*p.Stride+clamp(x, p.Width)])
	}

	var center []float64
	for py := -s; py <= s; py++ {
		for px := -s; px <= s; px++ {
			center = append(center, at(src, y+py, x+px))
		}
	}
	var matrix [][]float64
	for dy := -a; dy <= a; dy++ {
		for dx := -a; dx <= a; dx++ {
			var row []float64
			for py := -s; py <= s; py++ {
				for px := -s; px <= s; px++ {
					row = append(row, at(ref, y+dy+py, x+dx+px))
				}
			}
			matrix = append(matrix, row)
		}
	}
	c := (len(matrix) - 1) / 2
	co := (len(center) - 1) / 2

	patchW = make([]float64, len(matrix))
	norm := 0.0
	for i := range matrix {
		sse := 0.0
		for j := range matrix[i] {
			d := matrix[i][j] - matrix[c][j]
			sse += d * d
		}
		patchW[i] = math.Exp(-sse / (h * h))
		norm += patchW[i]
	}
	for i := range patchW {
		patchW[i] /= norm
	}

	posW = make([]float64, len(center))
	norm = 0.0
	for j := range center {
		sse := 0.0
		for i := range matrix {
			d := matrix[i][j] - matrix[i][co]
			sse += patchW[i] * d * d
		}
		posW[j] = math.Exp(-sse / (h2 * h2))
		norm += posW[j]
	}
	for j := range posW {
		posW[j] /= norm
		out += posW[j] * center[j]
	}
	return out, patchW, posW
}

func TestMatchesDirectEvaluation(t *testing.T) {
	rng := fastrand.RNG{}
	width, height := 7, 6
	src := randomPlane(&rng, width, height)
	ref := randomPlane(&rng, width, height)
	c := mustConfig(t, 1, 1, 0.3*unitH, 0.7*unitH)
	sc := NewScratch(c)

	for _, yx := range [][2]int{{0, 0}, {0, 6}, {5, 0}, {5, 6}, {2, 3}, {3, 1}} {
		y, x := yx[0], yx[1]
		want, wantPatch, wantPos := referenceFilter(src, ref, y, x, c.A, c.S, c.H, c.H2)
		sc.Build(src, ref, y, x)
		sc.PatchWeights(c.H)
		sc.PositionWeights(c.H2)
		for i := range wantPatch {
			if math.Abs(sc.Patch[i]-wantPatch[i]) > 1e-12 {
				t.Errorf("(%d,%d) patch weight %d = %g; want %g", y, x, i, sc.Patch[i], wantPatch[i])
			}
		}
		for j := range wantPos {
			if math.Abs(sc.Position[j]-wantPos[j]) > 1e-12 {
				t.Errorf("(%d,%d) position weight %d = %g; want %g", y, x, j, sc.Position[j], wantPos[j])
			}
		}
		if got := sc.Aggregate(); math.Abs(got-want) > 1e-12 {
			t.Errorf("(%d,%d) aggregate %g; want %g", y, x, got, want)
		}
	}

	dst := constPlane(0, width, height, Zero)
	DenoisePlane(dst, src, ref, c, NewScratch(c))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			want, _, _ := referenceFilter(src, ref, y, x, c.A, c.S, c.H, c.H2)
			if got := float64(dst.At(y, x)); math.Abs(got-want) > 1e-6 {
				t.Errorf("dst(%d,%d)=%g; want %g", y, x, got, want)
			}
		}
	}
}

func TestPixelLoopDoesNotAllocate(t *testing.T) {
	rng := fastrand.RNG{}
	p := randomPlane(&rng, 9, 9)
	c := mustConfig(t, 2, 2, unitH, unitH)
	sc := NewScratch(c)

	allocs := testing.AllocsPerRun(50, func() {
		sc.Build(p, p, 4, 4)
		sc.PatchWeights(c.H)
		sc.PositionWeights(c.H2)
		sc.Aggregate()
	})
	if allocs != 0 {
		t.Errorf("%g allocations per pixel; want 0", allocs)
	}
}

// Bandwidths so small that their square underflows to zero are accepted,
// and turn every output sample into NaN via 0/0 in the weights
func TestUnderflowingBandwidthYieldsNaN(t *testing.T) {
	rng := fastrand.RNG{}
	src := randomPlane(&rng, 5, 4)
	for _, hh := range [][2]float64{{1e-200, unitH}, {unitH, 1e-200}} {
		c := mustConfig(t, 1, 1, hh[0], hh[1])
		dst := constPlane(0, 5, 4, Zero)
		DenoisePlane(dst, src, src, c, NewScratch(c))
		for i, v := range dst.Data {
			if !math.IsNaN(float64(v)) {
				t.Errorf("h=%g h2=%g: dst[%d]=%g; want NaN", hh[0], hh[1], i, v)
			}
		}
	}
}
