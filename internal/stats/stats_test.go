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
	"testing"

	"github.com/valyala/fastrand"
)

// random permutation of 1..n
func permutation(rng *fastrand.RNG, n int) []float32 {
	arr := make([]float32, n)
	for j := range arr {
		arr[j] = float32(j + 1)
	}
	for j := range arr {
		k := rng.Uint32n(uint32(len(arr)))
		arr[j], arr[k] = arr[k], arr[j]
	}
	return arr
}

func TestMedian(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 1; i < 1000; i++ {
		arr := permutation(&rng, i)

		// upper median for even lengths
		expect := float32(i/2 + 1)
		if (i & 1) != 0 {
			expect = float32((i + 1) / 2)
		}

		res := QSelectMedianFloat32(arr)
		if res != expect {
			t.Errorf("median(1..%d) got %f expect %f", i, res, expect)
		}
	}
}

func TestSelect(t *testing.T) {
	rng := fastrand.RNG{}
	for n := 1; n < 100; n++ {
		for k := 1; k <= n; k++ {
			arr := permutation(&rng, n)
			if res := QSelectFloat32(arr, k); res != float32(k) {
				t.Errorf("select(1..%d, %d) got %f", n, k, res)
			}
		}
	}
}

func TestMedianMAD(t *testing.T) {
	data := []float32{1, 2, 3, 4, 100}
	median, mad := MedianMAD(data)
	if median != 3 {
		t.Errorf("median got %f expect 3", median)
	}
	// absolute deviations 2,1,0,1,97 have median 1
	if math.Abs(float64(mad-1.4826)) > 1e-6 {
		t.Errorf("mad got %f expect 1.4826", mad)
	}
}

func TestFastApproxMedianOfConstant(t *testing.T) {
	data := make([]float32, 10000)
	for i := range data {
		data[i] = 0.25
	}
	samples := make([]float32, 101)
	if m := FastApproxMedian(data, samples); m != 0.25 {
		t.Errorf("median got %f expect 0.25", m)
	}
	if mad := FastApproxMAD(data, 0.25, samples); mad != 0 {
		t.Errorf("mad got %f expect 0", mad)
	}
}

func TestNoiseOfRamp(t *testing.T) {
	// the estimator kernel annihilates planes that are linear in x and y
	width, height := 17, 11
	data := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			data[y*width+x] = float32(10*y + x)
		}
	}
	if n := EstimateNoise(data, width); n != 0 {
		t.Errorf("noise of ramp got %g expect 0", n)
	}
}

func TestNoiseOfSmallPlane(t *testing.T) {
	if n := EstimateNoise([]float32{1, 2, 3, 4}, 2); n != 0 {
		t.Errorf("noise of 2x2 plane got %g expect 0", n)
	}
	if n := EstimateNoise([]float32{1, 2, 3, 4, 5, 6}, 3); n != 0 {
		t.Errorf("noise of 3x2 plane got %g expect 0", n)
	}
}

func TestNoiseGrowsWithAmplitude(t *testing.T) {
	rng := fastrand.RNG{}
	width, height := 64, 64
	low, high := make([]float32, width*height), make([]float32, width*height)
	for i := range low {
		r := float32(rng.Uint32n(1000))/1000 - 0.5
		low[i], high[i] = 0.5+0.01*r, 0.5+0.1*r
	}
	nl, nh := EstimateNoise(low, width), EstimateNoise(high, width)
	if !(nl > 0) || !(nh > 5*nl) {
		t.Errorf("noise low %g high %g, expected high about ten times low", nl, nh)
	}
}

func TestStats(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	s := NewStats(data, 3)
	if s.Min != 1 || s.Max != 9 || s.Mean != 5 || s.Location != 5 {
		t.Errorf("got %v", s)
	}
	if math.Abs(float64(s.StdDev)-math.Sqrt(60.0/9.0)) > 1e-6 {
		t.Errorf("stddev got %f", s.StdDev)
	}
	if s.Noise != 0 {
		t.Errorf("noise of ramp got %g expect 0", s.Noise)
	}
	if s.NonFinite != 0 {
		t.Errorf("non-finite got %d expect 0", s.NonFinite)
	}
	// data must be left untouched
	for i, d := range data {
		if d != float32(i+1) {
			t.Errorf("data[%d] modified to %f", i, d)
		}
	}
}

func TestStatsSkipNonFinite(t *testing.T) {
	nan, inf := float32(math.NaN()), float32(math.Inf(1))
	s := NewStats([]float32{nan, 1, inf, 3}, 2)
	if s.NonFinite != 2 {
		t.Errorf("non-finite got %d expect 2", s.NonFinite)
	}
	if s.Min != 1 || s.Max != 3 || s.Mean != 2 {
		t.Errorf("got %v", s)
	}
	if !math.IsNaN(float64(s.Noise)) {
		t.Errorf("noise got %g expect NaN", s.Noise)
	}

	s = NewStats([]float32{nan, nan}, 2)
	if !math.IsNaN(float64(s.Mean)) || s.NonFinite != 2 {
		t.Errorf("all NaN got %v", s)
	}
}

func TestHistogram(t *testing.T) {
	bins := make([]int32, 5)
	Histogram([]float32{0, 0.1, 0.5, 1, 1, float32(math.NaN())}, 0, 1, bins)
	expect := []int32{2, 0, 1, 0, 2}
	for i := range bins {
		if bins[i] != expect[i] {
			t.Errorf("bin %d got %d expect %d", i, bins[i], expect[i])
		}
	}
}

func TestFitHistogram(t *testing.T) {
	// triangular distribution peaking at 0.5
	var data []float32
	for i := 0; i <= 100; i++ {
		count := 50 - int(math.Abs(float64(i-50)))
		for j := 0; j < count; j++ {
			data = append(data, float32(i)/100)
		}
	}
	s := NewStats(data, 101)
	mode, stdDev, err := s.FitHistogram(data, 50)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(mode)-0.5) > 0.03 {
		t.Errorf("mode got %f expect 0.5", mode)
	}
	if !(stdDev > 0.1 && stdDev < 0.3) {
		t.Errorf("stddev got %f", stdDev)
	}
}
