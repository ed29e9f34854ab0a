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
	"fmt"
	"math"
)

// Number of samples for approximate location and scale estimation
const NumSamples = 64 * 1024

// Basic statistics on a plane. Min, Max, Mean, StdDev, Location and Scale
// cover the finite samples only; NonFinite counts the rest.
type Stats struct {
	Min       float32
	Max       float32
	Mean      float32
	StdDev    float32
	Location  float32 // median, sampled for large planes
	Scale     float32 // MAD normalized to a Gaussian sigma, sampled for large planes
	Noise     float32 // Immerkær noise estimate
	NonFinite int
}

// Calculates statistics for a plane of the given width
func NewStats(data []float32, width int) *Stats {
	s := &Stats{}
	min, max, sum, n := float32(math.MaxFloat32), float32(-math.MaxFloat32), float64(0), 0
	for _, d := range data {
		if math.IsNaN(float64(d)) || math.IsInf(float64(d), 0) {
			s.NonFinite++
			continue
		}
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
		sum += float64(d)
		n++
	}
	if n == 0 {
		nan := float32(math.NaN())
		s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Scale, s.Noise = nan, nan, nan, nan, nan, nan, nan
		return s
	}
	mean := sum / float64(n)
	s.Min, s.Max, s.Mean = min, max, float32(mean)

	variance := float64(0)
	for _, d := range data {
		if math.IsNaN(float64(d)) || math.IsInf(float64(d), 0) {
			continue
		}
		diff := float64(d) - mean
		variance += diff * diff
	}
	s.StdDev = float32(math.Sqrt(variance / float64(n)))

	if s.NonFinite == 0 && len(data) > NumSamples {
		samples := make([]float32, NumSamples)
		s.Location = FastApproxMedian(data, samples)
		s.Scale = FastApproxMAD(data, s.Location, samples)
	} else {
		finite := make([]float32, 0, n)
		for _, d := range data {
			if !math.IsNaN(float64(d)) && !math.IsInf(float64(d), 0) {
				finite = append(finite, d)
			}
		}
		s.Location, s.Scale = MedianMAD(finite)
	}

	if s.NonFinite == 0 {
		s.Noise = EstimateNoise(data, width)
	} else {
		s.Noise = float32(math.NaN())
	}
	return s
}

// Pretty print stats to string
func (s *Stats) String() string {
	str := fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Location %.6g Scale %.6g Noise %.4g",
		s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Scale, s.Noise)
	if s.NonFinite > 0 {
		str += fmt.Sprintf(" NonFinite %d", s.NonFinite)
	}
	return str
}

// CSV header matching ToCSVLine
func (s *Stats) ToCSVHeader() string {
	return "Min,Max,Mean,StdDev,Location,Scale,Noise,NonFinite"
}

// Pretty print stats to CSV line item
func (s *Stats) ToCSVLine() string {
	return fmt.Sprintf("%.6g,%.6g,%.6g,%.6g,%.6g,%.6g,%.4g,%d",
		s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Scale, s.Noise, s.NonFinite)
}

// Fits a normal distribution to a histogram of the data with the given number of bins
// between Min and Max, and returns its mode and standard deviation
func (s *Stats) FitHistogram(data []float32, numBins int) (mode, stdDev float32, err error) {
	if numBins < 2 {
		return 0, 0, fmt.Errorf("histogram with %d bins", numBins)
	}
	if !(s.Max > s.Min) {
		return s.Min, 0, nil
	}
	bins := make([]int32, numBins)
	Histogram(data, s.Min, s.Max, bins)
	return GetModeStdDevFromHistogram(bins, s.Min, s.Max, s.Scale)
}
