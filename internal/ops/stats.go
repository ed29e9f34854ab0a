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

package ops

import (
	"encoding/json"
	"fmt"

	"github.com/mlnoga/patchweight/internal/fits"
)

// Logs per-plane statistics of each image. Takes n inputs, produces the same n outputs
type OpStats struct {
	OpUnaryBase
	Bins int `json:"bins"` // if >1, also fit a normal distribution to a histogram with this many bins
}

func init() { SetOperatorFactory(func() Operator { return NewOpStatsDefault() }) } // register the operator for JSON decoding

func NewOpStatsDefault() *OpStats { return NewOpStats(0) }

func NewOpStats(bins int) *OpStats {
	op := &OpStats{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "stats", Active: true}},
		Bins:        bins,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStats) UnmarshalJSON(data []byte) error {
	type defaults OpStats
	def := defaults(*NewOpStatsDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpStats(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpStats) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	for i, s := range f.PlaneStats() {
		fmt.Fprintf(c.Log, "%d: Plane %d %v\n", f.ID, i, s)
		if op.Bins > 1 {
			mode, stdDev, err := s.FitHistogram(f.Plane(i), op.Bins)
			if err != nil {
				fmt.Fprintf(c.Log, "%d: Plane %d histogram fit failed: %s\n", f.ID, i, err.Error())
				continue
			}
			fmt.Fprintf(c.Log, "%d: Plane %d histogram mode %.6g stddev %.6g\n", f.ID, i, mode, stdDev)
		}
	}
	return f, nil
}
