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
	"fmt"
	"math"
)

// Bandwidths given by the user are divided by this constant before use
const ScalingFactor = 79.636080791869483631941455867052

// Default parameters
const (
	DefaultA = 8   // search radius
	DefaultS = 8   // patch radius
	DefaultH = 1.6 // bandwidth, before scaling
)

// Maximum number of color planes in a frame
const MaxPlanes = 3

var (
	ErrFormat               = errors.New("only single precision floating point frames with constant format and non-zero dimensions supported")
	ErrPlaneIndexOutOfRange = errors.New("plane index out of range")
	ErrDuplicatePlane       = errors.New("plane specified twice")
	ErrInvalidParameter     = errors.New("invalid parameter")
)

// Immutable filter parameters for one invocation. Build with NewConfig.
type Config struct {
	A         int             // search radius, search window side is 2A+1
	S         int             // patch radius, patch side is 2S+1
	H         float64         // patch-level bandwidth, already divided by ScalingFactor
	H2        float64         // position-level bandwidth, already divided by ScalingFactor
	NumPlanes int             // number of planes of the frames this configuration applies to
	Process   [MaxPlanes]bool // which planes to denoise; others pass through
}

// Creates a validated configuration. Bandwidths h and h2 are given in user units
// and get divided by ScalingFactor. An empty planes list selects all numPlanes planes.
func NewConfig(a, s int, h, h2 float64, planes []int, numPlanes int) (*Config, error) {
	if a < 0 {
		return nil, fmt.Errorf("search radius a=%d: %w", a, ErrInvalidParameter)
	}
	if s < 0 {
		return nil, fmt.Errorf("patch radius s=%d: %w", s, ErrInvalidParameter)
	}
	if !(h > 0) || math.IsInf(h, 0) {
		return nil, fmt.Errorf("bandwidth h=%g: %w", h, ErrInvalidParameter)
	}
	if !(h2 > 0) || math.IsInf(h2, 0) {
		return nil, fmt.Errorf("bandwidth h2=%g: %w", h2, ErrInvalidParameter)
	}
	if numPlanes < 1 || numPlanes > MaxPlanes {
		return nil, fmt.Errorf("%d planes: %w", numPlanes, ErrFormat)
	}

	c := &Config{A: a, S: s, H: h / ScalingFactor, H2: h2 / ScalingFactor, NumPlanes: numPlanes}
	if err := c.selectPlanes(planes, numPlanes); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) selectPlanes(planes []int, numPlanes int) error {
	for i := range c.Process {
		c.Process[i] = len(planes) == 0 && i < numPlanes
	}
	for _, p := range planes {
		if p < 0 || p >= numPlanes {
			return fmt.Errorf("plane %d of %d: %w", p, numPlanes, ErrPlaneIndexOutOfRange)
		}
		if c.Process[p] {
			return fmt.Errorf("plane %d: %w", p, ErrDuplicatePlane)
		}
		c.Process[p] = true
	}
	return nil
}

// Number of candidate centers in the search window, (2A+1)^2
func (c *Config) SearchSize() int {
	side := 2*c.A + 1
	return side * side
}

// Number of samples in a patch, (2S+1)^2
func (c *Config) PatchSize() int {
	side := 2*c.S + 1
	return side * side
}

// Bytes of scratch memory one worker needs for this configuration
func (c *Config) ScratchBytes() int64 {
	ss, ps := int64(c.SearchSize()), int64(c.PatchSize())
	return 8 * (ss*ps + ss + 2*ps)
}

func (c *Config) String() string {
	return fmt.Sprintf("a=%d s=%d h=%.6g h2=%.6g planes=%v", c.A, c.S, c.H*ScalingFactor, c.H2*ScalingFactor, c.Process)
}

// Checks frame dimensions and plane count before any processing
func CheckFormat(width, height, numPlanes int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("dimensions %dx%d: %w", width, height, ErrFormat)
	}
	if numPlanes < 1 || numPlanes > MaxPlanes {
		return fmt.Errorf("%d planes: %w", numPlanes, ErrFormat)
	}
	return nil
}
