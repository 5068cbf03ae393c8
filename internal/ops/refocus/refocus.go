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


package refocus

import (
	"fmt"

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/ops"
	"github.com/mlnoga/xslit/internal/ops/stack"
	"github.com/mlnoga/xslit/internal/ops/warp"
)

// Synthetic refocusing parameters. Frame i of the aligned stack is shifted by (Dx*(i+1), Dy*(i+1)) before stacking
type Params struct {
	Dx   float64         `json:"dx"   yaml:"dx"`
	Dy   float64         `json:"dy"   yaml:"dy"`
	Mode stack.StackMode `json:"mode" yaml:"mode"`
}

// Output tag naming the parameters
func (p Params) Tag() string {
	return fmt.Sprintf("refocus_dx%g_dy%g_%s", p.Dx, p.Dy, p.Mode)
}

// Nudge step of the interactive refocusing controls
const NudgeStep = 0.5

type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// Returns the parameters with the offset on the given axis changed by amount
func (p Params) Nudge(axis Axis, amount float64) Params {
	if axis == AxisX {
		p.Dx += amount
	} else {
		p.Dy += amount
	}
	return p
}

// Composes a refocused image from an aligned stack. Without offset, the stack is reduced directly.
// The result is truncated to integer display values
func Compose(aligned []*frame.Image, p Params, c *ops.Context) (*frame.Image, error) {
	if len(aligned) == 0 {
		return nil, fmt.Errorf("no frames to refocus")
	}
	shifted := aligned
	if p.Dx != 0 || p.Dy != 0 {
		shifted = make([]*frame.Image, len(aligned))
		for i, f := range aligned {
			s, err := warp.Translate(f, p.Dx*float64(i+1), p.Dy*float64(i+1))
			if err != nil {
				return nil, err
			}
			shifted[i] = s
		}
	}

	res, err := stack.Stack(shifted, p.Mode, c)
	if err != nil {
		return nil, err
	}
	res.QuantizeInPlace()
	res.Tag = p.Tag()
	fmt.Fprintf(c.Log, "Refocused %d frames with dx=%g dy=%g mode %s\n", len(aligned), p.Dx, p.Dy, p.Mode)
	return res, nil
}

// Fails if a stack of n frames like f would not fit into the context's stacking memory budget
func checkMemory(f *frame.Image, n int, c *ops.Context) error {
	if c.StackMemoryMB <= 0 {
		return nil
	}
	needMB := int64(n) * int64(f.Pixels) * 4 / 1024 / 1024
	if needMB > int64(c.StackMemoryMB) {
		return fmt.Errorf("aligned stack of %d %s frames needs %d MB, exceeding the %d MB stacking budget",
			n, f.DimensionsToString(), needMB, c.StackMemoryMB)
	}
	return nil
}
