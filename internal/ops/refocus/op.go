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
	"encoding/json"
	"fmt"

	"github.com/mlnoga/xslit/internal/features"
	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/ops"
	"github.com/mlnoga/xslit/internal/ops/motion"
	"github.com/mlnoga/xslit/internal/ops/warp"
)

// Refocuses a frame sequence. Without a region, uses the motion on the context, as set by the motion operator.
// Takes n inputs, produces one output
type OpRefocus struct {
	ops.OpBase
	Params
	Fill      string           `json:"fill"`      // Out of bounds fill, "zero" or "mean"
	Reference int              `json:"reference"` // Reference frame. Negative selects the motion operator's choice
	Region    *features.Region `json:"region"`    // If set, focus on this region instead of applying offsets
	RegionP   RegionParams     `json:"regionParams"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpRefocusDefault() }) } // register the operator for JSON decoding

func NewOpRefocusDefault() *OpRefocus { return NewOpRefocus(Params{}) }

func NewOpRefocus(p Params) *OpRefocus {
	return &OpRefocus{
		OpBase:    ops.OpBase{Type: "refocus", Active: true},
		Params:    p,
		Fill:      "zero",
		Reference: -1,
		RegionP:   DefaultRegionParams(),
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpRefocus) UnmarshalJSON(data []byte) error {
	type defaults OpRefocus
	def := defaults(*NewOpRefocusDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpRefocus(def)
	return nil
}

func (op *OpRefocus) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%s operator needs inputs", op.Type)
	}
	out := func() (*frame.Image, error) {
		fs, err := ops.MaterializeAll(ins, c.MaxThreads, false) // materialize all input promises
		if err != nil {
			return nil, err
		}
		return op.Apply(fs, c)
	}
	return []ops.Promise{out}, nil
}

func (op *OpRefocus) Apply(fs []*frame.Image, c *ops.Context) (*frame.Image, error) {
	fill, err := warp.ParseFillMode(op.Fill)
	if err != nil {
		return nil, err
	}
	ref := op.Reference
	if ref < 0 {
		ref = c.Reference
	}
	if op.Region != nil {
		rp := op.RegionP
		rp.Fill, rp.Mode = fill, op.Mode
		return FocusOnRegion(fs, ref, *op.Region, rp, c)
	}
	if len(c.Pairwise) == 0 {
		return nil, motion.ErrMotionNotComputed
	}
	s, err := NewSession(fs, c.Pairwise, ref, fill, c)
	if err != nil {
		return nil, err
	}
	return s.Refocus(op.Params)
}
