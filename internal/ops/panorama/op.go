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


package panorama

import (
	"encoding/json"
	"fmt"

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/ops"
	"github.com/mlnoga/xslit/internal/ops/motion"
)

// Creates a single x-slit panorama from a frame sequence, using the motion on the context
// as set by the motion operator. Takes n inputs, produces one output
type OpPanorama struct {
	ops.OpBase
	Slice
	MoveFrames  int      `json:"moveFrames"`      // Shift applied to both frame ends
	MoveColumns int      `json:"moveColumns"`     // Shift applied to both column ends
	Angle       *float64 `json:"angle,omitempty"` // If set, rotates the moved slice by this many degrees
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpPanoramaDefault() }) } // register the operator for JSON decoding

func NewOpPanoramaDefault() *OpPanorama { return NewOpPanorama(Slice{}) }

func NewOpPanorama(s Slice) *OpPanorama {
	return &OpPanorama{
		OpBase: ops.OpBase{Type: "panorama", Active: true},
		Slice:  s,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpPanorama) UnmarshalJSON(data []byte) error {
	type defaults OpPanorama
	def := defaults(*NewOpPanoramaDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpPanorama(def)
	return nil
}

// Returns the slice after applying moves and rotation, for frames of the given width
func (op *OpPanorama) Effective(width int) (Slice, error) {
	s := op.Slice.Move(op.MoveFrames, op.MoveColumns)
	if op.Angle == nil {
		return s, nil
	}
	return Rotate(s, *op.Angle, width)
}

func (op *OpPanorama) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
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

func (op *OpPanorama) Apply(fs []*frame.Image, c *ops.Context) (*frame.Image, error) {
	if len(fs) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrInvalidSliceBounds)
	}
	if len(c.Pairwise) == 0 {
		return nil, motion.ErrMotionNotComputed
	}
	s, err := op.Effective(fs[0].Width())
	if err != nil {
		return nil, err
	}
	res, err := Create(fs, c.Pairwise, s)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Panorama %s of size %s\n", res.ID, s.Tag(), res.DimensionsToString())
	return res, nil
}

// Creates a sweep of x-slit panoramas from a frame sequence, using the motion on the context.
// Takes n inputs, produces one output per slice of the sweep
type OpSweep struct {
	ops.OpBase
	Slice
	Mode SweepMode `json:"mode"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpSweepDefault() }) } // register the operator for JSON decoding

func NewOpSweepDefault() *OpSweep { return NewOpSweep(Slice{}, SweepFrames) }

func NewOpSweep(s Slice, mode SweepMode) *OpSweep {
	return &OpSweep{
		OpBase: ops.OpBase{Type: "sweep", Active: true},
		Slice:  s,
		Mode:   mode,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSweep) UnmarshalJSON(data []byte) error {
	type defaults OpSweep
	def := defaults(*NewOpSweepDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpSweep(def)
	return nil
}

// The number of slit sweeps depends on the frame width, so that mode materializes the inputs right away
func (op *OpSweep) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%s operator needs inputs", op.Type)
	}
	load := ops.MaterializeOnce(ins, c.MaxThreads)
	width := 0
	if op.Mode == SweepSlits {
		fs, err := load()
		if err != nil {
			return nil, err
		}
		if len(fs) == 0 {
			return nil, fmt.Errorf("%w: no frames", ErrInvalidSliceBounds)
		}
		width = fs[0].Width()
	}

	reqs := Requests(op.Slice, op.Mode, len(ins), width)
	outs = make([]ops.Promise, len(reqs))
	for i, s := range reqs {
		s := s
		outs[i] = func() (*frame.Image, error) {
			fs, err := load()
			if err != nil {
				return nil, err
			}
			if len(c.Pairwise) == 0 {
				return nil, motion.ErrMotionNotComputed
			}
			res, err := Create(fs, c.Pairwise, s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", s.Tag(), err)
			}
			return res, nil
		}
	}
	fmt.Fprintf(c.Log, "Sweep in mode %s with %d panoramas\n", op.Mode, len(outs))
	return outs, nil
}
