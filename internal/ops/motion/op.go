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


package motion

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/geom"
	"github.com/mlnoga/xslit/internal/ops"
)

// Establishes the pairwise motion of a frame sequence: validates the direction, then loads persisted
// motion or computes and persists it. Takes n inputs, produces the same n frames in validated order,
// and sets the motion on the context once they are materialized
type OpMotion struct {
	ops.OpBase
	Params
	MotionDir string `json:"motionDir"` // Directory for persisted motion files. No persistence if empty
	Sequence  string `json:"sequence"`  // Name of the sequence. Defaults to the directory name of the first frame
	Validate  bool   `json:"validate"`  // Check motion direction and reverse the sequence if needed
	Recompute bool   `json:"recompute"` // Ignore persisted motion
	Reference int    `json:"reference"` // Reference frame. Negative selects the default

	// Outcome, available after materialization
	Reversed bool          `json:"-"`
	Failed   []PairFailure `json:"-"`
	Loaded   bool          `json:"-"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpMotionDefault() }) } // register the operator for JSON decoding

func NewOpMotionDefault() *OpMotion { return NewOpMotion(DefaultParams(), "") }

func NewOpMotion(p Params, motionDir string) *OpMotion {
	return &OpMotion{
		OpBase:    ops.OpBase{Type: "motion", Active: true},
		Params:    p,
		MotionDir: motionDir,
		Validate:  true,
		Reference: -1,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpMotion) UnmarshalJSON(data []byte) error {
	type defaults OpMotion
	def := defaults(*NewOpMotionDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpMotion(def)
	return nil
}

func (op *OpMotion) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if len(ins) < 2 {
		return nil, fmt.Errorf("%s operator needs at least two inputs, have %d", op.Type, len(ins))
	}
	var once sync.Once
	var fs []*frame.Image
	var applyErr error
	applied := func() ([]*frame.Image, error) {
		once.Do(func() {
			fs, applyErr = ops.MaterializeAll(ins, c.MaxThreads, false)
			if applyErr == nil {
				applyErr = op.Apply(fs, c)
			}
		})
		return fs, applyErr
	}

	outs = make([]ops.Promise, len(ins))
	for i := range outs {
		i := i
		outs[i] = func() (*frame.Image, error) {
			fs, err := applied()
			if err != nil {
				return nil, err
			}
			return fs[i], nil
		}
	}
	return outs, nil
}

// Validates direction, then loads or computes the motion of the given frames and stores it on the context
func (op *OpMotion) Apply(frames []*frame.Image, c *ops.Context) error {
	e, err := NewEstimator(op.Params)
	if err != nil {
		return err
	}
	if op.Validate {
		reversed, err := ValidateDirection(frames, e, op.Seed)
		if err != nil {
			return err
		}
		op.Reversed = reversed
		if reversed {
			fmt.Fprintf(c.Log, "Motion runs right to left, reversed the sequence of %d frames.\n", len(frames))
		}
	}

	pw, err := op.loadOrCompute(frames, e, c)
	if err != nil {
		return err
	}
	ref := op.Reference
	if ref < 0 {
		ref = DefaultReference(len(frames))
	}
	if ref >= len(frames) {
		return fmt.Errorf("%w: %d for %d frames", ErrInvalidReference, ref, len(frames))
	}
	c.Pairwise, c.Reference = pw, ref
	return nil
}

func (op *OpMotion) loadOrCompute(frames []*frame.Image, e *Estimator, c *ops.Context) ([]geom.Homography, error) {
	fileName := ""
	if op.MotionDir != "" {
		seq := op.Sequence
		if seq == "" {
			seq = SequenceName(frames)
		}
		fileName = FileName(op.MotionDir, seq)
		if !op.Recompute {
			pw, err := LoadFile(fileName, len(frames))
			if err == nil {
				fmt.Fprintf(c.Log, "Loaded motion for %d pairs from %s\n", len(pw), fileName)
				op.Loaded = true
				return pw, nil
			}
			if !NeedsRecompute(err) {
				return nil, err
			}
			fmt.Fprintf(c.Log, "Recomputing motion: %s\n", err.Error())
		}
	}

	res, err := Compute(frames, e, op.Seed, c)
	if err != nil {
		return nil, err
	}
	op.Failed = res.Failed
	if !res.Complete() {
		fmt.Fprintf(c.Log, "Motion failed for %d of %d pairs, not persisting\n", len(res.Failed), len(res.Pairwise))
	} else if fileName != "" {
		if err := SaveFile(fileName, res.Pairwise); err != nil {
			return nil, err
		}
		fmt.Fprintf(c.Log, "Saved motion for %d pairs to %s\n", len(res.Pairwise), fileName)
	}
	return res.Pairwise, nil
}

// Name of the sequence the frames belong to: the directory name of the first frame
func SequenceName(frames []*frame.Image) string {
	if len(frames) == 0 || frames[0].FileName == "" {
		return "sequence"
	}
	return filepath.Base(filepath.Dir(frames[0].FileName))
}
