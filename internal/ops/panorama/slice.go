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
	"errors"
	"fmt"
)

var ErrInvalidSliceBounds = errors.New("invalid slice bounds")
var ErrDegenerateGeometry = errors.New("illegal panorama")
var ErrInvalidRotation = errors.New("rotation angle outside [-90, 90] degrees")

// A slice through the space-time volume of a frame sequence. The panorama starts
// at StartColumn of StartFrame and ends at EndColumn of EndFrame. Columns may
// descend, selecting the big-start branch
type Slice struct {
	StartFrame  int `json:"startFrame"`
	EndFrame    int `json:"endFrame"`
	StartColumn int `json:"startColumn"`
	EndColumn   int `json:"endColumn"`
}

// Returns a tag identifying the slice, for use in file names
func (s Slice) Tag() string {
	return fmt.Sprintf("frames%d-%d_cols%d-%d", s.StartFrame, s.EndFrame, s.StartColumn, s.EndColumn)
}

func (s Slice) String() string { return s.Tag() }

// Shifts both ends of the slice by the given number of frames and columns
func (s Slice) Move(dFrames, dCols int) Slice {
	return Slice{
		StartFrame:  s.StartFrame + dFrames,
		EndFrame:    s.EndFrame + dFrames,
		StartColumn: s.StartColumn + dCols,
		EndColumn:   s.EndColumn + dCols,
	}
}

// Returns true if the columns of the slice ascend or stay constant
func (s Slice) SmallStart() bool { return s.StartColumn <= s.EndColumn }

// Checks the slice against a sequence of numFrames frames of the given width
func (s Slice) Validate(numFrames, width int) error {
	if s.StartFrame < 0 || s.StartFrame > s.EndFrame || s.EndFrame >= numFrames {
		return fmt.Errorf("%w: frames %d-%d of %d", ErrInvalidSliceBounds, s.StartFrame, s.EndFrame, numFrames)
	}
	if s.StartColumn < 0 || s.StartColumn > width || s.EndColumn < 0 || s.EndColumn > width {
		return fmt.Errorf("%w: columns %d-%d of width %d", ErrInvalidSliceBounds, s.StartColumn, s.EndColumn, width)
	}
	return nil
}
