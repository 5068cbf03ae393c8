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
	"fmt"
	"math"
)

// Rotates the virtual camera of the base slice by the given angle in degrees, for frames
// of the given width. Up to 45 degrees the frame range stays fixed and the column window
// opens around the center of the frame. Beyond, the full column range is used and the
// frame range shrinks around its center. Negative angles descend through the columns
func Rotate(base Slice, angle float64, width int) (Slice, error) {
	numFrames := float64(base.EndFrame - base.StartFrame)
	switch {
	case math.Abs(angle) <= 45:
		change := int(math.Floor(angle * float64(width) / 90))
		return Slice{
			StartFrame:  base.StartFrame,
			EndFrame:    base.EndFrame,
			StartColumn: width/2 - change,
			EndColumn:   width/2 + change,
		}, nil

	case angle > 45 && angle <= 90:
		change := int(math.Floor(numFrames * (angle - 45) / 90))
		return Slice{base.StartFrame + change, base.EndFrame - change, 0, width - 1}, nil

	case angle >= -90 && angle < -45:
		change := int(math.Floor(numFrames * (-angle - 45) / 90))
		return Slice{base.StartFrame + change, base.EndFrame - change, width - 1, 0}, nil
	}
	return Slice{}, fmt.Errorf("%w: %g", ErrInvalidRotation, angle)
}
