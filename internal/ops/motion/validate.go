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
	"errors"
	"fmt"

	"github.com/mlnoga/xslit/internal/frame"
)

// Checks the dominant horizontal motion over the leading pairs of the sequence, using translation-only
// estimates. If the frames move right to left, reverses them in place and returns true.
// Must complete before frames are read elsewhere
func ValidateDirection(frames []*frame.Image, e *Estimator, seed uint32) (reversed bool, err error) {
	if len(frames) < 2 {
		return false, fmt.Errorf("%w: need at least two frames, have %d", ErrMotionNotComputed, len(frames))
	}
	k := len(frames) / 10
	if k < 1 {
		k = 1
	}

	te := *e
	te.Ransac.TranslationOnly = true
	sum, ok := 0.0, 0
	var errs []error
	for i := 0; i < k; i++ {
		r, err := te.EstimatePair(frames[i+1], frames[i], PairSource(seed, i))
		if err != nil {
			errs = append(errs, fmt.Errorf("pair %d: %w", i, err))
			continue
		}
		sum += r.H.Tx()
		ok++
	}
	if ok == 0 {
		return false, fmt.Errorf("validating motion direction: %w", errors.Join(errs...))
	}
	if sum < 0 {
		frame.Reverse(frames)
		return true, nil
	}
	return false, nil
}
