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

	"github.com/mlnoga/xslit/internal/geom"
)

var ErrMotionNotComputed = errors.New("motion not computed")
var ErrInvalidReference = errors.New("invalid reference frame")

// Default reference for a sequence of n frames: the frame just before the middle
func DefaultReference(n int) int {
	if m := n/2 - 1; m > 0 {
		return m
	}
	return 0
}

// Chains pairwise transforms into per-frame transforms relative to reference frame m.
// pairwise[i] maps frame i+1 onto frame i. The result maps each frame onto the reference, with result[m] the identity
func Accumulate(pairwise []geom.Homography, m int) ([]geom.Homography, error) {
	if len(pairwise) == 0 {
		return nil, ErrMotionNotComputed
	}
	n := len(pairwise) + 1
	if m < 0 || m >= n {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidReference, m, n)
	}

	acc := make([]geom.Homography, n)
	acc[m] = geom.Identity()
	for i := m - 1; i >= 0; i-- {
		inv, err := pairwise[i].Inverse()
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		acc[i] = acc[i+1].Mul(inv).Normalize()
	}
	for i := m; i < n-1; i++ {
		acc[i+1] = acc[i].Mul(pairwise[i]).Normalize()
	}
	return acc, nil
}

// Derives pairwise transforms from accumulated ones, inverting Accumulate
func Pairwise(acc []geom.Homography) ([]geom.Homography, error) {
	if len(acc) < 2 {
		return nil, ErrMotionNotComputed
	}
	pw := make([]geom.Homography, len(acc)-1)
	for i := range pw {
		inv, err := acc[i].Inverse()
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		pw[i] = inv.Mul(acc[i+1]).Normalize()
	}
	return pw, nil
}
