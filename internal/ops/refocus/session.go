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
	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/geom"
	"github.com/mlnoga/xslit/internal/ops"
	"github.com/mlnoga/xslit/internal/ops/motion"
	"github.com/mlnoga/xslit/internal/ops/warp"
)

// A refocusing session over one frame sequence. The aligned stack is built once, each Refocus call
// returns a new composite. Safe for concurrent use, as nothing is modified after construction
type Session struct {
	frames   []*frame.Image
	pairwise []geom.Homography
	ref      int
	aligned  []*frame.Image
	c        *ops.Context
}

// Aligns the frames to the reference frame using the pairwise motion. A negative reference selects the default
func NewSession(frames []*frame.Image, pairwise []geom.Homography, ref int, fill warp.FillMode, c *ops.Context) (*Session, error) {
	if ref < 0 {
		ref = motion.DefaultReference(len(frames))
	}
	acc, err := motion.Accumulate(pairwise, ref)
	if err != nil {
		return nil, err
	}
	if len(frames) > 0 {
		if err := checkMemory(frames[0], 2*len(frames), c); err != nil {
			return nil, err
		}
	}
	aligned, err := warp.AlignAll(frames, acc, ref, fill, c)
	if err != nil {
		return nil, err
	}
	return &Session{frames: frames, pairwise: pairwise, ref: ref, aligned: aligned, c: c}, nil
}

func (s *Session) Reference() int              { return s.ref }
func (s *Session) Aligned() []*frame.Image     { return s.aligned }
func (s *Session) Pairwise() []geom.Homography { return s.pairwise }

// Composes a refocused image with the given parameters
func (s *Session) Refocus(p Params) (*frame.Image, error) {
	return Compose(s.aligned, p, s.c)
}
