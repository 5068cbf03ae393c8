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

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/geom"
	"github.com/mlnoga/xslit/internal/ops/motion"
)

// Creates the x-slit panorama for the given slice, from the frames and the pairwise
// transforms between consecutive frames. Frames must be ordered left to right
func Create(frames []*frame.Image, pairwise []geom.Homography, s Slice) (*frame.Image, error) {
	if len(pairwise) == 0 {
		return nil, motion.ErrMotionNotComputed
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrInvalidSliceBounds)
	}
	if len(pairwise) != len(frames)-1 {
		return nil, fmt.Errorf("%w: %d transforms for %d frames", motion.ErrPersistenceMismatch, len(pairwise), len(frames))
	}
	if err := s.Validate(len(frames), frames[0].Width()); err != nil {
		return nil, err
	}
	for i := s.StartFrame; i <= s.EndFrame; i++ {
		if !frames[i].SameShape(frames[s.StartFrame]) {
			return nil, fmt.Errorf("frame %d has dimensions %s, expected %s", i,
				frames[i].DimensionsToString(), frames[s.StartFrame].DimensionsToString())
		}
	}

	m := Motion(pairwise)
	var res *frame.Image
	var err error
	if s.SmallStart() {
		res, err = smallStart(frames, m, s)
	} else {
		res, err = bigStart(frames, m, s)
	}
	if err != nil {
		return nil, err
	}
	if res.Width() == 0 {
		return nil, fmt.Errorf("%w: empty result for %s", ErrDegenerateGeometry, s.Tag())
	}
	first := frames[s.StartFrame]
	res.ID, res.FileName, res.Tag = first.ID, first.FileName, "panorama_"+s.Tag()
	return res, nil
}

// Motion parameters for panoramas: translation-only, since the x translation of a rigid fit
// absorbs the rotation about the centroid and skews the slab widths
func MotionParams(p motion.Params) motion.Params {
	p.Ransac.TranslationOnly = true
	return p
}

// Returns the horizontal motion of each pairwise transform, rounded half to even
func Motion(pairwise []geom.Homography) []int {
	m := make([]int, len(pairwise))
	for i, h := range pairwise {
		m[i] = int(math.RoundToEven(h.Tx()))
	}
	return m
}

// Partitions the column range [start, end] into n increments, returning the n+1
// running positions from start to end. The first remainder increments are one larger
func AddedMotion(start, end, n int) []int {
	pos := make([]int, n+1)
	pos[0] = start
	if n <= 0 {
		return pos
	}
	delta := end - start
	step, rem, sign := delta/n, delta%n, 1
	if rem < 0 {
		rem, sign = -rem, -1
	}
	for i := 0; i < n; i++ {
		inc := step
		if i < rem {
			inc += sign
		}
		pos[i+1] = pos[i] + inc
	}
	return pos
}

// Output image being filled slab by slab, left to right
type canvas struct {
	img *frame.Image
	col int
}

func newCanvas(proto *frame.Image, width int) (*canvas, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: width %d", ErrDegenerateGeometry, width)
	}
	naxisn := append([]int32(nil), proto.Naxisn...)
	naxisn[0] = int32(width)
	return &canvas{img: frame.NewImageFromNaxisn(naxisn, nil)}, nil
}

// Appends the column slab [start, end) of src
func (c *canvas) put(src *frame.Image, start, end int) error {
	if start < 0 || end > src.Width() || start > end || c.col+end-start > c.img.Width() {
		return fmt.Errorf("%w: slab [%d:%d] of frame %d at column %d of %d", ErrDegenerateGeometry,
			start, end, src.ID, c.col, c.img.Width())
	}
	c.img.CopyColumns(c.col, src, start, end)
	c.col += end - start
	return nil
}

// Appends one slab per frame pair, each as wide as the pair's motion and taken at
// column col, or flush with the right edge if it would overflow
func (c *canvas) slitLine(frames []*frame.Image, m []int, startFrame, endFrame, col int) error {
	for i := startFrame; i < endFrame; i++ {
		w := frames[i].Width()
		start := col
		if col+m[i] >= w {
			start = w - m[i]
		}
		if err := c.put(frames[i], start, start+m[i]); err != nil {
			return err
		}
	}
	return nil
}

func smallStart(frames []*frame.Image, m []int, s Slice) (*frame.Image, error) {
	sf, ef, sc, ec := s.StartFrame, s.EndFrame, s.StartColumn, s.EndColumn
	if sf == ef {
		return frames[sf].Columns(sc, ec)
	}
	width := frames[sf].Width()
	n := ef - sf + 1
	m0 := m[sf]
	c, err := newCanvas(frames[sf], sum(m[sf:ef])+ec-sc)
	if err != nil {
		return nil, err
	}

	switch {
	case sc == ec:
		err = c.slitLine(frames, m, sf, ef, sc)

	case ec-sc < m0:
		// first motion exceeds the column span: keep the span, then sweep a slit from its start
		if err = c.put(frames[sf], sc, ec); err == nil {
			err = c.slitLine(frames, m, sf, ef, sc)
		}

	default:
		pos := AddedMotion(sc+m0, ec, n)
		if err = c.put(frames[sf], pos[0]-m0, pos[1]); err != nil {
			break
		}
		for i := 1; i < n && err == nil; i++ {
			mi := m[sf+i-1]
			if pos[i+1]+mi <= width {
				err = c.put(frames[sf+i], pos[i], pos[i+1]+mi)
			} else {
				err = c.put(frames[sf+i], pos[i]-mi, pos[i+1])
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return c.img, nil
}

func bigStart(frames []*frame.Image, m []int, s Slice) (*frame.Image, error) {
	sf, ef, sc, ec := s.StartFrame, s.EndFrame, s.StartColumn, s.EndColumn
	if sf == ef {
		return frames[sf].Columns(ec, min(sc+1, frames[sf].Width()))
	}
	c, err := newCanvas(frames[sf], sum(m[sf:ef]))
	if err != nil {
		return nil, err
	}
	n := ef - sf + 1
	numCols := sc - ec + 1
	m0 := m[sf]
	curStart := sc - m0
	for i := 0; i < n-2; i++ {
		added := floorDiv(numCols-m0, n-2)
		if i < floorMod(numCols-m0, n-2) {
			added++
		}
		curEnd := curStart + m[sf+i+1] - added
		if curEnd < curStart {
			curStart, curEnd = curEnd, curStart
		}
		w := curEnd - curStart
		if curEnd > sc {
			curEnd, curStart = sc, sc-w
		}
		if curStart < ec {
			curStart, curEnd = ec, ec+w
		}
		if err := c.put(frames[sf+i], curStart, curEnd); err != nil {
			return nil, err
		}
		curStart -= added
	}
	return c.img.RemoveZeroColumns(), nil
}

func sum(a []int) (s int) {
	for _, v := range a {
		s += v
	}
	return s
}

// Integer division rounding towards negative infinity
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Modulus with the sign of the divisor
func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
