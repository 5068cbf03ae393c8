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


package features

import (
	"image"
	"math"
	"math/bits"

	"github.com/valyala/fastrand"
)

// A 256-bit binary descriptor
type Descriptor [4]uint64

// Number of differing bits between two descriptors
func (d Descriptor) Hamming(o Descriptor) int {
	return bits.OnesCount64(d[0]^o[0]) + bits.OnesCount64(d[1]^o[1]) +
		bits.OnesCount64(d[2]^o[2]) + bits.OnesCount64(d[3]^o[3])
}

// Half-width of the box filter applied before sampling
const boxRadius = 2

// Maximum offset of a test point from the keypoint, before rotation
const patternRadius = 13

const patternSeed = 0x0b51f

// A pair of test point offsets
type testPair struct {
	x1, y1, x2, y2 float64
}

// The fixed sampling pattern, generated once from a constant seed so descriptors are reproducible
var pattern = makePattern(256, patternSeed)

func makePattern(n int, seed uint32) []testPair {
	var rng fastrand.RNG
	rng.Seed(seed)
	coord := func() float64 { return float64(int(rng.Uint32n(2*patternRadius+1)) - patternRadius) }
	res := make([]testPair, n)
	for i := range res {
		for {
			p := testPair{coord(), coord(), coord(), coord()}
			if p.x1 != p.x2 || p.y1 != p.y2 {
				res[i] = p
				break
			}
		}
	}
	return res
}

// Summed area table with one row and column of zero padding
type integral struct {
	width int
	sums  []int32
}

func newIntegral(g *image.Gray) *integral {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	stride := w + 1
	sums := make([]int32, stride*(h+1))
	for y := 0; y < h; y++ {
		rowSum := int32(0)
		for x := 0; x < w; x++ {
			rowSum += int32(g.Pix[y*g.Stride+x])
			sums[(y+1)*stride+x+1] = sums[y*stride+x+1] + rowSum
		}
	}
	return &integral{width: stride, sums: sums}
}

// Sum over the box of radius boxRadius centered on x, y
func (in *integral) box(x, y int) int32 {
	x0, y0, x1, y1 := x-boxRadius, y-boxRadius, x+boxRadius+1, y+boxRadius+1
	s := in.width
	return in.sums[y1*s+x1] - in.sums[y0*s+x1] - in.sums[y1*s+x0] + in.sums[y0*s+x0]
}

// Computes the rotated BRIEF descriptor of the keypoint at x, y with the given orientation
func describe(in *integral, x, y int, angle float64) (d Descriptor) {
	sin, cos := math.Sincos(angle)
	for i, p := range pattern {
		ax := x + int(math.Round(cos*p.x1-sin*p.y1))
		ay := y + int(math.Round(sin*p.x1+cos*p.y1))
		bx := x + int(math.Round(cos*p.x2-sin*p.y2))
		by := y + int(math.Round(sin*p.x2+cos*p.y2))
		if in.box(ax, ay) < in.box(bx, by) {
			d[i>>6] |= 1 << uint(i&63)
		}
	}
	return d
}
