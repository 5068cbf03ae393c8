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
	"sort"

	"golang.org/x/image/draw"
)

// A detected keypoint with its descriptor. Coordinates are in full-resolution pixels
type Feature struct {
	X, Y  float64 // Position, column and row
	Level int     // Pyramid level the keypoint was found on
	Score float64 // Harris corner response
	Angle float64 // Orientation in radians, from the intensity centroid
	Desc  Descriptor
}

// Pixels closer than this to the image border cannot carry a full descriptor patch
const border = 21

// Radius of the circular patch used for orientation
const orientationRadius = 15

// Bresenham circle of radius 3 used by the FAST segment test
var fastCircle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// Number of contiguous circle pixels required for a corner
const fastArc = 9

// Detects up to p.MaxFeatures oriented FAST keypoints with rotated BRIEF descriptors on an image pyramid.
// If region is non-nil, only keypoints inside it are kept
func Detect(g *image.Gray, region *Region, p Params) []Feature {
	levels, scaleFactor := p.Levels, p.ScaleFactor
	if levels < 1 {
		levels = 1
	}
	if scaleFactor <= 1 {
		scaleFactor = 1.2
	}

	feats := []Feature{}
	level, scale := g, 1.0
	for l := 0; l < levels; l++ {
		if l > 0 {
			scale *= scaleFactor
			w := int(math.Round(float64(g.Bounds().Dx()) / scale))
			h := int(math.Round(float64(g.Bounds().Dy()) / scale))
			if w <= 2*border || h <= 2*border {
				break
			}
			next := image.NewGray(image.Rect(0, 0, w, h))
			draw.BiLinear.Scale(next, next.Bounds(), g, g.Bounds(), draw.Src, nil)
			level = next
		}
		feats = append(feats, detectLevel(level, l, scale, region, p.FastThreshold)...)
	}

	sort.SliceStable(feats, func(i, j int) bool { return feats[i].Score > feats[j].Score })
	if p.MaxFeatures > 0 && len(feats) > p.MaxFeatures {
		feats = feats[:p.MaxFeatures]
	}
	return feats
}

// Detects and describes FAST keypoints on a single pyramid level
func detectLevel(g *image.Gray, l int, scale float64, region *Region, threshold int) []Feature {
	width, height := g.Bounds().Dx(), g.Bounds().Dy()
	if width <= 2*border || height <= 2*border {
		return nil
	}

	scores := make([]int32, width*height)
	for y := border; y < height-border; y++ {
		for x := border; x < width-border; x++ {
			if region != nil && !region.Contains(int(float64(x)*scale), int(float64(y)*scale)) {
				continue
			}
			scores[y*width+x] = fastScore(g, x, y, threshold)
		}
	}

	integral := newIntegral(g)
	feats := []Feature{}
	for y := border; y < height-border; y++ {
		for x := border; x < width-border; x++ {
			s := scores[y*width+x]
			if s == 0 || !isLocalMax(scores, width, x, y) {
				continue
			}
			angle := intensityCentroidAngle(g, x, y)
			feats = append(feats, Feature{
				X:     float64(x) * scale,
				Y:     float64(y) * scale,
				Level: l,
				Score: harrisResponse(g, x, y),
				Angle: angle,
				Desc:  describe(integral, x, y, angle),
			})
		}
	}
	return feats
}

// Returns the FAST-9 corner score of the pixel, or zero if it is not a corner.
// The score is the summed absolute difference beyond the threshold over the circle pixels of the winning polarity
func fastScore(g *image.Gray, x, y, threshold int) int32 {
	stride := g.Stride
	center := int(g.Pix[y*stride+x])
	hi, lo := center+threshold, center-threshold

	var states [16]int8
	for i, o := range fastCircle {
		v := int(g.Pix[(y+o[1])*stride+x+o[0]])
		if v > hi {
			states[i] = 1
		} else if v < lo {
			states[i] = -1
		}
	}

	polarity := int8(0)
	run, prev := 0, int8(0)
	for i := 0; i < 16+fastArc-1; i++ {
		s := states[i%16]
		if s != 0 && s == prev {
			run++
		} else if s != 0 {
			run = 1
		} else {
			run = 0
		}
		prev = s
		if run >= fastArc {
			polarity = s
			break
		}
	}
	if polarity == 0 {
		return 0
	}

	score := int32(0)
	for i, o := range fastCircle {
		if states[i] != polarity {
			continue
		}
		d := int(g.Pix[(y+o[1])*stride+x+o[0]]) - center
		if d < 0 {
			d = -d
		}
		score += int32(d - threshold)
	}
	if score == 0 {
		score = 1
	}
	return score
}

// Non-maximum suppression over the 3x3 neighborhood. Ties are broken in raster order
func isLocalMax(scores []int32, width, x, y int) bool {
	s := scores[y*width+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := scores[(y+dy)*width+x+dx]
			earlier := dy < 0 || (dy == 0 && dx < 0)
			if n > s || (earlier && n == s) {
				return false
			}
		}
	}
	return true
}

// Harris corner response with Sobel gradients over a 7x7 block, k=0.04
func harrisResponse(g *image.Gray, x, y int) float64 {
	stride := g.Stride
	pix := func(x, y int) float64 { return float64(g.Pix[y*stride+x]) }
	var sxx, syy, sxy float64
	for yy := y - 3; yy <= y+3; yy++ {
		for xx := x - 3; xx <= x+3; xx++ {
			ix := (pix(xx+1, yy-1) + 2*pix(xx+1, yy) + pix(xx+1, yy+1)) -
				(pix(xx-1, yy-1) + 2*pix(xx-1, yy) + pix(xx-1, yy+1))
			iy := (pix(xx-1, yy+1) + 2*pix(xx, yy+1) + pix(xx+1, yy+1)) -
				(pix(xx-1, yy-1) + 2*pix(xx, yy-1) + pix(xx+1, yy-1))
			sxx += ix * ix
			syy += iy * iy
			sxy += ix * iy
		}
	}
	const k = 0.04
	det, trace := sxx*syy-sxy*sxy, sxx+syy
	return det - k*trace*trace
}

// Orientation of the patch from its first order moments
func intensityCentroidAngle(g *image.Gray, x, y int) float64 {
	stride := g.Stride
	m01, m10 := 0.0, 0.0
	r := orientationRadius
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			v := float64(g.Pix[(y+dy)*stride+x+dx])
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return math.Atan2(m01, m10)
}
