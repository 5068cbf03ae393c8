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
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"

	"github.com/mlnoga/xslit/internal/frame"
)

var outlierColor = color.RGBA{128, 128, 128, 255}

// Renders correspondences onto a copy of the frame for visual checks. Each inlier gets a marker and a
// displacement line in its own hue, outliers are grey. inliers may be nil to mark everything as inlier
func Overlay(img *frame.Image, corr Correspondences, inliers []bool) *image.RGBA {
	src := img.ToGoImage()
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)

	for i := range corr.Src {
		c := outlierColor
		if inliers == nil || (i < len(inliers) && inliers[i]) {
			// golden angle spacing keeps neighbouring indices apart in hue
			hue := math.Mod(float64(i)*137.508, 360)
			r, g, b := colorful.Hsv(hue, 0.9, 1).RGB255()
			c = color.RGBA{r, g, b, 255}
		}
		s, d := corr.Src[i], corr.Dst[i]
		drawLine(dst, int(math.Round(s.X)), int(math.Round(s.Y)), int(math.Round(d.X)), int(math.Round(d.Y)), c)
		drawCross(dst, int(math.Round(s.X)), int(math.Round(s.Y)), 3, c)
	}
	return dst
}

func drawCross(img *image.RGBA, x, y, r int, c color.RGBA) {
	for d := -r; d <= r; d++ {
		img.SetRGBA(x+d, y, c)
		img.SetRGBA(x, y+d, c)
	}
}

// Bresenham line. Points outside the image are clipped by SetRGBA
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
