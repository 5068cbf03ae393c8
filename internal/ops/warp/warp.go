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


package warp

import (
	"fmt"
	"math"
	"sync"

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/geom"
	"github.com/mlnoga/xslit/internal/ops"
)

// How destination pixels outside the source frame are filled
type FillMode int

const (
	FillZero          FillMode = iota // Black
	FillReferenceMean                 // Per-channel mean of the reference frame
)

func (m FillMode) String() string {
	switch m {
	case FillZero:
		return "zero"
	case FillReferenceMean:
		return "mean"
	default:
		return fmt.Sprintf("FillMode(%d)", int(m))
	}
}

// Parses "zero" or "mean"
func ParseFillMode(s string) (FillMode, error) {
	switch s {
	case "", "zero":
		return FillZero, nil
	case "mean":
		return FillReferenceMean, nil
	default:
		return FillZero, fmt.Errorf("unknown fill mode '%s'", s)
	}
}

// Positions within this distance of the last row or column still count as inside
const edgeEpsilon = 1e-9

// Projects an image into a new coordinate system with the given transformation, which maps source
// coordinates to destination coordinates. Fills missing pixels with the per-channel outOfBounds values,
// or zero if nil. Uses bilinear interpolation
func Project(img *frame.Image, trans geom.Homography, destNaxisn []int32, outOfBounds []float32) (*frame.Image, error) {
	// Invert transformation so we can sample from the target coordinate system PoV
	invTrans, err := trans.Inverse()
	if err != nil {
		return nil, fmt.Errorf("%d: %w", img.ID, err)
	}

	naxisn := append([]int32(nil), destNaxisn...)
	if len(naxisn) < 3 && img.Channels() > 1 {
		naxisn = append(naxisn[:2], int32(img.Channels()))
	}
	res := frame.NewImageFromNaxisn(naxisn, nil)
	res.ID, res.FileName, res.Tag = img.ID, img.FileName, img.Tag

	destWidth, destHeight := res.Width(), res.Height()
	origWidth, origHeight := img.Width(), img.Height()
	maxX, maxY := float64(origWidth-1), float64(origHeight-1)
	chans := img.Channels()

	for row := 0; row < destHeight; row++ {
		for col := 0; col < destWidth; col++ {
			proj := invTrans.Apply(geom.Point2D{X: float64(col), Y: float64(row)})
			px, py := proj.X, proj.Y
			if !(px >= -edgeEpsilon && px <= maxX+edgeEpsilon && py >= -edgeEpsilon && py <= maxY+edgeEpsilon) {
				for ch := 0; ch < chans; ch++ {
					v := float32(0)
					if outOfBounds != nil {
						v = outOfBounds[ch]
					}
					res.Plane(ch)[col+row*destWidth] = v
				}
				continue
			}
			px, py = math.Max(0, math.Min(px, maxX)), math.Max(0, math.Min(py, maxY))

			// perform bilinear interpolation
			xl, yl := int(math.Floor(px)), int(math.Floor(py))
			xh, yh := xl+1, yl+1
			if xh >= origWidth {
				xh = xl
			}
			if yh >= origHeight {
				yh = yl
			}
			xr, yr := float32(px-float64(xl)), float32(py-float64(yl))

			for ch := 0; ch < chans; ch++ {
				d := img.Plane(ch)
				vyl := d[xl+yl*origWidth]*(1-xr) + d[xh+yl*origWidth]*xr
				vyh := d[xl+yh*origWidth]*(1-xr) + d[xh+yh*origWidth]*xr
				res.Plane(ch)[col+row*destWidth] = vyl*(1-yr) + vyh*yr
			}
		}
	}
	return res, nil
}

// Shifts an image by dx, dy pixels, keeping its extent and filling uncovered pixels with zero.
// Integer shifts are copied exactly
func Translate(img *frame.Image, dx, dy float64) (*frame.Image, error) {
	if dx != math.Trunc(dx) || dy != math.Trunc(dy) {
		return Project(img, geom.Translation(dx, dy), img.Naxisn, nil)
	}
	res := frame.NewImageFromImage(img)
	width, height := img.Width(), img.Height()
	ix, iy := int(dx), int(dy)
	x0, x1 := max(0, ix), min(width, width+ix) // destination columns covered
	if x0 >= x1 {
		return res, nil
	}
	for ch := 0; ch < img.Channels(); ch++ {
		src, dst := img.Plane(ch), res.Plane(ch)
		for y := max(0, iy); y < min(height, height+iy); y++ {
			sy := y - iy
			copy(dst[y*width+x0:y*width+x1], src[sy*width+x0-ix:sy*width+x1-ix])
		}
	}
	return res, nil
}

// Resamples all frames into the coordinate system of the reference frame, using the accumulated
// transforms. Runs concurrently, bounded by the context's thread limit. The reference frame is returned as is
func AlignAll(frames []*frame.Image, acc []geom.Homography, ref int, fill FillMode, c *ops.Context) ([]*frame.Image, error) {
	if len(acc) != len(frames) {
		return nil, fmt.Errorf("have %d transforms for %d frames", len(acc), len(frames))
	}
	if ref < 0 || ref >= len(frames) {
		return nil, fmt.Errorf("reference %d not in [0,%d)", ref, len(frames))
	}
	var outOfBounds []float32
	if fill == FillReferenceMean {
		outOfBounds = frames[ref].ChannelMeans()
	}

	res := make([]*frame.Image, len(frames))
	errs := make([]error, len(frames))
	maxThreads := c.MaxThreads
	if maxThreads < 1 {
		maxThreads = 1
	}
	sem := make(chan bool, maxThreads)
	var wg sync.WaitGroup
	for i := range frames {
		if i == ref {
			res[i] = frames[i]
			continue
		}
		wg.Add(1)
		sem <- true
		go func(i int) {
			defer func() { <-sem; wg.Done() }()
			res[i], errs[i] = Project(frames[i], acc[i], frames[ref].Naxisn, outOfBounds)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	fmt.Fprintf(c.Log, "Aligned %d frames to reference frame %d\n", len(frames), frames[ref].ID)
	return res, nil
}
