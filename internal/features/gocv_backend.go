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


//go:build gocv

package features

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/geom"
)

func init() {
	backends[BackendGoCV] = func(p Params) Extractor { return gocvExtractor{p} }
}

// ORB with brute-force Hamming matching via OpenCV
type gocvExtractor struct {
	p Params
}

func (e gocvExtractor) Extract(a, b *frame.Image, region *Region) (Correspondences, error) {
	if region != nil {
		if err := region.Validate(a.Width(), a.Height()); err != nil {
			return Correspondences{}, err
		}
	}

	ma, err := grayMat(a)
	if err != nil {
		return Correspondences{}, err
	}
	defer ma.Close()
	mb, err := grayMat(b)
	if err != nil {
		return Correspondences{}, err
	}
	defer mb.Close()

	mask := gocv.NewMat()
	if region != nil {
		mask.Close()
		mask = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), a.Height(), a.Width(), gocv.MatTypeCV8U)
		roi := mask.Region(image.Rect(region.ColMin, region.RowMin, region.ColMax, region.RowMax))
		roi.SetTo(gocv.NewScalar(255, 0, 0, 0))
		roi.Close()
	}
	defer mask.Close()

	// edge threshold, first level, WTA_K, score type and patch size at OpenCV's defaults
	orb := gocv.NewORBWithParams(e.p.MaxFeatures, float32(e.p.ScaleFactor), e.p.Levels, 31, 0, 2,
		gocv.ORBScoreTypeHarris, 31, e.p.FastThreshold)
	defer orb.Close()
	kpa, da := orb.DetectAndCompute(ma, mask)
	defer da.Close()
	kpb, db := orb.DetectAndCompute(mb, mask)
	defer db.Close()
	if len(kpa) == 0 || len(kpb) == 0 || da.Empty() || db.Empty() {
		return Correspondences{}, nil
	}

	bf := gocv.NewBFMatcherWithParams(gocv.NormHamming, true)
	defer bf.Close()
	matches := bf.Match(da, db)
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })

	corr := Correspondences{Src: make([]geom.Point2D, len(matches)), Dst: make([]geom.Point2D, len(matches))}
	for i, m := range matches {
		corr.Src[i] = geom.Point2D{X: kpa[m.QueryIdx].X, Y: kpa[m.QueryIdx].Y}
		corr.Dst[i] = geom.Point2D{X: kpb[m.TrainIdx].X, Y: kpb[m.TrainIdx].Y}
	}
	return corr, nil
}

func grayMat(img *frame.Image) (gocv.Mat, error) {
	g := img.Gray()
	m, err := gocv.NewMatFromBytes(g.Rect.Dy(), g.Rect.Dx(), gocv.MatTypeCV8U, g.Pix)
	if err != nil {
		return m, fmt.Errorf("%d: converting to OpenCV: %w", img.ID, err)
	}
	return m, nil
}
