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
	"fmt"
	"sync"

	"github.com/mlnoga/xslit/internal/features"
	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/geom"
	"github.com/mlnoga/xslit/internal/ops"
	"github.com/mlnoga/xslit/internal/ops/motion"
	"github.com/mlnoga/xslit/internal/ops/stack"
	"github.com/mlnoga/xslit/internal/ops/warp"
	"github.com/mlnoga/xslit/internal/ransac"
)

// Parameters for focusing on a selected region
type RegionParams struct {
	Features   features.Params         `json:"features"   yaml:"features"`
	Projective ransac.ProjectiveParams `json:"projective" yaml:"projective"`
	Mode       stack.StackMode         `json:"mode"       yaml:"mode"`
	Fill       warp.FillMode           `json:"-"          yaml:"-"`
	Seed       uint32                  `json:"seed"       yaml:"seed"`
}

func DefaultRegionParams() RegionParams {
	return RegionParams{
		Features:   features.DefaultParams(),
		Projective: ransac.DefaultProjectiveParams(),
		Mode:       stack.StMean,
		Fill:       warp.FillReferenceMean,
		Seed:       1,
	}
}

// Brings the selected region into focus: estimates a projective transform from each frame to the reference
// using only features inside the region, resamples, and stacks. Too few features in the region fail with
// ransac.ErrInsufficientCorrespondences, meaning a larger region is needed
func FocusOnRegion(frames []*frame.Image, ref int, region features.Region, p RegionParams, c *ops.Context) (*frame.Image, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to refocus")
	}
	if ref < 0 {
		ref = motion.DefaultReference(len(frames))
	}
	if ref >= len(frames) {
		return nil, fmt.Errorf("%w: %d for %d frames", motion.ErrInvalidReference, ref, len(frames))
	}
	if err := region.Validate(frames[ref].Width(), frames[ref].Height()); err != nil {
		return nil, err
	}
	if err := checkMemory(frames[0], 2*len(frames), c); err != nil {
		return nil, err
	}
	ex, err := features.NewExtractor(p.Features)
	if err != nil {
		return nil, err
	}

	acc := make([]geom.Homography, len(frames))
	errs := make([]error, len(frames))
	maxThreads := c.MaxThreads
	if maxThreads < 1 {
		maxThreads = 1
	}
	sem := make(chan bool, maxThreads)
	var wg sync.WaitGroup
	for i := range frames {
		if i == ref {
			acc[i] = geom.Identity()
			continue
		}
		wg.Add(1)
		sem <- true
		go func(i int) {
			defer func() { <-sem; wg.Done() }()
			corr, err := ex.Extract(frames[i], frames[ref], &region)
			if err != nil {
				errs[i] = err
				return
			}
			res, err := ransac.EstimateProjective(corr, p.Projective, motion.PairSource(p.Seed, i))
			if err != nil {
				errs[i] = fmt.Errorf("%d: select a larger area: %w", frames[i].ID, err)
				return
			}
			acc[i] = res.H
			fmt.Fprintf(c.Log, "%d: Region transform with %d of %d inliers\n", frames[i].ID, res.NumInliers, corr.Len())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	aligned, err := warp.AlignAll(frames, acc, ref, p.Fill, c)
	if err != nil {
		return nil, err
	}
	res, err := stack.Stack(aligned, p.Mode, c)
	if err != nil {
		return nil, err
	}
	res.QuantizeInPlace()
	res.Tag = fmt.Sprintf("region_rows%d-%d_cols%d-%d_%s", region.RowMin, region.RowMax, region.ColMin, region.ColMax, p.Mode)
	return res, nil
}
