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
	"fmt"
	"sync"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/xslit/internal/features"
	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/geom"
	"github.com/mlnoga/xslit/internal/ops"
	"github.com/mlnoga/xslit/internal/ransac"
)

// Parameters for motion estimation
type Params struct {
	Features features.Params  `json:"features" yaml:"features"`
	Ransac   ransac.Params    `json:"ransac"   yaml:"ransac"`
	Seed     uint32           `json:"seed"     yaml:"seed"` // Base seed for the per-pair random sources
	Region   *features.Region `json:"region"   yaml:"region"`
}

func DefaultParams() Params {
	return Params{
		Features: features.DefaultParams(),
		Ransac:   ransac.DefaultParams(),
		Seed:     1,
	}
}

// Estimates the transform between a pair of frames
type Estimator struct {
	Extractor features.Extractor
	Ransac    ransac.Params
	Region    *features.Region
}

func NewEstimator(p Params) (*Estimator, error) {
	ex, err := features.NewExtractor(p.Features)
	if err != nil {
		return nil, err
	}
	return &Estimator{Extractor: ex, Ransac: p.Ransac, Region: p.Region}, nil
}

// Estimates the transform mapping frame a onto frame b
func (e *Estimator) EstimatePair(a, b *frame.Image, rng ransac.Source) (ransac.Result, error) {
	corr, err := e.Extractor.Extract(a, b, e.Region)
	if err != nil {
		return ransac.Result{}, err
	}
	return ransac.Estimate(corr, e.Ransac, rng)
}

// Seeded random source for pair i. Distinct pairs get distinct, reproducible streams
func PairSource(seed uint32, i int) *fastrand.RNG {
	s := seed ^ (uint32(i)+1)*0x9e3779b9
	if s == 0 { // zero would seed from the system
		s = 1
	}
	rng := &fastrand.RNG{}
	rng.Seed(s)
	return rng
}

// A pair whose transform could not be estimated
type PairFailure struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
}

func (f PairFailure) Error() string { return fmt.Sprintf("pair %d: %s", f.Index, f.Err.Error()) }

// Pairwise motion of a sequence. Failed pairs keep the identity transform
type Result struct {
	Pairwise []geom.Homography
	Failed   []PairFailure
}

func (r Result) Complete() bool { return len(r.Failed) == 0 }

// Estimates all pairwise transforms of the sequence concurrently. Pair i maps frame i+1 onto frame i, so
// a left to right pan has positive tx. A failed pair does not abort the others
func Compute(frames []*frame.Image, e *Estimator, seed uint32, c *ops.Context) (Result, error) {
	if len(frames) < 2 {
		return Result{}, fmt.Errorf("%w: need at least two frames, have %d", ErrMotionNotComputed, len(frames))
	}
	n := len(frames) - 1
	res := Result{Pairwise: make([]geom.Homography, n)}
	errs := make([]error, n)

	maxThreads := c.MaxThreads
	if maxThreads < 1 {
		maxThreads = 1
	}
	sem := make(chan bool, maxThreads)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- true
		go func(i int) {
			defer func() { <-sem; wg.Done() }()
			r, err := e.EstimatePair(frames[i+1], frames[i], PairSource(seed, i))
			if err != nil {
				res.Pairwise[i], errs[i] = geom.Identity(), err
				fmt.Fprintf(c.Log, "%d: Motion from frame %d failed: %s\n", frames[i].ID, frames[i+1].ID, err.Error())
				return
			}
			res.Pairwise[i] = r.H
			fmt.Fprintf(c.Log, "%d: Motion from frame %d tx=%.2f ty=%.2f with %d inliers\n",
				frames[i].ID, frames[i+1].ID, r.H.Tx(), r.H.Ty(), r.NumInliers)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			res.Failed = append(res.Failed, PairFailure{Index: i, Err: err})
		}
	}
	return res, nil
}
