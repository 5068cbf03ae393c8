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


// Robust estimation of inter-frame transforms from noisy point correspondences
package ransac

import (
	"errors"
	"fmt"

	"github.com/mlnoga/xslit/internal/features"
	"github.com/mlnoga/xslit/internal/geom"
)

var ErrInsufficientCorrespondences = errors.New("insufficient correspondences")

// A source of uniform random numbers in [0, maxN). Satisfied by *fastrand.RNG
type Source interface {
	Uint32n(maxN uint32) uint32
}

// Parameters for translation and rigid estimation
type Params struct {
	Iterations      int     `json:"iterations"      yaml:"iterations"`      // Number of random samples drawn
	InlierTol       float64 `json:"inlierTol"       yaml:"inlierTol"`       // Squared residual below which a correspondence is an inlier
	TranslationOnly bool    `json:"translationOnly" yaml:"translationOnly"` // Fit translations instead of rigid transforms
	ProperRotation  bool    `json:"properRotation"  yaml:"properRotation"`  // Reject reflections in the rigid fit
}

func DefaultParams() Params {
	return Params{Iterations: 100, InlierTol: 6}
}

// An estimated transform with the inlier set it was refit on
type Result struct {
	H          geom.Homography
	Inliers    []bool // Per correspondence
	NumInliers int
}

// Estimates the translation or rigid transform mapping corr.Src onto corr.Dst.
// Each iteration fits a minimal random sample; a strictly larger inlier set replaces the best one.
// The result is refit on the full best inlier set
func Estimate(corr features.Correspondences, p Params, rng Source) (Result, error) {
	sampleSize := 2
	if p.TranslationOnly {
		sampleSize = 1
	}
	n := corr.Len()
	if n < sampleSize {
		return Result{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientCorrespondences, n, sampleSize)
	}
	iterations := p.Iterations
	if iterations <= 0 {
		iterations = DefaultParams().Iterations
	}

	fit := func(src, dst []geom.Point2D) (geom.Homography, bool) {
		if p.TranslationOnly {
			return fitTranslation(src, dst), true
		}
		return fitRigid(src, dst, p.ProperRotation)
	}
	residual := func(h geom.Homography, i int) float64 {
		return geom.Dist2DSquared(h.Apply(corr.Src[i]), corr.Dst[i])
	}

	best := loop(corr, iterations, sampleSize, rng, fit, residual, p.InlierTol)
	return refit(corr, best, sampleSize, fit, residual, p.InlierTol)
}

// Parameters for full projective estimation
type ProjectiveParams struct {
	Iterations int     `json:"iterations" yaml:"iterations"` // Number of random 4-point samples drawn
	ReprojTol  float64 `json:"reprojTol"  yaml:"reprojTol"`  // Reprojection distance in pixels below which a correspondence is an inlier
}

func DefaultProjectiveParams() ProjectiveParams {
	return ProjectiveParams{Iterations: 2000, ReprojTol: 5}
}

// Estimates the projective transform mapping corr.Src onto corr.Dst from 4-point samples, refit
// by least squares on the best inlier set. The result is guaranteed to be invertible
func EstimateProjective(corr features.Correspondences, p ProjectiveParams, rng Source) (Result, error) {
	const sampleSize = 4
	n := corr.Len()
	if n < sampleSize {
		return Result{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientCorrespondences, n, sampleSize)
	}
	iterations := p.Iterations
	if iterations <= 0 {
		iterations = DefaultProjectiveParams().Iterations
	}
	tol2 := p.ReprojTol * p.ReprojTol
	residual := func(h geom.Homography, i int) float64 {
		return geom.Dist2DSquared(h.Apply(corr.Src[i]), corr.Dst[i])
	}

	best := loop(corr, iterations, sampleSize, rng, fitProjective, residual, tol2)
	return refit(corr, best, sampleSize, fitProjective, residual, tol2)
}

type fitFunc func(src, dst []geom.Point2D) (geom.Homography, bool)
type residualFunc func(h geom.Homography, i int) float64

// Runs the sampling loop and returns the best inlier mask found, or nil
func loop(corr features.Correspondences, iterations, sampleSize int, rng Source, fit fitFunc, residual residualFunc, tol float64) []bool {
	n := corr.Len()
	var best []bool
	bestCount := 0
	indices := make([]int, sampleSize)
	src, dst := make([]geom.Point2D, sampleSize), make([]geom.Point2D, sampleSize)
	mask := make([]bool, n)

	for it := 0; it < iterations; it++ {
		sample(indices, n, rng)
		for i, idx := range indices {
			src[i], dst[i] = corr.Src[idx], corr.Dst[idx]
		}
		h, ok := fit(src, dst)
		if !ok {
			continue
		}
		count := 0
		for i := range mask {
			mask[i] = residual(h, i) < tol
			if mask[i] {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			best = append(best[:0], mask...)
		}
	}
	return best
}

// Refits on the inliers of the best mask and recomputes the inlier set under the final transform
func refit(corr features.Correspondences, best []bool, sampleSize int, fit fitFunc, residual residualFunc, tol float64) (Result, error) {
	indices := []int{}
	for i, in := range best {
		if in {
			indices = append(indices, i)
		}
	}
	if len(indices) < sampleSize {
		return Result{}, fmt.Errorf("%w: best inlier set has %d of %d", ErrInsufficientCorrespondences, len(indices), corr.Len())
	}
	sub := corr.Subset(indices)
	h, ok := fit(sub.Src, sub.Dst)
	if !ok {
		return Result{}, fmt.Errorf("%w: degenerate inlier set", ErrInsufficientCorrespondences)
	}
	if _, err := h.Inverse(); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrInsufficientCorrespondences, err.Error())
	}

	res := Result{H: h, Inliers: make([]bool, corr.Len())}
	for i := range res.Inliers {
		res.Inliers[i] = residual(h, i) < tol
		if res.Inliers[i] {
			res.NumInliers++
		}
	}
	return res, nil
}

// Draws len(indices) distinct indices from [0, n) uniformly. Caller guarantees n >= len(indices)
func sample(indices []int, n int, rng Source) {
	for i := range indices {
	redraw:
		for {
			idx := int(rng.Uint32n(uint32(n)))
			for j := 0; j < i; j++ {
				if indices[j] == idx {
					continue redraw
				}
			}
			indices[i] = idx
			break
		}
	}
}
