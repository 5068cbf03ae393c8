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


package ransac

import (
	"errors"
	"math"
	"testing"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/xslit/internal/features"
	"github.com/mlnoga/xslit/internal/geom"
)

// Generates n correspondences under h, of which the last numOutliers are displaced far away
func synthetic(h geom.Homography, n, numOutliers int, seed uint32) features.Correspondences {
	var rng fastrand.RNG
	rng.Seed(seed)
	corr := features.Correspondences{}
	for i := 0; i < n; i++ {
		p := geom.Point2D{X: float64(rng.Uint32n(640)), Y: float64(rng.Uint32n(480))}
		q := h.Apply(p)
		if i >= n-numOutliers {
			q.X += 40 + float64(rng.Uint32n(200))
			q.Y -= 30 + float64(rng.Uint32n(200))
		}
		corr.Src = append(corr.Src, p)
		corr.Dst = append(corr.Dst, q)
	}
	return corr
}

func TestEstimateTranslationWithOutliers(t *testing.T) {
	corr := synthetic(geom.Translation(12.5, -3), 50, 15, 1)
	rng := &fastrand.RNG{}
	rng.Seed(7)
	p := DefaultParams()
	p.TranslationOnly = true
	res, err := Estimate(corr, p, rng)
	if err != nil {
		t.Fatalf("err=%v; want nil", err)
	}
	if !res.H.ApproxEqual(geom.Translation(12.5, -3), 1e-9) {
		t.Errorf("H=%v; want translation (12.5, -3)", res.H)
	}
	if res.NumInliers != 35 {
		t.Errorf("inliers=%d; want 35", res.NumInliers)
	}
	for i := 35; i < 50; i++ {
		if res.Inliers[i] {
			t.Errorf("outlier %d marked as inlier", i)
		}
	}
}

func TestEstimateRigid(t *testing.T) {
	theta := 0.1
	sin, cos := math.Sincos(theta)
	want := geom.Rigid([4]float64{cos, -sin, sin, cos}, 20, -7)
	corr := synthetic(want, 60, 10, 2)
	rng := &fastrand.RNG{}
	rng.Seed(3)
	res, err := Estimate(corr, DefaultParams(), rng)
	if err != nil {
		t.Fatalf("err=%v; want nil", err)
	}
	if !res.H.ApproxEqual(want, 1e-6) {
		t.Errorf("H=%v; want %v", res.H, want)
	}
	if res.NumInliers != 50 {
		t.Errorf("inliers=%d; want 50", res.NumInliers)
	}
}

func TestRigidReflection(t *testing.T) {
	// mirror about the vertical axis
	mirror := geom.Rigid([4]float64{-1, 0, 0, 1}, 100, 0)
	corr := synthetic(mirror, 20, 0, 5)

	h, ok := fitRigid(corr.Src, corr.Dst, false)
	if !ok || !h.ApproxEqual(mirror, 1e-6) {
		t.Errorf("reflecting fit=%v; want %v", h, mirror)
	}

	h, ok = fitRigid(corr.Src, corr.Dst, true)
	if !ok {
		t.Fatalf("proper fit failed")
	}
	if det := h[0]*h[4] - h[1]*h[3]; math.Abs(det-1) > 1e-9 {
		t.Errorf("det=%v; want 1", det)
	}
}

func TestEstimateInsufficient(t *testing.T) {
	rng := &fastrand.RNG{}
	_, err := Estimate(features.Correspondences{}, DefaultParams(), rng)
	if !errors.Is(err, ErrInsufficientCorrespondences) {
		t.Errorf("err=%v; want ErrInsufficientCorrespondences", err)
	}
	one := synthetic(geom.Identity(), 1, 0, 1)
	if _, err := Estimate(one, DefaultParams(), rng); !errors.Is(err, ErrInsufficientCorrespondences) {
		t.Errorf("rigid with one point err=%v; want ErrInsufficientCorrespondences", err)
	}
	p := DefaultParams()
	p.TranslationOnly = true
	if _, err := Estimate(one, p, rng); err != nil {
		t.Errorf("translation with one point err=%v; want nil", err)
	}
}

func TestEstimateProjective(t *testing.T) {
	want := geom.Homography{1.02, 0.03, 15, -0.01, 0.98, -6, 2e-5, -1e-5, 1}
	corr := synthetic(want, 80, 20, 9)
	rng := &fastrand.RNG{}
	rng.Seed(11)
	res, err := EstimateProjective(corr, DefaultProjectiveParams(), rng)
	if err != nil {
		t.Fatalf("err=%v; want nil", err)
	}
	for _, p := range []geom.Point2D{{X: 0, Y: 0}, {X: 640, Y: 0}, {X: 320, Y: 240}, {X: 640, Y: 480}} {
		got, exp := res.H.Apply(p), want.Apply(p)
		if geom.Dist2DSquared(got, exp) > 1e-4 {
			t.Errorf("H(%v)=%v; want %v", p, got, exp)
		}
	}
	if res.NumInliers != 60 {
		t.Errorf("inliers=%d; want 60", res.NumInliers)
	}
}

func TestEstimateProjectiveInsufficient(t *testing.T) {
	corr := synthetic(geom.Identity(), 3, 0, 1)
	if _, err := EstimateProjective(corr, DefaultProjectiveParams(), &fastrand.RNG{}); !errors.Is(err, ErrInsufficientCorrespondences) {
		t.Errorf("err=%v; want ErrInsufficientCorrespondences", err)
	}
}

func TestSampleDistinct(t *testing.T) {
	rng := &fastrand.RNG{}
	rng.Seed(1)
	idx := make([]int, 4)
	for it := 0; it < 1000; it++ {
		sample(idx, 5, rng)
		seen := map[int]bool{}
		for _, i := range idx {
			if i < 0 || i >= 5 || seen[i] {
				t.Fatalf("sample=%v not distinct in [0,5)", idx)
			}
			seen[i] = true
		}
	}
}

func TestRigidCoincident(t *testing.T) {
	p := geom.Point2D{X: 12, Y: 34}
	corr := features.Correspondences{
		Src: []geom.Point2D{p, p, p},
		Dst: []geom.Point2D{{X: 15, Y: 30}, {X: 15, Y: 30}, {X: 16, Y: 31}},
	}
	if _, ok := fitRigid(corr.Src, corr.Dst, false); ok {
		t.Errorf("fit of coincident points ok=true; want false")
	}
	rng := &fastrand.RNG{}
	rng.Seed(2)
	if _, err := Estimate(corr, DefaultParams(), rng); !errors.Is(err, ErrInsufficientCorrespondences) {
		t.Errorf("err=%v; want ErrInsufficientCorrespondences", err)
	}
}
