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
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mlnoga/xslit/internal/geom"
)

// Least squares translation mapping src onto dst
func fitTranslation(src, dst []geom.Point2D) geom.Homography {
	cs, cd := geom.Centroid(src), geom.Centroid(dst)
	return geom.Translation(cd.X-cs.X, cd.Y-cs.Y)
}

// Least squares rigid transform mapping src onto dst, via the SVD of the cross-covariance matrix.
// Without properRotation the result may be a reflection, if that fits better.
// Fails if all source points coincide, as the rotation is then undetermined
func fitRigid(src, dst []geom.Point2D, properRotation bool) (geom.Homography, bool) {
	cs, cd := geom.Centroid(src), geom.Centroid(dst)
	var s00, s01, s10, s11, spread float64
	for i := range src {
		ax, ay := src[i].X-cs.X, src[i].Y-cs.Y
		bx, by := dst[i].X-cd.X, dst[i].Y-cd.Y
		s00 += bx * ax
		s01 += bx * ay
		s10 += by * ax
		s11 += by * ay
		spread += ax*ax + ay*ay
	}
	if spread == 0 {
		return geom.Homography{}, false
	}
	sigma := mat.NewDense(2, 2, []float64{s00, s01, s10, s11})

	var svd mat.SVD
	if ok := svd.Factorize(sigma, mat.SVDFull); !ok {
		return geom.Homography{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	if properRotation && mat.Det(&u)*mat.Det(&v) < 0 {
		u.Set(0, 1, -u.At(0, 1))
		u.Set(1, 1, -u.At(1, 1))
	}
	var r mat.Dense
	r.Mul(&u, v.T())

	r00, r01, r10, r11 := r.At(0, 0), r.At(0, 1), r.At(1, 0), r.At(1, 1)
	tx := cd.X - (r00*cs.X + r01*cs.Y)
	ty := cd.Y - (r10*cs.X + r11*cs.Y)
	return geom.Rigid([4]float64{r00, r01, r10, r11}, tx, ty), true
}

// Similarity transform that moves the centroid to the origin and scales the mean distance to sqrt(2)
func normalizer(ps []geom.Point2D) geom.Homography {
	c := geom.Centroid(ps)
	mean := 0.0
	for _, p := range ps {
		mean += math.Hypot(p.X-c.X, p.Y-c.Y)
	}
	mean /= float64(len(ps))
	s := 1.0
	if mean > 0 {
		s = math.Sqrt2 / mean
	}
	return geom.Homography{s, 0, -s * c.X, 0, s, -s * c.Y, 0, 0, 1}
}

// Direct linear transform for a full projective mapping of src onto dst, from at least four correspondences.
// Uses Hartley normalization, and the right singular vector of the smallest singular value
func fitProjective(src, dst []geom.Point2D) (geom.Homography, bool) {
	n := len(src)
	if n < 4 {
		return geom.Homography{}, false
	}
	ts, td := normalizer(src), normalizer(dst)
	a := mat.NewDense(2*n, 9, nil)
	for i := range src {
		p, q := ts.Apply(src[i]), td.Apply(dst[i])
		a.SetRow(2*i, []float64{-p.X, -p.Y, -1, 0, 0, 0, q.X * p.X, q.X * p.Y, q.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -p.X, -p.Y, -1, q.Y * p.X, q.Y * p.Y, q.Y})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return geom.Homography{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	var hn geom.Homography
	for i := range hn {
		hn[i] = v.At(i, 8)
	}

	tdInv, err := td.Inverse()
	if err != nil {
		return geom.Homography{}, false
	}
	h := tdInv.Mul(hn).Mul(ts)
	if h[8] == 0 || math.IsNaN(h[8]) {
		return geom.Homography{}, false
	}
	h = h.Normalize()
	if _, err := h.Inverse(); err != nil {
		return geom.Homography{}, false
	}
	return h, true
}
