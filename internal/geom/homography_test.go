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


package geom

import (
	"errors"
	"math"
	"testing"
)

func TestApplyTranslation(t *testing.T) {
	h := Translation(3, -2)
	p := h.Apply(Point2D{X: 1, Y: 1})
	if p.X != 4 || p.Y != -1 {
		t.Errorf("p=%v; want (4, -1)", p)
	}
	if !h.IsTranslation() {
		t.Errorf("IsTranslation()=false; want true")
	}
}

func TestMulOrder(t *testing.T) {
	r := Rigid([4]float64{0, -1, 1, 0}, 0, 0) // 90 degrees
	tr := Translation(1, 0)
	// first translate, then rotate: (0,0) -> (1,0) -> (0,1)
	p := r.Mul(tr).Apply(Point2D{X: 0, Y: 0})
	if math.Abs(p.X) > 1e-12 || math.Abs(p.Y-1) > 1e-12 {
		t.Errorf("p=%v; want (0, 1)", p)
	}
}

func TestInverse(t *testing.T) {
	h := Homography{1.1, 0.05, 12, -0.03, 0.97, -4, 1e-4, 2e-4, 1}
	inv, err := h.Inverse()
	if err != nil {
		t.Fatalf("err=%v; want nil", err)
	}
	if id := h.Mul(inv).Normalize(); !id.ApproxEqual(Identity(), 1e-9) {
		t.Errorf("h*inv(h)=%v; want identity", id)
	}
	if inv[8] != 1 {
		t.Errorf("inv[8]=%v; want 1", inv[8])
	}
}

func TestInverseSingular(t *testing.T) {
	h := Homography{1, 2, 3, 2, 4, 6, 0, 0, 1}
	if _, err := h.Inverse(); !errors.Is(err, ErrSingular) {
		t.Errorf("err=%v; want ErrSingular", err)
	}
}

func TestNormalize(t *testing.T) {
	h := Homography{2, 0, 4, 0, 2, 6, 0, 0, 2}.Normalize()
	if !h.ApproxEqual(Translation(2, 3), 0) {
		t.Errorf("h=%v; want translation (2,3)", h)
	}
	z := Homography{1, 0, 0, 0, 1, 0, 0, 0, 0}
	if z.Normalize() != z {
		t.Errorf("zero corner changed by Normalize")
	}
}

func TestCentroid(t *testing.T) {
	c := Centroid([]Point2D{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 4}, {X: 0, Y: 4}})
	if c.X != 1 || c.Y != 2 {
		t.Errorf("c=%v; want (1, 2)", c)
	}
	if c := Centroid(nil); c.X != 0 || c.Y != 0 {
		t.Errorf("empty centroid=%v; want (0, 0)", c)
	}
}
