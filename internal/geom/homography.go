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
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// A 2-dimensional point with floating point coordinates. X is the column, Y the row.
type Point2D struct {
	X float64
	Y float64
}

func (p Point2D) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

// Returns the squared euclidian distance between the two given points
func Dist2DSquared(a, b Point2D) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}

// Returns the centroid of the given points. Zero for an empty slice
func Centroid(ps []Point2D) (c Point2D) {
	if len(ps) == 0 {
		return Point2D{}
	}
	for _, p := range ps {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(ps))
	return Point2D{c.X / n, c.Y / n}
}

// A 2D projective transformation in homogeneous coordinates, 3x3 row-major.
// Normalized transforms have H[8]==1.
//
//	x' = (H[0]x + H[1]y + H[2]) / (H[6]x + H[7]y + H[8])
//	y' = (H[3]x + H[4]y + H[5]) / (H[6]x + H[7]y + H[8])
type Homography [9]float64

// Determinants below this are treated as singular
const singularEpsilon = 1e-12

var ErrSingular = errors.New("homography has no inverse")

func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Translation-only transform
func Translation(tx, ty float64) Homography {
	return Homography{1, 0, tx, 0, 1, ty, 0, 0, 1}
}

// Rotation plus translation. r is the row-major 2x2 rotation block
func Rigid(r [4]float64, tx, ty float64) Homography {
	return Homography{r[0], r[1], tx, r[2], r[3], ty, 0, 0, 1}
}

// Horizontal translation component
func (h Homography) Tx() float64 { return h[2] }

// Vertical translation component
func (h Homography) Ty() float64 { return h[5] }

func (h Homography) String() string {
	return fmt.Sprintf("[%.5g %.5g %.5g; %.5g %.5g %.5g; %.5g %.5g %.5g]",
		h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], h[8])
}

// Apply the transformation to a point, including the perspective divide
func (h Homography) Apply(p Point2D) Point2D {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	x := h[0]*p.X + h[1]*p.Y + h[2]
	y := h[3]*p.X + h[4]*p.Y + h[5]
	return Point2D{x / w, y / w}
}

// Apply the transformation to many points
func (h Homography) ApplySlice(ps []Point2D) []Point2D {
	res := make([]Point2D, len(ps))
	for i, p := range ps {
		res[i] = h.Apply(p)
	}
	return res
}

// Matrix product h·o, i.e. first apply o, then h
func (h Homography) Mul(o Homography) (res Homography) {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			res[r*3+c] = h[r*3]*o[c] + h[r*3+1]*o[3+c] + h[r*3+2]*o[6+c]
		}
	}
	return res
}

// Scales the matrix so the bottom-right entry is 1. Returns h unchanged if that entry is zero
func (h Homography) Normalize() Homography {
	if h[8] == 0 || h[8] == 1 {
		return h
	}
	s := 1 / h[8]
	for i := range h {
		h[i] *= s
	}
	return h
}

func (h Homography) Det() float64 {
	return mat.Det(h.Dense())
}

// Returns the inverse, normalized. Fails if the matrix is singular to machine tolerance
func (h Homography) Inverse() (Homography, error) {
	if d := h.Det(); math.Abs(d) < singularEpsilon || math.IsNaN(d) {
		return Homography{}, fmt.Errorf("%w: det=%g", ErrSingular, d)
	}
	var inv mat.Dense
	if err := inv.Inverse(h.Dense()); err != nil {
		return Homography{}, fmt.Errorf("%w: %s", ErrSingular, err.Error())
	}
	return FromDense(&inv).Normalize(), nil
}

// True if all entries are within eps of the other transform
func (h Homography) ApproxEqual(o Homography, eps float64) bool {
	for i := range h {
		if math.Abs(h[i]-o[i]) > eps {
			return false
		}
	}
	return true
}

// True if the transform leaves the 2x2 block as identity and has no perspective part
func (h Homography) IsTranslation() bool {
	return h[0] == 1 && h[1] == 0 && h[3] == 0 && h[4] == 1 && h[6] == 0 && h[7] == 0
}

// Converts to a gonum matrix
func (h Homography) Dense() *mat.Dense {
	data := make([]float64, 9)
	copy(data, h[:])
	return mat.NewDense(3, 3, data)
}

// Converts a 3x3 gonum matrix into a homography
func FromDense(m mat.Matrix) (h Homography) {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.At(r, c)
		}
	}
	return h
}
