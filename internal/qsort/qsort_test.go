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


package qsort

import (
	"testing"

	"github.com/valyala/fastrand"
)

func TestMedian(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 1; i < 1000; i++ {
		// prepare array of given length with a random permutation of 1..n
		arr := make([]float32, i)
		for j := 0; j < len(arr); j++ {
			arr[j] = float32(j + 1)
		}
		for j := 0; j < len(arr); j++ {
			k := rng.Uint32n(uint32(len(arr)))
			arr[j], arr[k] = arr[k], arr[j]
		}

		// calculate expected result
		var expect float32
		if (i & 1) != 0 {
			expect = float32((i + 1) / 2)
		} else {
			expect = 0.5 * (float32(i/2) + float32(i/2+1))
		}

		// calculate actual result and compare
		res := QSelectMedianFloat32(arr)
		if res != expect {
			t.Errorf("median(1..%d)=%f; want %f", i, res, expect)
		}
	}
}

func TestMedianDuplicates(t *testing.T) {
	tcs := []struct {
		in   []float32
		want float32
	}{
		{[]float32{}, 0},
		{[]float32{5, 5, 5, 5}, 5},
		{[]float32{0, 255, 255, 0}, 127.5},
		{[]float32{3, 1, 3, 1, 2}, 2},
	}
	for _, tc := range tcs {
		in := append([]float32(nil), tc.in...)
		if got := QSelectMedianFloat32(in); got != tc.want {
			t.Errorf("median(%v)=%v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestSelectKth(t *testing.T) {
	a := []float32{9, 2, 7, 4, 5}
	for k, want := range []float32{2, 4, 5, 7, 9} {
		b := append([]float32(nil), a...)
		if got := QSelectFloat32(b, k+1); got != want {
			t.Errorf("select(%d)=%v; want %v", k+1, got, want)
		}
	}
}
