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
	"io"
	"testing"

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/geom"
	"github.com/mlnoga/xslit/internal/ops"
)

func ramp(width, height, channels int) *frame.Image {
	naxisn := []int32{int32(width), int32(height)}
	if channels > 1 {
		naxisn = append(naxisn, int32(channels))
	}
	img := frame.NewImageFromNaxisn(naxisn, nil)
	for ch := 0; ch < img.Channels(); ch++ {
		p := img.Plane(ch)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				p[y*width+x] = float32(10*x + y + 100*ch)
			}
		}
	}
	return img
}

func TestProjectIdentity(t *testing.T) {
	img := ramp(8, 5, 3)
	res, err := Project(img, geom.Identity(), img.Naxisn, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range img.Data {
		if res.Data[i] != v {
			t.Fatalf("data[%d]=%v; want %v", i, res.Data[i], v)
		}
	}
}

func TestProjectHalfPixel(t *testing.T) {
	img := ramp(8, 5, 1)
	res, err := Project(img, geom.Translation(0.5, 0), img.Naxisn, nil)
	if err != nil {
		t.Fatal(err)
	}
	// dest x samples source x-0.5, linear in x
	if v := res.Data[2*8+3]; v != 27 {
		t.Errorf("res(3,2)=%v; want 27", v)
	}
	if v := res.Data[2*8+0]; v != 0 {
		t.Errorf("res(0,2)=%v; want 0 fill", v)
	}
}

func TestProjectFill(t *testing.T) {
	img := ramp(6, 4, 3)
	fill := []float32{1, 2, 3}
	res, err := Project(img, geom.Translation(10, 0), img.Naxisn, fill)
	if err != nil {
		t.Fatal(err)
	}
	for ch := 0; ch < 3; ch++ {
		for _, v := range res.Plane(ch) {
			if v != fill[ch] {
				t.Fatalf("ch %d value %v; want %v", ch, v, fill[ch])
			}
		}
	}
}

func TestProjectSingular(t *testing.T) {
	img := ramp(4, 4, 1)
	if _, err := Project(img, geom.Homography{}, img.Naxisn, nil); err == nil {
		t.Errorf("err=nil; want error for singular transform")
	}
}

func TestTranslateInteger(t *testing.T) {
	img := ramp(10, 6, 3)
	for _, d := range [][2]int{{3, 0}, {-2, 1}, {0, -4}, {12, 0}} {
		res, err := Translate(img, float64(d[0]), float64(d[1]))
		if err != nil {
			t.Fatal(err)
		}
		for ch := 0; ch < 3; ch++ {
			for y := 0; y < 6; y++ {
				for x := 0; x < 10; x++ {
					sx, sy := x-d[0], y-d[1]
					want := float32(0)
					if sx >= 0 && sx < 10 && sy >= 0 && sy < 6 {
						want = img.Plane(ch)[sy*10+sx]
					}
					if got := res.Plane(ch)[y*10+x]; got != want {
						t.Fatalf("shift %v: res(%d,%d,%d)=%v; want %v", d, ch, x, y, got, want)
					}
				}
			}
		}
	}
}

func TestTranslateMatchesProject(t *testing.T) {
	img := ramp(9, 7, 1)
	a, _ := Translate(img, 2, 3)
	b, err := Project(img, geom.Translation(2, 3), img.Naxisn, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("data[%d]: translate %v, project %v", i, a.Data[i], b.Data[i])
		}
	}
}

func TestAlignAll(t *testing.T) {
	frames := []*frame.Image{ramp(10, 6, 1), ramp(10, 6, 1), ramp(10, 6, 1)}
	acc := []geom.Homography{geom.Translation(1, 0), geom.Identity(), geom.Translation(-1, 0)}
	c := &ops.Context{Log: io.Discard, MaxThreads: 2}
	res, err := AlignAll(frames, acc, 1, FillReferenceMean, c)
	if err != nil {
		t.Fatal(err)
	}
	if res[1] != frames[1] {
		t.Errorf("reference frame was resampled")
	}
	if v := res[0].Data[5]; v != frames[0].Data[4] {
		t.Errorf("res[0](5,0)=%v; want %v", v, frames[0].Data[4])
	}
	mean := frames[1].ChannelMeans()[0]
	if v := res[0].Data[0]; v != mean {
		t.Errorf("fill=%v; want reference mean %v", v, mean)
	}
	if v := res[2].Data[9]; v != mean {
		t.Errorf("fill=%v; want reference mean %v", v, mean)
	}

	if _, err := AlignAll(frames, acc[:2], 1, FillZero, c); err == nil {
		t.Errorf("err=nil; want length mismatch error")
	}
}

func TestParseFillMode(t *testing.T) {
	if m, err := ParseFillMode("mean"); err != nil || m != FillReferenceMean {
		t.Errorf("mode=%v err=%v; want mean", m, err)
	}
	if _, err := ParseFillMode("blur"); err == nil {
		t.Errorf("err=nil; want error")
	}
}
