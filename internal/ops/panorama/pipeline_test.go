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


package panorama

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/ops/motion"
)

// Scene of random 8x8 blocks, seen by n frames of a camera panning step columns per frame.
// Frame i of a left to right pan shows scene columns [step*i, step*i+width)
type panScene struct {
	data          []float32
	width, height int
}

func newPanScene(width, height int, seed uint32) *panScene {
	var rng fastrand.RNG
	rng.Seed(seed)
	const block = 8
	bw := (width + block - 1) / block
	blocks := make([]float32, bw*((height+block-1)/block))
	for i := range blocks {
		blocks[i] = float32(rng.Uint32n(256))
	}
	s := &panScene{data: make([]float32, width*height), width: width, height: height}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			s.data[y*width+x] = blocks[(y/block)*bw+x/block]
		}
	}
	return s
}

func (s *panScene) frames(n, width, step int, leftToRight bool) []*frame.Image {
	fs := make([]*frame.Image, n)
	for i := range fs {
		offset := step * i
		if !leftToRight {
			offset = step * (n - 1 - i)
		}
		f := frame.NewImageFromNaxisn([]int32{int32(width), int32(s.height)}, nil)
		for y := 0; y < s.height; y++ {
			copy(f.Data[y*width:(y+1)*width], s.data[y*s.width+offset:y*s.width+offset+width])
		}
		f.ID = i
		fs[i] = f
	}
	return fs
}

func TestSlitLineFromPan(t *testing.T) {
	const n, width, step, col = 6, 240, 6, 100
	scene := newPanScene(width+step*(n-1), 160, 42)

	for _, leftToRight := range []bool{true, false} {
		fs := scene.frames(n, width, step, leftToRight)
		op := motion.NewOpMotion(MotionParams(motion.DefaultParams()), "")
		c := testContext()
		if err := op.Apply(fs, c); err != nil {
			t.Fatalf("leftToRight=%v err=%v", leftToRight, err)
		}
		if op.Reversed == leftToRight {
			t.Errorf("leftToRight=%v reversed=%v; want %v", leftToRight, op.Reversed, !leftToRight)
		}
		if len(op.Failed) != 0 {
			t.Fatalf("leftToRight=%v failed=%v; want none", leftToRight, op.Failed)
		}
		for i, h := range c.Pairwise {
			if math.Abs(h.Tx()-step) > 0.5 {
				t.Errorf("leftToRight=%v pw[%d].Tx=%.2f; want %d", leftToRight, i, h.Tx(), step)
			}
		}

		p, err := Create(fs, c.Pairwise, Slice{StartFrame: 0, EndFrame: n - 1, StartColumn: col, EndColumn: col})
		if err != nil {
			t.Fatalf("leftToRight=%v err=%v", leftToRight, err)
		}
		if p.Width() != step*(n-1) {
			t.Fatalf("leftToRight=%v width=%d; want %d", leftToRight, p.Width(), step*(n-1))
		}
		// one contiguous run of scene columns starting at col
		for x := 0; x < p.Width(); x++ {
			for y := 0; y < p.Height(); y++ {
				if got, want := p.Data[y*p.Width()+x], scene.data[y*scene.width+col+x]; got != want {
					t.Errorf("leftToRight=%v pano(%d,%d)=%v; want scene column %d value %v", leftToRight, x, y, got, col+x, want)
					break
				}
			}
		}
	}
}

func TestMotionParams(t *testing.T) {
	p := motion.DefaultParams()
	p.Ransac.TranslationOnly = false
	if q := MotionParams(p); !q.Ransac.TranslationOnly || q.Ransac.Iterations != p.Ransac.Iterations {
		t.Errorf("params=%+v; want translation-only with other values kept", q.Ransac)
	}
	if p.Ransac.TranslationOnly {
		t.Errorf("input params modified")
	}
}
