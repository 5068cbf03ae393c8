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
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/xslit/internal/features"
	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/geom"
	"github.com/mlnoga/xslit/internal/ops"
	"github.com/mlnoga/xslit/internal/ransac"
)

// Produces exact correspondences displaced horizontally by shift of the pair's earlier frame ID, plus a few outliers
type fakeExtractor struct {
	shift func(id int) float64
	fail  int // frame ID whose pair fails, or -1
}

func (f fakeExtractor) Extract(a, b *frame.Image, region *features.Region) (features.Correspondences, error) {
	id := min(a.ID, b.ID)
	if id == f.fail {
		return features.Correspondences{}, nil
	}
	corr := features.Correspondences{}
	tx := f.shift(id)
	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			p := geom.Point2D{X: float64(20 + 30*x), Y: float64(15 + 25*y)}
			q := geom.Point2D{X: p.X + tx, Y: p.Y + 0.5}
			if x == 5 && y < 3 {
				q.X += 70 // outlier
			}
			corr.Src = append(corr.Src, p)
			corr.Dst = append(corr.Dst, q)
		}
	}
	return corr, nil
}

func testFrames(n int) []*frame.Image {
	fs := make([]*frame.Image, n)
	for i := range fs {
		fs[i] = frame.NewImageFromNaxisn([]int32{200, 150}, nil)
		fs[i].ID = i
		fs[i].FileName = filepath.Join("seq", "f.png")
	}
	return fs
}

func testEstimator(shift func(int) float64, fail int) *Estimator {
	p := ransac.DefaultParams()
	p.TranslationOnly = true
	return &Estimator{Extractor: fakeExtractor{shift, fail}, Ransac: p}
}

func testContext() *ops.Context {
	return &ops.Context{Log: io.Discard, MaxThreads: 3, Reference: -1}
}

func TestAccumulateIdentityAtReference(t *testing.T) {
	pw := []geom.Homography{geom.Translation(3, 1), geom.Translation(5, 0), geom.Translation(-2, 4)}
	for m := 0; m <= len(pw); m++ {
		acc, err := Accumulate(pw, m)
		if err != nil {
			t.Fatalf("m=%d err=%v", m, err)
		}
		if len(acc) != len(pw)+1 {
			t.Errorf("len(acc)=%d; want %d", len(acc), len(pw)+1)
		}
		if acc[m] != geom.Identity() {
			t.Errorf("acc[%d]=%v; want identity", m, acc[m])
		}
	}
}

func TestAccumulateValues(t *testing.T) {
	pw := []geom.Homography{geom.Translation(3, 0), geom.Translation(5, 0), geom.Translation(7, 0)}
	acc, err := Accumulate(pw, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{-3, 0, 5, 12}
	for i, w := range want {
		if math.Abs(acc[i].Tx()-w) > 1e-12 {
			t.Errorf("acc[%d].Tx=%v; want %v", i, acc[i].Tx(), w)
		}
	}
}

func TestAccumulateRoundTrip(t *testing.T) {
	sin, cos := math.Sincos(0.05)
	pw := []geom.Homography{
		geom.Rigid([4]float64{cos, -sin, sin, cos}, 4, -1),
		{1.01, 0.02, 7, -0.01, 0.99, 2, 1e-5, 0, 1},
		geom.Translation(-3, 0.25),
		geom.Translation(2, 2),
	}
	acc, err := Accumulate(pw, 2)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Pairwise(acc)
	if err != nil {
		t.Fatal(err)
	}
	for i := range pw {
		if !back[i].ApproxEqual(pw[i], 1e-9) {
			t.Errorf("pw[%d]=%v; want %v", i, back[i], pw[i])
		}
	}
}

func TestAccumulateErrors(t *testing.T) {
	if _, err := Accumulate(nil, 0); !errors.Is(err, ErrMotionNotComputed) {
		t.Errorf("err=%v; want ErrMotionNotComputed", err)
	}
	pw := []geom.Homography{geom.Identity()}
	for _, m := range []int{-1, 2} {
		if _, err := Accumulate(pw, m); !errors.Is(err, ErrInvalidReference) {
			t.Errorf("m=%d err=%v; want ErrInvalidReference", m, err)
		}
	}
	singular := []geom.Homography{{1, 2, 0, 2, 4, 0, 0, 0, 1}}
	if _, err := Accumulate(singular, 0); !errors.Is(err, geom.ErrSingular) {
		t.Errorf("err=%v; want ErrSingular", err)
	}
}

func TestDefaultReference(t *testing.T) {
	for n, want := range map[int]int{1: 0, 2: 0, 3: 0, 4: 1, 5: 1, 10: 4, 11: 4} {
		if got := DefaultReference(n); got != want {
			t.Errorf("DefaultReference(%d)=%d; want %d", n, got, want)
		}
	}
}

func TestCSVRoundTrip(t *testing.T) {
	pw := []geom.Homography{
		{1.5, -0.25, 10.125, 0.001, 0.999, -3.75, 1e-7, -2e-7, 1},
		geom.Translation(math.Pi, -math.E),
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, pw); err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 9 {
		t.Errorf("lines=%d; want 9", lines)
	}
	got, err := ReadCSV(&buf, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range pw {
		if got[i] != pw[i] {
			t.Errorf("pw[%d]=%v; want %v", i, got[i], pw[i])
		}
	}
}

func TestCSVLayout(t *testing.T) {
	// column k is pair k, row r its r-th entry
	in := "1,2\n0,0\n5,6\n0,0\n1,1\n7,8\n0,0\n0,0\n1,1\n"
	pw, err := ReadCSV(strings.NewReader(in), 3)
	if err != nil {
		t.Fatal(err)
	}
	if pw[0][0] != 1 || pw[1][0] != 2 || pw[0].Tx() != 5 || pw[1].Tx() != 6 || pw[0].Ty() != 7 || pw[1].Ty() != 8 {
		t.Errorf("pw=%v", pw)
	}
}

func TestCSVMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, []geom.Homography{geom.Identity(), geom.Identity()}); err != nil {
		t.Fatal(err)
	}
	data := buf.String()
	for _, n := range []int{1, 2, 4} {
		if _, err := ReadCSV(strings.NewReader(data), n); !errors.Is(err, ErrPersistenceMismatch) {
			t.Errorf("n=%d err=%v; want ErrPersistenceMismatch", n, err)
		}
	}
	if _, err := ReadCSV(strings.NewReader("1,2\n3,4\n"), 3); !errors.Is(err, ErrPersistenceMismatch) {
		t.Errorf("short file err=%v; want ErrPersistenceMismatch", err)
	}
	if _, err := ReadCSV(strings.NewReader(strings.Repeat("1,x\n", 9)), 3); !errors.Is(err, ErrPersistenceMismatch) {
		t.Errorf("bad number err=%v; want ErrPersistenceMismatch", err)
	}
}

func TestSaveLoadFile(t *testing.T) {
	dir := t.TempDir()
	name := FileName(filepath.Join(dir, "motion"), "seq")
	if _, err := LoadFile(name, 3); !errors.Is(err, ErrMotionFileAbsent) || !NeedsRecompute(err) {
		t.Errorf("err=%v; want ErrMotionFileAbsent", err)
	}
	pw := []geom.Homography{geom.Translation(1, 2), geom.Translation(3, 4)}
	if err := SaveFile(name, pw); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFile(name, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got[1] != pw[1] {
		t.Errorf("got[1]=%v; want %v", got[1], pw[1])
	}
	if _, err := LoadFile(name, 5); !NeedsRecompute(err) {
		t.Errorf("err=%v; want recompute", err)
	}

	// no temporary files left behind
	entries, err := os.ReadDir(filepath.Dir(name))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "seq.csv" {
		t.Errorf("entries=%v; want only seq.csv", entries)
	}
}

func TestCompute(t *testing.T) {
	fs := testFrames(6)
	e := testEstimator(func(id int) float64 { return float64(2 + id) }, -1)
	res, err := Compute(fs, e, 1, testContext())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Complete() {
		t.Fatalf("failed=%v; want none", res.Failed)
	}
	for i, h := range res.Pairwise {
		if math.Abs(h.Tx()-float64(2+i)) > 1e-9 || math.Abs(h.Ty()-0.5) > 1e-9 {
			t.Errorf("pw[%d]=%v; want tx=%d ty=0.5", i, h, 2+i)
		}
	}
}

func TestComputeFailedPair(t *testing.T) {
	fs := testFrames(5)
	e := testEstimator(func(id int) float64 { return 4 }, 2)
	res, err := Compute(fs, e, 1, testContext())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 1 || res.Failed[0].Index != 2 {
		t.Fatalf("failed=%v; want pair 2", res.Failed)
	}
	if !errors.Is(res.Failed[0].Err, ransac.ErrInsufficientCorrespondences) {
		t.Errorf("err=%v; want ErrInsufficientCorrespondences", res.Failed[0].Err)
	}
	if res.Pairwise[2] != geom.Identity() {
		t.Errorf("pw[2]=%v; want identity", res.Pairwise[2])
	}
	if math.Abs(res.Pairwise[3].Tx()-4) > 1e-9 {
		t.Errorf("pw[3].Tx=%v; want 4", res.Pairwise[3].Tx())
	}
}

func TestComputeTooFewFrames(t *testing.T) {
	e := testEstimator(func(int) float64 { return 1 }, -1)
	if _, err := Compute(testFrames(1), e, 1, testContext()); !errors.Is(err, ErrMotionNotComputed) {
		t.Errorf("err=%v; want ErrMotionNotComputed", err)
	}
}

func TestValidateDirection(t *testing.T) {
	tcs := []struct {
		shift    float64
		reversed bool
	}{
		{3, false},
		{-3, true},
	}
	for _, tc := range tcs {
		fs := testFrames(20)
		shift := tc.shift
		e := testEstimator(func(int) float64 { return shift }, -1)
		reversed, err := ValidateDirection(fs, e, 1)
		if err != nil {
			t.Fatal(err)
		}
		if reversed != tc.reversed {
			t.Errorf("shift=%v reversed=%v; want %v", tc.shift, reversed, tc.reversed)
		}
		wantFirst := 0
		if tc.reversed {
			wantFirst = 19
		}
		if fs[0].ID != wantFirst {
			t.Errorf("shift=%v fs[0].ID=%d; want %d", tc.shift, fs[0].ID, wantFirst)
		}
	}
}

func TestOpMotionPersists(t *testing.T) {
	dir := t.TempDir()
	fs := testFrames(4)
	op := NewOpMotion(DefaultParams(), dir)
	op.Sequence = "run"
	c := testContext()

	e := testEstimator(func(int) float64 { return 6 }, -1)
	pw, err := op.loadOrCompute(fs, e, c)
	if err != nil {
		t.Fatal(err)
	}
	if op.Loaded {
		t.Errorf("loaded=true on first run; want false")
	}
	if _, err := os.Stat(FileName(dir, "run")); err != nil {
		t.Errorf("motion file not written: %v", err)
	}

	op2 := NewOpMotion(DefaultParams(), dir)
	op2.Sequence = "run"
	pw2, err := op2.loadOrCompute(fs, e, c)
	if err != nil {
		t.Fatal(err)
	}
	if !op2.Loaded {
		t.Errorf("loaded=false on second run; want true")
	}
	for i := range pw {
		if pw[i] != pw2[i] {
			t.Errorf("pw2[%d]=%v; want %v", i, pw2[i], pw[i])
		}
	}
}

func TestOpMotionNoPersistOnFailure(t *testing.T) {
	dir := t.TempDir()
	op := NewOpMotion(DefaultParams(), dir)
	op.Sequence = "broken"
	e := testEstimator(func(int) float64 { return 6 }, 1)
	if _, err := op.loadOrCompute(testFrames(4), e, testContext()); err != nil {
		t.Fatal(err)
	}
	if len(op.Failed) != 1 {
		t.Errorf("failed=%v; want one", op.Failed)
	}
	if _, err := os.Stat(FileName(dir, "broken")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stat err=%v; want not exist", err)
	}
}

func TestOpMotionJSONDefaults(t *testing.T) {
	op, err := ops.UnmarshalOperator([]byte(`{"type":"motion","motionDir":"m","seed":9}`))
	if err != nil {
		t.Fatal(err)
	}
	m, ok := op.(*OpMotion)
	if !ok {
		t.Fatalf("type=%T; want *OpMotion", op)
	}
	if m.MotionDir != "m" || m.Seed != 9 || !m.Validate || m.Reference != -1 || m.Ransac.Iterations != 100 || !m.Active {
		t.Errorf("op=%+v; want defaults with motionDir m and seed 9", m)
	}
}

func TestOpMotionPromisesSetContext(t *testing.T) {
	dir := t.TempDir()
	pw := []geom.Homography{geom.Translation(1, 0), geom.Translation(2, 0), geom.Translation(3, 0)}
	if err := SaveFile(FileName(dir, "seq"), pw); err != nil {
		t.Fatal(err)
	}
	fs := testFrames(4)
	ins := make([]ops.Promise, len(fs))
	for i, f := range fs {
		ins[i] = ops.Materialized(f)
	}
	op := NewOpMotion(DefaultParams(), dir)
	op.Validate = false
	c := testContext()
	outs, err := op.MakePromises(ins, c)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ops.MaterializeAll(outs, c.MaxThreads, false)
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range got {
		if f != fs[i] {
			t.Errorf("out[%d] is not input frame %d", i, i)
		}
	}
	if !op.Loaded || len(c.Pairwise) != 3 || c.Pairwise[2] != pw[2] {
		t.Errorf("loaded=%v pairwise=%v; want loaded %v", op.Loaded, c.Pairwise, pw)
	}
	if c.Reference != 1 {
		t.Errorf("reference=%d; want 1", c.Reference)
	}
}
