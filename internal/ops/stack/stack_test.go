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


package stack

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/ops"
)

func TestStackMeanMedian(t *testing.T) {
	values := [][]float32{{1, 10, 0}, {2, 20, 255}, {9, 30, 255}, {4, 40, 0}}
	fs := make([]*frame.Image, len(values))
	for i, v := range values {
		fs[i] = frame.NewImageFromNaxisn([]int32{3, 1}, v)
	}
	c := &ops.Context{Log: io.Discard, MaxThreads: 2}

	mean, err := Stack(fs, StMean, c)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float32{4, 25, 127.5} {
		if mean.Data[i] != want {
			t.Errorf("mean[%d]=%v; want %v", i, mean.Data[i], want)
		}
	}

	median, err := Stack(fs, StMedian, c)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float32{3, 25, 127.5} {
		if median.Data[i] != want {
			t.Errorf("median[%d]=%v; want %v", i, median.Data[i], want)
		}
	}
	// inputs unchanged by partial sorting
	if fs[2].Data[0] != 9 {
		t.Errorf("input modified: %v", fs[2].Data)
	}
}

func TestStackShapeMismatch(t *testing.T) {
	fs := []*frame.Image{frame.NewImageFromNaxisn([]int32{3, 1}, nil), frame.NewImageFromNaxisn([]int32{2, 1}, nil)}
	if _, err := Stack(fs, StMean, &ops.Context{Log: io.Discard, MaxThreads: 1}); err == nil {
		t.Errorf("err=nil; want shape error")
	}
	if _, err := Stack(nil, StMean, &ops.Context{Log: io.Discard, MaxThreads: 1}); err == nil {
		t.Errorf("err=nil; want error for empty stack")
	}
}

func TestStackModeJSON(t *testing.T) {
	var v struct {
		Mode StackMode `json:"mode"`
	}
	if err := json.Unmarshal([]byte(`{"mode":"median"}`), &v); err != nil || v.Mode != StMedian {
		t.Errorf("mode=%v err=%v; want median", v.Mode, err)
	}
	if err := json.Unmarshal([]byte(`{"mode":"sigma"}`), &v); err == nil {
		t.Errorf("err=nil; want error")
	}
	b, _ := json.Marshal(v)
	if string(b) != `{"mode":"median"}` {
		t.Errorf("json=%s", b)
	}
}
