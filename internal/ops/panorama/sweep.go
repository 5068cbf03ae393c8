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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/geom"
	"github.com/mlnoga/xslit/internal/ops"
)

// Selects which parameter of a slice stays fixed during a sweep
type SweepMode int

const (
	SweepNone   SweepMode = iota // single panorama
	SweepFrames                  // fixed frame range, column window closing inwards
	SweepCols                    // fixed columns, frame range closing inwards
	SweepSlits                   // a slit line over the full frame range for every column
)

var sweepModeStrings = []string{"none", "frames", "cols", "slits"}

func (m SweepMode) String() string {
	if m < 0 || int(m) >= len(sweepModeStrings) {
		return fmt.Sprintf("SweepMode(%d)", int(m))
	}
	return sweepModeStrings[m]
}

func ParseSweepMode(s string) (SweepMode, error) {
	if s == "" {
		return SweepNone, nil
	}
	for i, name := range sweepModeStrings {
		if name == s {
			return SweepMode(i), nil
		}
	}
	return SweepNone, fmt.Errorf("unknown sweep mode '%s'", s)
}

func (m SweepMode) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

func (m *SweepMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	p, err := ParseSweepMode(s)
	if err != nil {
		return err
	}
	*m = p
	return nil
}

// Returns the slices of a sweep around the base slice, for numFrames frames of the given width
func Requests(base Slice, mode SweepMode, numFrames, width int) []Slice {
	var res []Slice
	switch mode {
	case SweepFrames:
		minCol, maxCol := min(base.StartColumn, base.EndColumn), max(base.StartColumn, base.EndColumn)
		for j := minCol; j < maxCol/2; j++ {
			res = append(res, Slice{base.StartFrame, base.EndFrame, j, base.EndColumn - j})
		}
	case SweepCols:
		n := base.EndFrame - base.StartFrame + 1
		for j := 0; j < n/2; j++ {
			res = append(res, Slice{base.StartFrame + j, base.EndFrame - j, base.StartColumn, base.EndColumn})
		}
	case SweepSlits:
		for i := 0; i < width; i++ {
			res = append(res, Slice{0, numFrames - 1, i, i})
		}
	default:
		res = []Slice{base}
	}
	return res
}

// A panorama together with the slice that produced it. Image is nil if Err is set
type Result struct {
	Slice Slice
	Image *frame.Image
	Err   error
}

// Creates all panoramas of a sweep concurrently. Results are in request order.
// A failing panorama does not stop the others, all errors are joined
func Sweep(frames []*frame.Image, pairwise []geom.Homography, base Slice, mode SweepMode, c *ops.Context) ([]Result, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrInvalidSliceBounds)
	}
	reqs := Requests(base, mode, len(frames), frames[0].Width())
	res := make([]Result, len(reqs))

	sem := make(chan bool, max(c.MaxThreads, 1)) // limit parallelism
	for i, s := range reqs {
		sem <- true
		go func(i int, s Slice) {
			defer func() { <-sem }()
			img, err := Create(frames, pairwise, s)
			if err != nil {
				err = fmt.Errorf("%s: %w", s.Tag(), err)
			}
			res[i] = Result{Slice: s, Image: img, Err: err}
		}(i, s)
	}
	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}

	var errs []error
	for _, r := range res {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	fmt.Fprintf(c.Log, "Swept %d panoramas in mode %s, %d failed\n", len(res), mode, len(errs))
	return res, errors.Join(errs...)
}
