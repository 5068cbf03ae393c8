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
	"fmt"
	"math"

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/ops"
	"github.com/mlnoga/xslit/internal/qsort"
)

// Per-pixel reduction over a stack of aligned frames
type StackMode int

const (
	StMean StackMode = iota
	StMedian
)

func (m StackMode) String() string {
	switch m {
	case StMean:
		return "mean"
	case StMedian:
		return "median"
	default:
		return fmt.Sprintf("StackMode(%d)", int(m))
	}
}

// Parses "mean" or "median". The empty string selects the mean
func ParseStackMode(s string) (StackMode, error) {
	switch s {
	case "", "mean":
		return StMean, nil
	case "median":
		return StMedian, nil
	default:
		return StMean, fmt.Errorf("unknown stacking mode '%s'", s)
	}
}

func (m StackMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *StackMode) UnmarshalText(b []byte) error {
	mode, err := ParseStackMode(string(b))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Stacks a set of aligned frames of identical shape, pixel by pixel and channel by channel.
// Runs in parallel over batches of pixels, limited by the context's thread count
func Stack(f []*frame.Image, mode StackMode, c *ops.Context) (*frame.Image, error) {
	if len(f) == 0 {
		return nil, fmt.Errorf("no frames to stack")
	}
	for _, l := range f[1:] {
		if !l.SameShape(f[0]) {
			return nil, fmt.Errorf("%d: shape %s differs from %s", l.ID, l.DimensionsToString(), f[0].DimensionsToString())
		}
	}
	if mode != StMean && mode != StMedian {
		return nil, fmt.Errorf("invalid stacking mode %d", mode)
	}

	// create return value array
	data := make([]float32, len(f[0].Data))

	// split into 8 MB work packages, no fewer than 8 per thread
	maxThreads := c.MaxThreads
	if maxThreads < 1 {
		maxThreads = 1
	}
	numBatches := 4 * len(f) * len(data) / (8192 * 1024)
	if numBatches < 8*maxThreads {
		numBatches = 8 * maxThreads
	}
	batchSize := (len(data) + numBatches - 1) / numBatches
	if batchSize < 1 {
		batchSize = 1
	}
	sem := make(chan bool, maxThreads) // limit parallelism

	for lower := 0; lower < len(data); lower += batchSize {
		upper := lower + batchSize
		if upper > len(data) {
			upper = len(data)
		}

		sem <- true
		go func(lower, upper int) {
			defer func() { <-sem }()

			// subslice f data elements for given batch
			batch := make([][]float32, len(f))
			for i, l := range f {
				batch[i] = l.Data[lower:upper]
			}
			switch mode {
			case StMedian:
				StackMedian(batch, data[lower:upper])
			case StMean:
				StackMean(batch, data[lower:upper])
			}
		}(lower, upper)
	}
	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}

	res := frame.NewImageFromNaxisn(f[0].Naxisn, data)
	res.ID = f[0].ID
	return res, nil
}

// Stacking with median function. NaNs are skipped; pixels without valid values become zero
func StackMedian(lightsData [][]float32, res []float32) {
	gatheredFull := make([]float32, len(lightsData))
	for i := range res {
		numGathered := 0
		for li := range lightsData {
			if value := lightsData[li][i]; !math.IsNaN(float64(value)) {
				gatheredFull[numGathered] = value
				numGathered++
			}
		}
		if numGathered == 0 {
			res[i] = 0
			continue
		}
		res[i] = qsort.QSelectMedianFloat32(gatheredFull[:numGathered])
	}
}

// Stacking with mean function. NaNs are skipped; pixels without valid values become zero
func StackMean(lightsData [][]float32, res []float32) {
	for i := range res {
		numGathered := 0
		sum := float64(0)
		for li := range lightsData {
			if value := lightsData[li][i]; !math.IsNaN(float64(value)) {
				sum += float64(value)
				numGathered++
			}
		}
		if numGathered == 0 {
			res[i] = 0
			continue
		}
		res[i] = float32(sum / float64(numGathered))
	}
}
