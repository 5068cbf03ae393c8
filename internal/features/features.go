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


package features

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mlnoga/xslit/internal/frame"
	"github.com/mlnoga/xslit/internal/geom"
)

// Index-aligned point correspondences between a source and a destination frame.
// Src[i] in the first frame corresponds to Dst[i] in the second. Sorted by ascending match distance
type Correspondences struct {
	Src []geom.Point2D
	Dst []geom.Point2D
}

func (c Correspondences) Len() int { return len(c.Src) }

// Returns the correspondences with the given indices, in order
func (c Correspondences) Subset(indices []int) Correspondences {
	res := Correspondences{Src: make([]geom.Point2D, len(indices)), Dst: make([]geom.Point2D, len(indices))}
	for i, idx := range indices {
		res.Src[i], res.Dst[i] = c.Src[idx], c.Dst[idx]
	}
	return res
}

// A rectangular pixel region, half-open in both directions
type Region struct {
	RowMin int `json:"rowMin" yaml:"rowMin"`
	RowMax int `json:"rowMax" yaml:"rowMax"`
	ColMin int `json:"colMin" yaml:"colMin"`
	ColMax int `json:"colMax" yaml:"colMax"`
}

var ErrInvalidRegion = errors.New("invalid region")

// True if the pixel at column x, row y lies inside the region
func (r *Region) Contains(x, y int) bool {
	return r == nil || (x >= r.ColMin && x < r.ColMax && y >= r.RowMin && y < r.RowMax)
}

// Checks the region is non-empty and inside an image of the given size
func (r *Region) Validate(width, height int) error {
	if r.RowMin < 0 || r.ColMin < 0 || r.RowMax > height || r.ColMax > width ||
		r.RowMin >= r.RowMax || r.ColMin >= r.ColMax {
		return fmt.Errorf("%w: rows [%d:%d] cols [%d:%d] in %dx%d image", ErrInvalidRegion,
			r.RowMin, r.RowMax, r.ColMin, r.ColMax, width, height)
	}
	return nil
}

// Parses a region from "rowMin,rowMax,colMin,colMax"
func ParseRegion(s string) (*Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: '%s' needs four comma-separated values", ErrInvalidRegion, s)
	}
	var vals [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRegion, err.Error())
		}
		vals[i] = v
	}
	return &Region{RowMin: vals[0], RowMax: vals[1], ColMin: vals[2], ColMax: vals[3]}, nil
}

// Parameters for keypoint detection and description
type Params struct {
	FastThreshold int     `json:"fastThreshold" yaml:"fastThreshold"` // Intensity difference for FAST corner test
	Levels        int     `json:"levels"        yaml:"levels"`        // Number of pyramid levels
	ScaleFactor   float64 `json:"scaleFactor"   yaml:"scaleFactor"`   // Downscaling factor between pyramid levels
	MaxFeatures   int     `json:"maxFeatures"   yaml:"maxFeatures"`   // Maximum number of features retained per frame
	Backend       string  `json:"backend"       yaml:"backend"`       // Extractor backend, see Backends()
}

func DefaultParams() Params {
	return Params{
		FastThreshold: 20,
		Levels:        4,
		ScaleFactor:   1.2,
		MaxFeatures:   500,
		Backend:       BackendNative,
	}
}

// Extracts correspondences between two frames
type Extractor interface {
	Extract(a, b *frame.Image, region *Region) (Correspondences, error)
}

const (
	BackendNative = "native"
	BackendGoCV   = "gocv"
)

var backends = map[string]func(p Params) Extractor{
	BackendNative: func(p Params) Extractor { return nativeExtractor{p} },
}

// Returns the names of the compiled-in backends
func Backends() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	return names
}

// Creates an extractor for the backend named in the parameters
func NewExtractor(p Params) (Extractor, error) {
	name := p.Backend
	if name == "" {
		name = BackendNative
	}
	f, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown feature backend '%s', have %v", name, Backends())
	}
	return f(p), nil
}

type nativeExtractor struct {
	p Params
}

func (e nativeExtractor) Extract(a, b *frame.Image, region *Region) (Correspondences, error) {
	return Extract(a, b, region, e.p)
}

// Detects features in both frames, optionally restricted to the same region, and matches them.
// Returns an empty set if either frame has no keypoints
func Extract(a, b *frame.Image, region *Region, p Params) (Correspondences, error) {
	if region != nil {
		if err := region.Validate(a.Width(), a.Height()); err != nil {
			return Correspondences{}, err
		}
	}
	fa := Detect(a.Gray(), region, p)
	fb := Detect(b.Gray(), region, p)
	if len(fa) == 0 || len(fb) == 0 {
		return Correspondences{}, nil
	}

	matches := Match(fa, fb)
	corr := Correspondences{Src: make([]geom.Point2D, len(matches)), Dst: make([]geom.Point2D, len(matches))}
	for i, m := range matches {
		corr.Src[i] = geom.Point2D{X: fa[m.A].X, Y: fa[m.A].Y}
		corr.Dst[i] = geom.Point2D{X: fb[m.B].X, Y: fb[m.B].Y}
	}
	return corr, nil
}
