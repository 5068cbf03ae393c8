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


package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// A decoded video frame or still image.
// Pixel data is stored planar, one full plane per channel, with values in the display range [0,255].
type Image struct {
	ID       int    // Sequential ID number in capture order, for log output
	FileName string // Original file name, if any, for log output
	Tag      string // Label of derived images, e.g. the panorama parameters. Used for output naming

	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first, i.e. width, height[, channels]
	Pixels int32   // Number of values in the image. Product of Naxisn[]

	Data []float32 // The image data
}

// Creates an image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
	}
}

// Creates an image with the same dimensions and ID as the given one. New zeroed data is allocated
func NewImageFromImage(img *Image) *Image {
	res := NewImageFromNaxisn(img.Naxisn, nil)
	res.ID, res.FileName, res.Tag = img.ID, img.FileName, img.Tag
	return res
}

func (f *Image) Width() int  { return int(f.Naxisn[0]) }
func (f *Image) Height() int { return int(f.Naxisn[1]) }

func (f *Image) Channels() int {
	if len(f.Naxisn) < 3 {
		return 1
	}
	return int(f.Naxisn[2])
}

// Returns the data plane for the given channel
func (f *Image) Plane(ch int) []float32 {
	size := f.Width() * f.Height()
	return f.Data[ch*size : (ch+1)*size]
}

// True if the other image has identical dimensions
func (f *Image) SameShape(o *Image) bool {
	if len(f.Naxisn) != len(o.Naxisn) {
		return false
	}
	for i := range f.Naxisn {
		if f.Naxisn[i] != o.Naxisn[i] {
			return false
		}
	}
	return true
}

func (f *Image) DimensionsToString() string {
	if len(f.Naxisn) < 3 {
		return fmt.Sprintf("%dx%d", f.Naxisn[0], f.Naxisn[1])
	}
	return fmt.Sprintf("%dx%dx%d", f.Naxisn[0], f.Naxisn[1], f.Naxisn[2])
}

var ErrColumnRange = errors.New("column range outside image")

// Copies the column slab [start, end) into a new image of width end-start
func (f *Image) Columns(start, end int) (*Image, error) {
	width := f.Width()
	if start < 0 || end > width || start > end {
		return nil, fmt.Errorf("%w: [%d:%d] of width %d", ErrColumnRange, start, end, width)
	}
	naxisn := append([]int32(nil), f.Naxisn...)
	naxisn[0] = int32(end - start)
	res := NewImageFromNaxisn(naxisn, nil)
	res.ID, res.FileName = f.ID, f.FileName
	res.CopyColumns(0, f, start, end)
	return res, nil
}

// Copies source columns [start, end) into this image starting at column dstCol.
// Caller guarantees both ranges are in bounds and channel counts match
func (f *Image) CopyColumns(dstCol int, src *Image, start, end int) {
	n := end - start
	if n <= 0 {
		return
	}
	dw, sw, height := f.Width(), src.Width(), f.Height()
	for ch := 0; ch < f.Channels(); ch++ {
		dp, sp := f.Plane(ch), src.Plane(ch)
		for y := 0; y < height; y++ {
			copy(dp[y*dw+dstCol:y*dw+dstCol+n], sp[y*sw+start:y*sw+end])
		}
	}
}

// Removes all columns whose values are zero in every row and channel
func (f *Image) RemoveZeroColumns() *Image {
	width, height, chans := f.Width(), f.Height(), f.Channels()
	keep := make([]int, 0, width)
	for x := 0; x < width; x++ {
		nonZero := false
		for ch := 0; ch < chans && !nonZero; ch++ {
			p := f.Plane(ch)
			for y := 0; y < height; y++ {
				if p[y*width+x] != 0 {
					nonZero = true
					break
				}
			}
		}
		if nonZero {
			keep = append(keep, x)
		}
	}
	if len(keep) == width {
		return f
	}
	naxisn := append([]int32(nil), f.Naxisn...)
	naxisn[0] = int32(len(keep))
	res := NewImageFromNaxisn(naxisn, nil)
	res.ID, res.FileName = f.ID, f.FileName
	for i, x := range keep {
		res.CopyColumns(i, f, x, x+1)
	}
	return res
}

// Returns the mean value of every channel
func (f *Image) ChannelMeans() []float32 {
	means := make([]float32, f.Channels())
	for ch := range means {
		sum := float64(0)
		p := f.Plane(ch)
		for _, v := range p {
			sum += float64(v)
		}
		if len(p) > 0 {
			means[ch] = float32(sum / float64(len(p)))
		}
	}
	return means
}

// Returns a luminance version of the image, using Rec. 709 weights for color images
func (f *Image) Gray() *image.Gray {
	width, height := f.Width(), f.Height()
	g := image.NewGray(image.Rect(0, 0, width, height))
	if f.Channels() < 3 {
		p := f.Plane(0)
		for i, v := range p {
			g.Pix[i] = Quantize(v)
		}
		return g
	}
	rs, gs, bs := f.Plane(0), f.Plane(1), f.Plane(2)
	for i := range rs {
		g.Pix[i] = Quantize(0.2126*rs[i] + 0.7152*gs[i] + 0.0722*bs[i])
	}
	return g
}

// Truncates a value to the display integer range
func Quantize(v float32) uint8 {
	if !(v > 0) { // also catches NaN
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// Quantizes all values in place, emulating a cast to 8-bit unsigned integers
func (f *Image) QuantizeInPlace() {
	for i, v := range f.Data {
		f.Data[i] = float32(Quantize(v))
	}
}

// Reverses a frame sequence in place
func Reverse(frames []*Image) {
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
}

func colorModelToChannels(m color.Model) int32 {
	switch m {
	case color.GrayModel, color.Gray16Model, color.AlphaModel, color.Alpha16Model:
		return 1
	default:
		return 3
	}
}
