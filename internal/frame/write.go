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
	"bufio"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const JPGQuality = 95

// Writes the image to a file, choosing the encoder by file suffix
func (f *Image) WriteFile(fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := f.Encode(writer, filepath.Ext(fileName)); err != nil {
		return err
	}
	return writer.Flush()
}

// Encodes the image in the format given by the suffix, e.g. ".png"
func (f *Image) Encode(writer io.Writer, suffix string) error {
	img := f.ToGoImage()
	switch strings.ToLower(suffix) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(writer, img, &jpeg.Options{Quality: JPGQuality})
	case ".png":
		return png.Encode(writer, img)
	case ".tif", ".tiff":
		return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case ".bmp":
		return bmp.Encode(writer, img)
	default:
		return fmt.Errorf("unknown output image suffix '%s'", suffix)
	}
}

// Converts the image into an 8-bit golang image. Values are truncated and clamped to [0,255]
func (f *Image) ToGoImage() image.Image {
	width, height := f.Width(), f.Height()
	rect := image.Rect(0, 0, width, height)
	if f.Channels() < 3 {
		img := image.NewGray(rect)
		for i, v := range f.Plane(0) {
			img.Pix[i] = Quantize(v)
		}
		return img
	}

	img := image.NewRGBA(rect)
	rs, gs, bs := f.Plane(0), f.Plane(1), f.Plane(2)
	for i := range rs {
		img.Pix[4*i] = Quantize(rs[i])
		img.Pix[4*i+1] = Quantize(gs[i])
		img.Pix[4*i+2] = Quantize(bs[i])
		img.Pix[4*i+3] = 255
	}
	return img
}
