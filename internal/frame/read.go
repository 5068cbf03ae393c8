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
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Creates an image from the file with the given name. Supports JPEG, PNG, TIFF and BMP
func NewImageFromFile(fileName string, id int, logWriter io.Writer) (*Image, error) {
	if !IsImageFile(fileName) {
		return nil, fmt.Errorf("%d: unsupported image file type %s", id, fileName)
	}
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%d: decoding %s: %w", id, fileName, err)
	}
	img.ID, img.FileName = id, fileName
	if logWriter != nil {
		fmt.Fprintf(logWriter, "%d: Loaded %s image from %s\n", id, img.DimensionsToString(), fileName)
	}
	return img, nil
}

// Decodes an image in any registered format into planar form
func Decode(r io.Reader) (*Image, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return FromGoImage(src), nil
}

// Converts a golang image into planar form. 16-bit samples are scaled into [0,255]
func FromGoImage(src image.Image) *Image {
	b := src.Bounds()
	width, height := b.Dx(), b.Dy()
	channels := colorModelToChannels(src.ColorModel())
	naxisn := []int32{int32(width), int32(height)}
	if channels > 1 {
		naxisn = append(naxisn, channels)
	}
	img := NewImageFromNaxisn(naxisn, nil)
	size := width * height

	switch t := src.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			row := t.Pix[y*t.Stride : y*t.Stride+width]
			for x, v := range row {
				img.Data[y*width+x] = float32(v)
			}
		}
	case *image.RGBA:
		for y := 0; y < height; y++ {
			row := t.Pix[y*t.Stride : y*t.Stride+4*width]
			for x := 0; x < width; x++ {
				img.Data[y*width+x] = float32(row[4*x])
				img.Data[y*width+x+size] = float32(row[4*x+1])
				img.Data[y*width+x+2*size] = float32(row[4*x+2])
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				c := src.At(b.Min.X+x, b.Min.Y+y)
				if channels == 1 {
					g := color.Gray16Model.Convert(c).(color.Gray16)
					img.Data[y*width+x] = float32(g.Y) / 257
					continue
				}
				n := color.NRGBA64Model.Convert(c).(color.NRGBA64)
				img.Data[y*width+x] = float32(n.R) / 257
				img.Data[y*width+x+size] = float32(n.G) / 257
				img.Data[y*width+x+2*size] = float32(n.B) / 257
			}
		}
	}
	return img
}

var imageSuffixes = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// True if the file name carries a supported image suffix. Hidden files like .DS_Store are excluded
func IsImageFile(fileName string) bool {
	base := filepath.Base(fileName)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return imageSuffixes[strings.ToLower(filepath.Ext(base))]
}
