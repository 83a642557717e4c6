// Package testpattern generates synthetic frames in every pixel format.
package testpattern

import (
	"fmt"

	"github.com/zsiec/scorer/media"
)

// Bars are the eight colour bars, in RGB, left to right.
var Bars = [8][3]byte{
	{255, 255, 255}, // white
	{255, 255, 0},   // yellow
	{0, 255, 255},   // cyan
	{0, 255, 0},     // green
	{255, 0, 255},   // magenta
	{255, 0, 0},     // red
	{0, 0, 255},     // blue
	{0, 0, 0},       // black
}

// Generate returns frame n of a scrolling colour-bar pattern with a picture
// of height×width pixels in the given format. The bars move one pixel to
// the left per frame. I420 needs even dimensions, and its buffer has
// height*3/2 rows.
func Generate(format media.PixelFormat, height, width, n int) (media.Image, error) {
	if height < 0 || width < 0 {
		return media.Image{}, fmt.Errorf("%w: negative size %dx%d", media.ErrMalformedBuffer, width, height)
	}
	switch format {
	case media.BGR, media.RGB, media.RGBA:
		return packed(format, height, width, n), nil
	case media.I420:
		if height%2 != 0 || width%2 != 0 {
			return media.Image{}, fmt.Errorf("%w: I420 needs even dimensions, got %dx%d",
				media.ErrMalformedBuffer, width, height)
		}
		return i420(height, width, n), nil
	default:
		return media.Image{}, fmt.Errorf("%w: %s", media.ErrInvalidFormat, format)
	}
}

// At returns the RGB colour of pixel x in frame n of a pattern width pixels
// wide.
func At(x, width, n int) [3]byte {
	if width == 0 {
		return Bars[0]
	}
	pos := ((x+n)%width + width) % width
	return Bars[pos*len(Bars)/width]
}

func packed(format media.PixelFormat, height, width, n int) media.Image {
	ch := format.Channels()
	data := make([]byte, height*width*ch)
	row := make([]byte, width*ch)
	for x := 0; x < width; x++ {
		c := At(x, width, n)
		p := row[x*ch:]
		switch format {
		case media.BGR:
			p[0], p[1], p[2] = c[2], c[1], c[0]
		case media.RGB:
			p[0], p[1], p[2] = c[0], c[1], c[2]
		case media.RGBA:
			p[0], p[1], p[2], p[3] = c[0], c[1], c[2], 255
		}
	}
	for y := 0; y < height; y++ {
		copy(data[y*len(row):], row)
	}
	return media.Image{Format: format, Rows: height, Cols: width, Data: data}
}

func i420(height, width, n int) media.Image {
	ySize := width * height
	cSize := ySize / 4
	data := make([]byte, ySize+2*cSize)
	yPlane := data[:ySize]
	uPlane := data[ySize : ySize+cSize]
	vPlane := data[ySize+cSize:]

	for x := 0; x < width; x++ {
		y, _, _ := YUV(At(x, width, n))
		for row := 0; row < height; row++ {
			yPlane[row*width+x] = y
		}
	}
	cw := width / 2
	for cx := 0; cx < cw; cx++ {
		_, u, v := YUV(At(cx*2, width, n))
		for row := 0; row < height/2; row++ {
			uPlane[row*cw+cx] = u
			vPlane[row*cw+cx] = v
		}
	}
	return media.Image{Format: media.I420, Rows: height * 3 / 2, Cols: width, Data: data}
}

// YUV converts an RGB colour to limited-range BT.601 YCbCr.
func YUV(c [3]byte) (y, u, v byte) {
	r, g, b := int(c[0]), int(c[1]), int(c[2])
	y = byte(((66*r + 129*g + 25*b + 128) >> 8) + 16)
	u = byte(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
	v = byte(((112*r - 94*g - 18*b + 128) >> 8) + 128)
	return y, u, v
}
