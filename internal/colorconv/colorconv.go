// Package colorconv implements the colour space transforms used to project
// raw frame buffers into packed BGR or single-channel grayscale.
//
// The integer coefficients match OpenCV's cvtColor so that frames converted
// here are byte-identical to those produced by consumers built on OpenCV.
package colorconv

import (
	"errors"
	"fmt"
)

// ErrGeometry is returned when a buffer's dimensions cannot describe an
// image of the requested layout.
var ErrGeometry = errors.New("colorconv: invalid geometry")

// BT.601 limited-range YUV → RGB coefficients, Q20 fixed point.
const (
	yuvShift = 20
	yuvRound = 1 << (yuvShift - 1)
	yuvCY    = 1220542 // 1.164
	yuvCUB   = 2116026 // 2.018
	yuvCUG   = -409993 // -0.391
	yuvCVG   = -852492 // -0.813
	yuvCVR   = 1673527 // 1.596
)

// RGB → luma coefficients, Q14 fixed point.
const (
	grayShift = 14
	grayRound = 1 << (grayShift - 1)
	grayR     = 4899
	grayG     = 9617
	grayB     = 1868
)

// I420Size returns the picture height and width described by an I420
// buffer of rows×cols bytes, where rows covers the Y plane followed by the
// quarter-size U and V planes.
func I420Size(rows, cols int) (height, width int, err error) {
	if rows <= 0 || cols <= 0 || rows%3 != 0 {
		return 0, 0, fmt.Errorf("%w: i420 rows %d not a positive multiple of 3", ErrGeometry, rows)
	}
	height = rows * 2 / 3
	if height%2 != 0 || cols%2 != 0 {
		return 0, 0, fmt.Errorf("%w: i420 picture %dx%d has odd dimensions", ErrGeometry, cols, height)
	}
	return height, cols, nil
}

// I420ToBGR converts a planar YUV 4:2:0 buffer to packed BGR.
func I420ToBGR(src []byte, rows, cols int) ([]byte, error) {
	height, width, err := I420Size(rows, cols)
	if err != nil {
		return nil, err
	}
	if len(src) != rows*cols {
		return nil, fmt.Errorf("%w: i420 buffer is %d bytes, want %d", ErrGeometry, len(src), rows*cols)
	}

	ySize := width * height
	cw := width / 2
	uPlane := src[ySize : ySize+ySize/4]
	vPlane := src[ySize+ySize/4:]

	dst := make([]byte, ySize*3)
	for y := 0; y < height; y++ {
		yRow := src[y*width : (y+1)*width]
		cOff := (y / 2) * cw
		out := dst[y*width*3 : (y+1)*width*3]
		for x := 0; x < width; x++ {
			u := int(uPlane[cOff+x/2]) - 128
			v := int(vPlane[cOff+x/2]) - 128
			luma := max(0, int(yRow[x])-16) * yuvCY

			out[x*3] = clamp((luma + yuvCUB*u + yuvRound) >> yuvShift)
			out[x*3+1] = clamp((luma + yuvCVG*v + yuvCUG*u + yuvRound) >> yuvShift)
			out[x*3+2] = clamp((luma + yuvCVR*v + yuvRound) >> yuvShift)
		}
	}
	return dst, nil
}

// I420ToGray returns the Y plane of a planar YUV 4:2:0 buffer.
func I420ToGray(src []byte, rows, cols int) ([]byte, error) {
	height, width, err := I420Size(rows, cols)
	if err != nil {
		return nil, err
	}
	if len(src) != rows*cols {
		return nil, fmt.Errorf("%w: i420 buffer is %d bytes, want %d", ErrGeometry, len(src), rows*cols)
	}
	dst := make([]byte, width*height)
	copy(dst, src)
	return dst, nil
}

// SwapRB reorders packed 3- or 4-channel pixels into packed BGR, swapping
// the first and third channel and dropping any fourth one.
func SwapRB(src []byte, channels int) ([]byte, error) {
	if err := checkPacked(src, channels); err != nil {
		return nil, err
	}
	n := len(src) / channels
	dst := make([]byte, n*3)
	for i := 0; i < n; i++ {
		p := src[i*channels:]
		dst[i*3] = p[2]
		dst[i*3+1] = p[1]
		dst[i*3+2] = p[0]
	}
	return dst, nil
}

// BGRToGray converts packed BGR to luma.
func BGRToGray(src []byte) ([]byte, error) {
	return toGray(src, 3, 2, 1, 0)
}

// RGBToGray converts packed RGB to luma.
func RGBToGray(src []byte) ([]byte, error) {
	return toGray(src, 3, 0, 1, 2)
}

// RGBAToGray converts packed RGBA to luma. Alpha is ignored.
func RGBAToGray(src []byte) ([]byte, error) {
	return toGray(src, 4, 0, 1, 2)
}

func toGray(src []byte, channels, ri, gi, bi int) ([]byte, error) {
	if err := checkPacked(src, channels); err != nil {
		return nil, err
	}
	n := len(src) / channels
	dst := make([]byte, n)
	for i := 0; i < n; i++ {
		p := src[i*channels:]
		dst[i] = byte((int(p[ri])*grayR + int(p[gi])*grayG + int(p[bi])*grayB + grayRound) >> grayShift)
	}
	return dst, nil
}

func checkPacked(src []byte, channels int) error {
	if channels != 3 && channels != 4 {
		return fmt.Errorf("%w: %d channels", ErrGeometry, channels)
	}
	if len(src)%channels != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of %d-channel pixels", ErrGeometry, len(src), channels)
	}
	return nil
}

func clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
