package media

import "fmt"

// PixelFormat is the channel layout of a raw frame buffer. The zero value
// is not a valid format.
type PixelFormat uint8

// Supported pixel formats.
const (
	I420 PixelFormat = iota + 1 // planar YUV 4:2:0, one byte per buffer cell
	BGR
	RGB
	RGBA
)

var formatNames = [...]string{
	I420: "I420",
	BGR:  "BGR",
	RGB:  "RGB",
	RGBA: "RGBA",
}

// ParsePixelFormat maps a wire tag to its PixelFormat. Tags are
// case-sensitive.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "I420":
		return I420, nil
	case "BGR":
		return BGR, nil
	case "RGB":
		return RGB, nil
	case "RGBA":
		return RGBA, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}

// Valid reports whether f is one of the supported formats.
func (f PixelFormat) Valid() bool {
	return f >= I420 && f <= RGBA
}

// String returns the wire tag of f.
func (f PixelFormat) String() string {
	if !f.Valid() {
		return fmt.Sprintf("PixelFormat(%d)", uint8(f))
	}
	return formatNames[f]
}

// Channels returns the number of bytes each rows×cols cell occupies in a
// buffer of this format, or 0 for an invalid format. I420 buffers are
// single-channel shaped: rows covers the luma plane and both chroma planes.
func (f PixelFormat) Channels() int {
	switch f {
	case I420:
		return 1
	case BGR, RGB:
		return 3
	case RGBA:
		return 4
	}
	return 0
}

// BufferSize returns the exact buffer length a rows×cols image of format f
// must have.
func (f PixelFormat) BufferSize(rows, cols int) int {
	return rows * cols * f.Channels()
}
