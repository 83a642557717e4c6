package media

import (
	"fmt"

	"github.com/zsiec/scorer/internal/colorconv"
)

// Converter projects a raw buffer of a given format into packed BGR or
// single-channel grayscale. Implementations must reject formats outside the
// enumeration with ErrInvalidFormat.
type Converter interface {
	ToBGR(format PixelFormat, rows, cols int, data []byte) ([]byte, error)
	ToGray(format PixelFormat, rows, cols int, data []byte) ([]byte, error)
}

// DefaultConverter is used by frames constructed without an explicit
// converter.
var DefaultConverter Converter = GoConverter{}

// GoConverter is the pure Go Converter.
type GoConverter struct{}

// ToBGR implements Converter. BGR input is returned as is.
func (GoConverter) ToBGR(format PixelFormat, rows, cols int, data []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch format {
	case I420:
		out, err = colorconv.I420ToBGR(data, rows, cols)
	case BGR:
		return data, nil
	case RGB:
		out, err = colorconv.SwapRB(data, 3)
	case RGBA:
		out, err = colorconv.SwapRB(data, 4)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, format)
	}
	return out, wrapGeometry(err)
}

// ToGray implements Converter.
func (GoConverter) ToGray(format PixelFormat, rows, cols int, data []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch format {
	case I420:
		out, err = colorconv.I420ToGray(data, rows, cols)
	case BGR:
		out, err = colorconv.BGRToGray(data)
	case RGB:
		out, err = colorconv.RGBToGray(data)
	case RGBA:
		out, err = colorconv.RGBAToGray(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, format)
	}
	return out, wrapGeometry(err)
}

func wrapGeometry(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrMalformedBuffer, err)
}
