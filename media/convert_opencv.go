//go:build gocv

package media

import (
	"fmt"

	"github.com/zsiec/scorer/internal/colorconv"
)

func init() {
	DefaultConverter = OpenCVConverter{}
}

// OpenCVConverter runs the projections through OpenCV's cvtColor. It is
// compiled in with the gocv build tag and then becomes DefaultConverter.
type OpenCVConverter struct{}

// ToBGR implements Converter. BGR input is returned as is.
func (OpenCVConverter) ToBGR(format PixelFormat, rows, cols int, data []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch format {
	case I420:
		if _, _, err := colorconv.I420Size(rows, cols); err != nil {
			return nil, wrapGeometry(err)
		}
		out, err = colorconv.CvtColor(data, rows, cols, 1, colorconv.CodeI420ToBGR)
	case BGR:
		return data, nil
	case RGB:
		out, err = colorconv.CvtColor(data, rows, cols, 3, colorconv.CodeRGBToBGR)
	case RGBA:
		out, err = colorconv.CvtColor(data, rows, cols, 4, colorconv.CodeRGBAToBGR)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, format)
	}
	return out, wrapGeometry(err)
}

// ToGray implements Converter.
func (OpenCVConverter) ToGray(format PixelFormat, rows, cols int, data []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch format {
	case I420:
		if _, _, err := colorconv.I420Size(rows, cols); err != nil {
			return nil, wrapGeometry(err)
		}
		out, err = colorconv.CvtColor(data, rows, cols, 1, colorconv.CodeI420ToGray)
	case BGR:
		out, err = colorconv.CvtColor(data, rows, cols, 3, colorconv.CodeBGRToGray)
	case RGB:
		out, err = colorconv.CvtColor(data, rows, cols, 3, colorconv.CodeRGBToGray)
	case RGBA:
		out, err = colorconv.CvtColor(data, rows, cols, 4, colorconv.CodeRGBAToGray)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, format)
	}
	return out, wrapGeometry(err)
}
