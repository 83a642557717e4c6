//go:build gocv

package colorconv

import (
	"fmt"

	"gocv.io/x/gocv"
)

// OpenCV conversion codes used by the frame projections. The I420 codes are
// spelled numerically because gocv names them after the IYUV alias.
const (
	CodeI420ToBGR  gocv.ColorConversionCode = 101 // cv::COLOR_YUV2BGR_I420
	CodeI420ToGray gocv.ColorConversionCode = 106 // cv::COLOR_YUV2GRAY_420
	CodeRGBToBGR                            = gocv.ColorRGBToBGR
	CodeRGBAToBGR                           = gocv.ColorRGBAToBGR
	CodeBGRToGray                           = gocv.ColorBGRToGray
	CodeRGBToGray                           = gocv.ColorRGBToGray
	CodeRGBAToGray                          = gocv.ColorRGBAToGray
)

// CvtColor runs an OpenCV colour conversion over a rows×cols buffer with the
// given channel count and returns a copy of the destination pixels.
func CvtColor(src []byte, rows, cols, channels int, code gocv.ColorConversionCode) ([]byte, error) {
	var mt gocv.MatType
	switch channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	case 4:
		mt = gocv.MatTypeCV8UC4
	default:
		return nil, fmt.Errorf("%w: %d channels", ErrGeometry, channels)
	}

	in, err := gocv.NewMatFromBytes(rows, cols, mt, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeometry, err)
	}
	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()

	gocv.CvtColor(in, &out, code)
	if out.Empty() {
		return nil, fmt.Errorf("colorconv: cvtColor %d produced no output", code)
	}
	return out.ToBytes(), nil
}
