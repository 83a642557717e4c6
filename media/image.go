package media

import (
	"fmt"
	"image"
)

// Image is a raw outgoing buffer handed to a producer.
type Image struct {
	Format PixelFormat
	Rows   int
	Cols   int
	Data   []byte
}

// NewImage validates data against the declared format and dimensions.
func NewImage(format PixelFormat, rows, cols int, data []byte) (Image, error) {
	img := Image{Format: format, Rows: rows, Cols: cols, Data: data}
	return img, img.Validate()
}

// Validate reports whether the buffer length agrees with the declared
// format and dimensions.
func (img Image) Validate() error {
	if !img.Format.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidFormat, img.Format)
	}
	if img.Rows < 0 || img.Cols < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrMalformedBuffer, img.Cols, img.Rows)
	}
	if want := img.Format.BufferSize(img.Rows, img.Cols); len(img.Data) != want {
		return fmt.Errorf("%w: %s %dx%d needs %d bytes, got %d",
			ErrMalformedBuffer, img.Format, img.Cols, img.Rows, want, len(img.Data))
	}
	return nil
}

// ImageFromRGBA copies a standard library RGBA image into a packed RGBA
// buffer, dropping any row padding.
func ImageFromRGBA(src *image.RGBA) Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		off := src.PixOffset(b.Min.X, b.Min.Y+y)
		copy(data[y*w*4:(y+1)*w*4], src.Pix[off:off+w*4])
	}
	return Image{Format: RGBA, Rows: h, Cols: w, Data: data}
}
