// Package media defines the frame types exchanged between producers and
// consumers: the decoded Frame with its lazily computed colour projections,
// the outgoing Image, and the per-frame Metadata stamped on the wire.
package media

import (
	"fmt"
	"image"
	"sync"
	"time"
)

// DefaultVersion is the protocol version stamped on frames when the
// producer supplies no metadata of its own.
const DefaultVersion = "1.0"

// Metadata carries the producer-defined fields of a frame.
type Metadata struct {
	Version   string
	Timestamp int64 // microseconds since the Unix epoch
	FrameType int16 // 0 = default
	MatType   int32 // opaque, passed through unchanged
}

// Frame is a decoded video frame. It owns its raw buffer and is immutable
// after construction apart from the BGR and grayscale projections, which
// are each computed at most once on first access.
type Frame struct {
	Metadata
	Format PixelFormat
	Rows   int
	Cols   int
	Data   []byte

	conv Converter
	bgr  projection
	gray projection
}

// projection is a compute-once cache cell.
type projection struct {
	once sync.Once
	buf  []byte
	err  error
}

func (p *projection) get(compute func() ([]byte, error)) ([]byte, error) {
	p.once.Do(func() {
		p.buf, p.err = compute()
	})
	return p.buf, p.err
}

// NewFrame validates data against the declared format and dimensions and
// wraps it in a Frame. conv performs the colour projections; nil selects
// DefaultConverter.
func NewFrame(meta Metadata, format PixelFormat, rows, cols int, data []byte, conv Converter) (*Frame, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, format)
	}
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: negative dimensions %dx%d", ErrMalformedBuffer, cols, rows)
	}
	if want := format.BufferSize(rows, cols); len(data) != want {
		return nil, fmt.Errorf("%w: %s %dx%d needs %d bytes, got %d",
			ErrMalformedBuffer, format, cols, rows, want, len(data))
	}
	if conv == nil {
		conv = DefaultConverter
	}
	return &Frame{
		Metadata: meta,
		Format:   format,
		Rows:     rows,
		Cols:     cols,
		Data:     data,
		conv:     conv,
	}, nil
}

// Width returns the buffer width in pixels.
func (f *Frame) Width() int { return f.Cols }

// Height returns the buffer height in rows. For I420 this includes the
// chroma planes; see PictureSize for the displayed height.
func (f *Frame) Height() int { return f.Rows }

// PictureSize returns the dimensions of the BGR and grayscale projections.
func (f *Frame) PictureSize() (width, height int) {
	if f.Format == I420 {
		return f.Cols, f.Rows * 2 / 3
	}
	return f.Cols, f.Rows
}

// Time returns the frame timestamp in microseconds since the Unix epoch.
func (f *Frame) Time() int64 { return f.Timestamp }

// Datetime returns the frame timestamp as local calendar time truncated to
// whole seconds.
func (f *Frame) Datetime() time.Time {
	sec, _ := splitMicros(f.Timestamp)
	return time.Unix(sec, 0)
}

// Msec returns the sub-second remainder of the timestamp in microseconds.
// Datetime and Msec together reconstruct Time exactly.
func (f *Frame) Msec() int64 {
	_, rem := splitMicros(f.Timestamp)
	return rem
}

func splitMicros(us int64) (sec, rem int64) {
	sec, rem = us/1_000_000, us%1_000_000
	if rem < 0 {
		sec--
		rem += 1_000_000
	}
	return sec, rem
}

// BGR returns the packed BGR projection of the frame. For BGR frames this
// is the raw buffer itself. The result is cached; callers must not modify it.
func (f *Frame) BGR() ([]byte, error) {
	return f.bgr.get(func() ([]byte, error) {
		return f.converter().ToBGR(f.Format, f.Rows, f.Cols, f.Data)
	})
}

// Gray returns the single-channel luma projection of the frame. The result
// is cached independently of BGR; callers must not modify it.
func (f *Frame) Gray() ([]byte, error) {
	return f.gray.get(func() ([]byte, error) {
		return f.converter().ToGray(f.Format, f.Rows, f.Cols, f.Data)
	})
}

// converter tolerates frames built as literals rather than through NewFrame.
func (f *Frame) converter() Converter {
	if f.conv == nil {
		return DefaultConverter
	}
	return f.conv
}

// Image returns the frame as an RGBA image built from its BGR projection,
// for use with the standard image encoders.
func (f *Frame) Image() (*image.RGBA, error) {
	bgr, err := f.BGR()
	if err != nil {
		return nil, err
	}
	w, h := f.PictureSize()
	if len(bgr) != w*h*3 {
		return nil, fmt.Errorf("%w: bgr projection is %d bytes, want %d", ErrMalformedBuffer, len(bgr), w*h*3)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < len(bgr); i, j = i+3, j+4 {
		img.Pix[j] = bgr[i+2]
		img.Pix[j+1] = bgr[i+1]
		img.Pix[j+2] = bgr[i]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}
