// Package record stores frames as a stream of msgpack records so a capture
// can be replayed through a Writer later.
//
// A recording starts with a header record followed by one record per frame.
// Frames are stored exactly as they travelled on the wire, so replaying a
// recording reproduces the original metadata.
package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/zsiec/scorer/media"
)

// Magic identifies a recording.
const Magic = "scorer-rec"

// FormatVersion is the recording layout written by this package.
const FormatVersion = 1

// ErrBadHeader is returned when a stream does not start with a recording
// header this package understands.
var ErrBadHeader = errors.New("record: bad header")

type header struct {
	Magic   string `msgpack:"magic"`
	Version int    `msgpack:"version"`
}

type frameRecord struct {
	Version     string `msgpack:"version"`
	Timestamp   int64  `msgpack:"timestamp"`
	FrameType   int16  `msgpack:"frame_type"`
	PixelFormat string `msgpack:"pixel_format"`
	Rows        int32  `msgpack:"rows"`
	Cols        int32  `msgpack:"cols"`
	MatType     int32  `msgpack:"mat_type"`
	Data        []byte `msgpack:"data"`
}

// Writer appends frames to a recording.
type Writer struct {
	bw     *bufio.Writer
	enc    *msgpack.Encoder
	frames int
}

// NewWriter writes the recording header to w and returns a Writer for the
// frames that follow. Call Flush before closing w.
func NewWriter(w io.Writer) (*Writer, error) {
	bw := bufio.NewWriter(w)
	enc := msgpack.NewEncoder(bw)
	if err := enc.Encode(header{Magic: Magic, Version: FormatVersion}); err != nil {
		return nil, fmt.Errorf("record: write header: %w", err)
	}
	return &Writer{bw: bw, enc: enc}, nil
}

// Write appends f to the recording.
func (w *Writer) Write(f *media.Frame) error {
	rec := frameRecord{
		Version:     f.Version,
		Timestamp:   f.Timestamp,
		FrameType:   f.FrameType,
		PixelFormat: f.Format.String(),
		Rows:        int32(f.Rows),
		Cols:        int32(f.Cols),
		MatType:     f.MatType,
		Data:        f.Data,
	}
	if err := w.enc.Encode(&rec); err != nil {
		return fmt.Errorf("record: write frame %d: %w", w.frames, err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (w *Writer) Frames() int { return w.frames }

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Reader replays a recording.
type Reader struct {
	dec  *msgpack.Decoder
	conv media.Converter
	n    int
}

// NewReader checks the recording header in r. conv is attached to every
// frame returned by Next; nil selects media.DefaultConverter.
func NewReader(r io.Reader, conv media.Converter) (*Reader, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadHeader, h.Magic)
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, h.Version)
	}
	return &Reader{dec: dec, conv: conv}, nil
}

// Next returns the next frame, or io.EOF after the last one. Frames are
// validated the same way received frames are.
func (r *Reader) Next() (*media.Frame, error) {
	var rec frameRecord
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("record: read frame %d: %w", r.n, err)
	}

	format, err := media.ParsePixelFormat(rec.PixelFormat)
	if err != nil {
		return nil, fmt.Errorf("record: frame %d: %w", r.n, err)
	}
	meta := media.Metadata{
		Version:   rec.Version,
		Timestamp: rec.Timestamp,
		FrameType: rec.FrameType,
		MatType:   rec.MatType,
	}
	f, err := media.NewFrame(meta, format, int(rec.Rows), int(rec.Cols), rec.Data, r.conv)
	if err != nil {
		return nil, fmt.Errorf("record: frame %d: %w", r.n, err)
	}
	r.n++
	return f, nil
}
