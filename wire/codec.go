package wire

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zsiec/scorer/media"
)

// NumParts is the number of parts in a frame message.
const NumParts = 8

// Part indexes within a frame message.
const (
	PartVersion = iota
	PartTimestamp
	PartFrameType
	PartPixelFormat
	PartRows
	PartCols
	PartMatType
	PartData
)

var partNames = [NumParts]string{
	PartVersion:     "version",
	PartTimestamp:   "timestamp",
	PartFrameType:   "frame_type",
	PartPixelFormat: "pixel_format",
	PartRows:        "rows",
	PartCols:        "cols",
	PartMatType:     "mat_type",
	PartData:        "data",
}

// Encode packs meta and img into the parts of a frame message. It does not
// validate the buffer against the declared dimensions; img.Data is
// referenced, not copied.
func Encode(meta media.Metadata, img media.Image) [][]byte {
	parts := make([][]byte, NumParts)
	parts[PartVersion] = []byte(meta.Version)
	parts[PartTimestamp] = binary.BigEndian.AppendUint64(nil, uint64(meta.Timestamp))
	parts[PartFrameType] = binary.BigEndian.AppendUint16(nil, uint16(meta.FrameType))
	parts[PartPixelFormat] = []byte(img.Format.String())
	parts[PartRows] = binary.BigEndian.AppendUint32(nil, uint32(int32(img.Rows)))
	parts[PartCols] = binary.BigEndian.AppendUint32(nil, uint32(int32(img.Cols)))
	parts[PartMatType] = binary.BigEndian.AppendUint32(nil, uint32(meta.MatType))
	parts[PartData] = img.Data
	return parts
}

// EncodeFrame packs a decoded frame back into message parts, preserving all
// of its fields.
func EncodeFrame(f *media.Frame) [][]byte {
	return Encode(f.Metadata, media.Image{Format: f.Format, Rows: f.Rows, Cols: f.Cols, Data: f.Data})
}

// SupportedVersion reports whether a message of version v can be decoded.
func SupportedVersion(v string) bool {
	major, _, _ := strings.Cut(v, ".")
	return major == "1"
}

// Decode unpacks a frame message. conv is attached to the resulting frame
// for its colour projections; nil selects media.DefaultConverter. The data
// part is referenced, not copied. On error no frame is returned.
func Decode(parts [][]byte, conv media.Converter) (*media.Frame, error) {
	if len(parts) != NumParts {
		return nil, &DecodeError{Part: "message", Err: fmt.Errorf("%w: got %d, want %d", ErrPartCount, len(parts), NumParts)}
	}

	version := parts[PartVersion]
	if !utf8.Valid(version) || !SupportedVersion(string(version)) {
		return nil, &DecodeError{Part: partNames[PartVersion], Err: fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)}
	}

	for _, f := range []struct {
		idx  int
		size int
	}{
		{PartTimestamp, 8},
		{PartFrameType, 2},
		{PartRows, 4},
		{PartCols, 4},
		{PartMatType, 4},
	} {
		if n := len(parts[f.idx]); n != f.size {
			return nil, &DecodeError{Part: partNames[f.idx], Err: fmt.Errorf("%w: %d bytes, want %d", ErrFieldSize, n, f.size)}
		}
	}

	format, err := media.ParsePixelFormat(string(parts[PartPixelFormat]))
	if err != nil {
		return nil, &DecodeError{Part: partNames[PartPixelFormat], Err: err}
	}

	meta := media.Metadata{
		Version:   string(version),
		Timestamp: int64(binary.BigEndian.Uint64(parts[PartTimestamp])),
		FrameType: int16(binary.BigEndian.Uint16(parts[PartFrameType])),
		MatType:   int32(binary.BigEndian.Uint32(parts[PartMatType])),
	}
	rows := int(int32(binary.BigEndian.Uint32(parts[PartRows])))
	cols := int(int32(binary.BigEndian.Uint32(parts[PartCols])))

	frame, err := media.NewFrame(meta, format, rows, cols, parts[PartData], conv)
	if err != nil {
		return nil, &DecodeError{Part: partNames[PartData], Err: err}
	}
	return frame, nil
}
