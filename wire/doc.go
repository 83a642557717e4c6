// Package wire implements the eight-part frame message exchanged between
// producers and consumers.
//
// Each message is a ZeroMQ multi-part message whose parts are, in order:
//
//	0 version       UTF-8 string, "1.0"
//	1 timestamp     int64 big-endian, microseconds since the Unix epoch
//	2 frame_type    int16 big-endian
//	3 pixel_format  UTF-8 string: I420, BGR, RGB or RGBA
//	4 rows          int32 big-endian
//	5 cols          int32 big-endian
//	6 mat_type      int32 big-endian, opaque
//	7 data          rows*cols*channels raw bytes
//
// The version part gates decoding: only major version 1 is understood.
// This package performs no I/O; transport lives in
// [github.com/zsiec/scorer/stream].
package wire
