package wire

import (
	"errors"
	"fmt"
)

// Sentinel errors for malformed messages. Pixel format and buffer length
// failures surface as media.ErrInvalidFormat and media.ErrMalformedBuffer.
var (
	ErrPartCount          = errors.New("wire: wrong number of message parts")
	ErrFieldSize          = errors.New("wire: wrong field size")
	ErrUnsupportedVersion = errors.New("wire: unsupported protocol version")
)

// DecodeError records which message part failed to decode.
type DecodeError struct {
	Part string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: decode %s: %v", e.Part, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
