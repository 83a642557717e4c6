package media

import "errors"

// Sentinel errors for frame construction and conversion. Both are fatal for
// the message that produced them but never for the reader that received it.
var (
	ErrInvalidFormat   = errors.New("media: invalid pixel format")
	ErrMalformedBuffer = errors.New("media: malformed buffer")
)
