package stream

import "errors"

// Sentinel errors returned by Reader and Writer.
//
// ErrNoData is transient: the poll timed out or the transport hiccupped
// after signalling readiness, and the caller should simply read again.
// Decode failures are returned as media.ErrInvalidFormat,
// media.ErrMalformedBuffer or a *wire.DecodeError and are fatal only for
// the offending message.
var (
	ErrNoData    = errors.New("stream: no frame available")
	ErrTransport = errors.New("stream: transport failure")
	ErrClosed    = errors.New("stream: endpoint closed")
)
