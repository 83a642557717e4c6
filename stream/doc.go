// Package stream moves frames between a producer and a consumer over a
// ZeroMQ PUSH/PULL pair.
//
// A Writer binds a PUSH socket and sends each frame as one atomic
// multi-part message; a Reader connects a PULL socket and polls it with a
// timeout. Both sockets carry a high-water mark of one, so at most two
// unread frames sit between them: a Writer blocks once the consumer stops
// reading and a Reader never works through a backlog of stale frames.
//
// Sockets are libzmq sockets and need cgo. Connecting is asynchronous, so
// either side may start first.
//
// Readers and Writers are created from a Context, which owns the zmq
// context and the lifetime of every socket opened from it. Default returns a shared Context for callers that
// need only one.
package stream
