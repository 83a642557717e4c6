package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/scorer/media"
	"github.com/zsiec/scorer/metrics"
	"github.com/zsiec/scorer/wire"
)

// DefaultTimeout is the poll timeout of a blocking Reader.
const DefaultTimeout = 1000 * time.Millisecond

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	// Endpoint is the ZeroMQ address to connect to, e.g. "tcp://cam:5555".
	Endpoint string

	// Bind listens on Endpoint instead of connecting to it.
	Bind bool

	// NonBlocking makes Read return immediately when no frame is queued.
	NonBlocking bool

	// Timeout bounds how long a blocking Read waits. Zero means
	// DefaultTimeout. Ignored when NonBlocking is set.
	Timeout time.Duration

	// PerfCount records the latency of every poll, see Reader.PerfCounters.
	PerfCount bool

	// Converter performs colour projections of received frames. Nil means
	// media.DefaultConverter.
	Converter media.Converter

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// ReaderStats is a snapshot of a Reader's counters.
type ReaderStats struct {
	ID              string `json:"id"`
	Endpoint        string `json:"endpoint"`
	Frames          int64  `json:"frames"`
	Bytes           int64  `json:"bytes"`
	NoData          int64  `json:"noData"`
	TransportErrors int64  `json:"transportErrors"`
	DecodeErrors    int64  `json:"decodeErrors"`
	LastTimestamp   int64  `json:"lastTimestamp"`
}

// Reader receives frames from a PULL socket. A Reader is meant to be
// driven by a single goroutine; only Close may be called concurrently with
// Read.
type Reader struct {
	id      string
	ctx     *Context
	cfg     ReaderConfig
	timeout time.Duration
	log     *slog.Logger

	// mu guards sock, which libzmq does not allow to be shared between a
	// Read in progress and Close.
	mu   sync.Mutex
	sock socket

	closed atomic.Bool
	perf   perfCounters

	frames          atomic.Int64
	bytes           atomic.Int64
	noData          atomic.Int64
	transportErrors atomic.Int64
	decodeErrors    atomic.Int64
	lastTimestamp   atomic.Int64
}

// NewReader connects a Reader to cfg.Endpoint using the Default context.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	return Default().NewReader(cfg)
}

// NewReader opens a PULL socket on cfg.Endpoint. Connecting does not wait
// for the peer, so a Reader may be opened before its Writer exists.
func (c *Context) NewReader(cfg ReaderConfig) (*Reader, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: empty endpoint", ErrTransport)
	}
	log := cfg.Logger
	if log == nil {
		log = c.log
	}
	id := uuid.NewString()
	log = log.With("component", "reader", "id", id, "endpoint", cfg.Endpoint)

	timeout := cfg.Timeout
	if cfg.NonBlocking {
		timeout = 0
	} else if timeout <= 0 {
		timeout = DefaultTimeout
	}

	sock, err := c.open(socketSpec{
		role:     RoleReader,
		id:       id,
		endpoint: cfg.Endpoint,
		bind:     cfg.Bind,
		log:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrTransport, cfg.Endpoint, err)
	}

	r := &Reader{
		id:      id,
		ctx:     c,
		cfg:     cfg,
		timeout: timeout,
		log:     log,
		sock:    sock,
		perf:    perfCounters{enabled: cfg.PerfCount},
	}

	info := EndpointInfo{ID: id, Role: RoleReader, Address: cfg.Endpoint, OpenedAt: time.Now()}
	if err := c.register(info, r); err != nil {
		sock.Close()
		return nil, err
	}
	cfg.Metrics.EndpointOpened(string(RoleReader))

	log.Info("reader opened", "timeout", timeout, "bind", cfg.Bind)
	return r, nil
}

// wait polls the socket until a message is ready or timeout elapses, in
// slices of at most pollInterval so that Close is noticed promptly. A
// timeout of zero checks once without waiting.
func (r *Reader) wait(timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		if r.closed.Load() {
			return false, ErrClosed
		}
		slice := max(min(time.Until(deadline), pollInterval), 0)
		ready, err := r.sock.Poll(slice)
		if err != nil || ready {
			return ready, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
	}
}

// Read waits up to the configured timeout for the next frame and returns
// it together with its BGR projection.
func (r *Reader) Read() (*media.Frame, []byte, error) {
	return r.ReadTimeout(r.timeout)
}

// ReadTimeout is Read with an explicit timeout; zero polls without waiting.
//
// It returns ErrNoData when nothing arrived in time or the transport failed
// after signalling readiness, a decode error when the message was
// malformed, and ErrClosed after Close. The Reader stays usable after any
// error other than ErrClosed.
func (r *Reader) ReadTimeout(timeout time.Duration) (*media.Frame, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return nil, nil, ErrClosed
	}

	start := time.Now()
	ready, err := r.wait(timeout)
	elapsed := time.Since(start)
	r.perf.record(elapsed)
	r.cfg.Metrics.ObservePoll(elapsed)

	if errors.Is(err, ErrClosed) {
		return nil, nil, ErrClosed
	}
	var parts [][]byte
	if err == nil && ready {
		parts, err = r.sock.Recv()
	}
	if err != nil {
		r.transportErrors.Add(1)
		r.cfg.Metrics.ReadError(metrics.KindTransport)
		r.log.Warn("receive failed", "error", err)
		return nil, nil, fmt.Errorf("%w: receive: %v", ErrNoData, err)
	}
	if !ready {
		r.noData.Add(1)
		r.cfg.Metrics.ReadError(metrics.KindNoData)
		r.log.Debug("no frame available", "timeout", timeout)
		return nil, nil, ErrNoData
	}

	frame, err := wire.Decode(parts, r.cfg.Converter)
	var bgr []byte
	if err == nil {
		bgr, err = frame.BGR()
	}
	if err != nil {
		r.decodeErrors.Add(1)
		r.cfg.Metrics.ReadError(metrics.KindDecode)
		r.log.Warn("dropping undecodable frame", "error", err)
		return nil, nil, err
	}

	r.frames.Add(1)
	r.bytes.Add(int64(len(frame.Data)))
	r.lastTimestamp.Store(frame.Timestamp)
	r.cfg.Metrics.FrameRead(frame.Format.String(), len(frame.Data))
	return frame, bgr, nil
}

// PerfCounters returns the poll latencies recorded so far. It is empty
// unless the Reader was created with PerfCount.
func (r *Reader) PerfCounters() []time.Duration {
	return r.perf.snapshot()
}

// Stats returns a snapshot of the Reader's counters.
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		ID:              r.id,
		Endpoint:        r.cfg.Endpoint,
		Frames:          r.frames.Load(),
		Bytes:           r.bytes.Load(),
		NoData:          r.noData.Load(),
		TransportErrors: r.transportErrors.Load(),
		DecodeErrors:    r.decodeErrors.Load(),
		LastTimestamp:   r.lastTimestamp.Load(),
	}
}

// ID returns the identity the Reader presents to its peer.
func (r *Reader) ID() string { return r.id }

// IsOpen reports whether Close has not yet been called.
func (r *Reader) IsOpen() bool { return !r.closed.Load() }

// Close releases the socket. A Read waiting for a frame returns ErrClosed
// within pollInterval. Closing a closed Reader returns ErrClosed.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	r.mu.Lock()
	err := r.sock.Close()
	r.mu.Unlock()

	r.ctx.unregister(r.id)
	r.cfg.Metrics.EndpointClosed(string(RoleReader))
	r.log.Info("reader closed", "frames", r.frames.Load())
	if err != nil {
		return fmt.Errorf("%w: close: %w", ErrTransport, err)
	}
	return nil
}
