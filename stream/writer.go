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

// WriterConfig configures a Writer.
type WriterConfig struct {
	// Endpoint is the ZeroMQ address to bind, e.g. "tcp://*:5555".
	Endpoint string

	// Connect dials Endpoint instead of binding it.
	Connect bool

	// FirstMetadata supplies the timestamp stamped by Write. When nil,
	// Write uses the current time.
	FirstMetadata *media.Metadata

	// SendTimeout makes a send that stays blocked by back-pressure, or by
	// the absence of any peer, fail with ErrTransport instead of waiting
	// indefinitely. Zero waits.
	SendTimeout time.Duration

	// PerfCount records the latency of every send, see Writer.PerfCounters.
	PerfCount bool

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// WriterStats is a snapshot of a Writer's counters.
type WriterStats struct {
	ID         string `json:"id"`
	Endpoint   string `json:"endpoint"`
	Frames     int64  `json:"frames"`
	Bytes      int64  `json:"bytes"`
	SendErrors int64  `json:"sendErrors"`
}

// Writer sends frames on a PUSH socket. Each write is a single atomic
// multi-part message and blocks while the pipe to the reader is full.
// Failed sends are never retried.
type Writer struct {
	id  string
	ctx *Context
	cfg WriterConfig
	log *slog.Logger

	// mu guards sock between a send in progress and Close.
	mu   sync.Mutex
	sock socket

	closed atomic.Bool
	perf   perfCounters

	frames     atomic.Int64
	bytes      atomic.Int64
	sendErrors atomic.Int64
}

// NewWriter binds a Writer to cfg.Endpoint using the Default context.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	return Default().NewWriter(cfg)
}

// NewWriter opens a PUSH socket on cfg.Endpoint.
func (c *Context) NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: empty endpoint", ErrTransport)
	}
	log := cfg.Logger
	if log == nil {
		log = c.log
	}
	id := uuid.NewString()
	log = log.With("component", "writer", "id", id, "endpoint", cfg.Endpoint)

	sock, err := c.open(socketSpec{
		role:     RoleWriter,
		id:       id,
		endpoint: cfg.Endpoint,
		bind:     !cfg.Connect,
		log:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrTransport, cfg.Endpoint, err)
	}

	w := &Writer{
		id:   id,
		ctx:  c,
		cfg:  cfg,
		log:  log,
		sock: sock,
		perf: perfCounters{enabled: cfg.PerfCount},
	}

	info := EndpointInfo{ID: id, Role: RoleWriter, Address: cfg.Endpoint, OpenedAt: time.Now()}
	if err := c.register(info, w); err != nil {
		sock.Close()
		return nil, err
	}
	cfg.Metrics.EndpointOpened(string(RoleWriter))

	log.Info("writer opened", "bind", !cfg.Connect, "sendTimeout", cfg.SendTimeout)
	return w, nil
}

// Write sends img stamped with protocol version 1.0, frame type 0 and the
// timestamp of FirstMetadata (or the current time if none was configured).
func (w *Writer) Write(img media.Image) error {
	meta := media.Metadata{Version: media.DefaultVersion}
	if w.cfg.FirstMetadata != nil {
		meta.Timestamp = w.cfg.FirstMetadata.Timestamp
	} else {
		meta.Timestamp = time.Now().UnixMicro()
	}
	return w.send(meta, img)
}

// WriteWithMetadata sends img with the version, timestamp, frame type and
// mat type taken from meta. An empty version is sent as 1.0.
func (w *Writer) WriteWithMetadata(meta media.Metadata, img media.Image) error {
	if meta.Version == "" {
		meta.Version = media.DefaultVersion
	}
	return w.send(meta, img)
}

// WriteFrame relays a decoded frame unchanged.
func (w *Writer) WriteFrame(f *media.Frame) error {
	return w.WriteWithMetadata(f.Metadata, media.Image{
		Format: f.Format,
		Rows:   f.Rows,
		Cols:   f.Cols,
		Data:   f.Data,
	})
}

func (w *Writer) send(meta media.Metadata, img media.Image) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if err := img.Validate(); err != nil {
		w.cfg.Metrics.WriteError(metrics.KindInvalid)
		return err
	}
	parts := wire.Encode(meta, img)

	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	err := w.push(parts)
	elapsed := time.Since(start)
	w.perf.record(elapsed)
	w.cfg.Metrics.ObserveSend(elapsed)

	if err != nil {
		w.sendErrors.Add(1)
		w.cfg.Metrics.WriteError(metrics.KindTransport)
		if errors.Is(err, ErrClosed) {
			return ErrClosed
		}
		w.log.Warn("send failed", "error", err)
		return fmt.Errorf("%w: send: %w", ErrTransport, err)
	}

	w.frames.Add(1)
	w.bytes.Add(int64(len(img.Data)))
	w.cfg.Metrics.FrameWritten(img.Format.String(), len(img.Data))
	return nil
}

// push hands parts to the socket, waiting in slices of at most
// pollInterval for room so that Close and SendTimeout are noticed.
func (w *Writer) push(parts [][]byte) error {
	var deadline time.Time
	if w.cfg.SendTimeout > 0 {
		deadline = time.Now().Add(w.cfg.SendTimeout)
	}
	for {
		if w.closed.Load() {
			return ErrClosed
		}
		slice := pollInterval
		if !deadline.IsZero() {
			slice = max(min(slice, time.Until(deadline)), 0)
		}
		err := w.sock.Send(parts, slice)
		if !errors.Is(err, errWouldBlock) {
			return err
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return fmt.Errorf("frame not taken within %v: %w", w.cfg.SendTimeout, err)
		}
	}
}

// PerfCounters returns the send latencies recorded so far. It is empty
// unless the Writer was created with PerfCount.
func (w *Writer) PerfCounters() []time.Duration {
	return w.perf.snapshot()
}

// Stats returns a snapshot of the Writer's counters.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		ID:         w.id,
		Endpoint:   w.cfg.Endpoint,
		Frames:     w.frames.Load(),
		Bytes:      w.bytes.Load(),
		SendErrors: w.sendErrors.Load(),
	}
}

// ID returns the identity the Writer presents to its peer.
func (w *Writer) ID() string { return w.id }

// IsOpen reports whether Close has not yet been called.
func (w *Writer) IsOpen() bool { return !w.closed.Load() }

// Close releases the socket. A send blocked by back-pressure returns
// ErrClosed within pollInterval and the frame is dropped. Closing a closed
// Writer returns ErrClosed.
func (w *Writer) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	w.mu.Lock()
	err := w.sock.Close()
	w.mu.Unlock()
	w.ctx.unregister(w.id)
	w.cfg.Metrics.EndpointClosed(string(RoleWriter))
	w.log.Info("writer closed", "frames", w.frames.Load())
	if err != nil {
		return fmt.Errorf("%w: close: %w", ErrTransport, err)
	}
	return nil
}
