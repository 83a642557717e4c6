// Package metrics exposes Prometheus collectors for frame readers and
// writers. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Read error kinds.
const (
	KindNoData    = "no_data"
	KindTransport = "transport"
	KindDecode    = "decode"
	KindInvalid   = "invalid"
)

// Metrics holds the collectors shared by all readers and writers that were
// configured with it.
type Metrics struct {
	FramesRead    *prometheus.CounterVec
	FramesWritten *prometheus.CounterVec
	BytesRead     prometheus.Counter
	BytesWritten  prometheus.Counter
	ReadErrors    *prometheus.CounterVec
	WriteErrors   *prometheus.CounterVec
	PollDuration  prometheus.Histogram
	SendDuration  prometheus.Histogram
	OpenEndpoints *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		FramesRead: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scorer_frames_read_total",
			Help: "Frames decoded by readers",
		}, []string{"format"}),
		FramesWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scorer_frames_written_total",
			Help: "Frames sent by writers",
		}, []string{"format"}),
		BytesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "scorer_frame_bytes_read_total",
			Help: "Raw pixel bytes decoded by readers",
		}),
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "scorer_frame_bytes_written_total",
			Help: "Raw pixel bytes sent by writers",
		}),
		ReadErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scorer_read_errors_total",
			Help: "Reads that returned no frame, by kind",
		}, []string{"kind"}),
		WriteErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scorer_write_errors_total",
			Help: "Writes that failed, by kind",
		}, []string{"kind"}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scorer_poll_duration_seconds",
			Help:    "Time readers spent waiting for a frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 9), // 100µs to ~6.5s
		}),
		SendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scorer_send_duration_seconds",
			Help:    "Time writers spent handing a frame to the transport, including back-pressure",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 9),
		}),
		OpenEndpoints: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scorer_open_endpoints",
			Help: "Readers and writers currently open",
		}, []string{"role"}),
	}
}

// FrameRead records a successfully decoded frame of n bytes.
func (m *Metrics) FrameRead(format string, n int) {
	if m == nil {
		return
	}
	m.FramesRead.WithLabelValues(format).Inc()
	m.BytesRead.Add(float64(n))
}

// FrameWritten records a frame of n bytes handed to the transport.
func (m *Metrics) FrameWritten(format string, n int) {
	if m == nil {
		return
	}
	m.FramesWritten.WithLabelValues(format).Inc()
	m.BytesWritten.Add(float64(n))
}

// ReadError records a read that produced no frame.
func (m *Metrics) ReadError(kind string) {
	if m == nil {
		return
	}
	m.ReadErrors.WithLabelValues(kind).Inc()
}

// WriteError records a failed write.
func (m *Metrics) WriteError(kind string) {
	if m == nil {
		return
	}
	m.WriteErrors.WithLabelValues(kind).Inc()
}

// ObservePoll records how long a read waited.
func (m *Metrics) ObservePoll(d time.Duration) {
	if m == nil {
		return
	}
	m.PollDuration.Observe(d.Seconds())
}

// ObserveSend records how long a write blocked in the transport.
func (m *Metrics) ObserveSend(d time.Duration) {
	if m == nil {
		return
	}
	m.SendDuration.Observe(d.Seconds())
}

// EndpointOpened increments the open endpoint gauge for role.
func (m *Metrics) EndpointOpened(role string) {
	if m == nil {
		return
	}
	m.OpenEndpoints.WithLabelValues(role).Inc()
}

// EndpointClosed decrements the open endpoint gauge for role.
func (m *Metrics) EndpointClosed(role string) {
	if m == nil {
		return
	}
	m.OpenEndpoints.WithLabelValues(role).Dec()
}
