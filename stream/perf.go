package stream

import (
	"sync"
	"time"
)

// perfCounters is an append-only list of operation latencies, kept only
// when performance tracking was requested at construction.
type perfCounters struct {
	enabled bool
	mu      sync.Mutex
	samples []time.Duration
}

func (p *perfCounters) record(d time.Duration) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	p.samples = append(p.samples, d)
	p.mu.Unlock()
}

func (p *perfCounters) snapshot() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]time.Duration, len(p.samples))
	copy(out, p.samples)
	return out
}
