package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// EndpointInfo describes an open Reader or Writer.
type EndpointInfo struct {
	ID       string    `json:"id"`
	Role     Role      `json:"role"`
	Address  string    `json:"address"`
	OpenedAt time.Time `json:"openedAt"`
}

// closer is implemented by Reader and Writer.
type closer interface {
	Close() error
}

type entry struct {
	info EndpointInfo
	ep   closer
}

// Context owns the zmq context and the sockets of every Reader and Writer
// created from it. It is safe for concurrent use; the endpoints themselves
// are single-owner.
type Context struct {
	log  *slog.Logger
	stop func() bool
	tr   transport

	mu        sync.RWMutex
	endpoints map[string]entry
	closed    bool
}

// NewContext creates a Context whose sockets live until parent is done or
// Close is called. If log is nil, slog.Default() is used.
func NewContext(parent context.Context, log *slog.Logger) *Context {
	return newContext(parent, log, &zmqTransport{})
}

func newContext(parent context.Context, log *slog.Logger, tr transport) *Context {
	if log == nil {
		log = slog.Default()
	}
	c := &Context{
		log:       log.With("component", "stream-context"),
		tr:        tr,
		endpoints: make(map[string]entry),
	}
	c.mu.Lock()
	c.stop = context.AfterFunc(parent, func() {
		if err := c.Close(); err != nil && !errors.Is(err, ErrClosed) {
			c.log.Warn("close on parent cancel", "error", err)
		}
	})
	c.mu.Unlock()
	return c
}

var (
	defaultOnce sync.Once
	defaultCtx  *Context
)

// Default returns the process-wide Context, creating it on first use. It
// is never closed implicitly.
func Default() *Context {
	defaultOnce.Do(func() {
		defaultCtx = NewContext(context.Background(), nil)
	})
	return defaultCtx
}

// open creates a socket unless the Context is already closed.
func (c *Context) open(spec socketSpec) (socket, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return c.tr.open(spec)
}

// register records an open endpoint. It fails if the Context is closed.
func (c *Context) register(info EndpointInfo, ep closer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.endpoints[info.ID] = entry{info: info, ep: ep}
	c.log.Debug("endpoint opened", "id", info.ID, "role", info.Role, "address", info.Address)
	return nil
}

// unregister forgets a closed endpoint.
func (c *Context) unregister(id string) {
	c.mu.Lock()
	_, ok := c.endpoints[id]
	delete(c.endpoints, id)
	c.mu.Unlock()

	if ok {
		c.log.Debug("endpoint closed", "id", id)
	}
}

// Endpoints returns the open endpoints ordered by opening time.
func (c *Context) Endpoints() []EndpointInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]EndpointInfo, 0, len(c.endpoints))
	for _, e := range c.endpoints {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Close closes every endpoint still open, prevents new ones and terminates
// the zmq context. Closing a closed Context returns ErrClosed.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	stop := c.stop
	eps := make([]closer, 0, len(c.endpoints))
	for _, e := range c.endpoints {
		eps = append(eps, e.ep)
	}
	c.mu.Unlock()

	var errs []error
	for _, ep := range eps {
		if err := ep.Close(); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, err)
		}
	}
	if err := c.tr.term(); err != nil {
		errs = append(errs, fmt.Errorf("%w: terminate: %w", ErrTransport, err))
	}
	stop()
	c.log.Info("context closed", "endpoints", len(eps))
	return errors.Join(errs...)
}
