package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errFakeClosed = errors.New("fake: socket closed")

// fakeNet joins fake PUSH and PULL sockets by endpoint through a one-slot
// channel. Together with the message a fake reader has polled but not yet
// received, a pipe holds at most two frames, as libzmq does with both high
// water marks at one.
type fakeNet struct {
	mu      sync.Mutex
	pipes   map[string]*fakePipe
	openErr error
	specs   []socketSpec
	terms   int
}

type fakePipe struct {
	msgs chan [][]byte
	errs chan error

	mu      sync.Mutex
	sendErr error
}

func (p *fakePipe) setSendErr(err error) {
	p.mu.Lock()
	p.sendErr = err
	p.mu.Unlock()
}

func (n *fakeNet) pipe(endpoint string) *fakePipe {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pipes == nil {
		n.pipes = make(map[string]*fakePipe)
	}
	p, ok := n.pipes[endpoint]
	if !ok {
		p = &fakePipe{
			msgs: make(chan [][]byte, highWaterMark),
			errs: make(chan error, 1),
		}
		n.pipes[endpoint] = p
	}
	return p
}

func (n *fakeNet) open(spec socketSpec) (socket, error) {
	n.mu.Lock()
	n.specs = append(n.specs, spec)
	err := n.openErr
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fakeSocket{pipe: n.pipe(spec.endpoint), closed: make(chan struct{})}, nil
}

func (n *fakeNet) term() error {
	n.mu.Lock()
	n.terms++
	n.mu.Unlock()
	return nil
}

type fakeDelivery struct {
	parts [][]byte
	err   error
}

type fakeSocket struct {
	pipe    *fakePipe
	closed  chan struct{}
	once    sync.Once
	pending *fakeDelivery
}

func (s *fakeSocket) take() bool {
	select {
	case parts := <-s.pipe.msgs:
		s.pending = &fakeDelivery{parts: parts}
	case err := <-s.pipe.errs:
		s.pending = &fakeDelivery{err: err}
	default:
		return false
	}
	return true
}

func (s *fakeSocket) Poll(timeout time.Duration) (bool, error) {
	if s.pending != nil || s.take() {
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case parts := <-s.pipe.msgs:
		s.pending = &fakeDelivery{parts: parts}
		return true, nil
	case err := <-s.pipe.errs:
		s.pending = &fakeDelivery{err: err}
		return true, nil
	case <-t.C:
		return false, nil
	case <-s.closed:
		return false, errFakeClosed
	}
}

func (s *fakeSocket) Recv() ([][]byte, error) {
	if s.pending == nil && !s.take() {
		return nil, errors.New("fake: resource temporarily unavailable")
	}
	d := s.pending
	s.pending = nil
	return d.parts, d.err
}

func (s *fakeSocket) Send(parts [][]byte, timeout time.Duration) error {
	s.pipe.mu.Lock()
	err := s.pipe.sendErr
	s.pipe.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case s.pipe.msgs <- parts:
		return nil
	default:
	}
	if timeout <= 0 {
		return errWouldBlock
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s.pipe.msgs <- parts:
		return nil
	case <-t.C:
		return errWouldBlock
	case <-s.closed:
		return errFakeClosed
	}
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContext(t *testing.T) (*Context, *fakeNet) {
	t.Helper()
	net := &fakeNet{}
	c := newContext(context.Background(), quietLogger(), net)
	t.Cleanup(func() { c.Close() })
	return c, net
}
