package stream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestContextEndpoints(t *testing.T) {
	t.Parallel()
	c, _ := newTestContext(t)

	w, err := c.NewWriter(WriterConfig{Endpoint: "inproc://ctx"})
	if err != nil {
		t.Fatal(err)
	}
	r, err := c.NewReader(ReaderConfig{Endpoint: "inproc://ctx"})
	if err != nil {
		t.Fatal(err)
	}

	eps := c.Endpoints()
	if len(eps) != 2 {
		t.Fatalf("endpoints = %d, want 2", len(eps))
	}
	roles := map[string]Role{}
	for _, ep := range eps {
		roles[ep.ID] = ep.Role
		if ep.Address != "inproc://ctx" || ep.OpenedAt.IsZero() {
			t.Errorf("endpoint = %+v", ep)
		}
	}
	if roles[w.ID()] != RoleWriter || roles[r.ID()] != RoleReader {
		t.Errorf("roles = %v", roles)
	}
	if eps[0].OpenedAt.After(eps[1].OpenedAt) {
		t.Error("endpoints not ordered by opening time")
	}
	if w.ID() == r.ID() {
		t.Error("reader and writer share an identity")
	}

	r.Close()
	if eps := c.Endpoints(); len(eps) != 1 || eps[0].ID != w.ID() {
		t.Fatalf("endpoints after reader close = %+v", eps)
	}
}

func TestContextCloseClosesEndpoints(t *testing.T) {
	t.Parallel()
	c, _ := newTestContext(t)

	w, err := c.NewWriter(WriterConfig{Endpoint: "inproc://ctx-close"})
	if err != nil {
		t.Fatal(err)
	}
	r, err := c.NewReader(ReaderConfig{Endpoint: "inproc://ctx-close"})
	if err != nil {
		t.Fatal(err)
	}
	// An endpoint closed by hand must not make Context.Close fail.
	w.Close()

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if r.IsOpen() {
		t.Fatal("reader still open after Context.Close")
	}
	if err := c.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("second Close err = %v, want ErrClosed", err)
	}
	if _, err := c.NewReader(ReaderConfig{Endpoint: "inproc://late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("NewReader after Close err = %v, want ErrClosed", err)
	}
	if _, err := c.NewWriter(WriterConfig{Endpoint: "inproc://late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("NewWriter after Close err = %v, want ErrClosed", err)
	}
}

func TestContextOpenError(t *testing.T) {
	t.Parallel()
	c, net := newTestContext(t)
	net.openErr = errors.New("address in use")

	if _, err := c.NewWriter(WriterConfig{Endpoint: "tcp://*:5555"}); !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if _, err := c.NewReader(ReaderConfig{Endpoint: "tcp://cam:5555"}); !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if n := len(c.Endpoints()); n != 0 {
		t.Fatalf("failed opens registered %d endpoints", n)
	}
}

func TestContextParentCancel(t *testing.T) {
	t.Parallel()
	parent, cancel := context.WithCancel(context.Background())
	net := &fakeNet{}
	c := newContext(parent, quietLogger(), net)

	r, err := c.NewReader(ReaderConfig{Endpoint: "inproc://parent"})
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for r.IsOpen() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.IsOpen() {
		t.Fatal("reader still open after the parent context was cancelled")
	}
	if err := c.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Close after parent cancel err = %v, want ErrClosed", err)
	}
}

func TestContextCloseTerminatesTransport(t *testing.T) {
	t.Parallel()
	c, net := newTestContext(t)

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	c.Close()
	net.mu.Lock()
	defer net.mu.Unlock()
	if net.terms != 1 {
		t.Fatalf("transport terminated %d times, want 1", net.terms)
	}
}

func TestDefaultContextIsShared(t *testing.T) {
	t.Parallel()
	if Default() != Default() {
		t.Fatal("Default returned different contexts")
	}
}
