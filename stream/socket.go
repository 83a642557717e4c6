package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// highWaterMark bounds each end of a pipe to a single queued message. libzmq
// applies SNDHWM on the writer and RCVHWM on the reader, so at most two
// unread frames can exist between a Writer and a Reader.
const highWaterMark = 1

// pollInterval bounds every individual wait on a socket. Blocked reads and
// writes re-check for Close at this rate, since a libzmq socket must not be
// closed while another goroutine is using it.
const pollInterval = 50 * time.Millisecond

// errWouldBlock is returned by socket.Send when no room appeared in time.
var errWouldBlock = errors.New("stream: send would block")

// socket is the part of a libzmq socket that readers and writers drive. A
// socket is not safe for concurrent use.
type socket interface {
	// Poll waits up to timeout for a message to become available. A zero
	// timeout checks once.
	Poll(timeout time.Duration) (bool, error)
	// Recv takes the available message without blocking.
	Recv() ([][]byte, error)
	// Send queues parts as one atomic message, waiting up to timeout for
	// room in the pipe.
	Send(parts [][]byte, timeout time.Duration) error
	Close() error
}

// Role identifies which side of the pipe an endpoint is.
type Role string

// Endpoint roles.
const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
)

// socketSpec describes a socket to open.
type socketSpec struct {
	role     Role
	id       string
	endpoint string
	bind     bool
	log      *slog.Logger
}

// transport opens sockets for a Context and is shut down with it.
type transport interface {
	open(spec socketSpec) (socket, error)
	term() error
}

// zmqTransport opens libzmq sockets from one zmq context, created on first
// use.
type zmqTransport struct {
	once sync.Once
	zctx *zmq.Context
	err  error
}

func (t *zmqTransport) init() {
	t.once.Do(func() {
		t.zctx, t.err = zmq.NewContext()
	})
}

// open creates a PULL socket for readers or a PUSH socket for writers,
// limits it to one queued message and binds or connects it. Connecting is
// asynchronous: libzmq keeps retrying until the peer appears.
func (t *zmqTransport) open(spec socketSpec) (socket, error) {
	t.init()
	if t.err != nil {
		return nil, t.err
	}

	var (
		typ    zmq.Type
		events zmq.State
	)
	switch spec.role {
	case RoleReader:
		typ, events = zmq.PULL, zmq.POLLIN
	case RoleWriter:
		typ, events = zmq.PUSH, zmq.POLLOUT
	default:
		return nil, fmt.Errorf("stream: unknown role %q", spec.role)
	}

	sock, err := t.zctx.NewSocket(typ)
	if err != nil {
		return nil, err
	}
	if err := configure(sock, spec); err != nil {
		sock.Close()
		return nil, err
	}

	if spec.bind {
		err = sock.Bind(spec.endpoint)
	} else {
		err = sock.Connect(spec.endpoint)
	}
	if err != nil {
		sock.Close()
		return nil, err
	}

	poller := zmq.NewPoller()
	poller.Add(sock, events)
	spec.log.Debug("socket opened", "type", typ, "bind", spec.bind, "hwm", highWaterMark)
	return &zmqSocket{sock: sock, poller: poller}, nil
}

func configure(sock *zmq.Socket, spec socketSpec) error {
	if err := sock.SetIdentity(spec.id); err != nil {
		return fmt.Errorf("set identity: %w", err)
	}
	// Unsent frames are dropped on Close rather than holding up shutdown.
	if err := sock.SetLinger(0); err != nil {
		return fmt.Errorf("set linger: %w", err)
	}
	if spec.role == RoleReader {
		if err := sock.SetRcvhwm(highWaterMark); err != nil {
			return fmt.Errorf("set rcvhwm: %w", err)
		}
		return nil
	}
	if err := sock.SetSndhwm(highWaterMark); err != nil {
		return fmt.Errorf("set sndhwm: %w", err)
	}
	return nil
}

// term shuts the zmq context down. Every socket must be closed first.
func (t *zmqTransport) term() error {
	t.once.Do(func() { t.err = ErrClosed })
	if t.zctx == nil {
		return nil
	}
	return t.zctx.Term()
}

// zmqSocket pairs a libzmq socket with a poller watching it for the one
// event its role cares about.
type zmqSocket struct {
	sock   *zmq.Socket
	poller *zmq.Poller
}

func (s *zmqSocket) wait(timeout time.Duration) (bool, error) {
	polled, err := s.poller.Poll(timeout)
	if err != nil {
		if zmq.AsErrno(err) == zmq.Errno(syscall.EINTR) {
			return false, nil
		}
		return false, err
	}
	return len(polled) > 0, nil
}

func (s *zmqSocket) Poll(timeout time.Duration) (bool, error) {
	return s.wait(timeout)
}

func (s *zmqSocket) Recv() ([][]byte, error) {
	return s.sock.RecvMessageBytes(zmq.DONTWAIT)
}

func (s *zmqSocket) Send(parts [][]byte, timeout time.Duration) error {
	ready, err := s.wait(timeout)
	if err != nil {
		return err
	}
	if !ready {
		return errWouldBlock
	}
	if _, err := s.sock.SendMessageDontwait(parts); err != nil {
		if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
			return errWouldBlock
		}
		return err
	}
	return nil
}

func (s *zmqSocket) Close() error {
	return s.sock.Close()
}
