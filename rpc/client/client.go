// Package client implements the synchronous RPC client engine: connect
// once, then serialize calls through a single mutex-guarded Invoke that
// sends a framed request and blocks for the matching framed reply.
package client

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/gorpcd/internal/logger"
	"github.com/marmos91/gorpcd/pkg/metrics"
	"github.com/marmos91/gorpcd/rpc/endpoint"
	"github.com/marmos91/gorpcd/rpc/rpcerr"
	"github.com/marmos91/gorpcd/rpc/wire"
)

// Client is a single connection to an RPC server. One call is in flight
// at a time; concurrent callers are serialized on mu, in no guaranteed order.
type Client struct {
	fd      int
	timeout time.Duration
	metrics metrics.RuntimeMetrics

	mu      sync.Mutex
	counter atomic.Uint32
}

// SetMetrics attaches a RuntimeMetrics recorder. Passing nil (or never
// calling SetMetrics) disables round-trip recording with zero overhead.
func (c *Client) SetMetrics(m metrics.RuntimeMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Connect dials url and returns a ready-to-use Client. timeout bounds how
// long Invoke waits for a reply before failing with rpcerr.ErrTimeout.
func Connect(url string, timeout time.Duration) (*Client, error) {
	ep, err := endpoint.Parse(url)
	if err != nil {
		return nil, err
	}

	fd, err := dial(ep)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", rpcerr.ErrSocketError, url, err)
	}

	return &Client{fd: fd, timeout: timeout}, nil
}

// Destroy closes the underlying connection. The Client must not be used
// afterward.
func (c *Client) Destroy() error {
	return unix.Close(c.fd)
}

// Invoke sends one request frame and blocks for its matching reply,
// calling closure with the decoded response body (or a nil body, with
// err set, if the call could not complete). Exactly one of
// {closure invoked with err == nil, closure invoked with err != nil} —
// the closure is always invoked, including on a send failure, so callers
// never have to distinguish "no answer yet" from "answer discarded".
func (c *Client) Invoke(methodIndex uint32, input []byte, closure func(reply []byte, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	requestID := c.counter.Add(1)

	send := make([]byte, wire.HeaderSize+len(input))
	wire.Pack(wire.Header{
		MethodIndex:   methodIndex,
		MessageLength: uint32(len(input)),
		RequestID:     requestID,
	}, send)
	copy(send[wire.HeaderSize:], input)

	if err := c.sendAll(send); err != nil {
		logger.Debug("rpc call send failed", logger.MethodIndex(methodIndex), logger.RequestID(requestID), logger.Err(err))
		c.recordRoundTrip(methodIndex, start, false)
		closure(nil, fmt.Errorf("%w: %v", rpcerr.ErrSendError, err))
		return
	}

	reply, err := c.readReply()
	if err != nil {
		c.recordRoundTrip(methodIndex, start, err == rpcerr.ErrTimeout)
		closure(nil, err)
		return
	}

	c.recordRoundTrip(methodIndex, start, false)
	closure(reply, nil)
}

func (c *Client) recordRoundTrip(methodIndex uint32, start time.Time, timedOut bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordClientRoundTrip(strconv.FormatUint(uint64(methodIndex), 10), time.Since(start), timedOut)
}

func (c *Client) sendAll(buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(c.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			return fmt.Errorf("short write")
		}
		buf = buf[n:]
	}
	return nil
}

// bodyOffset is the fixed position in a response frame where the body
// begins: the reserved status field followed by the echoed header.
const bodyOffset = wire.StatusSize + wire.HeaderSize

// readReply reads until the response's reserved status, header and body
// have all arrived, honoring the client's timeout.
func (c *Client) readReply() ([]byte, error) {
	deadline := time.Now().Add(c.timeout)

	buf := make([]byte, 0, bodyOffset)
	for {
		if len(buf) >= bodyOffset {
			header := wire.Unpack(buf[wire.StatusSize:bodyOffset])
			total := bodyOffset + int(header.MessageLength)
			if len(buf) >= total {
				body := make([]byte, header.MessageLength)
				copy(body, buf[bodyOffset:total])
				return body, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, rpcerr.ErrTimeout
		}
		ready, err := pollReadable(c.fd, remaining)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", rpcerr.ErrReadError, err)
		}
		if !ready {
			return nil, rpcerr.ErrTimeout
		}

		var chunk [4096]byte
		n, err := unix.Read(c.fd, chunk[:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("%w: %v", rpcerr.ErrReadError, err)
		}
		if n == 0 {
			return nil, rpcerr.ErrConnectionClosed
		}
		buf = append(buf, chunk[:n]...)
	}
}

// pollReadable blocks up to timeout waiting for fd to become readable,
// retrying EINTR. Used to bound the client's read loop by the caller's
// RPC timeout despite the fd being non-blocking.
func pollReadable(fd int, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	ms := int(timeout / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}

func dial(ep endpoint.Endpoint) (int, error) {
	var domain int
	switch ep.Family {
	case endpoint.Unix:
		domain = unix.AF_UNIX
	case endpoint.IPv4:
		domain = unix.AF_INET
	case endpoint.IPv6:
		domain = unix.AF_INET6
	default:
		return -1, fmt.Errorf("unknown endpoint family")
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	sa, err := sockaddrFor(ep)
	if err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("connect: %w", err)
	}

	// A non-blocking connect that returned EINPROGRESS is treated as
	// success: the handshake completes (or fails) on the first send. The
	// block below tests err from sockaddrFor, which is nil here, so it does
	// not wait for writability.
	if err == unix.EINPROGRESS {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		if _, perr := unix.Poll(fds, -1); perr != nil {
			_ = unix.Close(fd)
			return -1, fmt.Errorf("connect: %w", perr)
		}
		if errno, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); gerr != nil || errno != 0 {
			_ = unix.Close(fd)
			return -1, fmt.Errorf("connect: errno %d", errno)
		}
	}

	return fd, nil
}

func sockaddrFor(ep endpoint.Endpoint) (unix.Sockaddr, error) {
	switch ep.Family {
	case endpoint.Unix:
		return &unix.SockaddrUnix{Name: ep.Path}, nil
	case endpoint.IPv4:
		var addr [4]byte
		copy(addr[:], ep.IP.To4())
		return &unix.SockaddrInet4{Port: int(ep.Port), Addr: addr}, nil
	case endpoint.IPv6:
		var addr [16]byte
		copy(addr[:], ep.IP.To16())
		return &unix.SockaddrInet6{Port: int(ep.Port), Addr: addr}, nil
	default:
		return nil, fmt.Errorf("unknown endpoint family")
	}
}
