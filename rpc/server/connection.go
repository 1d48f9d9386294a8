package server

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/gorpcd/internal/bytesize"
	"github.com/marmos91/gorpcd/internal/logger"
	"github.com/marmos91/gorpcd/rpc/buffer"
	"github.com/marmos91/gorpcd/rpc/loop"
	"github.com/marmos91/gorpcd/rpc/wire"
)

// readChunkSize is how much the connection handler reads from the socket
// per invocation, matching spec.md's 8 KiB stack-buffer read.
const readChunkSize = 8 * 1024

// connection is the per-fd state owned exclusively by whichever worker
// currently holds its callback record. Buffers are touched only from
// inside this connection's own handler invocation.
type connection struct {
	fd       int
	server   *Server
	incoming *buffer.Buffer
	outgoing *buffer.Buffer
}

// acceptHandler returns the Handler the event loop invokes when
// listenFD becomes readable. It accepts exactly one pending connection
// per invocation — epoll is level-triggered, so a listener with more
// than one pending connection is simply reported ready again on the next
// iteration.
func (s *Server) acceptHandler(listenFD int) loop.Handler {
	return func(fd int, _ any) int {
		connFD, _, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return 0
			}
			logger.Warn("accept failed", logger.FD(listenFD), logger.Err(err))
			return 0
		}

		conn := &connection{
			fd:       connFD,
			server:   s,
			incoming: buffer.New(),
			outgoing: buffer.New(),
		}

		s.mu.Lock()
		l := s.loop
		s.mu.Unlock()

		if l == nil || l.Register(connFD, connectionHandler(conn), nil) != nil {
			_ = unix.Close(connFD)
			return 0
		}

		count := s.connections.Add(1)
		if s.metrics != nil {
			s.metrics.RecordConnectionAccepted()
			s.metrics.SetConnectionCount(int(count))
		}
		logger.Debug("accepted connection", logger.FD(connFD))
		return 0
	}
}

// stopHandler returns the Handler registered for a server's stop fd: on
// readiness it stops the loop and drops its own record.
func (s *Server) stopHandler() loop.Handler {
	return func(fd int, _ any) int {
		logger.Info("stop source triggered shutdown", logger.FD(fd))
		s.Stop()
		return -1
	}
}

// connectionHandler returns the Handler for an accepted connection's fd:
// read available bytes, decode every complete frame currently buffered,
// and dispatch each to the server's service.
func connectionHandler(c *connection) loop.Handler {
	return func(fd int, _ any) int {
		var chunk [readChunkSize]byte
		n, err := unix.Read(fd, chunk[:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return 0
			}
			return c.closeWithError(err)
		}
		if n == 0 {
			return c.close()
		}
		if c.server.metrics != nil {
			c.server.metrics.RecordBytesTransferred("read", uint64(n))
		}

		c.incoming.Append(chunk[:n])

		for {
			if c.incoming.Len() < wire.HeaderSize {
				break
			}
			header := wire.Unpack(c.incoming.Bytes())
			if bytesize.ByteSize(header.MessageLength) > c.server.maxFrameSizeOrDefault() {
				logger.Warn("frame exceeds max size, closing connection",
					logger.FD(fd), logger.MethodIndex(header.MethodIndex))
				return c.close()
			}
			frameLen := wire.HeaderSize + int(header.MessageLength)
			if c.incoming.Len() < frameLen {
				break
			}

			descriptor := c.server.service.Descriptor()
			if int(header.MethodIndex) >= len(descriptor.Methods) {
				logger.Warn("unknown method index, closing connection",
					logger.FD(fd), logger.MethodIndex(header.MethodIndex))
				return c.close()
			}

			body := make([]byte, header.MessageLength)
			copy(body, c.incoming.Bytes()[wire.HeaderSize:frameLen])
			c.incoming.Compact(frameLen)

			start := time.Now()
			c.server.service.Invoke(context.Background(), header.MethodIndex, body,
				c.replyClosure(header, start))
		}

		return 0
	}
}

// replyClosure builds the response writer passed to Service.Invoke for
// one decoded frame: it frames out (or, on error, an empty body) behind
// the reserved status field and the echoed header, then drains the
// result to the socket.
func (c *connection) replyClosure(req wire.Header, start time.Time) func(out []byte, err error) {
	return func(out []byte, err error) {
		errKind := "none"
		if err != nil {
			logger.Warn("service invoke failed", logger.FD(c.fd), logger.MethodIndex(req.MethodIndex), logger.Err(err))
			out = nil
			errKind = "invoke_error"
		}
		if c.server.metrics != nil {
			c.server.metrics.RecordFrame(strconv.FormatUint(uint64(req.MethodIndex), 10), time.Since(start), errKind)
		}

		c.outgoing.Reset()
		c.outgoing.Append(make([]byte, wire.StatusSize))

		var hdr [wire.HeaderSize]byte
		wire.Pack(wire.Header{
			MethodIndex:   req.MethodIndex,
			MessageLength: uint32(len(out)),
			RequestID:     req.RequestID,
		}, hdr[:])
		c.outgoing.Append(hdr[:])
		c.outgoing.Append(out)

		if c.server.metrics != nil {
			c.server.metrics.RecordBytesTransferred("write", uint64(c.outgoing.Len()))
		}
		c.drainOutgoing()
	}
}

// drainOutgoing writes the outgoing buffer to the socket to completion,
// retrying EINTR/EAGAIN. A short write or an unrecoverable send error
// silently terminates the write — matching spec.md §4.8's send loop,
// which has no error channel back to the caller: the reply closure
// returns nothing, so the service never learns whether the send succeeded.
func (c *connection) drainOutgoing() {
	buf := c.outgoing.Bytes()
	for len(buf) > 0 {
		n, err := unix.Write(c.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}
		if n == 0 {
			return
		}
		buf = buf[n:]
	}
}

func (c *connection) close() int {
	_ = unix.Close(c.fd)
	c.incoming.Release()
	c.outgoing.Release()
	count := c.server.connections.Add(-1)
	if c.server.metrics != nil {
		c.server.metrics.RecordConnectionClosed()
		c.server.metrics.SetConnectionCount(int(count))
	}
	return -1
}

func (c *connection) closeWithError(err error) int {
	logger.Debug("connection read error", logger.FD(c.fd), logger.Err(err))
	return c.close()
}
