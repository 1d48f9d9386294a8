// Package server implements the readiness-driven RPC server façade: bind
// one or more listen sockets, accept connections onto the shared event
// loop, and dispatch decoded frames into an rpc.Service.
package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/marmos91/gorpcd/internal/bytesize"
	"github.com/marmos91/gorpcd/internal/logger"
	"github.com/marmos91/gorpcd/pkg/metrics"
	"github.com/marmos91/gorpcd/rpc"
	"github.com/marmos91/gorpcd/rpc/endpoint"
	"github.com/marmos91/gorpcd/rpc/loop"
	"github.com/marmos91/gorpcd/rpc/rpcerr"
)

// defaultMaxFrameSize bounds a frame's message body when the caller never
// calls SetMaxFrameSize.
const defaultMaxFrameSize = 4 * bytesize.MiB

// listenSocket is a bound, listening, non-blocking fd plus the endpoint
// it was bound from, kept around so Unbind can match on address and
// server shutdown can close and unlink every socket.
type listenSocket struct {
	fd       int
	endpoint endpoint.Endpoint
}

// Server owns a set of listen sockets, the callback registry and event
// loop they share with accepted connections, and the service those
// connections dispatch into. Callers own the *Server value — there is no
// package-level server state.
type Server struct {
	mu       sync.Mutex
	sockets  []listenSocket
	service  rpc.Service
	registry *loop.Registry
	loop     *loop.Loop
	running  bool

	metrics      metrics.RuntimeMetrics
	connections  atomic.Int64
	maxFrameSize bytesize.ByteSize
}

// New constructs a Server bound to no endpoints yet. Call Bind (directly
// or via ProvideService) before Serve.
func New(service rpc.Service) *Server {
	return &Server{
		service:  service,
		registry: loop.NewRegistry(),
	}
}

// SetMetrics attaches a RuntimeMetrics recorder. Passing nil (or never
// calling SetMetrics) disables recording with zero overhead.
func (s *Server) SetMetrics(m metrics.RuntimeMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// SetMaxFrameSize bounds the message body a connection may send in a
// single frame. A connection that sends a larger frame is closed.
// Without a call to SetMaxFrameSize, defaultMaxFrameSize applies.
func (s *Server) SetMaxFrameSize(n bytesize.ByteSize) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxFrameSize = n
}

// maxFrameSizeOrDefault returns the configured frame size bound, or
// defaultMaxFrameSize if none was set.
func (s *Server) maxFrameSizeOrDefault() bytesize.ByteSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxFrameSize == 0 {
		return defaultMaxFrameSize
	}
	return s.maxFrameSize
}

// Bind parses url, creates a non-blocking listening socket of the right
// family, and registers an accept handler for it in the event loop's
// pending list. Bind may be called before or after the loop is created;
// if the loop already exists the new listener is registered immediately.
func (s *Server) Bind(url string) error {
	ep, err := endpoint.Parse(url)
	if err != nil {
		return err
	}

	fd, err := bindListen(ep)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", rpcerr.ErrSocketError, url, err)
	}

	s.mu.Lock()
	s.sockets = append(s.sockets, listenSocket{fd: fd, endpoint: ep})
	l := s.loop
	s.mu.Unlock()

	if l != nil {
		if err := l.Register(fd, s.acceptHandler(fd), nil); err != nil {
			return fmt.Errorf("%w: registering listener: %v", rpcerr.ErrSocketError, err)
		}
	}

	logger.Info("bound listener", logger.Endpoint(url), logger.FD(fd))
	return nil
}

// Unbind parses url, finds a listen socket whose address matches, closes
// it (unlinking the path for UNIX endpoints), and removes it from the
// loop. Returns false if no matching listener was found.
func (s *Server) Unbind(url string) (bool, error) {
	ep, err := endpoint.Parse(url)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	idx := -1
	for i, ls := range s.sockets {
		if endpoint.Equal(ls.endpoint, ep) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	ls := s.sockets[idx]
	s.sockets = append(s.sockets[:idx], s.sockets[idx+1:]...)
	l := s.loop
	s.mu.Unlock()

	if l != nil {
		l.Unregister(ls.fd)
	}
	closeListener(ls)

	logger.Info("unbound listener", logger.Endpoint(url))
	return true, nil
}

// ProvideService binds url, then calls Serve. This mirrors spec.md
// §4.7's single-endpoint ProvideService exactly; callers that need to
// bind several endpoints before serving should call Bind repeatedly and
// then Serve directly.
func (s *Server) ProvideService(ctx context.Context, url string, numWorkers int, stopFD int) error {
	if err := s.Bind(url); err != nil {
		return err
	}
	return s.Serve(ctx, numWorkers, stopFD)
}

// Serve brings up the event loop (with a worker pool of numWorkers
// goroutines when numWorkers > 0) over whatever endpoints have already
// been Bind-ed, optionally registers stopFD as a stop source, and runs the loop until it is stopped — via Stop, a
// readable stopFD, or ctx cancellation. On return every listen socket is
// closed and unlinked and the worker pool has been torn down.
func (s *Server) Serve(ctx context.Context, numWorkers int, stopFD int) error {
	s.mu.Lock()
	m := s.metrics
	s.mu.Unlock()

	l, err := loop.New(s.registry, numWorkers, m)
	if err != nil {
		return fmt.Errorf("starting event loop: %w", err)
	}

	s.mu.Lock()
	s.loop = l
	s.running = true
	sockets := append([]listenSocket(nil), s.sockets...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		for _, ls := range s.sockets {
			closeListener(ls)
		}
		s.sockets = nil
		s.running = false
		s.mu.Unlock()
		l.Close()
	}()

	for _, ls := range sockets {
		if err := l.Register(ls.fd, s.acceptHandler(ls.fd), nil); err != nil {
			return fmt.Errorf("%w: registering listener: %v", rpcerr.ErrSocketError, err)
		}
	}

	if stopFD > 0 {
		if err := l.Register(stopFD, s.stopHandler(), nil); err != nil {
			return fmt.Errorf("registering stop fd: %w", err)
		}
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			s.Stop()
		}()
	}

	return l.Run()
}

// Stop requests an orderly shutdown: the loop exits its next iteration
// and ProvideService returns once teardown completes.
func (s *Server) Stop() {
	s.mu.Lock()
	l := s.loop
	s.mu.Unlock()
	if l != nil {
		l.Stop()
	}
}

func closeListener(ls listenSocket) {
	_ = unix.Close(ls.fd)
	if ls.endpoint.Family == endpoint.Unix {
		_ = syscall.Unlink(ls.endpoint.Path)
	}
}

// bindListen creates, binds and listens on a non-blocking stream socket
// for ep, setting SO_REUSEADDR first. Backlog matches spec.md's 255.
func bindListen(ep endpoint.Endpoint) (int, error) {
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

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("setsockopt(SO_REUSEADDR): %w", err)
	}

	sa, err := sockaddr(ep)
	if err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	if ep.Family == endpoint.Unix {
		_ = syscall.Unlink(ep.Path)
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, 255); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("set nonblocking: %w", err)
	}

	return fd, nil
}

func sockaddr(ep endpoint.Endpoint) (unix.Sockaddr, error) {
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
